package main

import (
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"github.com/lilacdata/lilac/engine/manifestwriter"
	"github.com/lilacdata/lilac/engine/store"
	"github.com/lilacdata/lilac/engine/udf"
	"github.com/lilacdata/lilac/engine/vectorindex"
	"github.com/lilacdata/lilac/engine/vectorindex/memory"
	"github.com/lilacdata/lilac/engine/vectorindex/qdrant"
	"github.com/lilacdata/lilac/pkg/datasetfs"
	"github.com/lilacdata/lilac/pkg/eventbus"
)

var (
	rootDir          string
	indexBackend     string
	qdrantAddr       string
	qdrantCollection string
	natsURL          string
	runnerWorkers    int
	runnerChunkSize  int
	ollamaURL        string
	ollamaModel      string
)

var rootCmd = &cobra.Command{
	Use:           "lilac",
	Short:         "Lilac: dataset enrichment-and-query engine CLI",
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootDir, "root", "", "filesystem root datasets live under (empty = in-memory, scratch only)")
	rootCmd.PersistentFlags().StringVar(&indexBackend, "index", "memory", "vector index backend: memory or qdrant")
	rootCmd.PersistentFlags().StringVar(&qdrantAddr, "qdrant-addr", "localhost:6334", "qdrant gRPC address, when --index=qdrant")
	rootCmd.PersistentFlags().StringVar(&qdrantCollection, "qdrant-collection", "lilac", "qdrant collection name, when --index=qdrant")
	rootCmd.PersistentFlags().StringVar(&natsURL, "nats-url", "", "NATS URL for lifecycle events (empty disables eventing)")
	rootCmd.PersistentFlags().IntVar(&runnerWorkers, "workers", 0, "UDF runner worker pool size (0 = default)")
	rootCmd.PersistentFlags().IntVar(&runnerChunkSize, "chunk-size", 0, "UDF runner batch chunk size (0 = default)")
	rootCmd.PersistentFlags().StringVar(&ollamaURL, "ollama-url", "", "Ollama server base URL, for the embed builtin signal")
	rootCmd.PersistentFlags().StringVar(&ollamaModel, "ollama-model", "nomic-embed-text", "Ollama embedding model name")

	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(groupsCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(computeSignalCmd)
	rootCmd.AddCommand(deleteSignalCmd)
	rootCmd.AddCommand(manifestCmd)
}

// openStore builds a Store rooted at --root (in-memory if unset).
func openStore() *store.Store {
	return store.New(datasetfs.Open(rootDir))
}

// openIndex builds the vector index backend named by --index.
func openIndex() (vectorindex.Index, error) {
	switch indexBackend {
	case "", "memory":
		return memory.New(datasetfs.Open(rootDir)), nil
	case "qdrant":
		return qdrant.New(qdrantAddr, qdrantCollection)
	default:
		return nil, fmt.Errorf("unknown --index backend %q", indexBackend)
	}
}

// openBus connects to --nats-url, returning a no-op Bus when unset.
func openBus() *eventbus.Bus {
	if natsURL == "" {
		return eventbus.New(nil)
	}
	nc, err := nats.Connect(natsURL)
	if err != nil {
		return eventbus.New(nil)
	}
	return eventbus.New(nc)
}

func openWriter() (*manifestwriter.Writer, error) {
	index, err := openIndex()
	if err != nil {
		return nil, err
	}
	runner := udf.New(runnerWorkers, runnerChunkSize)
	return manifestwriter.New(openStore(), runner, index, openBus()), nil
}
