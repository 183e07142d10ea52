// Package qdrant adapts a Qdrant collection to the vectorindex.Index
// contract, for deployments that want an external ANN index instead of
// the in-memory dense matrix. Adapted from the teacher's semantic vector
// store, generalized from a fixed doc/chunk shape to arbitrary
// (row-id, span-index) keys.
package qdrant

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/lilacdata/lilac/engine/vectorindex"
	"github.com/lilacdata/lilac/pkg/resilience"
)

// Index is a vectorindex.Index backed by a Qdrant collection.
type Index struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	collection  string

	limiter *rate.Limiter
	breaker *resilience.Breaker
}

var _ vectorindex.Index = (*Index)(nil)

// Option configures an Index at construction time.
type Option func(*Index)

// WithRateLimit bounds the number of Qdrant requests issued per second.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(i *Index) {
		i.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithBreaker wraps every Qdrant call with a circuit breaker so a flaky
// collection degrades to fast failures instead of hanging queries.
func WithBreaker(opts resilience.BreakerOpts) Option {
	return func(i *Index) {
		i.breaker = resilience.NewBreaker(opts)
	}
}

// New dials addr and targets the named collection.
func New(addr, collection string, opts ...Option) (*Index, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("vectorindex/qdrant: dial %s: %w", addr, err)
	}
	idx := &Index{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		collection:  collection,
		limiter:     rate.NewLimiter(rate.Inf, 1),
		breaker:     resilience.NewBreaker(resilience.DefaultBreakerOpts),
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx, nil
}

// NewWithClients builds an Index around already-constructed gRPC
// clients, bypassing the dial step. Used by tests to inject mocks.
func NewWithClients(points pb.PointsClient, collections pb.CollectionsClient, collection string, opts ...Option) *Index {
	idx := &Index{
		points:      points,
		collections: collections,
		collection:  collection,
		limiter:     rate.NewLimiter(rate.Inf, 1),
		breaker:     resilience.NewBreaker(resilience.DefaultBreakerOpts),
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// Close releases the underlying gRPC connection.
func (idx *Index) Close() error {
	return idx.conn.Close()
}

// EnsureCollection creates the backing collection if it doesn't exist.
func (idx *Index) EnsureCollection(ctx context.Context, dims int) error {
	return idx.guarded(ctx, func(ctx context.Context) error {
		list, err := idx.collections.List(ctx, &pb.ListCollectionsRequest{})
		if err != nil {
			return fmt.Errorf("vectorindex/qdrant: list collections: %w", err)
		}
		for _, c := range list.GetCollections() {
			if c.GetName() == idx.collection {
				return nil
			}
		}
		_, err = idx.collections.Create(ctx, &pb.CreateCollection{
			CollectionName: idx.collection,
			VectorsConfig: &pb.VectorsConfig{
				Config: &pb.VectorsConfig_Params{
					Params: &pb.VectorParams{
						Size:     uint64(dims),
						Distance: pb.Distance_Cosine,
					},
				},
			},
		})
		if err != nil {
			return fmt.Errorf("vectorindex/qdrant: create collection %s: %w", idx.collection, err)
		}
		return nil
	})
}

// pointID derives a deterministic Qdrant point UUID from a vectorindex
// key, so re-adding the same (row-id, span-index) upserts in place
// instead of accumulating duplicate points.
func pointID(key vectorindex.Key) string {
	name := fmt.Sprintf("%s#%d", key.RowID, key.SpanIndex)
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String()
}

func (idx *Index) Add(ctx context.Context, entries []vectorindex.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	return idx.guarded(ctx, func(ctx context.Context) error {
		points := make([]*pb.PointStruct, len(entries))
		for i, e := range entries {
			points[i] = &pb.PointStruct{
				Id: &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: pointID(e.Key)}},
				Vectors: &pb.Vectors{
					VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: e.Vector}},
				},
				Payload: map[string]*pb.Value{
					"row_id":     {Kind: &pb.Value_StringValue{StringValue: e.Key.RowID}},
					"span_index": {Kind: &pb.Value_IntegerValue{IntegerValue: int64(e.Key.SpanIndex)}},
				},
			}
		}
		wait := true
		_, err := idx.points.Upsert(ctx, &pb.UpsertPoints{
			CollectionName: idx.collection,
			Wait:           &wait,
			Points:         points,
		})
		if err != nil {
			return fmt.Errorf("vectorindex/qdrant: upsert %d points: %w", len(points), err)
		}
		return nil
	})
}

func (idx *Index) TopK(ctx context.Context, query []float32, k int, prefix map[string]bool) ([]vectorindex.Hit, error) {
	if prefix != nil && len(prefix) == 0 {
		return []vectorindex.Hit{}, nil
	}
	var hits []vectorindex.Hit
	err := idx.guarded(ctx, func(ctx context.Context) error {
		req := &pb.SearchPoints{
			CollectionName: idx.collection,
			Vector:         query,
			Limit:          uint64(k),
			WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
		}
		if len(prefix) > 0 {
			must := make([]*pb.Condition, 0, len(prefix))
			for rowID := range prefix {
				must = append(must, &pb.Condition{
					ConditionOneOf: &pb.Condition_Field{
						Field: &pb.FieldCondition{
							Key:   "row_id",
							Match: &pb.Match{MatchValue: &pb.Match_Keyword{Keyword: rowID}},
						},
					},
				})
			}
			req.Filter = &pb.Filter{Should: must}
		}

		resp, err := idx.points.Search(ctx, req)
		if err != nil {
			return fmt.Errorf("vectorindex/qdrant: search: %w", err)
		}
		hits = make([]vectorindex.Hit, len(resp.GetResult()))
		for i, r := range resp.GetResult() {
			payload := r.GetPayload()
			hits[i] = vectorindex.Hit{
				Key: vectorindex.Key{
					RowID:     payload["row_id"].GetStringValue(),
					SpanIndex: int(payload["span_index"].GetIntegerValue()),
				},
				Score: r.GetScore(),
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Key.Less(hits[j].Key)
	})
	return hits, nil
}

// Persist is a no-op: Qdrant is itself the durable store. The signal
// manifest records the collection name as its embedding prefix so a
// later process knows where to reconnect.
func (idx *Index) Persist(ctx context.Context, dest string) error { return nil }

// Load is a no-op for the same reason Persist is: there is nothing to
// read back into process memory, the collection already holds state.
func (idx *Index) Load(ctx context.Context, src string) error { return nil }

func (idx *Index) guarded(ctx context.Context, f func(context.Context) error) error {
	if err := idx.limiter.Wait(ctx); err != nil {
		return err
	}
	return idx.breaker.Call(ctx, f)
}
