package qdrant

import (
	"context"
	"testing"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"

	"github.com/lilacdata/lilac/engine/vectorindex"
)

type mockPoints struct {
	pb.PointsClient

	upsertResp *pb.PointsOperationResponse
	upsertErr  error
	searchResp *pb.SearchResponse
	searchErr  error

	lastUpsert *pb.UpsertPoints
	lastSearch *pb.SearchPoints
}

func (m *mockPoints) Upsert(_ context.Context, req *pb.UpsertPoints, _ ...grpc.CallOption) (*pb.PointsOperationResponse, error) {
	m.lastUpsert = req
	return m.upsertResp, m.upsertErr
}

func (m *mockPoints) Search(_ context.Context, req *pb.SearchPoints, _ ...grpc.CallOption) (*pb.SearchResponse, error) {
	m.lastSearch = req
	return m.searchResp, m.searchErr
}

type mockCollections struct {
	pb.CollectionsClient

	listResp   *pb.ListCollectionsResponse
	listErr    error
	createResp *pb.CollectionOperationResponse
	createErr  error
	createReq  *pb.CreateCollection
}

func (m *mockCollections) List(_ context.Context, _ *pb.ListCollectionsRequest, _ ...grpc.CallOption) (*pb.ListCollectionsResponse, error) {
	return m.listResp, m.listErr
}

func (m *mockCollections) Create(_ context.Context, req *pb.CreateCollection, _ ...grpc.CallOption) (*pb.CollectionOperationResponse, error) {
	m.createReq = req
	return m.createResp, m.createErr
}

func TestEnsureCollectionCreatesWhenAbsent(t *testing.T) {
	collections := &mockCollections{
		listResp:   &pb.ListCollectionsResponse{Collections: nil},
		createResp: &pb.CollectionOperationResponse{Result: true},
	}
	idx := NewWithClients(&mockPoints{}, collections, "docs")

	if err := idx.EnsureCollection(context.Background(), 384); err != nil {
		t.Fatalf("EnsureCollection: %v", err)
	}
	if collections.createReq == nil {
		t.Fatal("expected Create to be called")
	}
	if collections.createReq.CollectionName != "docs" {
		t.Fatalf("unexpected collection name: %s", collections.createReq.CollectionName)
	}
	if collections.createReq.VectorsConfig.GetParams().GetSize() != 384 {
		t.Fatalf("unexpected dims: %d", collections.createReq.VectorsConfig.GetParams().GetSize())
	}
}

func TestEnsureCollectionSkipsWhenPresent(t *testing.T) {
	collections := &mockCollections{
		listResp: &pb.ListCollectionsResponse{
			Collections: []*pb.CollectionDescription{{Name: "docs"}},
		},
	}
	idx := NewWithClients(&mockPoints{}, collections, "docs")

	if err := idx.EnsureCollection(context.Background(), 384); err != nil {
		t.Fatalf("EnsureCollection: %v", err)
	}
	if collections.createReq != nil {
		t.Fatal("expected Create not to be called when collection already exists")
	}
}

func TestAddUpsertsPointsWithDeterministicIDs(t *testing.T) {
	points := &mockPoints{upsertResp: &pb.PointsOperationResponse{}}
	idx := NewWithClients(points, &mockCollections{}, "docs")

	entries := []vectorindex.Entry{
		{Key: vectorindex.Key{RowID: "r1", SpanIndex: 0}, Vector: []float32{1, 0}},
	}
	if err := idx.Add(context.Background(), entries); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if points.lastUpsert == nil || len(points.lastUpsert.Points) != 1 {
		t.Fatal("expected one point upserted")
	}
	want := pointID(entries[0].Key)
	got := points.lastUpsert.Points[0].GetId().GetUuid()
	if got != want {
		t.Fatalf("expected deterministic point id %s, got %s", want, got)
	}

	// re-adding the same key must derive the same id.
	idx2 := NewWithClients(points, &mockCollections{}, "docs")
	if err := idx2.Add(context.Background(), entries); err != nil {
		t.Fatalf("Add (second): %v", err)
	}
	if points.lastUpsert.Points[0].GetId().GetUuid() != want {
		t.Fatal("expected re-adding the same key to reuse its point id")
	}
}

func TestAddNoopOnEmptyEntries(t *testing.T) {
	points := &mockPoints{}
	idx := NewWithClients(points, &mockCollections{}, "docs")
	if err := idx.Add(context.Background(), nil); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if points.lastUpsert != nil {
		t.Fatal("expected no upsert call for empty entries")
	}
}

func TestTopKSortsByScoreThenKeyOrder(t *testing.T) {
	mkPayload := func(rowID string, spanIndex int64) map[string]*pb.Value {
		return map[string]*pb.Value{
			"row_id":     {Kind: &pb.Value_StringValue{StringValue: rowID}},
			"span_index": {Kind: &pb.Value_IntegerValue{IntegerValue: spanIndex}},
		}
	}
	points := &mockPoints{
		searchResp: &pb.SearchResponse{
			Result: []*pb.ScoredPoint{
				{Score: 0.5, Payload: mkPayload("b", 0)},
				{Score: 0.5, Payload: mkPayload("a", 0)},
				{Score: 0.9, Payload: mkPayload("c", 0)},
			},
		},
	}
	idx := NewWithClients(points, &mockCollections{}, "docs")

	hits, err := idx.TopK(context.Background(), []float32{1, 0}, 3, nil)
	if err != nil {
		t.Fatalf("TopK: %v", err)
	}
	if len(hits) != 3 {
		t.Fatalf("expected 3 hits, got %d", len(hits))
	}
	if hits[0].Key.RowID != "c" {
		t.Fatalf("expected highest score first, got %s", hits[0].Key.RowID)
	}
	if hits[1].Key.RowID != "a" || hits[2].Key.RowID != "b" {
		t.Fatalf("expected tie-break by key order, got %v, %v", hits[1].Key, hits[2].Key)
	}
}

func TestTopKAppliesPrefixFilter(t *testing.T) {
	points := &mockPoints{searchResp: &pb.SearchResponse{}}
	idx := NewWithClients(points, &mockCollections{}, "docs")

	_, err := idx.TopK(context.Background(), []float32{1, 0}, 5, map[string]bool{"r1": true, "r2": true})
	if err != nil {
		t.Fatalf("TopK: %v", err)
	}
	if points.lastSearch.Filter == nil || len(points.lastSearch.Filter.Should) != 2 {
		t.Fatal("expected a Should filter with one condition per prefix row-id")
	}
}

func TestPersistAndLoadAreNoops(t *testing.T) {
	idx := NewWithClients(&mockPoints{}, &mockCollections{}, "docs")
	if err := idx.Persist(context.Background(), "anything"); err != nil {
		t.Fatalf("Persist: %v", err)
	}
	if err := idx.Load(context.Background(), "anything"); err != nil {
		t.Fatalf("Load: %v", err)
	}
}
