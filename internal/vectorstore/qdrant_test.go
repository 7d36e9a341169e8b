package vectorstore

import (
	"context"
	"fmt"
	"net"
	"sync"
	"testing"

	"github.com/hyperjump/shiryo/internal/models"
	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// fakeQdrant backs an in-process Qdrant gRPC server. It records every request by method
// name and answers from the fields set by each test.
type fakeQdrant struct {
	mu       sync.Mutex
	calls    []string
	requests map[string][]any
	apiKeys  []string

	exists  bool
	info    *qdrant.CollectionInfo
	count   uint64
	scored  []*qdrant.ScoredPoint
	pages   [][]*qdrant.RetrievedPoint
	failure error
}

func (f *fakeQdrant) record(ctx context.Context, method string, req any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, method)
	if f.requests == nil {
		f.requests = map[string][]any{}
	}
	f.requests[method] = append(f.requests[method], req)
	md, _ := metadata.FromIncomingContext(ctx)
	f.apiKeys = append(f.apiKeys, md.Get("api-key")...)
	return f.failure
}

func (f *fakeQdrant) recorded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeQdrant) request(method string, i int) any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[method][i]
}

type fakeCollections struct {
	qdrant.UnimplementedCollectionsServer
	f *fakeQdrant
}

type fakePoints struct {
	qdrant.UnimplementedPointsServer
	f *fakeQdrant
}

func (c fakeCollections) CollectionExists(ctx context.Context, req *qdrant.CollectionExistsRequest) (*qdrant.CollectionExistsResponse, error) {
	f := c.f
	if err := f.record(ctx, "CollectionExists", req); err != nil {
		return nil, err
	}
	return &qdrant.CollectionExistsResponse{Result: &qdrant.CollectionExists{Exists: f.exists}}, nil
}

func (c fakeCollections) Get(ctx context.Context, req *qdrant.GetCollectionInfoRequest) (*qdrant.GetCollectionInfoResponse, error) {
	f := c.f
	if err := f.record(ctx, "Get", req); err != nil {
		return nil, err
	}
	return &qdrant.GetCollectionInfoResponse{Result: f.info}, nil
}

func (c fakeCollections) Create(ctx context.Context, req *qdrant.CreateCollection) (*qdrant.CollectionOperationResponse, error) {
	f := c.f
	if err := f.record(ctx, "Create", req); err != nil {
		return nil, err
	}
	return &qdrant.CollectionOperationResponse{Result: true}, nil
}

func (p fakePoints) CreateFieldIndex(ctx context.Context, req *qdrant.CreateFieldIndexCollection) (*qdrant.PointsOperationResponse, error) {
	f := p.f
	if err := f.record(ctx, "CreateFieldIndex", req); err != nil {
		return nil, err
	}
	return &qdrant.PointsOperationResponse{Result: &qdrant.UpdateResult{}}, nil
}

func (p fakePoints) Upsert(ctx context.Context, req *qdrant.UpsertPoints) (*qdrant.PointsOperationResponse, error) {
	f := p.f
	if err := f.record(ctx, "Upsert", req); err != nil {
		return nil, err
	}
	return &qdrant.PointsOperationResponse{Result: &qdrant.UpdateResult{}}, nil
}

func (p fakePoints) Query(ctx context.Context, req *qdrant.QueryPoints) (*qdrant.QueryResponse, error) {
	f := p.f
	if err := f.record(ctx, "Query", req); err != nil {
		return nil, err
	}
	return &qdrant.QueryResponse{Result: f.scored}, nil
}

func (p fakePoints) Scroll(ctx context.Context, req *qdrant.ScrollPoints) (*qdrant.ScrollResponse, error) {
	f := p.f
	if err := f.record(ctx, "Scroll", req); err != nil {
		return nil, err
	}
	page := 0
	if req.GetOffset() != nil {
		_, _ = fmt.Sscanf(req.GetOffset().GetUuid(), "page-%d", &page)
	}
	resp := &qdrant.ScrollResponse{Result: f.pages[page]}
	if page+1 < len(f.pages) {
		resp.NextPageOffset = qdrant.NewID(fmt.Sprintf("page-%d", page+1))
	}
	return resp, nil
}

func (p fakePoints) Count(ctx context.Context, req *qdrant.CountPoints) (*qdrant.CountResponse, error) {
	f := p.f
	if err := f.record(ctx, "Count", req); err != nil {
		return nil, err
	}
	f.mu.Lock()
	n := f.count
	f.mu.Unlock()
	return &qdrant.CountResponse{Result: &qdrant.CountResult{Count: n}}, nil
}

func (p fakePoints) Delete(ctx context.Context, req *qdrant.DeletePoints) (*qdrant.PointsOperationResponse, error) {
	f := p.f
	if err := f.record(ctx, "Delete", req); err != nil {
		return nil, err
	}
	return &qdrant.PointsOperationResponse{Result: &qdrant.UpdateResult{}}, nil
}

func (p fakePoints) SetPayload(ctx context.Context, req *qdrant.SetPayloadPoints) (*qdrant.PointsOperationResponse, error) {
	f := p.f
	if err := f.record(ctx, "SetPayload", req); err != nil {
		return nil, err
	}
	return &qdrant.PointsOperationResponse{Result: &qdrant.UpdateResult{}}, nil
}

func newQdrant(t *testing.T, fake *fakeQdrant) *QdrantStore {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	srv := grpc.NewServer()
	qdrant.RegisterCollectionsServer(srv, fakeCollections{f: fake})
	qdrant.RegisterPointsServer(srv, fakePoints{f: fake})
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	s, err := NewQdrantStore(QdrantConfig{URL: "http://" + lis.Addr().String(), APIKey: "secret", Collection: "documents"})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func vectorInfo(size uint64) *qdrant.CollectionInfo {
	return &qdrant.CollectionInfo{Config: &qdrant.CollectionConfig{Params: &qdrant.CollectionParams{
		VectorsConfig: qdrant.NewVectorsConfigMap(map[string]*qdrant.VectorParams{
			VectorSummary: {Size: size, Distance: qdrant.Distance_Cosine},
			VectorContent: {Size: size, Distance: qdrant.Distance_Cosine},
		}),
	}}}
}

func TestNewQdrantStore_Config(t *testing.T) {
	_, err := NewQdrantStore(QdrantConfig{Collection: "documents"})
	assert.Error(t, err)
	_, err = NewQdrantStore(QdrantConfig{URL: "http://localhost:6334"})
	assert.Error(t, err)

	tests := []struct {
		url     string
		host    string
		port    int
		tls     bool
		wantErr bool
	}{
		{"http://localhost:6334", "localhost", 6334, false, false},
		{"https://qdrant.example.com", "qdrant.example.com", defaultQdrantPort, true, false},
		{"10.0.0.5:7000", "10.0.0.5", 7000, false, false},
		{"http://:6334", "", 0, false, true},
		{"http://localhost:port", "", 0, false, true},
	}
	for _, tt := range tests {
		cfg, err := qdrantClientConfig(tt.url)
		if tt.wantErr {
			assert.Error(t, err, tt.url)
			continue
		}
		require.NoError(t, err, tt.url)
		assert.Equal(t, tt.host, cfg.Host, tt.url)
		assert.Equal(t, tt.port, cfg.Port, tt.url)
		assert.Equal(t, tt.tls, cfg.UseTLS, tt.url)
	}
}

func TestQdrant_EnsureCollection_CreatesMissing(t *testing.T) {
	fake := &fakeQdrant{}
	s := newQdrant(t, fake)
	require.NoError(t, s.EnsureCollection(context.Background(), 8))

	calls := fake.recorded()
	require.Len(t, calls, 6, "exists, create, four payload indexes")
	assert.Equal(t, "Create", calls[1])
	create := fake.request("Create", 0).(*qdrant.CreateCollection)
	assert.Equal(t, "documents", create.GetCollectionName())
	vectors := create.GetVectorsConfig().GetParamsMap().GetMap()
	for _, name := range []string{VectorSummary, VectorContent} {
		require.Contains(t, vectors, name)
		assert.Equal(t, uint64(8), vectors[name].GetSize())
		assert.Equal(t, qdrant.Distance_Cosine, vectors[name].GetDistance())
	}
	indexed := map[string]qdrant.FieldType{}
	for i := 0; i < 4; i++ {
		req := fake.request("CreateFieldIndex", i).(*qdrant.CreateFieldIndexCollection)
		indexed[req.GetFieldName()] = req.GetFieldType()
	}
	assert.Equal(t, map[string]qdrant.FieldType{
		models.FieldOwner:      qdrant.FieldType_FieldTypeKeyword,
		models.FieldFilename:   qdrant.FieldType_FieldTypeKeyword,
		models.FieldIsPublic:   qdrant.FieldType_FieldTypeBool,
		models.FieldSequenceID: qdrant.FieldType_FieldTypeInteger,
	}, indexed)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	require.Len(t, fake.apiKeys, 6)
	for _, k := range fake.apiKeys {
		assert.Equal(t, "secret", k)
	}
}

func TestQdrant_EnsureCollection_ChecksDimensions(t *testing.T) {
	fake := &fakeQdrant{exists: true, info: vectorInfo(4)}
	s := newQdrant(t, fake)
	require.NoError(t, s.EnsureCollection(context.Background(), 4))
	assert.ErrorIs(t, s.EnsureCollection(context.Background(), 8), ErrDimensionMismatch)
	assert.NotContains(t, fake.recorded(), "Create")
}

func TestQdrant_UpsertSendsNamedVectorsAndPayload(t *testing.T) {
	fake := &fakeQdrant{}
	s := newQdrant(t, fake)
	err := s.Upsert(context.Background(), []Point{{
		ID:            "7f1b6f2e-0000-5000-8000-000000000001",
		SummaryVector: []float32{1, 0},
		ContentVector: []float32{0, 1},
		Payload:       models.Chunk{Filename: "report.pdf", Owner: "alice", SequenceID: 3, Content: "q3"},
	}})
	require.NoError(t, err)
	require.NoError(t, s.Upsert(context.Background(), nil))
	assert.Equal(t, []string{"Upsert"}, fake.recorded(), "empty upserts send nothing")

	req := fake.request("Upsert", 0).(*qdrant.UpsertPoints)
	require.Len(t, req.GetPoints(), 1)
	p := req.GetPoints()[0]
	assert.Equal(t, "7f1b6f2e-0000-5000-8000-000000000001", p.GetId().GetUuid())
	named := p.GetVectors().GetVectors().GetVectors()
	assert.Equal(t, []float32{1, 0}, named[VectorSummary].GetDense().GetData())
	assert.Equal(t, []float32{0, 1}, named[VectorContent].GetDense().GetData())
	assert.Equal(t, models.Chunk{Filename: "report.pdf", Owner: "alice", SequenceID: 3, Content: "q3"}, payloadChunk(p.GetPayload()))

	assert.Error(t, s.Upsert(context.Background(), []Point{{}}), "points need an id")
}

func TestQdrant_SearchSendsVisibilityFilter(t *testing.T) {
	fake := &fakeQdrant{scored: []*qdrant.ScoredPoint{{
		Id:    qdrant.NewID("7f1b6f2e-0000-5000-8000-000000000001"),
		Score: 0.9,
		Payload: chunkPayload(&models.Chunk{
			Filename: "report.pdf", Owner: "alice", SequenceID: 2, Content: "q3",
		}),
	}}}
	s := newQdrant(t, fake)
	hits, err := s.Search(context.Background(), VectorContent, []float32{1, 0}, Visible("alice"), 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "7f1b6f2e-0000-5000-8000-000000000001", hits[0].ID)
	assert.InDelta(t, 0.9, hits[0].Score, 1e-6)
	assert.Equal(t, 2, hits[0].Payload.SequenceID)
	assert.Equal(t, "q3", hits[0].Payload.Content)

	req := fake.request("Query", 0).(*qdrant.QueryPoints)
	assert.Equal(t, VectorContent, req.GetUsing())
	assert.Equal(t, uint64(5), req.GetLimit())
	assert.Equal(t, []float32{1, 0}, req.GetQuery().GetNearest().GetDense().GetData())
	should := req.GetFilter().GetShould()
	require.Len(t, should, 2)
	assert.Equal(t, models.FieldOwner, should[0].GetField().GetKey())
	assert.Equal(t, "alice", should[0].GetField().GetMatch().GetKeyword())
	assert.True(t, should[1].GetField().GetMatch().GetBoolean())

	_, err = s.Search(context.Background(), "title_vector", []float32{1, 0}, nil, 5)
	assert.Error(t, err)
}

func TestQdrant_NestedFilter(t *testing.T) {
	f := qdrantFilter(And(Document("report.pdf", "alice"), &Filter{Should: []Condition{
		Eq(models.FieldSequenceID, 1), Eq(models.FieldSequenceID, 4),
	}}))
	must := f.GetMust()
	require.Len(t, must, 2)
	doc := must[0].GetFilter().GetMust()
	require.Len(t, doc, 2)
	assert.Equal(t, "report.pdf", doc[0].GetField().GetMatch().GetKeyword())
	ids := must[1].GetFilter().GetShould()
	require.Len(t, ids, 2)
	assert.Equal(t, int64(4), ids[1].GetField().GetMatch().GetInteger())

	assert.Nil(t, qdrantFilter(nil))
	assert.NotNil(t, selectorFilter(nil), "a selector needs a filter to select everything")
}

func TestQdrant_ScrollFollowsPages(t *testing.T) {
	retrieved := func(id string, seq int) *qdrant.RetrievedPoint {
		return &qdrant.RetrievedPoint{Id: qdrant.NewID(id), Payload: chunkPayload(&models.Chunk{SequenceID: seq})}
	}
	fake := &fakeQdrant{pages: [][]*qdrant.RetrievedPoint{
		{retrieved("p1", 1)},
		{retrieved("p2", 2)},
	}}
	s := newQdrant(t, fake)
	recs, err := s.Scroll(context.Background(), Document("report.pdf", "alice"), 0)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "p1", recs[0].ID)
	assert.Equal(t, 2, recs[1].Payload.SequenceID)

	require.Len(t, fake.recorded(), 2)
	second := fake.request("Scroll", 1).(*qdrant.ScrollPoints)
	assert.Equal(t, "page-1", second.GetOffset().GetUuid())
	assert.False(t, second.GetWithVectors().GetEnable())

	recs, err = s.Scroll(context.Background(), nil, 1)
	require.NoError(t, err)
	assert.Len(t, recs, 1, "a limit stops paging early")
}

func TestQdrant_DeleteAndSetPublicCountFirst(t *testing.T) {
	fake := &fakeQdrant{count: 3}
	s := newQdrant(t, fake)
	ctx := context.Background()

	n, err := s.SetPublic(ctx, Document("report.pdf", "alice"), true)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	n, err = s.Delete(ctx, Document("report.pdf", "alice"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []string{"Count", "SetPayload", "Count", "Delete"}, fake.recorded())

	set := fake.request("SetPayload", 0).(*qdrant.SetPayloadPoints)
	assert.True(t, set.GetPayload()[models.FieldIsPublic].GetBoolValue())
	assert.Len(t, set.GetPointsSelector().GetFilter().GetMust(), 2)
	del := fake.request("Delete", 0).(*qdrant.DeletePoints)
	assert.Len(t, del.GetPoints().GetFilter().GetMust(), 2)
	assert.True(t, fake.request("Count", 0).(*qdrant.CountPoints).GetExact())

	fake.mu.Lock()
	fake.count = 0
	fake.mu.Unlock()
	n, err = s.Delete(ctx, Document("missing.pdf", "alice"))
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Len(t, fake.recorded(), 5, "nothing to delete, only the count is sent")
}

func TestQdrant_ErrorStatus(t *testing.T) {
	fake := &fakeQdrant{failure: status.Error(codes.InvalidArgument, "bad filter")}
	s := newQdrant(t, fake)
	_, err := s.Count(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad filter")
}
