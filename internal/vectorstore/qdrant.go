package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hyperjump/shiryo/internal/models"
	"github.com/qdrant/go-client/qdrant"
)

const (
	defaultQdrantPort = 6334
	scrollPageSize    = 256
)

// QdrantConfig configures a QdrantStore. URL is the gRPC endpoint, for example
// http://localhost:6334; an https scheme enables TLS.
type QdrantConfig struct {
	URL        string
	APIKey     string
	Collection string
	// Timeout bounds every call; zero means 15s.
	Timeout time.Duration
}

// QdrantStore keeps points in one Qdrant collection with the summary and content named
// vectors and cosine distance. Point ids must be UUIDs.
type QdrantStore struct {
	client     *qdrant.Client
	collection string
	timeout    time.Duration
}

// NewQdrantStore creates a client. The connection is lazy: no request is made until
// EnsureCollection.
func NewQdrantStore(cfg QdrantConfig) (*QdrantStore, error) {
	if cfg.URL == "" {
		return nil, errors.New("qdrant url is required")
	}
	if cfg.Collection == "" {
		return nil, errors.New("qdrant collection is required")
	}
	qcfg, err := qdrantClientConfig(cfg.URL)
	if err != nil {
		return nil, err
	}
	qcfg.APIKey = cfg.APIKey
	client, err := qdrant.NewClient(qcfg)
	if err != nil {
		return nil, fmt.Errorf("qdrant client: %w", err)
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &QdrantStore{client: client, collection: cfg.Collection, timeout: timeout}, nil
}

func qdrantClientConfig(raw string) (*qdrant.Config, error) {
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid qdrant url: %w", err)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("invalid qdrant url %q: missing host", raw)
	}
	port := defaultQdrantPort
	if p := u.Port(); p != "" {
		if port, err = strconv.Atoi(p); err != nil {
			return nil, fmt.Errorf("invalid qdrant port %q", p)
		}
	}
	return &qdrant.Config{
		Host:   u.Hostname(),
		Port:   port,
		UseTLS: u.Scheme == "https",
		// the version check logs through slog; the store logs through the caller
		SkipCompatibilityCheck: true,
		PoolSize:               1,
	}, nil
}

func (q *QdrantStore) call(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, q.timeout)
}

// EnsureCollection creates the collection with both named vectors and payload indexes on the
// filtered keys, or checks the dimensions of an existing one.
func (q *QdrantStore) EnsureCollection(ctx context.Context, dimensions int) error {
	if dimensions <= 0 {
		return errors.New("dimensions must be positive")
	}
	ctx, cancel := q.call(ctx)
	defer cancel()

	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return fmt.Errorf("qdrant: %w", err)
	}
	if exists {
		info, err := q.client.GetCollectionInfo(ctx, q.collection)
		if err != nil {
			return fmt.Errorf("qdrant: %w", err)
		}
		vectors := info.GetConfig().GetParams().GetVectorsConfig().GetParamsMap().GetMap()
		for _, name := range []string{VectorSummary, VectorContent} {
			v, ok := vectors[name]
			if !ok {
				return fmt.Errorf("qdrant collection %s has no vector %s", q.collection, name)
			}
			if int(v.GetSize()) != dimensions {
				return fmt.Errorf("%w: %s has %d, expected %d", ErrDimensionMismatch, name, v.GetSize(), dimensions)
			}
		}
		return nil
	}

	params := func() *qdrant.VectorParams {
		return &qdrant.VectorParams{Size: uint64(dimensions), Distance: qdrant.Distance_Cosine}
	}
	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: qdrant.NewVectorsConfigMap(map[string]*qdrant.VectorParams{
			VectorSummary: params(),
			VectorContent: params(),
		}),
	})
	if err != nil {
		return fmt.Errorf("create collection: %w", err)
	}
	indexes := []struct {
		field string
		kind  qdrant.FieldType
	}{
		{models.FieldOwner, qdrant.FieldType_FieldTypeKeyword},
		{models.FieldFilename, qdrant.FieldType_FieldTypeKeyword},
		{models.FieldIsPublic, qdrant.FieldType_FieldTypeBool},
		{models.FieldSequenceID, qdrant.FieldType_FieldTypeInteger},
	}
	for _, idx := range indexes {
		_, err := q.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: q.collection,
			Wait:           qdrant.PtrOf(true),
			FieldName:      idx.field,
			FieldType:      qdrant.PtrOf(idx.kind),
		})
		if err != nil {
			return fmt.Errorf("create payload index %s: %w", idx.field, err)
		}
	}
	return nil
}

func (q *QdrantStore) Upsert(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	structs := make([]*qdrant.PointStruct, len(points))
	for i, p := range points {
		if p.ID == "" {
			return errors.New("point id is required")
		}
		structs[i] = &qdrant.PointStruct{
			Id: qdrant.NewID(p.ID),
			Vectors: qdrant.NewVectorsMap(map[string]*qdrant.Vector{
				VectorSummary: qdrant.NewVectorDense(p.SummaryVector),
				VectorContent: qdrant.NewVectorDense(p.ContentVector),
			}),
			Payload: chunkPayload(&p.Payload),
		}
	}
	ctx, cancel := q.call(ctx)
	defer cancel()
	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         structs,
	})
	if err != nil {
		return fmt.Errorf("qdrant: %w", err)
	}
	return nil
}

func (q *QdrantStore) Search(ctx context.Context, vectorName string, query []float32, filter *Filter, limit int) ([]ScoredPoint, error) {
	if err := checkVectorName(vectorName); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, nil
	}
	ctx, cancel := q.call(ctx)
	defer cancel()
	res, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQueryDense(query),
		Using:          qdrant.PtrOf(vectorName),
		Filter:         qdrantFilter(filter),
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: %w", err)
	}
	out := make([]ScoredPoint, len(res))
	for i, p := range res {
		out[i] = ScoredPoint{ID: pointID(p.GetId()), Score: float64(p.GetScore()), Payload: payloadChunk(p.GetPayload())}
	}
	return out, nil
}

// Scroll pages through matching points following the next page offset.
func (q *QdrantStore) Scroll(ctx context.Context, filter *Filter, limit int) ([]Record, error) {
	var (
		out    []Record
		offset *qdrant.PointId
	)
	for {
		page := scrollPageSize
		if limit > 0 && limit-len(out) < page {
			page = limit - len(out)
		}
		cctx, cancel := q.call(ctx)
		points, next, err := q.client.ScrollAndOffset(cctx, &qdrant.ScrollPoints{
			CollectionName: q.collection,
			Filter:         qdrantFilter(filter),
			Offset:         offset,
			Limit:          qdrant.PtrOf(uint32(page)),
			WithPayload:    qdrant.NewWithPayload(true),
			WithVectors:    qdrant.NewWithVectors(false),
		})
		cancel()
		if err != nil {
			return nil, fmt.Errorf("qdrant: %w", err)
		}
		for _, p := range points {
			out = append(out, Record{ID: pointID(p.GetId()), Payload: payloadChunk(p.GetPayload())})
		}
		if next == nil || (limit > 0 && len(out) >= limit) {
			return out, nil
		}
		offset = next
	}
}

func (q *QdrantStore) Count(ctx context.Context, filter *Filter) (int, error) {
	ctx, cancel := q.call(ctx)
	defer cancel()
	n, err := q.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: q.collection,
		Filter:         qdrantFilter(filter),
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("qdrant: %w", err)
	}
	return int(n), nil
}

// Delete counts the matching points first since the delete call does not report them.
func (q *QdrantStore) Delete(ctx context.Context, filter *Filter) (int, error) {
	n, err := q.Count(ctx, filter)
	if err != nil || n == 0 {
		return 0, err
	}
	ctx, cancel := q.call(ctx)
	defer cancel()
	_, err = q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         qdrant.NewPointsSelectorFilter(selectorFilter(filter)),
	})
	if err != nil {
		return 0, fmt.Errorf("qdrant: %w", err)
	}
	return n, nil
}

func (q *QdrantStore) SetPublic(ctx context.Context, filter *Filter, isPublic bool) (int, error) {
	n, err := q.Count(ctx, filter)
	if err != nil || n == 0 {
		return 0, err
	}
	ctx, cancel := q.call(ctx)
	defer cancel()
	_, err = q.client.SetPayload(ctx, &qdrant.SetPayloadPoints{
		CollectionName: q.collection,
		Wait:           qdrant.PtrOf(true),
		Payload:        map[string]*qdrant.Value{models.FieldIsPublic: qdrant.NewValueBool(isPublic)},
		PointsSelector: qdrant.NewPointsSelectorFilter(selectorFilter(filter)),
	})
	if err != nil {
		return 0, fmt.Errorf("qdrant: %w", err)
	}
	return n, nil
}

// Close closes the gRPC connection.
func (q *QdrantStore) Close() error {
	return q.client.Close()
}

// qdrantFilter converts f; a nil filter stays nil so the request carries no filter.
func qdrantFilter(f *Filter) *qdrant.Filter {
	if f == nil {
		return nil
	}
	return &qdrant.Filter{
		Must:   qdrantConditions(f.Must),
		Should: qdrantConditions(f.Should),
	}
}

// selectorFilter is qdrantFilter for points selectors, where an empty filter selects all.
func selectorFilter(f *Filter) *qdrant.Filter {
	if qf := qdrantFilter(f); qf != nil {
		return qf
	}
	return &qdrant.Filter{}
}

func qdrantConditions(conds []Condition) []*qdrant.Condition {
	if len(conds) == 0 {
		return nil
	}
	out := make([]*qdrant.Condition, len(conds))
	for i, c := range conds {
		if c.Filter != nil {
			out[i] = qdrant.NewFilterAsCondition(qdrantFilter(c.Filter))
			continue
		}
		switch v := c.Value.(type) {
		case bool:
			out[i] = qdrant.NewMatchBool(c.Key, v)
		case int:
			out[i] = qdrant.NewMatchInt(c.Key, int64(v))
		case int64:
			out[i] = qdrant.NewMatchInt(c.Key, v)
		case string:
			out[i] = qdrant.NewMatchKeyword(c.Key, v)
		default:
			out[i] = qdrant.NewMatchKeyword(c.Key, fmt.Sprint(v))
		}
	}
	return out
}

func chunkPayload(c *models.Chunk) map[string]*qdrant.Value {
	return map[string]*qdrant.Value{
		models.FieldFilename:   qdrant.NewValueString(c.Filename),
		models.FieldOwner:      qdrant.NewValueString(c.Owner),
		models.FieldSequenceID: qdrant.NewValueInt(int64(c.SequenceID)),
		models.FieldIsPublic:   qdrant.NewValueBool(c.IsPublic),
		models.FieldSummary:    qdrant.NewValueString(c.Summary),
		models.FieldContent:    qdrant.NewValueString(c.Content),
	}
}

func payloadChunk(p map[string]*qdrant.Value) models.Chunk {
	seq := p[models.FieldSequenceID].GetIntegerValue()
	if seq == 0 {
		// points written through the REST API may carry numbers as doubles
		seq = int64(p[models.FieldSequenceID].GetDoubleValue())
	}
	return models.Chunk{
		Filename:   p[models.FieldFilename].GetStringValue(),
		Owner:      p[models.FieldOwner].GetStringValue(),
		SequenceID: int(seq),
		IsPublic:   p[models.FieldIsPublic].GetBoolValue(),
		Summary:    p[models.FieldSummary].GetStringValue(),
		Content:    p[models.FieldContent].GetStringValue(),
	}
}

func pointID(id *qdrant.PointId) string {
	if u := id.GetUuid(); u != "" {
		return u
	}
	return strconv.FormatUint(id.GetNum(), 10)
}
