package keyword

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/blevesearch/bleve/v2"
	keywordanalyzer "github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/search"
	blevequery "github.com/blevesearch/bleve/v2/search/query"
	"github.com/hyperjump/shiryo/internal/models"
)

const fieldTitle = "title"

// BleveIndex implements Index using Bleve. Chunks are stored with all payload fields so hits
// can be returned without a vector store round trip.
type BleveIndex struct {
	index bleve.Index
}

// NewBleveIndex creates or opens a Bleve index at path. An empty path creates an in-memory
// index. If you change the index mapping in code, remove the index directory to rebuild it.
func NewBleveIndex(path string) (*BleveIndex, error) {
	im := bleve.NewIndexMapping()
	docMapping := bleve.NewDocumentMapping()

	// Standard analyzer (lowercase + tokenize, no stemming) so "bayes" matches "Bayes" exactly.
	textFieldMapping := bleve.NewTextFieldMapping()
	textFieldMapping.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt(models.FieldContent, textFieldMapping)
	docMapping.AddFieldMappingsAt(models.FieldSummary, textFieldMapping)
	docMapping.AddFieldMappingsAt(fieldTitle, textFieldMapping)

	exact := bleve.NewTextFieldMapping()
	exact.Analyzer = keywordanalyzer.Name
	exact.IncludeInAll = false
	docMapping.AddFieldMappingsAt(models.FieldOwner, exact)
	docMapping.AddFieldMappingsAt(models.FieldFilename, exact)

	seq := bleve.NewNumericFieldMapping()
	seq.IncludeInAll = false
	docMapping.AddFieldMappingsAt(models.FieldSequenceID, seq)
	public := bleve.NewBooleanFieldMapping()
	public.IncludeInAll = false
	docMapping.AddFieldMappingsAt(models.FieldIsPublic, public)

	im.AddDocumentMapping("chunk", docMapping)
	im.DefaultType = "chunk"
	im.DefaultMapping = docMapping

	if path == "" {
		index, err := bleve.NewMemOnly(im)
		if err != nil {
			return nil, fmt.Errorf("failed to create Bleve index: %w", err)
		}
		return &BleveIndex{index: index}, nil
	}
	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open Bleve index: %w", openErr)
		}
		return &BleveIndex{index: index}, nil
	}
	index, err := bleve.New(path, im)
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

// normalizeTitle turns "company_profile_2021.pptx" into "company profile 2021.pptx" so the
// standard analyzer can split it into words.
func normalizeTitle(filename string) string {
	return strings.NewReplacer("_", " ", "-", " ").Replace(filename)
}

func chunkDoc(c *models.Chunk) map[string]any {
	return map[string]any{
		models.FieldFilename:   c.Filename,
		fieldTitle:             normalizeTitle(c.Filename),
		models.FieldOwner:      c.Owner,
		models.FieldSequenceID: c.SequenceID,
		models.FieldIsPublic:   c.IsPublic,
		models.FieldSummary:    c.Summary,
		models.FieldContent:    c.Content,
	}
}

// IndexChunks indexes chunks in one batch, replacing any chunk with the same id.
func (b *BleveIndex) IndexChunks(_ context.Context, ids []string, chunks []models.Chunk) error {
	if len(ids) != len(chunks) {
		return fmt.Errorf("ids and chunks length mismatch")
	}
	batch := b.index.NewBatch()
	for i := range chunks {
		if err := batch.Index(ids[i], chunkDoc(&chunks[i])); err != nil {
			return fmt.Errorf("failed to index chunk %s: %w", ids[i], err)
		}
	}
	return b.index.Batch(batch)
}

// Search matches query against content, summary and filename. With an owner set, the
// visibility restriction is part of the query so limit counts visible chunks only.
func (b *BleveIndex) Search(_ context.Context, query string, limit int, opts *SearchOptions) ([]*Result, error) {
	if limit <= 0 || strings.TrimSpace(query) == "" {
		return nil, nil
	}
	var o SearchOptions
	if opts != nil {
		o = *opts
	}
	if o.TitleBoost <= 0 {
		o.TitleBoost = 1
	}

	var q blevequery.Query = bleve.NewDisjunctionQuery(
		b.fieldQuery(query, models.FieldContent, o.Fuzziness, 1),
		b.fieldQuery(query, models.FieldSummary, o.Fuzziness, 1),
		b.fieldQuery(query, fieldTitle, o.Fuzziness, o.TitleBoost),
	)
	if o.Owner != "" {
		q = bleve.NewConjunctionQuery(q, visibleTo(o.Owner))
	}

	req := bleve.NewSearchRequest(q)
	req.Size = limit
	req.Fields = []string{"*"}
	results, err := b.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}
	out := make([]*Result, len(results.Hits))
	for i, hit := range results.Hits {
		out[i] = &Result{ID: hit.ID, Score: hit.Score, Chunk: hitChunk(hit)}
	}
	return out, nil
}

// fieldQuery matches queryStr in field. With fuzziness > 0 each term is a FuzzyQuery.
func (b *BleveIndex) fieldQuery(queryStr, field string, fuzziness int, boost float64) blevequery.Query {
	terms := tokenizeQuery(queryStr)
	if fuzziness <= 0 || len(terms) == 0 {
		mq := bleve.NewMatchQuery(queryStr)
		mq.SetField(field)
		mq.SetBoost(boost)
		return mq
	}
	queries := make([]blevequery.Query, 0, len(terms))
	for _, term := range terms {
		fq := bleve.NewFuzzyQuery(term)
		fq.SetFuzziness(fuzziness)
		fq.SetField(field)
		fq.SetBoost(boost)
		queries = append(queries, fq)
	}
	if len(queries) == 1 {
		return queries[0]
	}
	return bleve.NewDisjunctionQuery(queries...)
}

// tokenizeQuery splits query into lowercase terms.
func tokenizeQuery(query string) []string {
	return strings.Fields(strings.ToLower(query))
}

func visibleTo(owner string) blevequery.Query {
	own := bleve.NewTermQuery(owner)
	own.SetField(models.FieldOwner)
	public := bleve.NewBoolFieldQuery(true)
	public.SetField(models.FieldIsPublic)
	return bleve.NewDisjunctionQuery(own, public)
}

func documentQuery(filename, owner string) blevequery.Query {
	f := bleve.NewTermQuery(filename)
	f.SetField(models.FieldFilename)
	o := bleve.NewTermQuery(owner)
	o.SetField(models.FieldOwner)
	return bleve.NewConjunctionQuery(f, o)
}

// documentHits returns every stored chunk of (filename, owner).
func (b *BleveIndex) documentHits(filename, owner string) (search.DocumentMatchCollection, error) {
	q := documentQuery(filename, owner)
	count := bleve.NewSearchRequest(q)
	count.Size = 0
	res, err := b.index.Search(count)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}
	if res.Total == 0 {
		return nil, nil
	}
	req := bleve.NewSearchRequest(q)
	req.Size = int(res.Total)
	req.Fields = []string{"*"}
	res, err = b.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}
	return res.Hits, nil
}

// DeleteDocument removes every chunk of (filename, owner).
func (b *BleveIndex) DeleteDocument(_ context.Context, filename, owner string) (int, error) {
	hits, err := b.documentHits(filename, owner)
	if err != nil || len(hits) == 0 {
		return 0, err
	}
	batch := b.index.NewBatch()
	for _, hit := range hits {
		batch.Delete(hit.ID)
	}
	if err := b.index.Batch(batch); err != nil {
		return 0, err
	}
	return len(hits), nil
}

// SetPublic re-indexes every chunk of (filename, owner) with the new flag.
func (b *BleveIndex) SetPublic(_ context.Context, filename, owner string, isPublic bool) (int, error) {
	hits, err := b.documentHits(filename, owner)
	if err != nil || len(hits) == 0 {
		return 0, err
	}
	batch := b.index.NewBatch()
	for _, hit := range hits {
		c := hitChunk(hit)
		c.IsPublic = isPublic
		if err := batch.Index(hit.ID, chunkDoc(&c)); err != nil {
			return 0, err
		}
	}
	if err := b.index.Batch(batch); err != nil {
		return 0, err
	}
	return len(hits), nil
}

// hitChunk rebuilds a chunk from stored fields.
func hitChunk(hit *search.DocumentMatch) models.Chunk {
	str := func(name string) string {
		s, _ := hit.Fields[name].(string)
		return s
	}
	c := models.Chunk{
		Filename: str(models.FieldFilename),
		Owner:    str(models.FieldOwner),
		Summary:  str(models.FieldSummary),
		Content:  str(models.FieldContent),
	}
	if n, ok := hit.Fields[models.FieldSequenceID].(float64); ok {
		c.SequenceID = int(n)
	}
	switch v := hit.Fields[models.FieldIsPublic].(type) {
	case bool:
		c.IsPublic = v
	case string:
		c.IsPublic = v == "true" || v == "T"
	}
	return c
}

// DocCount returns the total number of chunks in the index.
func (b *BleveIndex) DocCount() (uint64, error) {
	return b.index.DocCount()
}

// Close closes the Bleve index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}
