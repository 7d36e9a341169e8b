package vectorstore

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/gofrs/flock"
	"github.com/hyperjump/shiryo/internal/models"
	"github.com/hyperjump/shiryo/pkg/utils"
)

type memPoint struct {
	id      string
	summary []float32
	content []float32
	payload models.Chunk
}

// MemoryStore keeps points in insertion order and searches them by brute force. With a
// snapshot path it loads the snapshot on open and writes it back on Save and Close; the
// snapshot is guarded by a lock file so only one process owns it.
type MemoryStore struct {
	dimensions int
	points     []memPoint
	index      map[string]int
	path       string
	lock       *flock.Flock
	mu         sync.RWMutex
}

// NewMemoryStore creates a store. snapshotPath may be empty for a purely in-memory store.
func NewMemoryStore(snapshotPath string) (*MemoryStore, error) {
	m := &MemoryStore{index: make(map[string]int), path: snapshotPath}
	if snapshotPath == "" {
		return m, nil
	}
	if err := os.MkdirAll(filepath.Dir(snapshotPath), 0755); err != nil {
		return nil, fmt.Errorf("create snapshot dir: %w", err)
	}
	m.lock = flock.New(snapshotPath + ".lock")
	locked, err := m.lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock snapshot: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("snapshot %s is in use by another process", snapshotPath)
	}
	if err := m.load(); err != nil {
		_ = m.lock.Unlock()
		return nil, err
	}
	return m, nil
}

// EnsureCollection fixes the dimension. A loaded snapshot must agree with it.
func (m *MemoryStore) EnsureCollection(_ context.Context, dimensions int) error {
	if dimensions <= 0 {
		return fmt.Errorf("dimensions must be positive")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dimensions != 0 && m.dimensions != dimensions {
		return fmt.Errorf("%w: collection has %d, expected %d", ErrDimensionMismatch, m.dimensions, dimensions)
	}
	m.dimensions = dimensions
	return nil
}

// Upsert replaces points in place or appends new ones.
func (m *MemoryStore) Upsert(_ context.Context, points []Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dimensions == 0 {
		return ErrNotInitialized
	}
	for i := range points {
		if err := checkPoint(&points[i], m.dimensions); err != nil {
			return err
		}
	}
	for _, p := range points {
		mp := memPoint{
			id:      p.ID,
			summary: append([]float32(nil), p.SummaryVector...),
			content: append([]float32(nil), p.ContentVector...),
			payload: p.Payload,
		}
		if i, ok := m.index[p.ID]; ok {
			m.points[i] = mp
			continue
		}
		m.index[p.ID] = len(m.points)
		m.points = append(m.points, mp)
	}
	return nil
}

// Search scores every matching point. Equal scores keep insertion order.
func (m *MemoryStore) Search(_ context.Context, vectorName string, query []float32, filter *Filter, limit int) ([]ScoredPoint, error) {
	if err := checkVectorName(vectorName); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.dimensions == 0 {
		return nil, ErrNotInitialized
	}
	if len(query) != m.dimensions {
		return nil, fmt.Errorf("%w: query has %d, expected %d", ErrDimensionMismatch, len(query), m.dimensions)
	}
	if limit <= 0 {
		return nil, nil
	}
	var scored []ScoredPoint
	for i := range m.points {
		p := &m.points[i]
		if !filter.Match(&p.payload) {
			continue
		}
		vec := p.summary
		if vectorName == VectorContent {
			vec = p.content
		}
		scored = append(scored, ScoredPoint{ID: p.id, Score: utils.Cosine(query, vec), Payload: p.payload})
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, nil
}

// Scroll returns matching points in insertion order.
func (m *MemoryStore) Scroll(_ context.Context, filter *Filter, limit int) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Record
	for i := range m.points {
		p := &m.points[i]
		if !filter.Match(&p.payload) {
			continue
		}
		out = append(out, Record{ID: p.id, Payload: p.payload})
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *MemoryStore) Count(_ context.Context, filter *Filter) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for i := range m.points {
		if filter.Match(&m.points[i].payload) {
			n++
		}
	}
	return n, nil
}

// Delete removes matching points, keeping the order of the rest.
func (m *MemoryStore) Delete(_ context.Context, filter *Filter) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := make([]memPoint, 0, len(m.points))
	for _, p := range m.points {
		if !filter.Match(&p.payload) {
			kept = append(kept, p)
		}
	}
	removed := len(m.points) - len(kept)
	if removed > 0 {
		m.points = kept
		m.reindex()
	}
	return removed, nil
}

func (m *MemoryStore) SetPublic(_ context.Context, filter *Filter, isPublic bool) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for i := range m.points {
		if filter.Match(&m.points[i].payload) {
			m.points[i].payload.IsPublic = isPublic
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) reindex() {
	m.index = make(map[string]int, len(m.points))
	for i, p := range m.points {
		m.index[p.id] = i
	}
}

// Len returns the number of stored points.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.points)
}

// Save writes the snapshot. It is a no-op without a snapshot path.
// Format: dimension (4), n (4), then per point: id, payload JSON, summary and content vectors.
func (m *MemoryStore) Save() error {
	if m.path == "" {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	tmp := m.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create snapshot: %w", err)
	}
	w := bufio.NewWriter(f)
	if err := m.writeSnapshot(w); err != nil {
		f.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("flush snapshot: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close snapshot: %w", err)
	}
	return os.Rename(tmp, m.path)
}

func (m *MemoryStore) writeSnapshot(w io.Writer) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(m.dimensions)); err != nil {
		return fmt.Errorf("write dimensions: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(m.points))); err != nil {
		return fmt.Errorf("write count: %w", err)
	}
	for _, p := range m.points {
		payload, err := json.Marshal(p.payload)
		if err != nil {
			return fmt.Errorf("encode payload: %w", err)
		}
		for _, b := range [][]byte{[]byte(p.id), payload} {
			if err := binary.Write(w, binary.LittleEndian, uint32(len(b))); err != nil {
				return fmt.Errorf("write length: %w", err)
			}
			if _, err := w.Write(b); err != nil {
				return fmt.Errorf("write point: %w", err)
			}
		}
		if _, err := w.Write(float32SliceToBytes(p.summary)); err != nil {
			return fmt.Errorf("write vector: %w", err)
		}
		if _, err := w.Write(float32SliceToBytes(p.content)); err != nil {
			return fmt.Errorf("write vector: %w", err)
		}
	}
	return nil
}

// load reads the snapshot if it exists.
func (m *MemoryStore) load() error {
	f, err := os.Open(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open snapshot: %w", err)
	}
	defer f.Close()
	r := bufio.NewReader(f)

	var dim, n uint32
	if err := binary.Read(r, binary.LittleEndian, &dim); err != nil {
		return fmt.Errorf("read dimensions: %w", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return fmt.Errorf("read count: %w", err)
	}
	points := make([]memPoint, 0, n)
	vecBuf := make([]byte, int(dim)*4)
	for i := uint32(0); i < n; i++ {
		id, err := readBlock(r)
		if err != nil {
			return fmt.Errorf("read id: %w", err)
		}
		raw, err := readBlock(r)
		if err != nil {
			return fmt.Errorf("read payload: %w", err)
		}
		p := memPoint{id: string(id)}
		if err := json.Unmarshal(raw, &p.payload); err != nil {
			return fmt.Errorf("decode payload: %w", err)
		}
		if _, err := io.ReadFull(r, vecBuf); err != nil {
			return fmt.Errorf("read vector: %w", err)
		}
		p.summary = bytesToFloat32Slice(vecBuf)
		if _, err := io.ReadFull(r, vecBuf); err != nil {
			return fmt.Errorf("read vector: %w", err)
		}
		p.content = bytesToFloat32Slice(vecBuf)
		points = append(points, p)
	}
	m.dimensions = int(dim)
	m.points = points
	m.reindex()
	return nil
}

func readBlock(r io.Reader) ([]byte, error) {
	var size uint32
	if err := binary.Read(r, binary.LittleEndian, &size); err != nil {
		return nil, err
	}
	b := make([]byte, size)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}

// Close saves the snapshot and releases the lock file.
func (m *MemoryStore) Close() error {
	if m.lock == nil {
		return nil
	}
	err := m.Save()
	if uerr := m.lock.Unlock(); err == nil {
		err = uerr
	}
	return err
}

func float32SliceToBytes(s []float32) []byte {
	const size = 4
	out := make([]byte, len(s)*size)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(v))
	}
	return out
}

func bytesToFloat32Slice(b []byte) []float32 {
	const size = 4
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out
}
