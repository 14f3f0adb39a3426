package usecase

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/DRSN-tech/metric-embedder/internal/domain"
)

var errInjected = errors.New("injected failure")

type memBuffer struct {
	mu             sync.Mutex
	rows           []domain.Snapshot
	nextID         int64
	appendErr      error
	readErr        error
	clearErr       error
	discardAppends bool
	clears         int
}

func newMemBuffer(payloads ...string) *memBuffer {
	b := &memBuffer{}
	for _, p := range payloads {
		b.nextID++
		b.rows = append(b.rows, domain.Snapshot{ID: b.nextID, CapturedAt: "2026-10-15T10:00:00", Payload: p})
	}
	return b
}

func (b *memBuffer) Append(_ context.Context, capturedAt string, payload string) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.appendErr != nil {
		return 0, b.appendErr
	}
	b.nextID++
	if !b.discardAppends {
		b.rows = append(b.rows, domain.Snapshot{ID: b.nextID, CapturedAt: capturedAt, Payload: payload})
	}
	return b.nextID, nil
}

func (b *memBuffer) ReadAll(_ context.Context) ([]domain.Snapshot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.readErr != nil {
		return nil, b.readErr
	}
	out := make([]domain.Snapshot, len(b.rows))
	copy(out, b.rows)
	return out, nil
}

func (b *memBuffer) Clear(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.clearErr != nil {
		return b.clearErr
	}
	b.clears++
	b.rows = nil
	return nil
}

func (b *memBuffer) Count(_ context.Context) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.rows), nil
}

func (b *memBuffer) snapshot() []domain.Snapshot {
	rows, _ := b.ReadAll(context.Background())
	return rows
}

type fakeFetcher struct {
	payloads []string
	err      error
	calls    int
	onFetch  func()
}

func (f *fakeFetcher) Fetch(_ context.Context) (string, error) {
	f.calls++
	if f.onFetch != nil {
		f.onFetch()
	}
	if f.err != nil {
		return "", f.err
	}
	if len(f.payloads) == 0 {
		return "metric_up 1", nil
	}
	p := f.payloads[0]
	f.payloads = f.payloads[1:]
	return p, nil
}

type fakeEmbedder struct {
	err      error
	drop     bool // возвращает на один вектор меньше
	dims     map[string]int
	calls    int
	embedded []string
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, docs []string) ([][]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	f.embedded = append(f.embedded, docs...)
	out := make([][]float32, 0, len(docs))
	for _, d := range docs {
		out = append(out, vectorFor(d, f.dims[d]))
	}
	if f.drop && len(out) > 0 {
		out = out[:len(out)-1]
	}
	return out, nil
}

func (f *fakeEmbedder) Model() string { return "test-model" }

func vectorFor(doc string, dim int) []float32 {
	if dim == 0 {
		dim = 3
	}
	var sum float32
	for _, b := range []byte(doc) {
		sum += float32(b)
	}
	v := make([]float32, dim)
	v[0] = float32(len(doc))
	if dim > 1 {
		v[1] = sum
	}
	return v
}

type memVectors struct {
	points  map[string]domain.EmbeddingRecord
	err     error
	upserts int
}

func newMemVectors() *memVectors {
	return &memVectors{points: map[string]domain.EmbeddingRecord{}}
}

func (m *memVectors) Upsert(_ context.Context, _ string, records []domain.EmbeddingRecord) error {
	if m.err != nil {
		return m.err
	}
	m.upserts++
	for _, r := range records {
		m.points[r.ID] = r
	}
	return nil
}

func (m *memVectors) documents() []string {
	docs := make([]string, 0, len(m.points))
	for _, p := range m.points {
		docs = append(docs, p.Document)
	}
	sort.Strings(docs)
	return docs
}

type memCache struct {
	vectors map[string][]float32
	getErr  error
}

func newMemCache() *memCache {
	return &memCache{vectors: map[string][]float32{}}
}

func (c *memCache) GetEmbeddings(_ context.Context, model string, docs []string) (map[int][]float32, error) {
	if c.getErr != nil {
		return nil, c.getErr
	}
	out := map[int][]float32{}
	for i, d := range docs {
		if v, ok := c.vectors[model+"|"+d]; ok {
			out[i] = v
		}
	}
	return out, nil
}

func (c *memCache) SetEmbeddings(_ context.Context, model string, docs []string, vectors [][]float32) error {
	for i, d := range docs {
		c.vectors[model+"|"+d] = vectors[i]
	}
	return nil
}

type fakeArchive struct {
	err     error
	batches [][]domain.Snapshot
}

func (a *fakeArchive) UploadBatch(_ context.Context, tickID string, snapshots []domain.Snapshot) (string, error) {
	if a.err != nil {
		return "", a.err
	}
	a.batches = append(a.batches, snapshots)
	return "snapshots/" + tickID + ".jsonl", nil
}

type fakeProducer struct {
	err    error
	events []*domain.BatchEvent
}

func (p *fakeProducer) WriteBatchEvent(_ context.Context, event *domain.BatchEvent) error {
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event)
	return nil
}
