package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/DRSN-tech/metric-embedder/internal/cfg"
	"github.com/DRSN-tech/metric-embedder/pkg/e"
	"github.com/jimlawless/whereami"
)

const embeddingsPath = "/api/embeddings"

// Embedder клиент Ollama для построения векторов документов.
type Embedder struct {
	baseURL   string
	model     string
	dimension int
	client    *http.Client
}

type embeddingReq struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embeddingRes struct {
	Embedding []float64 `json:"embedding"`
}

func NewEmbedder(cfg *cfg.EmbeddingCfg) *Embedder {
	return &Embedder{
		baseURL:   strings.TrimRight(cfg.OllamaHost, "/"),
		model:     cfg.Model,
		dimension: cfg.Dimension,
		client:    &http.Client{Timeout: cfg.Timeout},
	}
}

func (o *Embedder) Model() string {
	return o.model
}

// EmbedBatch строит векторы строго последовательно, по одному запросу на документ.
// Результат совпадает со входом по длине и порядку. Любая ошибка отменяет весь батч.
func (o *Embedder) EmbedBatch(ctx context.Context, docs []string) ([][]float32, error) {
	const op = "Embedder.EmbedBatch"

	vectors := make([][]float32, 0, len(docs))
	dim := o.dimension
	for i, doc := range docs {
		vector, err := o.embed(ctx, doc)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", e.ErrEmbedding, e.Wrap(op, fmt.Errorf("document %d: %w", i, err)))
		}

		if dim == 0 {
			dim = len(vector)
		}
		if len(vector) != dim {
			return nil, fmt.Errorf("%w: %s: %w: document %d has %d values, expected %d",
				e.ErrEmbedding, op, e.ErrDimensionMismatch, i, len(vector), dim)
		}

		vectors = append(vectors, vector)
	}

	return vectors, nil
}

func (o *Embedder) embed(ctx context.Context, doc string) ([]float32, error) {
	payload, err := json.Marshal(embeddingReq{Model: o.model, Prompt: doc})
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+embeddingsPath, bytes.NewReader(payload))
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%s: ollama returned %d: %s", whereami.WhereAmI(), resp.StatusCode, string(b))
	}

	var res embeddingRes
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}
	if len(res.Embedding) == 0 {
		return nil, e.ErrVectorEmbeddingEmpty
	}

	vector := make([]float32, len(res.Embedding))
	for i, v := range res.Embedding {
		vector[i] = float32(v)
	}

	return vector, nil
}
