package usecase

import (
	"context"

	"github.com/DRSN-tech/metric-embedder/internal/domain"
)

type MetricFetcher interface {
	Fetch(ctx context.Context) (string, error)
}

// Embedder превращает документы в векторы. Результат той же длины и в том же порядке, что и вход.
type Embedder interface {
	EmbedBatch(ctx context.Context, docs []string) ([][]float32, error)
	Model() string
}

type MessageProducer interface {
	WriteBatchEvent(ctx context.Context, event *domain.BatchEvent) error
}
