package usecase

import (
	"context"

	"github.com/DRSN-tech/metric-embedder/internal/domain"
)

// BufferRepository долговременный буфер снимков метрик.
type BufferRepository interface {
	Append(ctx context.Context, capturedAt string, payload string) (int64, error)
	ReadAll(ctx context.Context) ([]domain.Snapshot, error)
	Clear(ctx context.Context) error
	Count(ctx context.Context) (int, error)
}

type VectorRepository interface {
	Upsert(ctx context.Context, collection string, records []domain.EmbeddingRecord) error
}

// PointCounter число точек в коллекции векторного хранилища.
type PointCounter interface {
	Count(ctx context.Context, collection string) (uint64, error)
}

// EmbeddingCache кэш векторов по (модель, документ).
// Get возвращает найденные векторы по индексу документа во входном срезе.
type EmbeddingCache interface {
	GetEmbeddings(ctx context.Context, model string, docs []string) (map[int][]float32, error)
	SetEmbeddings(ctx context.Context, model string, docs []string, vectors [][]float32) error
}

type ArchiveRepository interface {
	UploadBatch(ctx context.Context, tickID string, snapshots []domain.Snapshot) (string, error)
}
