package qdrant

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/DRSN-tech/metric-embedder/internal/domain"
	"github.com/DRSN-tech/metric-embedder/pkg/e"
	"github.com/jimlawless/whereami"
	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	PayloadDocument   = "document"
	PayloadSnapshotID = "snapshot_id"
	PayloadModel      = "model"
)

// PointsClient подмножество *qdrant.Client, которым пользуется репозиторий.
type PointsClient interface {
	CollectionExists(ctx context.Context, collectionName string) (bool, error)
	CreateCollection(ctx context.Context, request *qdrant.CreateCollection) error
	GetCollectionInfo(ctx context.Context, collectionName string) (*qdrant.CollectionInfo, error)
	Upsert(ctx context.Context, request *qdrant.UpsertPoints) (*qdrant.UpdateResult, error)
	Count(ctx context.Context, request *qdrant.CountPoints) (uint64, error)
}

// EmbeddingRepo репозиторий для записи векторов снимков в Qdrant.
// Коллекция создаётся лениво при первой записи и никогда не пересоздаётся
// с другим размером вектора.
type EmbeddingRepo struct {
	client     PointsClient
	model      string
	vectorSize uint64 // 0: размер берётся из первого вектора

	mu    sync.Mutex
	sizes map[string]uint64 // размер вектора уже проверенных коллекций
}

func NewEmbeddingRepo(client PointsClient, model string, vectorSize uint64) *EmbeddingRepo {
	return &EmbeddingRepo{
		client:     client,
		model:      model,
		vectorSize: vectorSize,
		sizes:      make(map[string]uint64),
	}
}

// Upsert записывает батч одним вызовом с ожиданием подтверждения.
// Повторная запись тех же ID заменяет точки и не создаёт дубликатов.
func (q *EmbeddingRepo) Upsert(ctx context.Context, collection string, records []domain.EmbeddingRecord) error {
	if len(records) == 0 {
		return nil
	}

	dim := uint64(len(records[0].Vector))
	points := make([]*qdrant.PointStruct, 0, len(records))
	for _, rec := range records {
		if uint64(len(rec.Vector)) != dim {
			return fmt.Errorf("%w: %s: %w: record %s has %d values, expected %d",
				e.ErrSink, whereami.WhereAmI(), e.ErrDimensionMismatch, rec.ID, len(rec.Vector), dim)
		}

		snapshotID, err := strconv.ParseUint(rec.ID, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: %w", e.ErrSink, e.Wrap(whereami.WhereAmI(), err))
		}

		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDNum(snapshotID),
			Vectors: qdrant.NewVectors(rec.Vector...),
			Payload: qdrant.NewValueMap(map[string]any{
				PayloadDocument:   rec.Document,
				PayloadSnapshotID: int64(snapshotID),
				PayloadModel:      q.model,
			}),
		})
	}

	if err := q.ensureCollection(ctx, collection, dim); err != nil {
		return fmt.Errorf("%w: %w", e.ErrSink, err)
	}

	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			q.forget(collection)
		}
		return fmt.Errorf("%w: %w", e.ErrSink, e.Wrap(whereami.WhereAmI(), err))
	}

	return nil
}

// Count число точек в коллекции. Отсутствующая коллекция считается пустой.
func (q *EmbeddingRepo) Count(ctx context.Context, collection string) (uint64, error) {
	exists, err := q.client.CollectionExists(ctx, collection)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", e.ErrSink, e.Wrap(whereami.WhereAmI(), err))
	}
	if !exists {
		return 0, nil
	}

	n, err := q.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: collection,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %w", e.ErrSink, e.Wrap(whereami.WhereAmI(), err))
	}

	return n, nil
}

func (q *EmbeddingRepo) ensureCollection(ctx context.Context, collection string, dim uint64) error {
	const op = "EmbeddingRepo.ensureCollection"

	q.mu.Lock()
	defer q.mu.Unlock()

	if size, ok := q.sizes[collection]; ok {
		return checkSize(collection, size, dim)
	}

	if q.vectorSize != 0 && q.vectorSize != dim {
		return fmt.Errorf("%s: %w: configured size %d, got %d", op, e.ErrDimensionMismatch, q.vectorSize, dim)
	}

	exists, err := q.client.CollectionExists(ctx, collection)
	if err != nil {
		return e.Wrap(op, fmt.Errorf("failed to check collection existence: %w", err))
	}

	if exists {
		info, err := q.client.GetCollectionInfo(ctx, collection)
		if err != nil {
			return e.Wrap(op, fmt.Errorf("failed to get collection info: %w", err))
		}
		size := info.GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize()
		if err := checkSize(collection, size, dim); err != nil {
			return e.Wrap(op, err)
		}
		q.sizes[collection] = size
		return nil
	}

	if err := q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     dim,
			Distance: qdrant.Distance_Cosine,
		}),
	}); err != nil {
		return e.Wrap(op, fmt.Errorf("failed to create collection: %w", err))
	}
	q.sizes[collection] = dim

	return nil
}

func (q *EmbeddingRepo) forget(collection string) {
	q.mu.Lock()
	delete(q.sizes, collection)
	q.mu.Unlock()
}

func checkSize(collection string, size, dim uint64) error {
	if size != dim {
		return fmt.Errorf("%w: collection %q stores %d-dimensional vectors, got %d",
			e.ErrDimensionMismatch, collection, size, dim)
	}

	return nil
}
