package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/DRSN-tech/metric-embedder/internal/domain"
	"github.com/DRSN-tech/metric-embedder/pkg/e"
	"github.com/DRSN-tech/metric-embedder/pkg/logger"
	"github.com/google/uuid"
)

// CaptureUseCase один проход конвейера: снять метрики, положить в буфер,
// превратить весь буфер в векторы, записать их в хранилище и очистить буфер.
// Буфер очищается только после подтверждённой записи всего батча.
type CaptureUseCase struct {
	buffer     BufferRepository
	fetcher    MetricFetcher
	embedder   Embedder
	vectors    VectorRepository
	collection string
	logger     logger.Logger

	cache    EmbeddingCache
	archive  ArchiveRepository
	producer MessageProducer
	now      func() time.Time
}

type CaptureOption func(*CaptureUseCase)

// WithEmbeddingCache позволяет не пересчитывать векторы документов,
// которые остались в буфере после неудачного тика.
func WithEmbeddingCache(cache EmbeddingCache) CaptureOption {
	return func(c *CaptureUseCase) { c.cache = cache }
}

func WithArchive(archive ArchiveRepository) CaptureOption {
	return func(c *CaptureUseCase) { c.archive = archive }
}

func WithMessageProducer(producer MessageProducer) CaptureOption {
	return func(c *CaptureUseCase) { c.producer = producer }
}

func WithClock(now func() time.Time) CaptureOption {
	return func(c *CaptureUseCase) { c.now = now }
}

func NewCaptureUC(
	buffer BufferRepository,
	fetcher MetricFetcher,
	embedder Embedder,
	vectors VectorRepository,
	collection string,
	logger logger.Logger,
	opts ...CaptureOption,
) *CaptureUseCase {
	c := &CaptureUseCase{
		buffer:     buffer,
		fetcher:    fetcher,
		embedder:   embedder,
		vectors:    vectors,
		collection: collection,
		logger:     logger,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Tick выполняет один тик. Ошибка любой стадии не паникует и не пробрасывается:
// она фиксируется в TickResult вместе со стадией, а тик прерывается.
func (c *CaptureUseCase) Tick(ctx context.Context) *TickResult {
	res := NewTickResult(uuid.NewString(), c.now())
	log := c.logger.With("tick_id", res.TickID)
	defer func() {
		res.FinishedAt = c.now()
		if res.OK() {
			return
		}
		if ctx.Err() != nil {
			res.Cancelled = true
			log.With("stage", string(res.FailedStage)).Infof("tick interrupted by shutdown at %s", res.FailedStage)
			return
		}
		log.With("stage", string(res.FailedStage)).Errorf(res.Err, "tick aborted at %s", res.FailedStage)
	}()

	// Fetching
	payload, err := c.fetcher.Fetch(ctx)
	if err != nil {
		return res.fail(StageFetching, e.Stage(e.ErrFetch, err))
	}

	capturedAt := c.now()

	// Buffering: при ошибке снятый payload теряется, прежний буфер не трогаем
	id, err := c.buffer.Append(ctx, domain.FormatCapturedAt(capturedAt), payload)
	if err != nil {
		return res.fail(StageBuffering, e.Stage(e.ErrBuffer, err))
	}
	res.SnapshotID = id
	log.Debugf("snapshot %d buffered, %d bytes", id, len(payload))

	// Embedding: чтение буфера входит в эту стадию
	batch, err := c.buffer.ReadAll(ctx)
	if err != nil {
		return res.fail(StageEmbedding, e.Stage(e.ErrBuffer, err))
	}
	if len(batch) == 0 {
		return res
	}
	res.BatchIDs = snapshotIDs(batch)

	records, err := c.embed(ctx, log, batch)
	if err != nil {
		return res.fail(StageEmbedding, e.Stage(e.ErrEmbedding, err))
	}

	// Upserting
	if err := c.vectors.Upsert(ctx, c.collection, records); err != nil {
		return res.fail(StageUpserting, e.Stage(e.ErrSink, err))
	}
	res.Upserted = true

	res.ArchiveKey = c.archiveBatch(ctx, log, res.TickID, batch)
	c.publishBatch(ctx, log, res)

	// Clearing: повторная запись того же батча в следующем тике безопасна, upsert идемпотентен по ID
	if err := c.buffer.Clear(ctx); err != nil {
		return res.fail(StageClearing, e.Stage(e.ErrBuffer, err))
	}
	res.Cleared = true

	log.Infof("batch of %d snapshots embedded into %q", len(batch), c.collection)
	return res
}

// embed строит записи для всего батча. Частичный результат не возвращается:
// либо векторы есть у каждого снимка, либо ошибка.
func (c *CaptureUseCase) embed(ctx context.Context, log logger.Logger, batch []domain.Snapshot) ([]domain.EmbeddingRecord, error) {
	const op = "CaptureUseCase.embed"

	docs := make([]string, len(batch))
	for i, s := range batch {
		docs[i] = s.Payload
	}

	vectors := make([][]float32, len(docs))
	cached := c.cachedEmbeddings(ctx, log, docs)

	missIdx := make([]int, 0, len(docs))
	missDocs := make([]string, 0, len(docs))
	for i, doc := range docs {
		if v, ok := cached[i]; ok && len(v) > 0 {
			vectors[i] = v
			continue
		}
		missIdx = append(missIdx, i)
		missDocs = append(missDocs, doc)
	}

	if len(missDocs) > 0 {
		fresh, err := c.embedder.EmbedBatch(ctx, missDocs)
		if err != nil {
			return nil, e.Wrap(op, err)
		}
		if len(fresh) != len(missDocs) {
			return nil, e.Wrap(op, fmt.Errorf("%w: got %d vectors for %d documents",
				e.ErrBatchSizeMismatch, len(fresh), len(missDocs)))
		}
		for j, i := range missIdx {
			vectors[i] = fresh[j]
		}
		c.storeEmbeddings(ctx, log, missDocs, fresh)
	}

	if err := checkDimensions(vectors); err != nil {
		return nil, e.Wrap(op, err)
	}

	records := make([]domain.EmbeddingRecord, 0, len(batch))
	for i, s := range batch {
		records = append(records, *domain.NewEmbeddingRecord(s, vectors[i]))
	}

	return records, nil
}

// cachedEmbeddings ошибки кэша считаются промахом.
func (c *CaptureUseCase) cachedEmbeddings(ctx context.Context, log logger.Logger, docs []string) map[int][]float32 {
	if c.cache == nil {
		return nil
	}

	found, err := c.cache.GetEmbeddings(ctx, c.embedder.Model(), docs)
	if err != nil {
		log.Warnf("embedding cache lookup failed: %v", err)
		return nil
	}
	if len(found) > 0 {
		log.Debugf("embedding cache hit for %d of %d documents", len(found), len(docs))
	}

	return found
}

func (c *CaptureUseCase) storeEmbeddings(ctx context.Context, log logger.Logger, docs []string, vectors [][]float32) {
	if c.cache == nil {
		return
	}

	if err := c.cache.SetEmbeddings(ctx, c.embedder.Model(), docs, vectors); err != nil {
		log.Warnf("embedding cache store failed: %v", err)
	}
}

// archiveBatch кладёт копию батча в архив. Ошибка не мешает очистке буфера:
// документы уже лежат в векторном хранилище.
func (c *CaptureUseCase) archiveBatch(ctx context.Context, log logger.Logger, tickID string, batch []domain.Snapshot) string {
	if c.archive == nil {
		return ""
	}

	key, err := c.archive.UploadBatch(ctx, tickID, batch)
	if err != nil {
		log.Warnf("batch archive failed: %v", err)
		return ""
	}

	return key
}

func (c *CaptureUseCase) publishBatch(ctx context.Context, log logger.Logger, res *TickResult) {
	if c.producer == nil {
		return
	}

	event := &domain.BatchEvent{
		TickID:      res.TickID,
		Collection:  c.collection,
		Model:       c.embedder.Model(),
		SnapshotIDs: res.BatchIDs,
		EmbeddedAt:  c.now().UTC(),
	}
	if err := c.producer.WriteBatchEvent(ctx, event); err != nil {
		log.Warnf("batch event publish failed: %v", err)
	}
}

func checkDimensions(vectors [][]float32) error {
	if len(vectors) == 0 {
		return e.ErrEmptyVectors
	}

	dim := len(vectors[0])
	for i, v := range vectors {
		if len(v) == 0 {
			return fmt.Errorf("document %d: %w", i, e.ErrVectorEmbeddingEmpty)
		}
		if len(v) != dim {
			return fmt.Errorf("%w: document %d has %d values, expected %d", e.ErrDimensionMismatch, i, len(v), dim)
		}
	}

	return nil
}

func snapshotIDs(batch []domain.Snapshot) []int64 {
	ids := make([]int64, len(batch))
	for i, s := range batch {
		ids[i] = s.ID
	}

	return ids
}
