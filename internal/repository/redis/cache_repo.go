package redis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/DRSN-tech/metric-embedder/internal/cfg"
	"github.com/DRSN-tech/metric-embedder/pkg/clients"
	"github.com/DRSN-tech/metric-embedder/pkg/e"
	"github.com/DRSN-tech/metric-embedder/pkg/logger"
	"github.com/jimlawless/whereami"
)

const keyPrefix = "embedding:"

// embeddingRedisModel значение ключа кэша. Модель хранится рядом с вектором,
// чтобы коллизия ключей не подменила вектор другой модели.
type embeddingRedisModel struct {
	Model  string    `json:"model"`
	Vector []float32 `json:"vector"`
}

// CacheRepo кэш векторов документов. Ключ строится из модели и текста документа,
// поэтому один и тот же снимок, оставшийся в буфере, не отправляется в модель повторно.
type CacheRepo struct {
	client *clients.RedisClient
	cfg    *cfg.RedisCfg
	logger logger.Logger
}

func NewCacheRepo(client *clients.RedisClient, cfg *cfg.RedisCfg, logger logger.Logger) *CacheRepo {
	return &CacheRepo{
		client: client,
		cfg:    cfg,
		logger: logger,
	}
}

// GetEmbeddings возвращает найденные векторы по индексу документа. Промахи пропускаются.
func (r *CacheRepo) GetEmbeddings(ctx context.Context, model string, docs []string) (map[int][]float32, error) {
	if len(docs) == 0 {
		return map[int][]float32{}, nil
	}

	keys := buildCacheKeys(model, docs)
	values, err := r.client.Client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	result := make(map[int][]float32, len(values))
	for i, val := range values {
		data, err := redisValueToBytes(val, keys[i])
		if err != nil {
			r.logger.Warnf("%v", e.Wrap(whereami.WhereAmI(), err))
			continue
		}
		if data == nil {
			continue // cache miss
		}

		vector, err := decodeEmbedding(data, model)
		if err != nil {
			r.logger.Warnf("Redis unmarshal failed: %v", e.Wrap(whereami.WhereAmI(), err))
			continue
		}
		result[i] = vector
	}

	return result, nil
}

// SetEmbeddings кэширует векторы одним пайплайном с TTL из конфигурации.
// Ошибки сериализации отдельных записей только логируются.
func (r *CacheRepo) SetEmbeddings(ctx context.Context, model string, docs []string, vectors [][]float32) error {
	if len(docs) != len(vectors) {
		return e.Wrap(whereami.WhereAmI(), e.ErrBatchSizeMismatch)
	}

	pipeline := r.client.Client.Pipeline()
	for i, doc := range docs {
		data, err := json.Marshal(embeddingRedisModel{Model: model, Vector: vectors[i]})
		if err != nil {
			r.logger.Warnf("Failed to marshal embedding for caching: %v", e.Wrap(whereami.WhereAmI(), err))
			continue
		}
		pipeline.Set(ctx, cacheKey(model, doc), data, r.cfg.EmbeddingTTL)
	}

	if _, err := pipeline.Exec(ctx); err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}

	return nil
}

func decodeEmbedding(data []byte, model string) ([]float32, error) {
	var m embeddingRedisModel
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	if m.Model != model {
		return nil, fmt.Errorf("cached vector belongs to model %q, want %q", m.Model, model)
	}
	if len(m.Vector) == 0 {
		return nil, e.ErrVectorEmbeddingEmpty
	}

	return m.Vector, nil
}

func buildCacheKeys(model string, docs []string) []string {
	keys := make([]string, len(docs))
	for i, doc := range docs {
		keys[i] = cacheKey(model, doc)
	}

	return keys
}

// cacheKey embedding:<sha256(model \x00 document)>
func cacheKey(model, doc string) string {
	h := sha256.New()
	h.Write([]byte(model))
	h.Write([]byte{0})
	h.Write([]byte(doc))

	return keyPrefix + hex.EncodeToString(h.Sum(nil))
}

// redisValueToBytes конвертирует значение из Redis в []byte.
func redisValueToBytes(val interface{}, key string) ([]byte, error) {
	switch v := val.(type) {
	case string:
		return []byte(v), nil
	case []byte:
		return v, nil
	case nil:
		return nil, nil // cache miss
	default:
		return nil, fmt.Errorf("unexpected Redis value type for key %s: %T", key, val)
	}
}
