package minio

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"path"
	"time"

	"github.com/DRSN-tech/metric-embedder/internal/cfg"
	"github.com/DRSN-tech/metric-embedder/internal/domain"
	"github.com/DRSN-tech/metric-embedder/pkg/e"
	"github.com/jimlawless/whereami"
	"github.com/minio/minio-go/v7"
)

const contentTypeJSONLines = "application/x-ndjson"

// ObjectPutter подмножество *minio.Client, нужное архиву.
type ObjectPutter interface {
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64,
		opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// snapshotLine одна строка архива.
type snapshotLine struct {
	ID         int64  `json:"id"`
	CapturedAt string `json:"captured_at"`
	Payload    string `json:"payload"`
}

// ArchiveRepo складывает каждый записанный в Qdrant батч в MinIO в формате JSON Lines.
type ArchiveRepo struct {
	mc  ObjectPutter
	cfg *cfg.MinIOCfg
	now func() time.Time
}

func NewArchiveRepo(mc ObjectPutter, cfg *cfg.MinIOCfg) *ArchiveRepo {
	return &ArchiveRepo{
		mc:  mc,
		cfg: cfg,
		now: time.Now,
	}
}

// UploadBatch загружает батч и возвращает ключ объекта:
// <prefix>/<YYYY-MM-DD>/<tickID>.jsonl
func (a *ArchiveRepo) UploadBatch(ctx context.Context, tickID string, snapshots []domain.Snapshot) (string, error) {
	body, err := encodeBatch(snapshots)
	if err != nil {
		return "", e.Wrap(whereami.WhereAmI(), err)
	}

	key := a.objectKey(tickID)
	info, err := a.mc.PutObject(ctx, a.cfg.BucketName, key, bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{
		ContentType: contentTypeJSONLines,
	})
	if err != nil {
		return "", e.Wrap(whereami.WhereAmI(), err)
	}

	return info.Key, nil
}

func (a *ArchiveRepo) objectKey(tickID string) string {
	return path.Join(a.cfg.ObjectPrefix, a.now().UTC().Format("2006-01-02"), tickID+".jsonl")
}

func encodeBatch(snapshots []domain.Snapshot) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, s := range snapshots {
		if err := enc.Encode(snapshotLine{ID: s.ID, CapturedAt: s.CapturedAt, Payload: s.Payload}); err != nil {
			return nil, err
		}
	}

	return buf.Bytes(), nil
}
