package usecase

import (
	"time"
)

// Stage состояние цикла захвата. Тик проходит стадии строго по порядку:
// Fetching → Buffering → Embedding → Upserting → Clearing → Idle.
type Stage string

const (
	StageIdle      Stage = "idle"
	StageFetching  Stage = "fetching"
	StageBuffering Stage = "buffering"
	StageEmbedding Stage = "embedding"
	StageUpserting Stage = "upserting"
	StageClearing  Stage = "clearing"
)

// TickResult итог одного тика. FailedStage пуст, если тик прошёл целиком.
type TickResult struct {
	TickID      string
	StartedAt   time.Time
	FinishedAt  time.Time
	SnapshotID  int64   // ID снимка, добавленного в этом тике; 0, если не добавлен
	BatchIDs    []int64 // ID снимков батча, отправленного на эмбеддинг
	Upserted    bool
	Cleared     bool
	ArchiveKey  string
	FailedStage Stage
	Err         error
	Cancelled   bool // тик прерван отменой контекста, а не ошибкой стадии
}

func NewTickResult(tickID string, startedAt time.Time) *TickResult {
	return &TickResult{
		TickID:    tickID,
		StartedAt: startedAt,
	}
}

// OK сообщает, что ни одна стадия тика не завершилась ошибкой.
func (r *TickResult) OK() bool {
	return r.FailedStage == ""
}

func (r *TickResult) BatchSize() int {
	return len(r.BatchIDs)
}

func (r *TickResult) fail(stage Stage, err error) *TickResult {
	r.FailedStage = stage
	r.Err = err
	return r
}
