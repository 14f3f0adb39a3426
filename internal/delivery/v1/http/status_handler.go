package http

import (
	"net/http"
	"time"

	"github.com/DRSN-tech/metric-embedder/internal/usecase"
	"github.com/DRSN-tech/metric-embedder/pkg/logger"
)

type StatusHandler struct {
	statusUsecase usecase.StatusUC
	logger        logger.Logger
}

type tickDTO struct {
	TickID      string    `json:"tick_id"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
	OK          bool      `json:"ok"`
	FailedStage string    `json:"failed_stage,omitempty"`
	Error       string    `json:"error,omitempty"`
	SnapshotID  int64     `json:"snapshot_id,omitempty"`
	BatchSize   int       `json:"batch_size"`
	Upserted    bool      `json:"upserted"`
	Cleared     bool      `json:"cleared"`
	ArchiveKey  string    `json:"archive_key,omitempty"`
}

type statusDTO struct {
	Collection        string   `json:"collection"`
	BufferedSnapshots int      `json:"buffered_snapshots"`
	StoredPoints      *uint64  `json:"stored_points,omitempty"`
	Ticks             uint64   `json:"ticks"`
	LastTick          *tickDTO `json:"last_tick,omitempty"`
}

func NewStatusHandler(statusUsecase usecase.StatusUC, logger logger.Logger) *StatusHandler {
	return &StatusHandler{statusUsecase: statusUsecase, logger: logger}
}

func (s *StatusHandler) healthz(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, http.StatusOK, map[string]string{"status": "ok"})
}

// getStatus GET /api/v1/status
func (s *StatusHandler) getStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.statusUsecase.Status(r.Context())
	if err != nil {
		s.logger.Errorf(err, "status request failed")
		WriteError(w, err)
		return
	}

	WriteSuccess(w, http.StatusOK, toStatusDTO(st))
}

func toStatusDTO(st *usecase.Status) *statusDTO {
	dto := &statusDTO{
		Collection:        st.Collection,
		BufferedSnapshots: st.BufferedSnapshots,
		StoredPoints:      st.StoredPoints,
		Ticks:             st.Ticks,
	}

	if t := st.LastTick; t != nil {
		dto.LastTick = &tickDTO{
			TickID:      t.TickID,
			StartedAt:   t.StartedAt,
			FinishedAt:  t.FinishedAt,
			OK:          t.OK(),
			FailedStage: string(t.FailedStage),
			SnapshotID:  t.SnapshotID,
			BatchSize:   t.BatchSize(),
			Upserted:    t.Upserted,
			Cleared:     t.Cleared,
			ArchiveKey:  t.ArchiveKey,
		}
		if t.Err != nil {
			dto.LastTick.Error = t.Err.Error()
		}
	}

	return dto
}
