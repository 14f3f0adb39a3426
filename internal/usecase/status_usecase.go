package usecase

import (
	"context"

	"github.com/DRSN-tech/metric-embedder/pkg/e"
	"github.com/jimlawless/whereami"
)

// Status снимок состояния сервиса для HTTP-эндпоинта.
type Status struct {
	Collection        string
	BufferedSnapshots int
	StoredPoints      *uint64 // nil, если хранилище не ответило
	Ticks             uint64
	LastTick          *TickResult
}

// StatusUseCase собирает состояние из буфера, хранилища и воркера.
type StatusUseCase struct {
	buffer     BufferRepository
	points     PointCounter
	ticks      TickSource
	collection string
}

func NewStatusUC(buffer BufferRepository, points PointCounter, ticks TickSource, collection string) *StatusUseCase {
	return &StatusUseCase{
		buffer:     buffer,
		points:     points,
		ticks:      ticks,
		collection: collection,
	}
}

// Status ошибка буфера возвращается, недоступность хранилища только обнуляет StoredPoints.
func (s *StatusUseCase) Status(ctx context.Context) (*Status, error) {
	buffered, err := s.buffer.Count(ctx)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	st := &Status{
		Collection:        s.collection,
		BufferedSnapshots: buffered,
	}
	st.LastTick, st.Ticks = s.ticks.LastResult()

	if s.points != nil {
		if n, err := s.points.Count(ctx, s.collection); err == nil {
			st.StoredPoints = &n
		}
	}

	return st, nil
}
