package usecase

import "context"

type CaptureUC interface {
	Tick(ctx context.Context) *TickResult
}

type StatusUC interface {
	Status(ctx context.Context) (*Status, error)
}

// TickSource отдаёт последний завершённый тик и число тиков с запуска.
type TickSource interface {
	LastResult() (*TickResult, uint64)
}
