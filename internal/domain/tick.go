package domain

import "time"

// BatchEvent сообщение о батче, успешно записанном в векторное хранилище.
type BatchEvent struct {
	TickID      string    `json:"tick_id"`
	Collection  string    `json:"collection"`
	Model       string    `json:"model"`
	SnapshotIDs []int64   `json:"snapshot_ids"`
	EmbeddedAt  time.Time `json:"embedded_at"`
}
