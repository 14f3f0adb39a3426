package domain

import "time"

// CapturedAtLayout формат метки времени снимка: локальное время с точностью до секунды.
const CapturedAtLayout = "2006-01-02T15:04:05"

// Snapshot сырой ответ эндпоинта метрик, сохранённый в буфере.
// ID назначается буфером при вставке и дальше не меняется.
type Snapshot struct {
	ID         int64
	CapturedAt string
	Payload    string
}

func NewSnapshot(id int64, capturedAt string, payload string) *Snapshot {
	return &Snapshot{
		ID:         id,
		CapturedAt: capturedAt,
		Payload:    payload,
	}
}

// FormatCapturedAt форматирует момент захвата в CapturedAtLayout.
func FormatCapturedAt(t time.Time) string {
	return t.Local().Format(CapturedAtLayout)
}
