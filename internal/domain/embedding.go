package domain

import "strconv"

// EmbeddingRecord вектор одного снимка, готовый к записи в векторное хранилище.
// Нигде не сохраняется этим сервисом, живёт в пределах одного тика.
type EmbeddingRecord struct {
	ID       string // строковый ID исходного снимка
	Vector   []float32
	Document string // копия Payload
}

func NewEmbeddingRecord(snapshot Snapshot, vector []float32) *EmbeddingRecord {
	return &EmbeddingRecord{
		ID:       RecordID(snapshot.ID),
		Vector:   vector,
		Document: snapshot.Payload,
	}
}

// RecordID ключ записи в векторном хранилище для снимка с данным ID.
func RecordID(snapshotID int64) string {
	return strconv.FormatInt(snapshotID, 10)
}
