package e

import (
	"errors"
	"fmt"
)

var (
	// Ошибки стадий цикла захвата. Компоненты оборачивают причину одной из них,
	// вызывающий код различает стадию через errors.Is.
	ErrFetch     = errors.New("fetch error")
	ErrBuffer    = errors.New("buffer error")
	ErrEmbedding = errors.New("embedding error")
	ErrSink      = errors.New("sink error")

	// Внутренние ошибки с векторами
	ErrEmptyVectors         = errors.New("empty vectors")
	ErrVectorEmbeddingEmpty = errors.New("vector embedding is empty")
	ErrDimensionMismatch    = errors.New("vector dimension mismatch")
	ErrBatchSizeMismatch    = errors.New("embedding count does not match batch size")

	// Ошибки конфигурации
	ErrIncorrectEnvVariable = errors.New("incorrect environment variable")
	ErrUnknownBufferDriver  = errors.New("unknown buffer driver")

	ErrInternalServerError = errors.New("internal server error")
)

// Wrap оборачивает ошибку
func Wrap(msg string, err error) error {
	return fmt.Errorf("%s: %w", msg, err)
}

// Stage помечает ошибку сентинелом стадии, сохраняя исходную причину в цепочке.
func Stage(stage error, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, stage) {
		return err
	}

	return fmt.Errorf("%w: %w", stage, err)
}
