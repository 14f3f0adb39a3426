package worker

import (
	"context"
	"sync"
	"time"

	"github.com/DRSN-tech/metric-embedder/internal/usecase"
	"github.com/DRSN-tech/metric-embedder/pkg/logger"
)

// CaptureWorker крутит тики захвата в одной горутине. Пауза между тиками
// отсчитывается от завершения предыдущего тика, поэтому тики не перекрываются.
type CaptureWorker struct {
	uc       usecase.CaptureUC
	interval time.Duration
	logger   logger.Logger

	stop     chan struct{}
	stopOnce sync.Once
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	mu    sync.RWMutex
	last  *usecase.TickResult
	ticks uint64
}

func NewCaptureWorker(uc usecase.CaptureUC, interval time.Duration, logger logger.Logger) *CaptureWorker {
	return &CaptureWorker{
		uc:       uc,
		interval: interval,
		logger:   logger,
		stop:     make(chan struct{}),
	}
}

// Start запускает цикл. Первый тик выполняется сразу.
func (w *CaptureWorker) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run(ctx)
	}()
}

// Stop прерывает текущий тик и дожидается выхода из цикла. Повторный вызов безопасен.
func (w *CaptureWorker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stop)
		if w.cancel != nil {
			w.cancel()
		}
	})
	w.wg.Wait()
}

// LastResult последний завершённый тик или nil, если тиков ещё не было.
func (w *CaptureWorker) LastResult() (*usecase.TickResult, uint64) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	return w.last, w.ticks
}

func (w *CaptureWorker) run(ctx context.Context) {
	w.logger.Infof("capture worker started, interval %v", w.interval)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Infof("capture worker stopped by context cancellation")
			return
		case <-w.stop:
			w.logger.Infof("capture worker stopped")
			return
		case <-timer.C:
		}

		res := w.uc.Tick(ctx)

		// тик, прерванный остановкой, не считается ошибкой стадии и не попадает в LastResult
		if ctx.Err() != nil {
			continue
		}
		w.record(res)
		timer.Reset(w.interval)
	}
}

func (w *CaptureWorker) record(res *usecase.TickResult) {
	w.mu.Lock()
	w.last = res
	w.ticks++
	w.mu.Unlock()
}
