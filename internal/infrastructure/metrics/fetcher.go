package metrics

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/DRSN-tech/metric-embedder/internal/cfg"
	"github.com/DRSN-tech/metric-embedder/pkg/e"
	"github.com/jimlawless/whereami"
)

const (
	userAgent = "metric-embedder/1.0"
	// ответ с ошибкой обрезается до этого размера перед попаданием в текст ошибки
	errBodyLimit = 512
)

// Fetcher снимает текстовую экспозицию метрик одним GET-запросом.
// Повторов нет: неудача просто пропускает тик.
type Fetcher struct {
	url    string
	client *http.Client
}

func NewFetcher(cfg *cfg.CaptureCfg) *Fetcher {
	return &Fetcher{
		url:    cfg.MetricsURL,
		client: &http.Client{Timeout: cfg.FetchTimeout},
	}
}

// NewFetcherWithClient используется в тестах и при необходимости своего транспорта.
func NewFetcherWithClient(url string, timeout time.Duration, client *http.Client) *Fetcher {
	if client == nil {
		client = &http.Client{}
	}
	client.Timeout = timeout

	return &Fetcher{url: url, client: client}
}

// Fetch возвращает тело ответа. Некорректные UTF-8 последовательности заменяются
// на U+FFFD: строковые поля payload в Qdrant принимают только валидный UTF-8.
// Таймаут, сетевая ошибка и статус вне 2xx возвращаются как e.ErrFetch.
func (f *Fetcher) Fetch(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %w", e.ErrFetch, e.Wrap(whereami.WhereAmI(), err))
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", e.ErrFetch, e.Wrap(whereami.WhereAmI(), err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, errBodyLimit))
		return "", fmt.Errorf("%w: %s: metrics endpoint returned %d: %s",
			e.ErrFetch, whereami.WhereAmI(), resp.StatusCode, string(b))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: %w", e.ErrFetch, e.Wrap(whereami.WhereAmI(), err))
	}

	return strings.ToValidUTF8(string(body), "\uFFFD"), nil
}
