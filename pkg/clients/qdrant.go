package clients

import (
	"context"

	config "github.com/DRSN-tech/metric-embedder/internal/cfg"
	"github.com/DRSN-tech/metric-embedder/pkg/e"
	"github.com/jimlawless/whereami"
	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
)

const qdrantUserAgent = "metric-embedder"

type QdrantClient struct {
	Client *qdrant.Client
	cfg    *config.QdrantCfg
}

func NewQdrantClient(cfg *config.QdrantCfg) (*QdrantClient, error) {
	qdrantClient, err := qdrant.NewClient(&qdrant.Config{
		Host:        cfg.Host,
		Port:        cfg.Port,
		APIKey:      cfg.ApiKey,
		UseTLS:      cfg.UseTLS,
		GrpcOptions: []grpc.DialOption{grpc.WithUserAgent(qdrantUserAgent)},
	})
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	return &QdrantClient{
		Client: qdrantClient,
		cfg:    cfg,
	}, nil
}

// Ping проверяет доступность Qdrant при старте сервиса.
func (q *QdrantClient) Ping(ctx context.Context) error {
	if _, err := q.Client.HealthCheck(ctx); err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}

	return nil
}

func (q *QdrantClient) Close() error {
	return q.Client.Close()
}
