package cfg

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/DRSN-tech/metric-embedder/pkg/e"
	"github.com/jimlawless/whereami"
	"github.com/spf13/viper"
)

// Config неизменяемая конфигурация сервиса. Собирается один раз при старте
// и передаётся в конструкторы компонентов. Опциональные подсистемы
// (Redis, Minio, Kafka, Http) равны nil, если выключены.
type Config struct {
	Log       *LogCfg
	Capture   *CaptureCfg
	Buffer    *BufferCfg
	Db        *PGDBCfg
	Qdrant    *QdrantCfg
	Embedding *EmbeddingCfg
	Redis     *RedisCfg
	Minio     *MinIOCfg
	Kafka     *KafkaCfg
	Http      *HTTPConfig
}

type LogCfg struct {
	Level string // debug|info|warn|error
}

type CaptureCfg struct {
	MetricsURL   string        // эндпоинт, который опрашивает Fetcher
	FetchTimeout time.Duration // таймаут одного GET
	Interval     time.Duration // пауза между тиками, отсчитывается от завершения тика
}

const (
	BufferDriverSQLite   = "sqlite"
	BufferDriverPostgres = "postgres"
)

type BufferCfg struct {
	Driver     string // sqlite | postgres
	SQLitePath string
}

type PGDBCfg struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type QdrantCfg struct {
	Port                 int
	Host                 string
	ApiKey               string
	QdrantCollectionName string // имя коллекции в Qdrant
	UseTLS               bool
	VectorSize           uint64 // 0: размер берётся из первого вектора
}

type EmbeddingCfg struct {
	OllamaHost string
	Model      string
	Timeout    time.Duration
	Dimension  int // ожидаемая размерность, 0: не проверять
}

type RedisCfg struct {
	Addr         string
	Password     string
	User         string
	DB           int
	MaxRetries   int
	DialTimeout  time.Duration
	Timeout      time.Duration
	EmbeddingTTL time.Duration
}

type MinIOCfg struct {
	MinioEndpoint     string
	BucketName        string
	MinioRootUser     string
	MinioRootPassword string
	MinioUseSSL       bool
	ObjectPrefix      string
}

type KafkaCfg struct {
	Brokers      []string
	Topic        string
	WriteTimeout time.Duration
}

type HTTPConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// Load безопасно загружает конфигурацию и возвращает ошибку в случае неудачи.
// Источники по убыванию приоритета: переменные окружения, ./configs/config.yaml.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AutomaticEnv()
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, e.Wrap(whereami.WhereAmI(), err)
		}
	}

	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	capture, err := loadCaptureCfg(v)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	buffer, err := loadBufferCfg(v)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	var db *PGDBCfg
	if buffer.Driver == BufferDriverPostgres {
		db, err = loadPGDBCfg(v)
		if err != nil {
			return nil, e.Wrap(whereami.WhereAmI(), err)
		}
	}

	qdrant, err := loadQdrantCfg(v)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	embedding, err := loadEmbeddingCfg(v)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	redis, err := loadRedisCfg(v)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	minio, err := loadMinIOCfg(v)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	kafka, err := loadKafkaCfg(v)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	http, err := loadHTTPConfig(v)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	return &Config{
		Log:       &LogCfg{Level: getEnvOrDefault(v, "LOG_LEVEL", "info")},
		Capture:   capture,
		Buffer:    buffer,
		Db:        db,
		Qdrant:    qdrant,
		Embedding: embedding,
		Redis:     redis,
		Minio:     minio,
		Kafka:     kafka,
		Http:      http,
	}, nil
}

func loadCaptureCfg(v *viper.Viper) (*CaptureCfg, error) {
	const (
		defaultMetricsURL   = "http://metrics_exporter:9300/metrics"
		defaultFetchTimeout = 10 * time.Second
		defaultIntervalSecs = 60
	)

	metricsURL := getEnvOrDefault(v, "METRICS_URL", defaultMetricsURL)
	if _, err := url.ParseRequestURI(metricsURL); err != nil {
		return nil, e.Wrap("METRICS_URL", err)
	}

	fetchTimeout, err := parseDurationEnv(v, "CAPTURE_FETCH_TIMEOUT", defaultFetchTimeout)
	if err != nil {
		return nil, err
	}

	intervalSecs, err := parseIntEnv(v, "CAPTURE_INTERVAL_SECS", defaultIntervalSecs)
	if err != nil {
		return nil, err
	}
	if intervalSecs <= 0 {
		return nil, e.Wrap("CAPTURE_INTERVAL_SECS", fmt.Errorf("must be positive, got %d", intervalSecs))
	}

	return &CaptureCfg{
		MetricsURL:   metricsURL,
		FetchTimeout: fetchTimeout,
		Interval:     time.Duration(intervalSecs) * time.Second,
	}, nil
}

func loadBufferCfg(v *viper.Viper) (*BufferCfg, error) {
	const (
		defaultDriver     = BufferDriverSQLite
		defaultSQLitePath = "/data/metrics.sqlite"
	)

	driver := strings.ToLower(getEnvOrDefault(v, "BUFFER_DRIVER", defaultDriver))
	if driver != BufferDriverSQLite && driver != BufferDriverPostgres {
		return nil, e.Wrap("BUFFER_DRIVER="+driver, e.ErrUnknownBufferDriver)
	}

	return &BufferCfg{
		Driver:     driver,
		SQLitePath: getEnvOrDefault(v, "SQLITE_PATH", defaultSQLitePath),
	}, nil
}

func loadPGDBCfg(v *viper.Viper) (*PGDBCfg, error) {
	const (
		defaultHost    = "localhost"
		defaultPort    = "5432"
		defaultSSLMode = "disable"
	)

	user := getEnv(v, "POSTGRES_USER")
	if user == "" {
		return nil, fmt.Errorf("POSTGRES_USER is required")
	}

	password := getEnv(v, "POSTGRES_PASSWORD")
	if password == "" {
		return nil, fmt.Errorf("POSTGRES_PASSWORD is required")
	}

	dbName := getEnv(v, "POSTGRES_DB")
	if dbName == "" {
		return nil, fmt.Errorf("POSTGRES_DB is required")
	}

	return &PGDBCfg{
		Host:     getEnvOrDefault(v, "POSTGRES_HOST", defaultHost),
		Port:     getEnvOrDefault(v, "POSTGRES_PORT", defaultPort),
		User:     user,
		Password: password,
		DBName:   dbName,
		SSLMode:  getEnvOrDefault(v, "SSL_MODE", defaultSSLMode),
	}, nil
}

func loadQdrantCfg(v *viper.Viper) (*QdrantCfg, error) {
	const (
		defaultHost           = "localhost"
		defaultQdrantGRPCPort = 6334
		defaultUseTLS         = false
		defaultCollection     = "metrics"
	)

	port, err := parseIntEnv(v, "QDRANT_GRPC_PORT", defaultQdrantGRPCPort)
	if err != nil {
		return nil, err
	}

	useTLS, err := parseBoolEnv(v, "QDRANT_USE_TLS", defaultUseTLS)
	if err != nil {
		return nil, err
	}

	vectorSize, err := parseIntEnv(v, "VECTOR_SIZE", 0)
	if err != nil {
		return nil, err
	}
	if vectorSize < 0 {
		return nil, e.Wrap("VECTOR_SIZE", e.ErrIncorrectEnvVariable)
	}

	return &QdrantCfg{
		Host:                 getEnvOrDefault(v, "QDRANT_HOST", defaultHost),
		Port:                 port,
		ApiKey:               getEnv(v, "QDRANT__SERVICE__API_KEY"),
		QdrantCollectionName: getEnvOrDefault(v, "COLLECTION_NAME", defaultCollection),
		UseTLS:               useTLS,
		VectorSize:           uint64(vectorSize),
	}, nil
}

func loadEmbeddingCfg(v *viper.Viper) (*EmbeddingCfg, error) {
	const (
		defaultOllamaHost = "http://ollama:11434"
		defaultModel      = "nomic-embed-text:v1.5"
		defaultTimeout    = 30 * time.Second
	)

	timeout, err := parseDurationEnv(v, "EMBEDDING_TIMEOUT", defaultTimeout)
	if err != nil {
		return nil, err
	}

	dimension, err := parseIntEnv(v, "VECTOR_SIZE", 0)
	if err != nil {
		return nil, err
	}

	return &EmbeddingCfg{
		OllamaHost: strings.TrimRight(getEnvOrDefault(v, "OLLAMA_HOST", defaultOllamaHost), "/"),
		Model:      getEnvOrDefault(v, "EMBEDDING_MODEL", defaultModel),
		Timeout:    timeout,
		Dimension:  dimension,
	}, nil
}

// loadRedisCfg возвращает nil, если REDIS_ADDR не задан: кэш эмбеддингов выключен.
func loadRedisCfg(v *viper.Viper) (*RedisCfg, error) {
	const (
		defaultDB           = 0
		defaultMaxRetries   = 3
		defaultDialTimeout  = 5 * time.Second
		defaultTimeout      = 3 * time.Second
		defaultEmbeddingTTL = 24 * time.Hour
	)

	addr := getEnv(v, "REDIS_ADDR")
	if addr == "" {
		return nil, nil
	}

	db, err := parseIntEnv(v, "REDIS_DB_ID", defaultDB)
	if err != nil {
		return nil, err
	}

	maxRetries, err := parseIntEnv(v, "REDIS_MAX_RETRIES", defaultMaxRetries)
	if err != nil {
		return nil, err
	}

	dialTimeout, err := parseDurationEnv(v, "REDIS_DIAL_TIMEOUT", defaultDialTimeout)
	if err != nil {
		return nil, err
	}

	timeout, err := parseDurationEnv(v, "REDIS_TIMEOUT", defaultTimeout)
	if err != nil {
		return nil, err
	}

	ttl, err := parseDurationEnv(v, "EMBEDDING_CACHE_TTL", defaultEmbeddingTTL)
	if err != nil {
		return nil, err
	}

	return &RedisCfg{
		Addr:         addr,
		Password:     getEnv(v, "REDIS_PASSWORD"),
		User:         getEnv(v, "REDIS_USER"),
		DB:           db,
		MaxRetries:   maxRetries,
		DialTimeout:  dialTimeout,
		Timeout:      timeout,
		EmbeddingTTL: ttl,
	}, nil
}

// loadMinIOCfg возвращает nil, если MINIO_ENDPOINT не задан: архив батчей выключен.
func loadMinIOCfg(v *viper.Viper) (*MinIOCfg, error) {
	const (
		defaultUseSSL = false
		defaultBucket = "metric-snapshots"
		defaultPrefix = "snapshots"
	)

	endpoint := getEnv(v, "MINIO_ENDPOINT")
	if endpoint == "" {
		return nil, nil
	}

	useSSL, err := parseBoolEnv(v, "MINIO_USE_SSL", defaultUseSSL)
	if err != nil {
		return nil, err
	}

	return &MinIOCfg{
		MinioEndpoint:     endpoint,
		BucketName:        getEnvOrDefault(v, "BUCKET_NAME", defaultBucket),
		MinioRootUser:     getEnv(v, "MINIO_ROOT_USER"),
		MinioRootPassword: getEnv(v, "MINIO_ROOT_PASSWORD"),
		MinioUseSSL:       useSSL,
		ObjectPrefix:      strings.Trim(getEnvOrDefault(v, "MINIO_OBJECT_PREFIX", defaultPrefix), "/"),
	}, nil
}

// loadKafkaCfg возвращает nil, если KAFKA_BROKERS не задан: события о батчах не публикуются.
func loadKafkaCfg(v *viper.Viper) (*KafkaCfg, error) {
	const (
		defaultTopic        = "metrics.batch.embedded"
		defaultWriteTimeout = 10 * time.Second
	)

	brokerStr := getEnv(v, "KAFKA_BROKERS")
	if brokerStr == "" {
		return nil, nil
	}

	brokers := make([]string, 0)
	for _, b := range strings.Split(brokerStr, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	if len(brokers) == 0 {
		return nil, e.Wrap("KAFKA_BROKERS", e.ErrIncorrectEnvVariable)
	}

	writeTimeout, err := parseDurationEnv(v, "KAFKA_WRITE_TIMEOUT", defaultWriteTimeout)
	if err != nil {
		return nil, err
	}

	return &KafkaCfg{
		Brokers:      brokers,
		Topic:        getEnvOrDefault(v, "KAFKA_TOPIC", defaultTopic),
		WriteTimeout: writeTimeout,
	}, nil
}

// loadHTTPConfig возвращает nil, если HTTP_PORT не задан: сервер статуса не поднимается.
func loadHTTPConfig(v *viper.Viper) (*HTTPConfig, error) {
	const (
		defaultReadTimeout  = 5 * time.Second
		defaultWriteTimeout = 10 * time.Second
		defaultIdleTimeout  = 60 * time.Second
	)

	port := getEnv(v, "HTTP_PORT")
	if port == "" {
		return nil, nil
	}

	readTimeout, err := parseDurationEnv(v, "HTTP_READ_TIMEOUT", defaultReadTimeout)
	if err != nil {
		return nil, err
	}

	writeTimeout, err := parseDurationEnv(v, "HTTP_WRITE_TIMEOUT", defaultWriteTimeout)
	if err != nil {
		return nil, err
	}

	idleTimeout, err := parseDurationEnv(v, "KEEP_ALIVE", defaultIdleTimeout)
	if err != nil {
		return nil, err
	}

	return &HTTPConfig{
		Port:         port,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}, nil
}

// getEnv возвращает значение ключа (окружение или файл конфигурации).
// Возвращает пустую строку, если ключ не задан.
func getEnv(v *viper.Viper, key string) string {
	return strings.TrimSpace(v.GetString(key))
}

// getEnvOrDefault возвращает значение ключа или значение по умолчанию.
func getEnvOrDefault(v *viper.Viper, key, defaultValue string) string {
	if value := getEnv(v, key); value != "" {
		return value
	}

	return defaultValue
}

// parseDurationEnv считывает длительность или возвращает значение по умолчанию.
func parseDurationEnv(v *viper.Viper, key string, defaultValue time.Duration) (time.Duration, error) {
	raw := getEnv(v, key)
	if raw == "" {
		return defaultValue, nil
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return defaultValue, e.Wrap(key, e.ErrIncorrectEnvVariable)
	}

	return d, nil
}

func parseIntEnv(v *viper.Viper, key string, defaultValue int) (int, error) {
	raw := getEnv(v, key)
	if raw == "" {
		return defaultValue, nil
	}

	intValue, err := strconv.Atoi(raw)
	if err != nil {
		return defaultValue, e.Wrap(key, e.ErrIncorrectEnvVariable)
	}

	return intValue, nil
}

func parseBoolEnv(v *viper.Viper, key string, defaultValue bool) (bool, error) {
	raw := getEnv(v, key)
	if raw == "" {
		return defaultValue, nil
	}

	b, err := strconv.ParseBool(raw)
	if err != nil {
		return defaultValue, e.Wrap(key, e.ErrIncorrectEnvVariable)
	}

	return b, nil
}
