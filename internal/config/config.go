package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Config captures runtime configuration for the API service.
type Config struct {
	HTTP      HTTPConfig
	Database  DatabaseConfig
	Kafka     KafkaConfig
	Telemetry TelemetryConfig
	Service   ServiceConfig
	Gateway   GatewayConfig
	Redis     RedisConfig
	Store     StoreConfig
}

type HTTPConfig struct {
	Port          int
	MetricsPath   string
	ShutdownGrace int
}

type DatabaseConfig struct {
	URL            string
	AutoMigrate    bool
	MigrationsPath string
}

type KafkaConfig struct {
	Brokers           []string
	NotificationTopic string
	PublishTimeout    time.Duration
}

// GatewayConfig holds payment processor credentials. KeyID is public and
// handed to the buyer's client; the secrets never leave the server.
type GatewayConfig struct {
	BaseURL       string
	KeyID         string
	KeySecret     string
	WebhookSecret string
	Currency      string
	Timeout       time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	CartTTL  time.Duration
}

// StoreConfig carries fallbacks used until store_settings has a row.
type StoreConfig struct {
	ShippingFlatFee       int64
	FreeShippingThreshold int64
	IdempotencyRetention  time.Duration
}

type TelemetryConfig struct {
	LogLevel      string
	OTelEndpoint  string
	OTelInsecure  bool
	EnableTracing bool
	EnableMetrics bool
	SampleRate    float64
}

type ServiceConfig struct {
	Name        string
	Version     string
	Environment string
}

const (
	defaultHTTPPort       = 8080
	defaultMetricsPath    = "/metrics"
	defaultShutdownGrace  = 15
	defaultMigrationsPath = "migrations"
	defaultAutoMigrate    = true
	defaultServiceName    = "checkout-api"
	defaultServiceVersion = "0.1.0"
	defaultEnvironment    = "development"
	defaultLogLevel       = "info"
	defaultOTelSampleRate = 1.0

	defaultNotificationTopic    = "order-notifications"
	defaultPublishTimeout       = 5 * time.Second
	defaultGatewayURL           = "https://api.razorpay.com"
	defaultCurrency             = "INR"
	defaultGatewayTimeout       = 10 * time.Second
	defaultRedisAddr            = "localhost:6379"
	defaultCartTTL              = 7 * 24 * time.Hour
	defaultIdempotencyRetention = 24 * time.Hour
)

// Load reads configuration from environment variables, applying defaults when needed.
func Load() (*Config, error) {
	httpCfg, err := loadHTTPConfig()
	if err != nil {
		return nil, fmt.Errorf("loading HTTP config: %w", err)
	}

	dbCfg := loadDatabaseConfig()
	kafkaCfg, err := loadKafkaConfig()
	if err != nil {
		return nil, fmt.Errorf("loading kafka config: %w", err)
	}
	telCfg, err := loadTelemetryConfig()
	if err != nil {
		return nil, fmt.Errorf("loading telemetry config: %w", err)
	}

	serviceCfg := loadServiceConfig()

	gatewayCfg, err := loadGatewayConfig()
	if err != nil {
		return nil, fmt.Errorf("loading gateway config: %w", err)
	}
	redisCfg, err := loadRedisConfig()
	if err != nil {
		return nil, fmt.Errorf("loading redis config: %w", err)
	}
	storeCfg, err := loadStoreConfig()
	if err != nil {
		return nil, fmt.Errorf("loading store config: %w", err)
	}

	return &Config{
		HTTP:      httpCfg,
		Database:  dbCfg,
		Kafka:     kafkaCfg,
		Telemetry: telCfg,
		Service:   serviceCfg,
		Gateway:   gatewayCfg,
		Redis:     redisCfg,
		Store:     storeCfg,
	}, nil
}

func loadHTTPConfig() (HTTPConfig, error) {
	port := defaultHTTPPort
	if value, ok := os.LookupEnv("API_HTTP_PORT"); ok {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return HTTPConfig{}, fmt.Errorf("invalid API_HTTP_PORT: %w", err)
		}
		port = parsed
	}

	shutdownGrace := defaultShutdownGrace
	if value, ok := os.LookupEnv("API_SHUTDOWN_GRACE_SECONDS"); ok {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return HTTPConfig{}, fmt.Errorf("invalid API_SHUTDOWN_GRACE_SECONDS: %w", err)
		}
		shutdownGrace = parsed
	}

	metricsPath := getEnvOrDefault("API_METRICS_PATH", defaultMetricsPath)

	return HTTPConfig{
		Port:          port,
		MetricsPath:   metricsPath,
		ShutdownGrace: shutdownGrace,
	}, nil
}

func loadDatabaseConfig() DatabaseConfig {
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		databaseURL = buildDatabaseURL()
	}

	autoMigrate := defaultAutoMigrate
	if value, ok := os.LookupEnv("AUTO_MIGRATE"); ok {
		autoMigrate = value == "true"
	}

	migrationsPath := getEnvOrDefault("MIGRATIONS_PATH", defaultMigrationsPath)

	return DatabaseConfig{
		URL:            databaseURL,
		AutoMigrate:    autoMigrate,
		MigrationsPath: migrationsPath,
	}
}

func loadKafkaConfig() (KafkaConfig, error) {
	var brokers []string
	if value, ok := os.LookupEnv("KAFKA_BROKERS"); ok && value != "" {
		for _, broker := range strings.Split(value, ",") {
			if broker = strings.TrimSpace(broker); broker != "" {
				brokers = append(brokers, broker)
			}
		}
	}

	timeout, err := getDurationEnv("KAFKA_PUBLISH_TIMEOUT", defaultPublishTimeout)
	if err != nil {
		return KafkaConfig{}, err
	}

	return KafkaConfig{
		Brokers:           brokers,
		NotificationTopic: getEnvOrDefault("KAFKA_NOTIFICATION_TOPIC", defaultNotificationTopic),
		PublishTimeout:    timeout,
	}, nil
}

func loadGatewayConfig() (GatewayConfig, error) {
	timeout, err := getDurationEnv("PAYMENT_GATEWAY_TIMEOUT", defaultGatewayTimeout)
	if err != nil {
		return GatewayConfig{}, err
	}

	cfg := GatewayConfig{
		BaseURL:       getEnvOrDefault("PAYMENT_GATEWAY_URL", defaultGatewayURL),
		KeyID:         os.Getenv("PAYMENT_KEY_ID"),
		KeySecret:     os.Getenv("PAYMENT_KEY_SECRET"),
		WebhookSecret: os.Getenv("PAYMENT_WEBHOOK_SECRET"),
		Currency:      strings.ToUpper(getEnvOrDefault("PAYMENT_CURRENCY", defaultCurrency)),
		Timeout:       timeout,
	}

	if u, err := url.Parse(cfg.BaseURL); err != nil || !u.IsAbs() {
		return GatewayConfig{}, fmt.Errorf("invalid PAYMENT_GATEWAY_URL %q", cfg.BaseURL)
	}

	var missing []string
	for name, value := range map[string]string{
		"PAYMENT_KEY_ID":         cfg.KeyID,
		"PAYMENT_KEY_SECRET":     cfg.KeySecret,
		"PAYMENT_WEBHOOK_SECRET": cfg.WebhookSecret,
	} {
		if value == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return GatewayConfig{}, errors.New("missing " + strings.Join(missing, ", "))
	}

	return cfg, nil
}

func loadRedisConfig() (RedisConfig, error) {
	db := 0
	if value, ok := os.LookupEnv("REDIS_DB"); ok {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return RedisConfig{}, fmt.Errorf("invalid REDIS_DB: %w", err)
		}
		db = parsed
	}

	ttl, err := getDurationEnv("REDIS_CART_TTL", defaultCartTTL)
	if err != nil {
		return RedisConfig{}, err
	}

	return RedisConfig{
		Addr:     getEnvOrDefault("REDIS_ADDR", defaultRedisAddr),
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       db,
		CartTTL:  ttl,
	}, nil
}

func loadStoreConfig() (StoreConfig, error) {
	flatFee, err := getInt64Env("SHIPPING_FLAT_FEE", 0)
	if err != nil {
		return StoreConfig{}, err
	}
	threshold, err := getInt64Env("FREE_SHIPPING_THRESHOLD", 0)
	if err != nil {
		return StoreConfig{}, err
	}
	if flatFee < 0 || threshold < 0 {
		return StoreConfig{}, errors.New("shipping amounts must not be negative")
	}

	retention, err := getDurationEnv("IDEMPOTENCY_RETENTION", defaultIdempotencyRetention)
	if err != nil {
		return StoreConfig{}, err
	}

	return StoreConfig{
		ShippingFlatFee:       flatFee,
		FreeShippingThreshold: threshold,
		IdempotencyRetention:  retention,
	}, nil
}

func loadTelemetryConfig() (TelemetryConfig, error) {
	logLevel := getEnvOrDefault("LOG_LEVEL", defaultLogLevel)
	otelEndpoint := getEnvOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")

	insecure := getBoolEnv("OTEL_EXPORTER_OTLP_INSECURE", true)
	enableTracing := getBoolEnv("OTEL_ENABLE_TRACING", true)
	enableMetrics := getBoolEnv("OTEL_ENABLE_METRICS", true)

	sampleRate := defaultOTelSampleRate
	if value, ok := os.LookupEnv("OTEL_SAMPLE_RATE"); ok {
		parsed, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return TelemetryConfig{}, fmt.Errorf("invalid OTEL_SAMPLE_RATE: %w", err)
		}
		sampleRate = parsed
	}

	return TelemetryConfig{
		LogLevel:      logLevel,
		OTelEndpoint:  otelEndpoint,
		OTelInsecure:  insecure,
		EnableTracing: enableTracing,
		EnableMetrics: enableMetrics,
		SampleRate:    sampleRate,
	}, nil
}

func loadServiceConfig() ServiceConfig {
	return ServiceConfig{
		Name:        getEnvOrDefault("API_SERVICE_NAME", defaultServiceName),
		Version:     getEnvOrDefault("SERVICE_VERSION", defaultServiceVersion),
		Environment: getEnvOrDefault("ENVIRONMENT", defaultEnvironment),
	}
}

func buildDatabaseURL() string {
	host := getEnvOrDefault("DB_HOST", "localhost")
	port := getEnvOrDefault("DB_PORT", "5432")
	user := getEnvOrDefault("DB_USER", "postgres")
	password := getEnvOrDefault("DB_PASSWORD", "postgres")
	dbName := getEnvOrDefault("DB_NAME", "checkout")
	sslMode := getEnvOrDefault("DB_SSLMODE", "disable")

	maxConns := getEnvOrDefault("DB_MAX_CONNS", "25")
	minConns := getEnvOrDefault("DB_MIN_CONNS", "5")
	maxLifetime := getEnvOrDefault("DB_MAX_CONN_LIFETIME", "5m")

	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s&pool_max_conns=%s&pool_min_conns=%s&pool_max_conn_lifetime=%s",
		user, password, host, port, dbName, sslMode, maxConns, minConns, maxLifetime,
	)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		return value == "true"
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return defaultValue, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return parsed, nil
}

func getInt64Env(key string, defaultValue int64) (int64, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return parsed, nil
}
