// Package config собирает настройки training job из окружения и флагов.
//
// Обязательны четыре переменные: MINIO_ACCESS_KEY, MINIO_SECRET_ACCESS_KEY,
// MINIO_URI, MLFLOW_URI. Остальное — опциональные интеграции и константы
// обучения, значения по умолчанию которых воспроизводят эталонный запуск.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// ErrMissingSetting — не задана обязательная настройка.
var ErrMissingSetting = errors.New("missing required setting")

// Ключи настроек. Совпадают с именами переменных окружения.
const (
	KeyMinioAccessKey = "MINIO_ACCESS_KEY"
	KeyMinioSecretKey = "MINIO_SECRET_ACCESS_KEY"
	KeyMinioURI       = "MINIO_URI"
	KeyMinioSecure    = "MINIO_SECURE"
	KeyMLflowURI      = "MLFLOW_URI"
	KeyDBURL          = "DB_URL"
	KeyRabbitMQURL    = "RABBITMQ_URL"
	KeyPushgatewayURL = "PUSHGATEWAY_URL"
	KeyOutputDir      = "OUTPUT_DIR"
	KeyBucket         = "BUCKET"
	KeyObject         = "OBJECT"
	KeyExperiment     = "EXPERIMENT"
)

// Значения по умолчанию.
const (
	DefaultBucket      = "cml"
	DefaultObject      = "wine_quality.csv"
	DefaultExperiment  = "training experiment"
	DefaultTarget      = "quality"
	DefaultSeed        = 44
	DefaultTestSize    = 0.2
	DefaultMaxDepth    = 5
	DefaultNEstimators = 100
	DefaultJitter      = 0.25
	DefaultDPI         = 120
)

// Config — настройки одного запуска.
type Config struct {
	Storage  StorageConfig
	Tracking TrackingConfig
	Training TrainingConfig

	// DBURL — DSN Postgres для истории запусков (опционально).
	DBURL string

	// RabbitMQURL — AMQP URL для события run.completed (опционально).
	RabbitMQURL string

	// PushgatewayURL — адрес Prometheus Pushgateway (опционально).
	PushgatewayURL string

	// OutputDir — каталог для metrics.txt и графиков.
	OutputDir string
}

// StorageConfig — подключение к S3-совместимому хранилищу.
type StorageConfig struct {
	URI       string
	AccessKey string
	SecretKey string
	Secure    bool
	Bucket    string
	Object    string
}

// TrackingConfig — подключение к tracking server.
type TrackingConfig struct {
	URI        string
	Experiment string
}

// TrainingConfig — фиксированные параметры обучения.
type TrainingConfig struct {
	Target      string
	Seed        int64
	TestSize    float64
	MaxDepth    int
	NEstimators int
	Jitter      float64
	DPI         int
}

// New возвращает viper с привязкой к окружению и значениями по умолчанию.
func New() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault(KeyMinioSecure, false)
	v.SetDefault(KeyOutputDir, ".")
	v.SetDefault(KeyBucket, DefaultBucket)
	v.SetDefault(KeyObject, DefaultObject)
	v.SetDefault(KeyExperiment, DefaultExperiment)

	return v
}

// BindFlags регистрирует флаги, переопределяющие окружение.
func BindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	flags.String("bucket", DefaultBucket, "Bucket with the training data")
	flags.String("object", DefaultObject, "CSV object key")
	flags.String("experiment", DefaultExperiment, "Experiment name in the tracking server")
	flags.String("output-dir", ".", "Directory for metrics.txt and plots")

	bindings := map[string]string{
		KeyBucket:     "bucket",
		KeyObject:     "object",
		KeyExperiment: "experiment",
		KeyOutputDir:  "output-dir",
	}
	for key, flag := range bindings {
		if err := v.BindPFlag(key, flags.Lookup(flag)); err != nil {
			return fmt.Errorf("bind flag %s: %w", flag, err)
		}
	}
	return nil
}

// Load читает Config из viper и проверяет обязательные настройки.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Storage: StorageConfig{
			URI:       v.GetString(KeyMinioURI),
			AccessKey: v.GetString(KeyMinioAccessKey),
			SecretKey: v.GetString(KeyMinioSecretKey),
			Secure:    v.GetBool(KeyMinioSecure),
			Bucket:    v.GetString(KeyBucket),
			Object:    v.GetString(KeyObject),
		},
		Tracking: TrackingConfig{
			URI:        v.GetString(KeyMLflowURI),
			Experiment: v.GetString(KeyExperiment),
		},
		Training:       DefaultTraining(),
		DBURL:          v.GetString(KeyDBURL),
		RabbitMQURL:    v.GetString(KeyRabbitMQURL),
		PushgatewayURL: v.GetString(KeyPushgatewayURL),
		OutputDir:      v.GetString(KeyOutputDir),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DefaultTraining возвращает параметры эталонного запуска.
func DefaultTraining() TrainingConfig {
	return TrainingConfig{
		Target:      DefaultTarget,
		Seed:        DefaultSeed,
		TestSize:    DefaultTestSize,
		MaxDepth:    DefaultMaxDepth,
		NEstimators: DefaultNEstimators,
		Jitter:      DefaultJitter,
		DPI:         DefaultDPI,
	}
}

// Validate проверяет, что все обязательные настройки заданы.
// В ошибке перечисляются все отсутствующие ключи сразу.
func (c *Config) Validate() error {
	var missing []string

	required := []struct {
		key string
		val string
	}{
		{KeyMinioAccessKey, c.Storage.AccessKey},
		{KeyMinioSecretKey, c.Storage.SecretKey},
		{KeyMinioURI, c.Storage.URI},
		{KeyMLflowURI, c.Tracking.URI},
	}
	for _, r := range required {
		if strings.TrimSpace(r.val) == "" {
			missing = append(missing, r.key)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingSetting, strings.Join(missing, ", "))
	}
	return nil
}

// Endpoint возвращает host:port без схемы.
// Схема https включает TLS, даже если MINIO_SECURE не задан.
func (s StorageConfig) Endpoint() (endpoint string, secure bool) {
	endpoint = strings.TrimSuffix(s.URI, "/")
	secure = s.Secure

	switch {
	case strings.HasPrefix(endpoint, "https://"):
		endpoint = strings.TrimPrefix(endpoint, "https://")
		secure = true
	case strings.HasPrefix(endpoint, "http://"):
		endpoint = strings.TrimPrefix(endpoint, "http://")
	}
	return endpoint, secure
}
