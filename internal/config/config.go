package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath — путь к конфигу по умолчанию.
const DefaultPath = "conductor.yaml"

// Значения по умолчанию.
const (
	defaultHTTPAddr        = ":8080"
	defaultMetricsAddr     = ":9090"
	defaultAdmissionBurst  = 10.0
	defaultAdmissionRefill = 1.0
)

// Duration — time.Duration с YAML-декодированием из строк вида "30s".
type Duration time.Duration

// UnmarshalYAML реализует yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std возвращает значение как time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// HTTPConfig — адреса HTTP-серверов.
type HTTPConfig struct {
	// Addr — адрес API сервера.
	Addr string `yaml:"addr"`

	// MetricsAddr — адрес /metrics и /healthz.
	MetricsAddr string `yaml:"metrics_addr"`
}

// DatabaseConfig — подключение к PostgreSQL.
type DatabaseConfig struct {
	// URL — строка подключения. Пустая строка — in-memory хранилище
	// (однонодовый dev-режим).
	URL string `yaml:"url"`
}

// MQConfig — подключение к RabbitMQ.
type MQConfig struct {
	// URL — строка подключения. Пустая строка — компоненты работают
	// без MQ (polling-only).
	URL string `yaml:"url"`
}

// BlobConfig — object storage для больших dataclips.
type BlobConfig struct {
	// Endpoint — адрес S3-совместимого хранилища. Пустая строка —
	// dataclips хранятся только inline.
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// AdmissionConfig — параметры admission-контроля.
type AdmissionConfig struct {
	// Capacity — ёмкость token bucket на проект (burst).
	Capacity float64 `yaml:"capacity"`

	// RefillPerSecond — скорость пополнения.
	RefillPerSecond float64 `yaml:"refill_per_second"`

	// GossipInterval — период рассылки снимка лимитера.
	GossipInterval Duration `yaml:"gossip_interval"`
}

// WorkerConfig — параметры воркера.
type WorkerConfig struct {
	// ServerURL — адрес API сервера для протокола воркера.
	ServerURL string `yaml:"server_url"`

	// PollInterval — интервал попыток claim.
	PollInterval Duration `yaml:"poll_interval"`

	// RunTimeout — потолок времени выполнения одного run.
	RunTimeout Duration `yaml:"run_timeout"`
}

// SchedulerConfig — параметры планировщика.
type SchedulerConfig struct {
	// TickInterval — период проверки due cron-триггеров.
	TickInterval Duration `yaml:"tick_interval"`
}

// WatchdogConfig — параметры watchdog брошенных runs.
type WatchdogConfig struct {
	// Enabled — включает фоновый sweep.
	Enabled bool `yaml:"enabled"`

	// LostAfter — возраст claim, после которого run считается брошенным.
	LostAfter Duration `yaml:"lost_after"`

	// SweepInterval — период sweep.
	SweepInterval Duration `yaml:"sweep_interval"`
}

// Config — конфигурация сервисов Conductor.
type Config struct {
	// NodeID — идентификатор узла в gossip лимитера. Пустая строка —
	// генерируется при старте.
	NodeID string `yaml:"node_id"`

	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	MQ        MQConfig        `yaml:"mq"`
	Blob      BlobConfig      `yaml:"blob"`
	Admission AdmissionConfig `yaml:"admission"`
	Worker    WorkerConfig    `yaml:"worker"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Watchdog  WatchdogConfig  `yaml:"watchdog"`
}

// Load читает конфигурацию: значения по умолчанию, поверх них YAML-файл
// (если существует), поверх него переменные окружения.
//
// Отсутствующий файл по пути по умолчанию — не ошибка; явно указанный
// несуществующий путь — ошибка.
func Load(path string) (*Config, error) {
	cfg := defaults()

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
		// Работаем на одних значениях по умолчанию
	default:
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Addr:        defaultHTTPAddr,
			MetricsAddr: defaultMetricsAddr,
		},
		Admission: AdmissionConfig{
			Capacity:        defaultAdmissionBurst,
			RefillPerSecond: defaultAdmissionRefill,
			GossipInterval:  Duration(2 * time.Second),
		},
		Worker: WorkerConfig{
			ServerURL:    "http://localhost:8080",
			PollInterval: Duration(5 * time.Second),
			RunTimeout:   Duration(5 * time.Minute),
		},
		Scheduler: SchedulerConfig{
			TickInterval: Duration(10 * time.Second),
		},
		Watchdog: WatchdogConfig{
			Enabled:       true,
			LostAfter:     Duration(5 * time.Minute),
			SweepInterval: Duration(30 * time.Second),
		},
	}
}

// applyEnv накладывает переменные окружения поверх файла.
func (c *Config) applyEnv() {
	setIfEnv(&c.NodeID, "NODE_ID")
	setIfEnv(&c.HTTP.Addr, "HTTP_ADDR")
	setIfEnv(&c.HTTP.MetricsAddr, "METRICS_ADDR")
	setIfEnv(&c.Database.URL, "DB_URL")
	setIfEnv(&c.MQ.URL, "MQ_URL")
	setIfEnv(&c.Blob.Endpoint, "BLOB_ENDPOINT")
	setIfEnv(&c.Blob.AccessKey, "BLOB_ACCESS_KEY")
	setIfEnv(&c.Blob.SecretKey, "BLOB_SECRET_KEY")
	setIfEnv(&c.Blob.Bucket, "BLOB_BUCKET")
	setIfEnv(&c.Worker.ServerURL, "SERVER_URL")
}

func setIfEnv(target *string, key string) {
	if v := os.Getenv(key); v != "" {
		*target = v
	}
}

func (c *Config) validate() error {
	if c.HTTP.Addr == "" {
		return fmt.Errorf("http.addr is required")
	}
	if c.Admission.Capacity <= 0 {
		return fmt.Errorf("admission.capacity must be positive")
	}
	if c.Admission.RefillPerSecond <= 0 {
		return fmt.Errorf("admission.refill_per_second must be positive")
	}
	if c.Blob.Endpoint != "" && c.Blob.Bucket == "" {
		return fmt.Errorf("blob.bucket is required when blob.endpoint is set")
	}
	return nil
}
