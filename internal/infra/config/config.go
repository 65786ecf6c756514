package config

import (
	"log"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию сервисов.
type AppConfig struct {
	AppEnv string `envconfig:"APP_ENV" default:"dev"`
	Port   int    `envconfig:"PORT" default:"8080"`

	// Universes — список вселенных, для каждой запускается отдельный обработчик.
	Universes []string `envconfig:"UNIVERSES" default:"default"`

	PGDSN string `envconfig:"PG_DSN"`

	RedisAddr string `envconfig:"REDIS_ADDR"`

	RabbitURL string `envconfig:"RABBITMQ_URL"`

	Processor struct {
		PollInterval  time.Duration `envconfig:"POLL_INTERVAL" default:"5s"`
		RetryDelay    time.Duration `envconfig:"RETRY_DELAY" default:"5s"`
		LagThreshold  time.Duration `envconfig:"LAG_THRESHOLD" default:"300s"`
		RecentHistory int           `envconfig:"RECENT_HISTORY" default:"5"`
	} `envconfig:""`

	Fetch struct {
		Timeout     time.Duration `envconfig:"FETCH_TIMEOUT" default:"30s"`
		HeadTimeout time.Duration `envconfig:"HEAD_TIMEOUT" default:"4s"`
		UserAgent   string        `envconfig:"FETCH_USER_AGENT" default:"Mozilla/5.0 (compatible; bonfire/1.0)"`
		MaxBytes    int64         `envconfig:"FETCH_MAX_BYTES" default:"5242880"`
	} `envconfig:""`

	Telegram struct {
		Token         string        `envconfig:"TG_BOT_TOKEN"`
		AlertChatID   int64         `envconfig:"TG_ALERT_CHAT_ID"`
		AlertInterval time.Duration `envconfig:"ALERT_INTERVAL" default:"10m"`
	} `envconfig:""`

	Queues struct {
		Intake string `envconfig:"INTAKE_QUEUE_KEY" default:"raw_tweets"`
	} `envconfig:""`
}

// Load загружает конфиг из окружения.
func Load() AppConfig {
	cfg, err := Parse()
	if err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}

// Parse читает конфиг из окружения и нормализует список вселенных.
func Parse() (AppConfig, error) {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return AppConfig{}, err
	}
	universes := make([]string, 0, len(cfg.Universes))
	seen := make(map[string]struct{}, len(cfg.Universes))
	for _, u := range cfg.Universes {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		universes = append(universes, u)
	}
	cfg.Universes = universes
	return cfg, nil
}
