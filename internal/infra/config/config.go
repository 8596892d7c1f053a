package config

import (
	"log"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию сервисов.
type AppConfig struct {
	AppEnv string `envconfig:"APP_ENV" default:"dev"`
	Port   int    `envconfig:"PORT" default:"8080"`

	Codeforces struct {
		BaseURL string        `envconfig:"CF_BASE_URL" default:"https://codeforces.com/api"`
		Timeout time.Duration `envconfig:"CF_TIMEOUT" default:"30s"`
	} `envconfig:""`

	PGDSN string `envconfig:"PG_DSN"`

	RedisAddr string `envconfig:"REDIS_ADDR" default:"localhost:6379"`

	RabbitURL string `envconfig:"RABBITMQ_URL"`

	Suggest struct {
		Count        int `envconfig:"SUGGEST_COUNT" default:"5"`
		RatingWindow int `envconfig:"SUGGEST_RATING_WINDOW" default:"300"`
	} `envconfig:""`

	Queues struct {
		Refresh string `envconfig:"REFRESH_QUEUE_KEY" default:"refresh_jobs"`
	} `envconfig:""`
}

// Load загружает конфиг из окружения.
func Load() AppConfig {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}
