package config

import (
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env           string     `yaml:"env" env:"ENV" env-default:"development"`
	DatabaseDSN   string     `yaml:"database_dsn" env:"DATABASE_URL" env-required:"true"`
	ChangeFeedURL string     `yaml:"change_feed_url" env:"CHANGE_FEED_URL" env-required:"true"`
	JWTSecret     string     `yaml:"jwt_secret" env:"JWT_SECRET" env-required:"true"`
	HTTPServer    HTTPServer `yaml:"http_server"`
	Chat          ChatConfig `yaml:"chat"`
}

type HTTPServer struct {
	Address        string        `yaml:"address" env:"HTTP_ADDRESS" env-default:":8080"`
	Timeout        time.Duration `yaml:"timeout" env-default:"10s"`
	IdleTimeout    time.Duration `yaml:"idle_timeout" env-default:"60s"`
	AllowedOrigins []string      `yaml:"allowed_origins" env:"ALLOWED_ORIGINS" env-default:"http://localhost:3000"`
}

type ChatConfig struct {
	// SendGraceWindow is how long a just-sent message id keeps suppressing
	// its change-feed echo.
	SendGraceWindow time.Duration `yaml:"send_grace_window" env:"SEND_GRACE_WINDOW" env-default:"5s"`
	RecentCacheSize int           `yaml:"recent_cache_size" env:"RECENT_CACHE_SIZE" env-default:"64"`
}

// MustLoad reads the config file named by CONFIG_PATH, falling back to
// environment variables alone when it is unset.
func MustLoad() *Config {
	var cfg Config

	configPath := os.Getenv("CONFIG_PATH")
	if configPath != "" {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			log.Fatalf("config file does not exist: %s", configPath)
		}
		if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
			log.Fatalf("cannot read config %s", err)
		}
		return &cfg
	}

	if err := cleanenv.ReadEnv(&cfg); err != nil {
		log.Fatalf("cannot read config from environment: %s", err)
	}

	return &cfg
}
