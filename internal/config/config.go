package config

import (
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env        string     `yaml:"env" env:"ENV" env-default:"local"`
	Storage    Storage    `yaml:"storage"`
	HTTPServer HTTPServer `yaml:"http_server"`
	WSServer   WSServer   `yaml:"ws_server"`
	Pusher     Pusher     `yaml:"pusher"`
	Casino     Casino     `yaml:"casino"`
}

type Storage struct {
	DSN string `yaml:"dsn" env:"STORAGE_DSN" env-required:"true"`
}

type HTTPServer struct {
	Address     string        `yaml:"address" env-default:"localhost:8080"`
	Timeout     time.Duration `yaml:"timeout" env-default:"4s"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env-default:"60s"`
	AdminToken  string        `yaml:"admin_token" env:"ADMIN_TOKEN" env-required:"true"`
}

type WSServer struct {
	Address     string        `yaml:"address" env-default:"localhost:8081"`
	Timeout     time.Duration `yaml:"timeout" env-default:"4s"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env-default:"60s"`
}

// Pusher is optional; when AppID is empty the api binary falls back to the
// in-house ws hub for event delivery.
type Pusher struct {
	AppID   string `yaml:"app_id" env:"PUSHER_APP_ID"`
	Key     string `yaml:"key" env:"PUSHER_KEY"`
	Secret  string `yaml:"secret" env:"PUSHER_SECRET"`
	Cluster string `yaml:"cluster" env:"PUSHER_CLUSTER"`
	WSAddr  string `yaml:"ws_addr" env:"PUSHER_WS_ADDR" env-default:"ws://localhost:8081/ws"`
}

type Casino struct {
	BettingWindow time.Duration `yaml:"betting_window" env-default:"15s"`
	WorkerCount   int           `yaml:"worker_count" env-default:"5"`
	JobQueueSize  int           `yaml:"job_queue_size" env-default:"100"`
}

func MustLoad() *Config {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		log.Fatal("CONFIG_PATH is not set")
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		log.Fatalf("config file does not exist: %s", configPath)
	}

	var cfg Config

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		log.Fatalf("cannot read config: %s", err)
	}

	return &cfg
}
