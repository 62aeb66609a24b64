package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	LogLevel string `yaml:"log-level" env:"LOG_LEVEL" env-default:"info"`

	Node    Node    `yaml:"node"`
	Redis   Redis   `yaml:"redis"`
	Client  Client  `yaml:"client"`
	Cluster Cluster `yaml:"cluster"`

	HTTPPort   string `yaml:"http-port" env:"HTTP_PORT" env-default:"9090"`
	SocketPort string `yaml:"socket-port" env:"SOCKET_PORT" env-default:"8080"`
	PeerPort   string `yaml:"peer-port" env:"PEER_PORT" env-default:"7070"`
}

type Node struct {
	ID string `yaml:"id" env:"NODE_ID" env-required:"true"`
	// PeerAddr is how other nodes dial this one.
	PeerAddr string `yaml:"peer-addr" env:"NODE_PEER_ADDR" env-default:"localhost:7070"`
	// PublicURL is where clients are redirected when another node migrates to this one.
	PublicURL string `yaml:"public-url" env:"NODE_PUBLIC_URL" env-default:"ws://localhost:8080/ws"`
}

type Redis struct {
	Host     string `yaml:"host" env:"REDIS_HOST" env-default:"localhost"`
	Port     string `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

type Client struct {
	// RateLimit is the number of messages per second a connection may send.
	RateLimit float64 `yaml:"rate-limit" env:"CLIENT_RATE_LIMIT" env-default:"20"`
	RateBurst int     `yaml:"rate-burst" env:"CLIENT_RATE_BURST" env-default:"40"`
}

type Cluster struct {
	NodeTTL     time.Duration `yaml:"node-ttl" env:"CLUSTER_NODE_TTL" env-default:"15s"`
	PeerTimeout time.Duration `yaml:"peer-timeout" env:"CLUSTER_PEER_TIMEOUT" env-default:"5s"`
}

// MustLoad - load all configurations in config.yml file, environment variables win.
func MustLoad(path string) *Config {
	config := &Config{}

	if err := cleanenv.ReadConfig(path, config); err != nil {
		panic(fmt.Errorf("unable to load config file: %w", err))
	}

	return config
}

func (that *Redis) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", that.Host, that.Port)
}
