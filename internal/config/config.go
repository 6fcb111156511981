package config

import (
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	ListenAddr    string `envconfig:"LISTEN_ADDR" default:"localhost:4000"`
	MongoURI      string `envconfig:"MONGO_URI" default:"mongodb://localhost:27017"`
	MongoDB       string `envconfig:"MONGO_DB" default:"mydb"`
	RedisAddr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD" default:""`
	JWTSecret     string `envconfig:"JWT_SECRET" required:"true"`
	UploadDir     string `envconfig:"UPLOAD_DIR" default:"uploads"`

	PingInterval     time.Duration `envconfig:"PING_INTERVAL" default:"5s"`
	PongDeadline     time.Duration `envconfig:"PONG_DEADLINE" default:"1s"`
	SendBuffer       int           `envconfig:"SEND_BUFFER" default:"32"`
	IdentityCacheTTL time.Duration `envconfig:"IDENTITY_CACHE_TTL" default:"5m"`
}

// Load reads .env if one exists, then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
