package global

import (
	"os"
	"strconv"

	"github.com/mitchellh/mapstructure"
)

// AppConfig holds process-wide settings. Defaults target a local dev setup;
// every field can be overridden through the environment.
type AppConfig struct {
	Port        int    `mapstructure:"port"`
	MongoURI    string `mapstructure:"mongo_uri"`
	MongoDB     string `mapstructure:"mongo_db"`
	RedisAddr   string `mapstructure:"redis_addr"`
	RedisPass   string `mapstructure:"redis_pass"`
	RedisDB     int    `mapstructure:"redis_db"`
	NatsURL     string `mapstructure:"nats_url"`
	JwtSecret   string `mapstructure:"jwt_secret"`
	FrontendURL string `mapstructure:"frontend_url"`
	NodeID      int64  `mapstructure:"node_id"`
}

func Default() AppConfig {
	return AppConfig{
		Port:        5000,
		MongoURI:    "mongodb://localhost:27017",
		MongoDB:     "chatapp",
		RedisAddr:   "127.0.0.1:6379",
		RedisDB:     0,
		NatsURL:     "nats://127.0.0.1:4222",
		JwtSecret:   "dev-secret-change-me",
		FrontendURL: "http://localhost:5173",
		NodeID:      1,
	}
}

// Load builds the config from defaults plus environment overrides.
func Load() AppConfig {
	cfg := Default()

	overrides := map[string]any{}
	putEnv(overrides, "port", "PORT")
	putEnv(overrides, "mongo_uri", "MONGO_URI")
	putEnv(overrides, "mongo_db", "MONGO_DB")
	putEnv(overrides, "redis_addr", "REDIS_ADDR")
	putEnv(overrides, "redis_pass", "REDIS_PASS")
	putEnv(overrides, "redis_db", "REDIS_DB")
	putEnv(overrides, "nats_url", "NATS_URL")
	putEnv(overrides, "jwt_secret", "JWT_SECRET")
	putEnv(overrides, "frontend_url", "FRONTEND_URL")
	putEnv(overrides, "node_id", "NODE_ID")

	if err := Apply(&cfg, overrides); err != nil {
		// Malformed env values fall back to defaults.
		cfg = Default()
	}
	return cfg
}

// Apply decodes a loosely-typed override map onto cfg. Numeric fields accept
// string values so env vars decode without per-field parsing.
func Apply(cfg *AppConfig, overrides map[string]any) error {
	if len(overrides) == 0 {
		return nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	return dec.Decode(overrides)
}

func (c AppConfig) JwtSecretBytes() []byte { return []byte(c.JwtSecret) }

func (c AppConfig) Addr() string { return ":" + strconv.Itoa(c.Port) }

func putEnv(m map[string]any, key, env string) {
	if v, ok := os.LookupEnv(env); ok && v != "" {
		m[key] = v
	}
}
