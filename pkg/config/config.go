package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
	"gopkg.in/yaml.v3"
)

// AuthMode selects how bearer tokens are verified
const (
	AuthJWT      = "jwt"
	AuthFirebase = "firebase"
)

type Config struct {
	Port                    string   `yaml:"port"`
	Env                     string   `yaml:"env"`
	LogLevel                string   `yaml:"log_level"`
	AuthMode                string   `yaml:"auth_mode"`
	JWTSecret               string   `yaml:"jwt_secret"`
	FirebaseCredentialsPath string   `yaml:"firebase_credentials_path"`
	PostgresUrl             string   `yaml:"postgres_url"`
	MongoURI                string   `yaml:"mongo_uri"`
	MongoDatabase           string   `yaml:"mongo_database"`
	MetricsPort             string   `yaml:"metrics_port"`
	AllowedOrigins          []string `yaml:"allowed_origins"`
	SocketRPS               float64  `yaml:"socket_rps"`
	SocketBurst             int      `yaml:"socket_burst"`
}

func defaults() *Config {
	return &Config{
		Port:           "8080",
		Env:            "development",
		LogLevel:       "info",
		AuthMode:       AuthJWT,
		JWTSecret:      "supersecretjwtkey",
		PostgresUrl:    "postgres://localhost:5432/shelfstream?sslmode=disable",
		MongoURI:       "mongodb://localhost:27017",
		MongoDatabase:  "shelfstream",
		MetricsPort:    "9090",
		AllowedOrigins: []string{"*"},
		SocketRPS:      10,
		SocketBurst:    20,
	}
}

// Load reads .env, then the YAML file named by CONFIG_FILE, then the
// environment. Later sources win.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		jww.INFO.Println("No .env file found, assuming environment variables are set.")
	}

	cfg := defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read config file %s", path)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, errors.Wrapf(err, "failed to parse config file %s", path)
		}
	}

	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.Env = getEnv("ENV", cfg.Env)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.AuthMode = getEnv("AUTH_MODE", cfg.AuthMode)
	cfg.JWTSecret = getEnv("JWT_SECRET", cfg.JWTSecret)
	cfg.FirebaseCredentialsPath = getEnv("FIREBASE_CREDENTIALS_PATH", cfg.FirebaseCredentialsPath)
	cfg.PostgresUrl = getEnv("POSTGRES_CONN_STR", getEnv("POSTGRES_URL", cfg.PostgresUrl))
	cfg.MongoURI = getEnv("MONGO_URI", cfg.MongoURI)
	cfg.MongoDatabase = getEnv("MONGO_DATABASE", cfg.MongoDatabase)
	cfg.MetricsPort = getEnv("METRICS_PORT", cfg.MetricsPort)
	if origins := getEnv("ALLOWED_ORIGINS", ""); origins != "" {
		cfg.AllowedOrigins = strings.Split(origins, ",")
	}
	if v := getEnv("SOCKET_RPS", ""); v != "" {
		rps, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, errors.Wrap(err, "invalid SOCKET_RPS")
		}
		cfg.SocketRPS = rps
	}
	if v := getEnv("SOCKET_BURST", ""); v != "" {
		burst, err := strconv.Atoi(v)
		if err != nil {
			return nil, errors.Wrap(err, "invalid SOCKET_BURST")
		}
		cfg.SocketBurst = burst
	}

	if cfg.AuthMode != AuthJWT && cfg.AuthMode != AuthFirebase {
		return nil, errors.Errorf("unknown AUTH_MODE %q", cfg.AuthMode)
	}
	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
