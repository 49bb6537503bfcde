package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port                   string
	AppEnv                 string
	LogLevel               string
	AllowedOrigin          string
	DatabaseURL            string
	DataFile               string
	RedisAddr              string
	RedisPassword          string
	RedisDB                int
	ProductCacheTTLSeconds int
	AuthSecret             string
	AccessPassword         string
	AccessTokenTTLMinutes  int
	StaticDir              string
}

// Load reads the environment, falling back to a .env file in the working
// directory. Environment variables win over the file.
func Load() Config {
	v := viper.New()
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	_ = v.ReadInConfig()
	v.AutomaticEnv()

	cfg := Config{
		Port:                   getEnv(v, "PORT", "8080"),
		AppEnv:                 getEnv(v, "APP_ENV", "development"),
		LogLevel:               getEnv(v, "LOG_LEVEL", "info"),
		AllowedOrigin:          getEnv(v, "ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:            getEnv(v, "DATABASE_URL", ""),
		DataFile:               getEnv(v, "DATA_FILE", ""),
		RedisAddr:              getEnv(v, "REDIS_ADDR", ""),
		RedisPassword:          getEnv(v, "REDIS_PASSWORD", ""),
		RedisDB:                getInt(v, "REDIS_DB", 0, 0),
		ProductCacheTTLSeconds: getInt(v, "PRODUCT_CACHE_TTL_SECONDS", 30, 1),
		AuthSecret:             strings.TrimSpace(getEnv(v, "AUTH_SECRET", "")),
		AccessPassword:         strings.TrimSpace(getEnv(v, "ACCESS_PASSWORD", "")),
		AccessTokenTTLMinutes:  getInt(v, "ACCESS_TOKEN_TTL_MINUTES", 480, 1),
		StaticDir:              getEnv(v, "STATIC_DIR", ""),
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) ProductCacheTTL() time.Duration {
	return time.Duration(c.ProductCacheTTLSeconds) * time.Second
}

func (c Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenTTLMinutes) * time.Minute
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(c.AppEnv, "production")
}

func getEnv(v *viper.Viper, key string, fallback string) string {
	val := strings.TrimSpace(v.GetString(key))
	if val == "" {
		return fallback
	}
	return val
}

// getInt returns fallback when key is unset, malformed or below min.
func getInt(v *viper.Viper, key string, fallback int, min int) int {
	raw := getEnv(v, key, "")
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < min {
		return fallback
	}
	return n
}
