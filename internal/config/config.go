package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const dateLayout = "2006-01-02"

// Config конфигурация приложения
type Config struct {
	ServerPort         string
	CollectInterval    time.Duration
	StartDate          time.Time
	RandomSeed         uint64
	ScalerPath         string
	ModelPath          string
	AWSRegion          string
	RedisAddr          string
	RedisPassword      string
	RedisDB            int
	ReadingsRetention  time.Duration
	CORSAllowedOrigins []string
	LogLevel           string
	LogDevelopment     bool
}

// Load загружает .env (если есть) и читает конфигурацию из environment.
// Некорректные значения переменных возвращаются ошибкой, а не заменяются default.
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		// Отсутствующий файл не ошибка, переменные окружения имеют приоритет
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	env := &envParser{}
	cfg := Config{
		ServerPort:         getEnv("SERVER_PORT", "8000"),
		CollectInterval:    env.getEnvAsDuration("COLLECT_INTERVAL", 10*time.Second),
		StartDate:          env.getEnvAsDate("START_DATE", "2024-10-09"),
		RandomSeed:         env.getEnvAsUint64("RANDOM_SEED", 0),
		ScalerPath:         getEnv("SCALER_PATH", "scaler.json"),
		ModelPath:          getEnv("MODEL_PATH", "model.json"),
		AWSRegion:          getEnv("AWS_REGION", "eu-west-1"),
		RedisAddr:          getEnv("REDIS_ADDR", ""),
		RedisPassword:      getEnv("REDIS_PASSWORD", ""),
		RedisDB:            env.getEnvAsInt("REDIS_DB", 0),
		ReadingsRetention:  time.Duration(env.getEnvAsInt("READINGS_RETENTION_HOURS", 24)) * time.Hour,
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		LogDevelopment:     env.getEnvAsBool("LOG_DEVELOPMENT", false),
	}
	if err := env.err(); err != nil {
		return Config{}, err
	}

	return cfg, cfg.Validate()
}

// Validate проверяет конфигурацию
func (c Config) Validate() error {
	if c.CollectInterval <= 0 {
		return fmt.Errorf("collect interval must be positive, got %s", c.CollectInterval)
	}
	if c.ScalerPath == "" || c.ModelPath == "" {
		return errors.New("scaler and model paths are required")
	}
	if c.ServerPort == "" {
		return errors.New("server port is required")
	}
	if c.RedisAddr != "" && c.ReadingsRetention <= 0 {
		return fmt.Errorf("readings retention must be positive, got %s", c.ReadingsRetention)
	}
	return nil
}

// RedisEnabled включено ли зеркалирование в Redis
func (c Config) RedisEnabled() bool {
	return c.RedisAddr != ""
}

// getEnv получает environment variable или возвращает default
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// envParser разбирает типизированные переменные и накапливает ошибки разбора
type envParser struct {
	errs []error
}

func (p *envParser) fail(key, value string, err error) {
	p.errs = append(p.errs, fmt.Errorf("invalid %s %q: %w", key, value, err))
}

func (p *envParser) err() error {
	return errors.Join(p.errs...)
}

// getEnvAsInt получает environment variable как int
func (p *envParser) getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		p.fail(key, valueStr, err)
		return defaultValue
	}
	return value
}

func (p *envParser) getEnvAsUint64(key string, defaultValue uint64) uint64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseUint(valueStr, 10, 64)
	if err != nil {
		p.fail(key, valueStr, err)
		return defaultValue
	}
	return value
}

func (p *envParser) getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		p.fail(key, valueStr, err)
		return defaultValue
	}
	return value
}

// getEnvAsDuration принимает "20s" или просто число секунд
func (p *envParser) getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	if secs, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(secs) * time.Second
	}
	d, err := time.ParseDuration(valueStr)
	if err != nil {
		p.fail(key, valueStr, err)
		return defaultValue
	}
	return d
}

// getEnvAsDate дата в формате 2006-01-02, полночь UTC
func (p *envParser) getEnvAsDate(key, defaultValue string) time.Time {
	valueStr := getEnv(key, defaultValue)
	date, err := time.Parse(dateLayout, valueStr)
	if err != nil {
		p.fail(key, valueStr, err)
		return time.Time{}
	}
	return date
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	var values []string
	for _, v := range strings.Split(valueStr, ",") {
		if v = strings.TrimSpace(v); v != "" {
			values = append(values, v)
		}
	}
	if len(values) == 0 {
		return defaultValue
	}
	return values
}
