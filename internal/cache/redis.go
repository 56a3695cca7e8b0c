package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"water-anomaly-monitor/internal/models"
)

const (
	readingKeyPrefix = "reading:"
	readingsListKey  = "readings"
	anomalyListKey   = "anomaly_list"
	scanBatch        = 100
)

// RedisCache зеркало журнала показаний в Redis
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache создает новый Redis кэш и проверяет подключение
func NewRedisCache(ctx context.Context, addr, password string, db int, ttl time.Duration) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		PoolSize:     10,
		MinIdleConns: 2,
		MaxRetries:   3,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisCache{
		client: client,
		ttl:    ttl,
	}, nil
}

func readingKey(dayIndex int) string {
	return fmt.Sprintf("%s%d", readingKeyPrefix, dayIndex)
}

// StoreReading сохраняет показание и, если это аномалия, добавляет его в sorted set
func (r *RedisCache) StoreReading(ctx context.Context, dayIndex int, reading models.Reading) error {
	jsonData, err := json.Marshal(reading)
	if err != nil {
		return fmt.Errorf("failed to marshal reading: %w", err)
	}

	key := readingKey(dayIndex)

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, key, jsonData, r.ttl)
	pipe.RPush(ctx, readingsListKey, key)
	pipe.Expire(ctx, readingsListKey, r.ttl)
	if reading.Anomaly == models.AnomalyYes {
		pipe.ZAdd(ctx, anomalyListKey, redis.Z{Score: float64(dayIndex), Member: key})
		pipe.Expire(ctx, anomalyListKey, r.ttl)
	}

	_, err = pipe.Exec(ctx)
	return err
}

// GetRecentAnomalies получает ключи последних аномалий
func (r *RedisCache) GetRecentAnomalies(ctx context.Context, limit int) ([]string, error) {
	results, err := r.client.ZRevRange(ctx, anomalyListKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get anomalies: %w", err)
	}
	return results, nil
}

// Clear удаляет все зеркалированные показания
func (r *RedisCache) Clear(ctx context.Context) error {
	keys := []string{readingsListKey, anomalyListKey}

	iter := r.client.Scan(ctx, 0, readingKeyPrefix+"*", scanBatch).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan readings: %w", err)
	}

	return r.client.Del(ctx, keys...).Err()
}

// Close закрывает соединение с Redis
func (r *RedisCache) Close() error {
	return r.client.Close()
}

// Ping проверяет доступность Redis
func (r *RedisCache) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// GetStats возвращает статистику пула соединений
func (r *RedisCache) GetStats() map[string]interface{} {
	stats := r.client.PoolStats()

	return map[string]interface{}{
		"hits":        stats.Hits,
		"misses":      stats.Misses,
		"timeouts":    stats.Timeouts,
		"total_conns": stats.TotalConns,
		"idle_conns":  stats.IdleConns,
		"stale_conns": stats.StaleConns,
	}
}
