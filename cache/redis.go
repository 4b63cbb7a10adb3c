package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"

	"predictive-maintenance/models"
)

const (
	latestPrefix   = "reading:latest:"
	analysisPrefix = "analysis:"
)

type RedisClient struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisClient(ctx context.Context, addr string, ttl time.Duration) (*RedisClient, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		PoolSize:     50,
		MinIdleConns: 10,
		MaxRetries:   3,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, err
	}

	return &RedisClient{client: rdb, ttl: ttl}, nil
}

func (rc *RedisClient) Close() error {
	return rc.client.Close()
}

// SaveLatest replaces the most recent simulated reading for a machine.
func (rc *RedisClient) SaveLatest(ctx context.Context, machineID string, reading models.SensorReading) error {
	return rc.setJSON(ctx, latestPrefix+machineID, reading)
}

// GetLatest returns nil, nil when no reading is cached.
func (rc *RedisClient) GetLatest(ctx context.Context, machineID string) (*models.SensorReading, error) {
	var reading models.SensorReading
	ok, err := rc.getJSON(ctx, latestPrefix+machineID, &reading)
	if !ok || err != nil {
		return nil, err
	}
	return &reading, nil
}

func (rc *RedisClient) SaveAnalysis(ctx context.Context, machineID string, result models.MachineAnalysis) error {
	return rc.setJSON(ctx, analysisPrefix+machineID, result)
}

// GetAnalysis returns nil, nil when the machine has no analysis.
func (rc *RedisClient) GetAnalysis(ctx context.Context, machineID string) (*models.MachineAnalysis, error) {
	var result models.MachineAnalysis
	ok, err := rc.getJSON(ctx, analysisPrefix+machineID, &result)
	if !ok || err != nil {
		return nil, err
	}
	return &result, nil
}

func (rc *RedisClient) setJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return rc.client.Set(ctx, key, data, rc.ttl).Err()
}

func (rc *RedisClient) getJSON(ctx context.Context, key string, v any) (bool, error) {
	val, err := rc.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(val, v); err != nil {
		return false, err
	}
	return true, nil
}
