package rowstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/rpattn/ucprov/internal/faults"
)

// RedisStore keeps each worksheet as a Redis hash: one field per row
// number, with the sheet TTL on the whole key. The default backend when
// the service runs with more than one instance.
type RedisStore struct {
	client *redis.Client
	cfg    Config
}

func NewRedisStore(client *redis.Client, cfg Config) *RedisStore {
	return &RedisStore{client: client, cfg: cfg}
}

func (s *RedisStore) SaveSheet(ctx context.Context, jobID uuid.UUID, dataType string, rows map[int]json.RawMessage) error {
	key := sheetKey(jobID, dataType)

	fields := make(map[string]any, len(rows))
	for rowNum, row := range rows {
		fields[strconv.Itoa(rowNum)] = string(row)
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	if len(fields) > 0 {
		pipe.HSet(ctx, key, fields)
	}
	pipe.Expire(ctx, key, s.cfg.TTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save sheet %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Sheet(ctx context.Context, jobID uuid.UUID, dataType string) (map[int]json.RawMessage, error) {
	key := sheetKey(jobID, dataType)

	fields, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("load sheet %s: %w", key, err)
	}

	rows := make(map[int]json.RawMessage, len(fields))
	for field, value := range fields {
		rowNum, err := strconv.Atoi(field)
		if err != nil {
			return nil, fmt.Errorf("sheet %s has non-numeric row field %q", key, field)
		}
		rows[rowNum] = json.RawMessage(value)
	}
	return rows, nil
}

func (s *RedisStore) Row(ctx context.Context, jobID uuid.UUID, dataType string, rowNum int) (json.RawMessage, error) {
	key := sheetKey(jobID, dataType)

	value, err := s.client.HGet(ctx, key, strconv.Itoa(rowNum)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, faults.ErrRowNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load row %s/%d: %w", key, rowNum, err)
	}
	return json.RawMessage(value), nil
}

func (s *RedisStore) Delete(ctx context.Context, jobID uuid.UUID, dataType string) error {
	if err := s.client.Del(ctx, sheetKey(jobID, dataType)).Err(); err != nil {
		return fmt.Errorf("delete sheet: %w", err)
	}
	return nil
}
