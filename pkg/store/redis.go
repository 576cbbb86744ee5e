package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/feldberlin/timething-web/pkg/models"
)

const redisIndexKey = "timething:transcriptions:index"

// RedisStore Redis 元数据存储
// 记录以 JSON 存储，id 进入 Sorted Set 索引用于 List
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	ctx    context.Context
}

// NewRedisStore 创建 Redis 存储
func NewRedisStore(addr, password string, db int, ttl time.Duration) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("连接 Redis 失败: %w", err)
	}

	return &RedisStore{
		client: client,
		ttl:    ttl,
		ctx:    ctx,
	}, nil
}

// getKey 生成 Redis key，格式: "timething:transcription:{id}"
func (rs *RedisStore) getKey(id string) string {
	return fmt.Sprintf("timething:transcription:%s", id)
}

// Create 保存记录到 Redis
func (rs *RedisStore) Create(t *models.Transcription) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("序列化记录失败: %w", err)
	}

	key := rs.getKey(t.ID)
	if err := rs.client.Set(rs.ctx, key, data, rs.ttl).Err(); err != nil {
		return fmt.Errorf("保存到 Redis 失败: %w", err)
	}

	// 加入索引集合，score 为首次写入时间戳
	err = rs.client.ZAddNX(rs.ctx, redisIndexKey, redis.Z{
		Score:  float64(time.Now().Unix()),
		Member: t.ID,
	}).Err()
	if err != nil {
		return fmt.Errorf("添加到索引失败: %w", err)
	}

	return nil
}

// Get 从 Redis 获取记录
func (rs *RedisStore) Get(id string) (*models.Transcription, error) {
	data, err := rs.client.Get(rs.ctx, rs.getKey(id)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("从 Redis 获取失败: %w", err)
	}

	var t models.Transcription
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("反序列化记录失败: %w", err)
	}

	return &t, nil
}

// Update 更新记录
func (rs *RedisStore) Update(id string, updateFn func(*models.Transcription)) error {
	t, err := rs.Get(id)
	if err != nil {
		return err
	}

	updateFn(t)
	return rs.Create(t)
}

// List 按创建时间倒序列出所有记录
func (rs *RedisStore) List() ([]*models.Transcription, error) {
	ids, err := rs.client.ZRevRange(rs.ctx, redisIndexKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("获取索引失败: %w", err)
	}

	out := make([]*models.Transcription, 0, len(ids))
	for _, id := range ids {
		t, err := rs.Get(id)
		if err == ErrNotFound {
			// 记录已过期但索引还在，跳过
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}

	return out, nil
}

// Delete 删除记录
func (rs *RedisStore) Delete(id string) error {
	n, err := rs.client.Del(rs.ctx, rs.getKey(id)).Result()
	if err != nil {
		return fmt.Errorf("从 Redis 删除失败: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}

	if err := rs.client.ZRem(rs.ctx, redisIndexKey, id).Err(); err != nil {
		return fmt.Errorf("从索引删除失败: %w", err)
	}
	return nil
}

// Close 关闭 Redis 连接
func (rs *RedisStore) Close() error {
	return rs.client.Close()
}
