package rssnet

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-redis/redis/v8"
	log "github.com/sirupsen/logrus"

	"github.com/ShahRicha07/RemoteShuffleService/internal/pkg/rssblock"
)

// RedisClient appends partition blocks to Redis keys, one key per
// partition plus a manifest key set on finish. Connection settings come
// from the address, overridable through REDIS_ADDRS, REDIS_DB, REDIS_USER
// and REDIS_SECRET.
type RedisClient struct {
	client redis.UniversalClient

	task          TaskAttempt
	numMaps       int
	numPartitions int
	started       bool
	bytesWritten  int64
}

func NewRedisClient(addr string) (*RedisClient, error) {
	addrs := []string{strings.TrimPrefix(addr, "redis://")}
	if env := os.Getenv("REDIS_ADDRS"); env != "" {
		addrs = strings.Split(env, ",")
	}

	db := 0
	if env := os.Getenv("REDIS_DB"); env != "" {
		parsed, err := strconv.Atoi(env)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_DB %q: %w", env, err)
		}
		db = parsed
	}

	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    addrs,
		DB:       db,
		Username: os.Getenv("REDIS_USER"),
		Password: os.Getenv("REDIS_SECRET"),
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis %v: %w", addrs, err)
	}
	log.Debugf("connected to redis %v", addrs)

	return &RedisClient{client: client}, nil
}

func (c *RedisClient) attemptKey(suffix string) string {
	return fmt.Sprintf("rss:%s:shuffle_%d:map_%d_%d:%s",
		c.task.AppID, c.task.ShuffleID, c.task.MapID, c.task.AttemptID, suffix)
}

func (c *RedisClient) partitionKey(partition int) string {
	return c.attemptKey(fmt.Sprintf("p%d", partition))
}

// StartUpload drops whatever an earlier attempt with the same identity
// left behind.
func (c *RedisClient) StartUpload(task TaskAttempt, numMaps, numPartitions int) error {
	c.task = task
	c.numMaps = numMaps
	c.numPartitions = numPartitions

	ctx := context.Background()
	keys := make([]string, 0, numPartitions+1)
	for partition := 0; partition < numPartitions; partition++ {
		keys = append(keys, c.partitionKey(partition))
	}
	keys = append(keys, c.attemptKey("manifest"))
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("clear stale upload keys for %s: %w", task, err)
	}
	c.started = true
	return nil
}

func (c *RedisClient) WriteDataBlock(partition int, block *rssblock.Block) error {
	if !c.started {
		return fmt.Errorf("upload for %s not started", c.task)
	}
	err := c.client.Append(context.Background(), c.partitionKey(partition), string(block.Marshal())).Err()
	if err != nil {
		return fmt.Errorf("append block to %s: %w", c.partitionKey(partition), err)
	}
	c.bytesWritten += int64(block.WireSize())
	return nil
}

func (c *RedisClient) FinishUpload() error {
	if !c.started {
		return fmt.Errorf("upload for %s not started", c.task)
	}
	manifest := struct {
		Task          TaskAttempt `json:"task"`
		NumMaps       int         `json:"numMaps"`
		NumPartitions int         `json:"numPartitions"`
		Bytes         int64       `json:"bytes"`
	}{c.task, c.numMaps, c.numPartitions, c.bytesWritten}

	raw, err := json.Marshal(manifest)
	if err != nil {
		return err
	}
	if err := c.client.Set(context.Background(), c.attemptKey("manifest"), raw, 0).Err(); err != nil {
		return fmt.Errorf("write manifest for %s: %w", c.task, err)
	}
	return nil
}

func (c *RedisClient) ShuffleWriteBytes() int64 {
	return c.bytesWritten
}

func (c *RedisClient) Close() error {
	return c.client.Close()
}
