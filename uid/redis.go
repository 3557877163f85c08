package uid

import (
	"context"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisOptions struct {
	Addr     string        `cfg:"addr" def:"localhost:6379"`
	Password string        `cfg:"password"`
	DB       int           `cfg:"db"`
	KeyName  string        `cfg:"keyName" def:"featurex:uid"`
	Timeout  time.Duration `cfg:"timeout" def:"3s"`
}

// RedisGenerator 高位为毫秒时间戳，低 12 位为 Redis 中按毫秒 INCR 得到的序列号
// 多个进程共享同一个 Redis 时生成的 ID 不会重复
type RedisGenerator struct {
	client   *redis.Client
	keyName  string
	timeout  time.Duration
	fallback int64
}

func NewRedisGeneratorWithOptions(options *RedisOptions) *RedisGenerator {
	if options == nil {
		options = &RedisOptions{}
	}
	if options.Addr == "" {
		options.Addr = "localhost:6379"
	}
	if options.KeyName == "" {
		options.KeyName = "featurex:uid"
	}
	if options.Timeout == 0 {
		options.Timeout = 3 * time.Second
	}

	return &RedisGenerator{
		client: redis.NewClient(&redis.Options{
			Addr:     options.Addr,
			Password: options.Password,
			DB:       options.DB,
		}),
		keyName: options.KeyName,
		timeout: options.Timeout,
	}
}

func (g *RedisGenerator) Generate() string {
	return strconv.FormatInt(g.Next(), 10)
}

func (g *RedisGenerator) Next() int64 {
	ctx, cancel := context.WithTimeout(context.Background(), g.timeout)
	defer cancel()

	for {
		timestamp := time.Now().UnixMilli()
		key := g.keyName + ":" + strconv.FormatInt(timestamp, 10)

		sequence, err := g.client.Incr(ctx, key).Result()
		if err != nil {
			// Redis 不可用时退化为本地计数
			return timestamp<<sequenceBits | atomic.AddInt64(&g.fallback, 1)&maxSequence
		}
		if sequence == 1 {
			g.client.Expire(ctx, key, 2*time.Second)
		}
		if sequence <= maxSequence+1 {
			return timestamp<<sequenceBits | (sequence-1)&maxSequence
		}
		// 当前毫秒序列号耗尽
		time.Sleep(time.Millisecond)
	}
}

func (g *RedisGenerator) Close() error {
	return g.client.Close()
}
