package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

type RedisStatus struct {
	client *redis.Client
	keyNS  string
	ttl    time.Duration
}

// NewRedisStatus connects and pings. ttl <= 0 keeps keys forever.
func NewRedisStatus(redisURL string, ttl time.Duration) (*RedisStatus, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	c := redis.NewClient(opt)
	if err := c.Ping(context.Background()).Err(); err != nil {
		return nil, err
	}
	return &RedisStatus{client: c, keyNS: "session", ttl: ttl}, nil
}

func (s *RedisStatus) key(id string) string { return fmt.Sprintf("%s:%s:status", s.keyNS, id) }

func (s *RedisStatus) Set(ctx context.Context, id string, st Status) error {
	if st.Updated.IsZero() {
		st.Updated = time.Now()
	}
	m := map[string]interface{}{
		"status":      st.Status,
		"generation":  st.Generation,
		"fingerprint": st.Fingerprint,
		"pages":       st.Pages,
		"rendered":    st.Rendered,
		"upgraded":    st.Upgraded,
		"failed":      st.Failed,
		"tier":        st.Tier,
		"phase":       st.Phase,
		"message":     st.Message,
		"updated":     st.Updated.Format(time.RFC3339Nano),
	}
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, s.key(id), m)
	if s.ttl > 0 {
		pipe.Expire(ctx, s.key(id), s.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisStatus) Get(ctx context.Context, id string) (Status, bool, error) {
	res, err := s.client.HGetAll(ctx, s.key(id)).Result()
	if err != nil {
		return Status{}, false, err
	}
	if len(res) == 0 {
		return Status{}, false, nil
	}
	st := Status{
		Status:      res["status"],
		Fingerprint: res["fingerprint"],
		Tier:        res["tier"],
		Phase:       res["phase"],
		Message:     res["message"],
	}
	// ignore parse errors; default 0
	st.Generation, _ = strconv.ParseUint(res["generation"], 10, 64)
	st.Pages, _ = strconv.Atoi(res["pages"])
	st.Rendered, _ = strconv.Atoi(res["rendered"])
	st.Upgraded, _ = strconv.Atoi(res["upgraded"])
	st.Failed, _ = strconv.Atoi(res["failed"])
	if v := res["updated"]; v != "" {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			st.Updated = t
		}
	}
	return st, true, nil
}

func (s *RedisStatus) Delete(ctx context.Context, id string) error {
	return s.client.Del(ctx, s.key(id)).Err()
}

func (s *RedisStatus) Ping(ctx context.Context) error { return s.client.Ping(ctx).Err() }

func (s *RedisStatus) Close() error { return s.client.Close() }
