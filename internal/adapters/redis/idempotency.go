package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dailyplatform-io/dailydrive-sub000/internal/idempotency"
	"github.com/redis/go-redis/v9"
)

// Idempotency stores finished responses under idemp:<key> and in-flight claims under
// idemp:lock:<key>.
type Idempotency struct {
	client *redis.Client
}

var _ idempotency.Backend = (*Idempotency)(nil)

func NewIdempotency(client *redis.Client) *Idempotency {
	return &Idempotency{client: client}
}

func (i *Idempotency) Get(ctx context.Context, key string) (*idempotency.Response, error) {
	val, err := i.client.Get(ctx, "idemp:"+key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var resp idempotency.Response
	err = json.Unmarshal(val, &resp)
	return &resp, err
}

func (i *Idempotency) Set(ctx context.Context, key string, resp idempotency.Response, ttl time.Duration) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	pipe := i.client.TxPipeline()
	pipe.Set(ctx, "idemp:"+key, data, ttl)
	pipe.Del(ctx, "idemp:lock:"+key)
	_, err = pipe.Exec(ctx)
	return err
}

func (i *Idempotency) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	res := i.client.SetNX(ctx, "idemp:lock:"+key, time.Now().UTC().Format(time.RFC3339Nano), ttl)
	return res.Val(), res.Err()
}

func (i *Idempotency) Release(ctx context.Context, key string) error {
	return i.client.Del(ctx, "idemp:lock:"+key).Err()
}
