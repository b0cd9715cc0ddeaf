package redislock

import (
	"context"
	"fmt"
	"time"

	"patient-access/internal/domain/accessgrants"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript borra la clave solo si el token sigue siendo el nuestro.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Lock implementa accessgrants.RequestLock sobre SET NX PX; sirve entre instancias.
type Lock struct {
	client redis.UniversalClient
	prefix string
}

var _ accessgrants.RequestLock = (*Lock)(nil)

func New(client redis.UniversalClient, prefix string) *Lock {
	if prefix == "" {
		prefix = "patient-access:lock:"
	}
	return &Lock{client: client, prefix: prefix}
}

// NewClient arma el cliente y hace ping.
func NewClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	c := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return c, nil
}

func (l *Lock) TryAcquire(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	k := l.prefix + key
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, k, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("redis setnx: %w", err)
	}
	if !ok {
		return nil, false, nil
	}

	release := func() {
		// El release no debe depender del request que ya terminó.
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		_ = releaseScript.Run(rctx, l.client, []string{k}, token).Err()
	}
	return release, true, nil
}
