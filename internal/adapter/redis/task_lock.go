package redis

import (
	"context"
	"time"

	dom "github.com/bookingcontrol/booker-slot-svc/internal/domain/slot"
	"github.com/bookingcontrol/booker-slot-svc/internal/infrastructure/redis"
)

// TaskLock backs dom.TaskLock with SetNX. The maxHold TTL auto-releases
// a lock whose owner hung. Release does not delete the key: it swaps in
// a cooldown value expiring after minInterval, so replicas racing right
// after a run finishes cannot re-acquire until the floor passes.
type TaskLock struct {
	client      *redis.Client
	minInterval time.Duration
}

func NewTaskLock(client *redis.Client, minInterval time.Duration) dom.TaskLock {
	return &TaskLock{client: client, minInterval: minInterval}
}

func (l *TaskLock) TryAcquire(ctx context.Context, name string, maxHold time.Duration) (bool, error) {
	return l.client.SetNX(ctx, lockKey(name), "held", maxHold).Result()
}

func (l *TaskLock) Release(ctx context.Context, name string) error {
	if l.minInterval > 0 {
		return l.client.Set(ctx, lockKey(name), "cooldown", l.minInterval).Err()
	}
	return l.client.Del(ctx, lockKey(name)).Err()
}

func lockKey(name string) string {
	return "tasklock:" + name
}
