package redis

import (
	"fmt"

	"github.com/redis/rueidis/rueidislock"
)

// NewLocker returns a distributed lock on the deployment described by config.
// Replicas sharing a Redis session backend use it to serialize updates to the
// same session. Locks are kept alive in the background until released.
func NewLocker(config Config) (rueidislock.Locker, error) {
	option, err := config.clientOption()
	if err != nil {
		return nil, err
	}

	locker, err := rueidislock.NewLocker(rueidislock.LockerOption{
		ClientOption: option,
		KeyPrefix:    config.KeyPrefix + "lock",
		KeyMajority:  1,
	})
	if err != nil {
		return nil, fmt.Errorf("redis: failed to create locker: %w", err)
	}
	return locker, nil
}
