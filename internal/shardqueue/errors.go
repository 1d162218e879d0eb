package shardqueue

import (
	"errors"
	"fmt"
)

var (
	// ErrQueueFull matches a *QueueFullError. It is transient; the caller
	// may submit again later.
	ErrQueueFull = errors.New("shard queue full")

	// ErrExecutorClosed is returned by Submit after Stop.
	ErrExecutorClosed = errors.New("shard executor closed")
)

// QueueFullError describes the shard that refused a job.
type QueueFullError struct {
	Shard    int
	Length   int
	Capacity int
}

func (e *QueueFullError) Error() string {
	return fmt.Sprintf("shard %d queue full (%d/%d)", e.Shard, e.Length, e.Capacity)
}

// Is makes errors.Is(err, ErrQueueFull) hold.
func (e *QueueFullError) Is(target error) bool { return target == ErrQueueFull }
