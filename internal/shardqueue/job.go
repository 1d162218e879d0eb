package shardqueue

import "context"

// Job is the unit of work a ShardExecutor runs.
type Job interface {
	Run(ctx context.Context) error
}

// JobFunc lets a plain function be submitted as a Job.
type JobFunc func(ctx context.Context) error

// Run calls f.
func (f JobFunc) Run(ctx context.Context) error { return f(ctx) }
