// Package redis wraps go-redis for the task queues.
package redis

import (
	"context"

	"github.com/Laisky/errors/v2"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
)

// DB is a wrapper for go-redis
type DB struct {
	cli   *redis.Client
	clock clockwork.Clock
}

// Option configures a DB.
type Option func(*DB)

// WithClock sets the clock used to stamp tasks.
func WithClock(clock clockwork.Clock) Option {
	return func(db *DB) {
		db.clock = clock
	}
}

// NewDB creates a new DB instance
func NewDB(opt *redis.Options, opts ...Option) *DB {
	db := &DB{
		cli:   redis.NewClient(opt),
		clock: clockwork.NewRealClock(),
	}
	for _, o := range opts {
		o(db)
	}

	return db
}

// Ping checks the server is reachable.
func (db *DB) Ping(ctx context.Context) error {
	if err := db.cli.Ping(ctx).Err(); err != nil {
		return errors.Wrap(err, "ping redis")
	}

	return nil
}

// Close closes the underlying client.
func (db *DB) Close() error {
	return db.cli.Close()
}
