/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package leadership holds the hardware command lease. A unit can run a warm
// standby controller process; only the lease holder is allowed to command
// the mount and camera, so a crashed primary never races its replacement.
package leadership

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/friendsincode/muninn_obs/internal/telemetry"
)

const (
	defaultLeaseKey = "muninn:lease:controller"

	// holder must renew before this expires
	defaultLeaseDuration = 15 * time.Second

	// how often standbys attempt to take over
	defaultRetryInterval = 2 * time.Second
)

// LeaseConfig configures the command lease.
type LeaseConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// LeaseKey is the Redis key guarding hardware command access. Units
	// sharing a Redis instance must use distinct keys.
	LeaseKey string

	LeaseDuration time.Duration
	RetryInterval time.Duration

	// InstanceID uniquely identifies this controller process.
	InstanceID string
}

// DefaultLeaseConfig returns default command lease configuration.
func DefaultLeaseConfig() LeaseConfig {
	return LeaseConfig{
		RedisAddr:     "localhost:6379",
		LeaseKey:      defaultLeaseKey,
		LeaseDuration: defaultLeaseDuration,
		RetryInterval: defaultRetryInterval,
		InstanceID:    uuid.New().String(),
	}
}

// Lease manages the distributed hardware command lease over Redis.
type Lease struct {
	client     *redis.Client
	logger     zerolog.Logger
	config     LeaseConfig
	instanceID string

	held       bool
	cancelFunc context.CancelFunc
	stopCh     chan struct{}
	holderCh   chan bool
}

// NewLease creates a command lease manager and verifies the Redis
// connection.
func NewLease(config LeaseConfig, logger zerolog.Logger) (*Lease, error) {
	if config.LeaseKey == "" {
		config.LeaseKey = defaultLeaseKey
	}
	if config.LeaseDuration == 0 {
		config.LeaseDuration = defaultLeaseDuration
	}
	if config.RetryInterval == 0 {
		config.RetryInterval = defaultRetryInterval
	}
	if config.InstanceID == "" {
		config.InstanceID = uuid.New().String()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     config.RedisAddr,
		Password: config.RedisPassword,
		DB:       config.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info().
		Str("redis_addr", config.RedisAddr).
		Str("instance_id", config.InstanceID).
		Msg("connected to Redis for command lease")

	return &Lease{
		client:     client,
		logger:     logger.With().Str("component", "command_lease").Logger(),
		config:     config,
		instanceID: config.InstanceID,
		stopCh:     make(chan struct{}),
		holderCh:   make(chan bool, 1),
	}, nil
}

// Start begins acquiring and renewing the lease in the background.
func (l *Lease) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	l.cancelFunc = cancel

	l.logger.Info().
		Str("instance_id", l.instanceID).
		Dur("lease_duration", l.config.LeaseDuration).
		Msg("starting command lease loop")

	go l.renewLoop(ctx)
	return nil
}

// Stop releases the lease if held and closes the Redis connection.
func (l *Lease) Stop() error {
	l.logger.Info().Msg("stopping command lease loop")
	close(l.stopCh)
	if l.cancelFunc != nil {
		l.cancelFunc()
	}

	if l.held {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := l.release(ctx); err != nil {
			l.logger.Error().Err(err).Msg("failed to release command lease")
		}
	}
	return l.client.Close()
}

// Held reports whether this instance currently holds the lease.
func (l *Lease) Held() bool {
	return l.held
}

// HolderCh receives lease status changes.
func (l *Lease) HolderCh() <-chan bool {
	return l.holderCh
}

// CurrentHolder returns the instance ID holding the lease, empty if none.
func (l *Lease) CurrentHolder(ctx context.Context) (string, error) {
	holder, err := l.client.Get(ctx, l.config.LeaseKey).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get lease holder: %w", err)
	}
	return holder, nil
}

func (l *Lease) renewLoop(ctx context.Context) {
	ticker := time.NewTicker(l.config.RetryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-l.stopCh:
			return
		case <-ticker.C:
			l.attempt(ctx)
		}
	}
}

func (l *Lease) attempt(ctx context.Context) {
	acquired, err := l.acquire(ctx)
	if err != nil {
		l.logger.Error().Err(err).Msg("command lease attempt failed")
		l.updateStatus(false)
		return
	}

	if acquired && !l.held {
		l.logger.Info().Str("instance_id", l.instanceID).Msg("acquired command lease")
	}
	if !acquired && l.held {
		l.logger.Warn().Str("instance_id", l.instanceID).Msg("lost command lease")
	}
	l.updateStatus(acquired)
}

// acquire takes the lease if free, or renews it if already ours.
func (l *Lease) acquire(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.config.LeaseKey, l.instanceID, l.config.LeaseDuration).Result()
	if err != nil {
		return false, fmt.Errorf("set lease: %w", err)
	}
	if ok {
		return true, nil
	}

	holder, err := l.client.Get(ctx, l.config.LeaseKey).Result()
	if err == redis.Nil {
		// Lease expired between calls; next tick retries.
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get lease holder: %w", err)
	}

	if holder == l.instanceID {
		if err := l.client.Expire(ctx, l.config.LeaseKey, l.config.LeaseDuration).Err(); err != nil {
			return false, fmt.Errorf("renew lease: %w", err)
		}
		return true, nil
	}
	return false, nil
}

// release deletes the lease only if we still hold it.
func (l *Lease) release(ctx context.Context) error {
	script := `
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		else
			return 0
		end
	`
	if err := l.client.Eval(ctx, script, []string{l.config.LeaseKey}, l.instanceID).Err(); err != nil {
		return fmt.Errorf("release lease: %w", err)
	}
	l.logger.Info().Msg("released command lease")
	return nil
}

func (l *Lease) updateStatus(held bool) {
	if l.held == held {
		return
	}
	l.held = held

	if held {
		telemetry.CommandLeaseHeld.WithLabelValues(l.instanceID).Set(1)
		telemetry.CommandLeaseChanges.WithLabelValues(l.instanceID, "acquired").Inc()
	} else {
		telemetry.CommandLeaseHeld.WithLabelValues(l.instanceID).Set(0)
		telemetry.CommandLeaseChanges.WithLabelValues(l.instanceID, "lost").Inc()
	}

	select {
	case l.holderCh <- held:
	default:
	}
}
