/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package leadership elects a single sweep owner across paddock
// instances using a Redis lease. Followers keep serving API traffic;
// only the leader runs the completion sweep.
package leadership

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	leaderKey     = "paddock:leader:sweeper"
	leaseTTL      = 15 * time.Second
	renewInterval = 5 * time.Second
)

// Election maintains a Redis-backed leadership lease.
type Election struct {
	client *redis.Client
	logger zerolog.Logger
	nodeID string

	mu     sync.RWMutex
	leader bool

	cancel context.CancelFunc
	done   chan struct{}
}

// NewElection builds an election participant. nodeID may be empty, in
// which case a hostname-derived identity is generated.
func NewElection(client *redis.Client, nodeID string, logger zerolog.Logger) *Election {
	if nodeID == "" {
		host, _ := os.Hostname()
		nodeID = host + "-" + uuid.NewString()[:8]
	}
	return &Election{
		client: client,
		logger: logger.With().Str("component", "leadership").Str("node_id", nodeID).Logger(),
		nodeID: nodeID,
		done:   make(chan struct{}),
	}
}

// Start begins competing for the lease until Stop or context cancel.
func (e *Election) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)

	go func() {
		defer close(e.done)
		ticker := time.NewTicker(renewInterval)
		defer ticker.Stop()

		e.tick(ctx)
		for {
			select {
			case <-ctx.Done():
				e.resign()
				return
			case <-ticker.C:
				e.tick(ctx)
			}
		}
	}()
}

// IsLeader reports whether this node currently holds the lease.
func (e *Election) IsLeader() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.leader
}

// NodeID returns the identity used for the lease.
func (e *Election) NodeID() string { return e.nodeID }

// Stop resigns leadership and halts the renewal loop.
func (e *Election) Stop() {
	if e.cancel != nil {
		e.cancel()
		<-e.done
	}
}

func (e *Election) tick(ctx context.Context) {
	held := e.IsLeader()

	if held {
		// Renew only if we still own the key.
		owner, err := e.client.Get(ctx, leaderKey).Result()
		if err == nil && owner == e.nodeID {
			if err := e.client.Expire(ctx, leaderKey, leaseTTL).Err(); err == nil {
				return
			}
		}
		e.setLeader(false)
		e.logger.Warn().Msg("leadership lease lost")
		return
	}

	ok, err := e.client.SetNX(ctx, leaderKey, e.nodeID, leaseTTL).Result()
	if err != nil {
		e.logger.Debug().Err(err).Msg("lease acquisition failed")
		return
	}
	if ok {
		e.setLeader(true)
		e.logger.Info().Msg("acquired sweep leadership")
	}
}

func (e *Election) resign() {
	if !e.IsLeader() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	owner, err := e.client.Get(ctx, leaderKey).Result()
	if err == nil && owner == e.nodeID {
		e.client.Del(ctx, leaderKey)
	}
	e.setLeader(false)
	e.logger.Info().Msg("resigned sweep leadership")
}

func (e *Election) setLeader(v bool) {
	e.mu.Lock()
	e.leader = v
	e.mu.Unlock()
}
