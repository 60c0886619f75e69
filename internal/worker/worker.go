// Package worker carries requests to re-plan an owner's announcements from
// the processes that change schedules to the long-running worker.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	refreshStream = "mustard_refresh"
	refreshGroup  = "mustard_planner_group"
)

// RefreshRequest asks the worker to re-plan the announcement of one owner.
type RefreshRequest struct {
	OwnerID     int64
	RequestedAt time.Time

	// ack removes the request from the queue once it has been handled.
	ack func(ctx context.Context) error
}

// Ack marks the request as handled. Unacknowledged requests are delivered
// again after a restart.
func (r RefreshRequest) Ack(ctx context.Context) error {
	if r.ack == nil {
		return nil
	}
	return r.ack(ctx)
}

type RefreshPublisher interface {
	PublishRefresh(ctx context.Context, ownerID int64) error
}

type RefreshReceiver interface {
	// ReceiveRefreshes blocks until at least one request is available or
	// ctx is done.
	ReceiveRefreshes(ctx context.Context) ([]RefreshRequest, error)
}

type RedisRefreshPublisher struct {
	client *redis.Client
}

func NewRedisRefreshPublisher(client *redis.Client) *RedisRefreshPublisher {
	return &RedisRefreshPublisher{client: client}
}

var _ RefreshPublisher = (*RedisRefreshPublisher)(nil)

func (p *RedisRefreshPublisher) PublishRefresh(ctx context.Context, ownerID int64) error {
	err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: refreshStream,
		Values: map[string]any{
			"ownerID":     strconv.FormatInt(ownerID, 10),
			"requestedAt": time.Now().UTC().Format(time.RFC3339),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to publish refresh for owner %d: %w", ownerID, err)
	}
	return nil
}

type RedisRefreshReceiver struct {
	client   *redis.Client
	consumer string
	block    time.Duration
}

// NewRedisRefreshReceiver joins the planner consumer group as consumer,
// creating the group and stream if needed.
func NewRedisRefreshReceiver(ctx context.Context, client *redis.Client, consumer string) (*RedisRefreshReceiver, error) {
	err := client.XGroupCreateMkStream(ctx, refreshStream, refreshGroup, "$").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}
	return &RedisRefreshReceiver{
		client:   client,
		consumer: consumer,
		block:    5 * time.Second,
	}, nil
}

var _ RefreshReceiver = (*RedisRefreshReceiver)(nil)

func (r *RedisRefreshReceiver) ReceiveRefreshes(ctx context.Context) ([]RefreshRequest, error) {
	for {
		streams, err := r.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    refreshGroup,
			Consumer: r.consumer,
			Streams:  []string{refreshStream, ">"},
			Count:    32,
			Block:    r.block,
		}).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read refresh requests: %w", err)
		}

		var requests []RefreshRequest
		for _, stream := range streams {
			for _, msg := range stream.Messages {
				req, err := r.parse(msg)
				if err != nil {
					slog.WarnContext(ctx, "dropping malformed refresh request", "messageID", msg.ID, "error", err)
					if err := r.client.XAck(ctx, refreshStream, refreshGroup, msg.ID).Err(); err != nil {
						return nil, fmt.Errorf("failed to ack message %s: %w", msg.ID, err)
					}
					continue
				}
				requests = append(requests, req)
			}
		}
		if len(requests) > 0 {
			return requests, nil
		}
	}
}

func (r *RedisRefreshReceiver) parse(msg redis.XMessage) (RefreshRequest, error) {
	rawOwner, _ := msg.Values["ownerID"].(string)
	ownerID, err := strconv.ParseInt(rawOwner, 10, 64)
	if err != nil {
		return RefreshRequest{}, fmt.Errorf("invalid ownerID %q: %w", rawOwner, err)
	}

	rawAt, _ := msg.Values["requestedAt"].(string)
	at, err := time.Parse(time.RFC3339, rawAt)
	if err != nil {
		return RefreshRequest{}, fmt.Errorf("invalid requestedAt %q: %w", rawAt, err)
	}

	id := msg.ID
	return RefreshRequest{
		OwnerID:     ownerID,
		RequestedAt: at,
		ack: func(ctx context.Context) error {
			return r.client.XAck(ctx, refreshStream, refreshGroup, id).Err()
		},
	}, nil
}

// MemoryRefreshQueue connects a publisher and a receiver in one process.
type MemoryRefreshQueue struct {
	ch chan RefreshRequest
}

func NewMemoryRefreshQueue(size int) *MemoryRefreshQueue {
	return &MemoryRefreshQueue{ch: make(chan RefreshRequest, size)}
}

var (
	_ RefreshPublisher = (*MemoryRefreshQueue)(nil)
	_ RefreshReceiver  = (*MemoryRefreshQueue)(nil)
)

func (q *MemoryRefreshQueue) PublishRefresh(ctx context.Context, ownerID int64) error {
	select {
	case q.ch <- RefreshRequest{OwnerID: ownerID, RequestedAt: time.Now()}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *MemoryRefreshQueue) ReceiveRefreshes(ctx context.Context) ([]RefreshRequest, error) {
	select {
	case req := <-q.ch:
		requests := []RefreshRequest{req}
		for {
			select {
			case more := <-q.ch:
				requests = append(requests, more)
			default:
				return requests, nil
			}
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
