package pilelink

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/seu-repo/echarge/internal/domain"
	"github.com/seu-repo/echarge/internal/observability/telemetry"
	"github.com/seu-repo/echarge/pkg/config"
)

// Commander implements ports.PileLink on top of the Server's connections.
// Each command is retried with exponential backoff behind a per-pile
// circuit breaker; a START or STOP that stays undeliverable escalates to
// the station's fault path.
type Commander struct {
	server *Server
	core   StationCore
	cfg    config.PileLinkConfig
	log    *zap.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

func NewCommander(server *Server, core StationCore, cfg config.PileLinkConfig, log *zap.Logger) *Commander {
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = 10 * time.Second
	}
	if cfg.CommandRetries <= 0 {
		cfg.CommandRetries = 3
	}
	return &Commander{
		server:   server,
		core:     core,
		cfg:      cfg,
		log:      log,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

func (c *Commander) StartCharging(ctx context.Context, pileID, userID string, targetKWH float64) error {
	cmd := Command{ID: uuid.New().String(), Type: CommandStartCharging, UserID: userID, TargetKWH: targetKWH}
	return c.deliver(ctx, pileID, cmd, true)
}

func (c *Commander) StopCharging(ctx context.Context, pileID string) error {
	cmd := Command{ID: uuid.New().String(), Type: CommandStopCharging}
	return c.deliver(ctx, pileID, cmd, true)
}

func (c *Commander) SetFault(ctx context.Context, pileID, reason string) error {
	cmd := Command{ID: uuid.New().String(), Type: CommandSetFault, Reason: reason}
	return c.deliver(ctx, pileID, cmd, false)
}

func (c *Commander) RecoverFault(ctx context.Context, pileID string) error {
	cmd := Command{ID: uuid.New().String(), Type: CommandRecoverFault}
	return c.deliver(ctx, pileID, cmd, false)
}

func (c *Commander) Shutdown(ctx context.Context, pileID string) error {
	cmd := Command{ID: uuid.New().String(), Type: CommandShutdown}
	return c.deliver(ctx, pileID, cmd, false)
}

func (c *Commander) deliver(ctx context.Context, pileID string, cmd Command, escalate bool) error {
	br := c.breaker(pileID)

	attempt := 0
	op := func() error {
		attempt++
		if attempt > 1 {
			telemetry.PileCommandRetriesTotal.Inc()
		}
		_, err := br.Execute(func() (interface{}, error) {
			return nil, c.server.send(ctx, pileID, cmd, c.cfg.CommandTimeout)
		})
		return err
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(c.cfg.CommandRetries)),
		ctx,
	)
	err := backoff.Retry(op, policy)
	if err == nil {
		return nil
	}

	c.log.Warn("pile command undeliverable",
		zap.String("pile_id", pileID),
		zap.String("command", string(cmd.Type)),
		zap.Int("attempts", attempt),
		zap.Error(err),
	)
	if escalate {
		if _, ferr := c.core.SetFault(ctx, pileID, domain.EndReasonCommandTimeout); ferr != nil {
			c.log.Error("fault escalation failed", zap.String("pile_id", pileID), zap.Error(ferr))
		}
	}
	return err
}

func (c *Commander) breaker(pileID string) *gobreaker.CircuitBreaker {
	c.mu.Lock()
	defer c.mu.Unlock()

	if br, ok := c.breakers[pileID]; ok {
		return br
	}
	br := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "pile-link-" + pileID,
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.log.Warn("pile command breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	c.breakers[pileID] = br
	return br
}
