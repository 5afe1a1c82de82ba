package repositories

import (
	"context"
	"time"

	"github.com/MeNameek/camerasystem/internal/core/domain"
	"github.com/MeNameek/camerasystem/internal/core/ports"
	"github.com/MeNameek/camerasystem/pkg/circuitbreaker"

	"go.uber.org/zap"
)

// guardedMirror fails fast while Redis is unreachable instead of stalling
// every room creation on a dial timeout. The relay treats mirror errors as
// "not reserved elsewhere" and keeps serving locally.
type guardedMirror struct {
	inner   ports.PresenceMirror
	breaker *circuitbreaker.CircuitBreaker
}

type membersResult struct {
	members []domain.Participant
	ok      bool
}

func newGuardedMirror(inner ports.PresenceMirror, cfg circuitbreaker.Config, logger *zap.SugaredLogger) *guardedMirror {
	breaker := circuitbreaker.New(cfg)
	breaker.OnStateChange(func(from, to circuitbreaker.State) {
		logger.Warnw("presence mirror circuit changed", "from", from.String(), "to", to.String())
	})
	return &guardedMirror{inner: inner, breaker: breaker}
}

func (g *guardedMirror) Issue(ctx context.Context, code domain.RoomCode, ttl time.Duration) (bool, error) {
	return circuitbreaker.ExecuteWithResult(ctx, g.breaker, func() (bool, error) {
		return g.inner.Issue(ctx, code, ttl)
	})
}

func (g *guardedMirror) Reserve(ctx context.Context, code domain.RoomCode, ttl time.Duration) (bool, error) {
	return circuitbreaker.ExecuteWithResult(ctx, g.breaker, func() (bool, error) {
		return g.inner.Reserve(ctx, code, ttl)
	})
}

func (g *guardedMirror) Release(ctx context.Context, code domain.RoomCode) error {
	return g.breaker.Execute(ctx, func() error {
		return g.inner.Release(ctx, code)
	})
}

func (g *guardedMirror) PublishMembership(ctx context.Context, event domain.MembershipEvent) error {
	return g.breaker.Execute(ctx, func() error {
		return g.inner.PublishMembership(ctx, event)
	})
}

func (g *guardedMirror) Members(ctx context.Context, code domain.RoomCode) ([]domain.Participant, bool, error) {
	res, err := circuitbreaker.ExecuteWithResult(ctx, g.breaker, func() (membersResult, error) {
		members, ok, err := g.inner.Members(ctx, code)
		return membersResult{members: members, ok: ok}, err
	})
	return res.members, res.ok, err
}

func (g *guardedMirror) Close() error {
	return g.inner.Close()
}

var _ ports.PresenceMirror = (*guardedMirror)(nil)
