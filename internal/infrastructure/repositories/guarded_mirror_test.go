package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MeNameek/camerasystem/internal/core/domain"
	"github.com/MeNameek/camerasystem/internal/infrastructure/repositories/memory"
	"github.com/MeNameek/camerasystem/pkg/circuitbreaker"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var errUnreachable = errors.New("dial tcp: connection refused")

// downMirror fails every call, counting them.
type downMirror struct {
	calls int
}

func (d *downMirror) Issue(context.Context, domain.RoomCode, time.Duration) (bool, error) {
	d.calls++
	return false, errUnreachable
}

func (d *downMirror) Reserve(context.Context, domain.RoomCode, time.Duration) (bool, error) {
	d.calls++
	return false, errUnreachable
}

func (d *downMirror) Release(context.Context, domain.RoomCode) error {
	d.calls++
	return errUnreachable
}

func (d *downMirror) PublishMembership(context.Context, domain.MembershipEvent) error {
	d.calls++
	return errUnreachable
}

func (d *downMirror) Members(context.Context, domain.RoomCode) ([]domain.Participant, bool, error) {
	d.calls++
	return nil, false, errUnreachable
}

func (d *downMirror) Close() error { return nil }

func TestGuardedMirror_PassesThrough(t *testing.T) {
	ctx := context.Background()
	g := newGuardedMirror(memory.NewPresenceMirror(), circuitbreaker.DefaultConfig(), zaptest.NewLogger(t).Sugar())

	ok, err := g.Reserve(ctx, "AB12CD", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = g.Reserve(ctx, "AB12CD", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	source := domain.NewParticipant("s1", "", domain.RoleSource)
	require.NoError(t, g.PublishMembership(ctx, domain.MembershipEvent{
		Code: "AB12CD", Seq: 1, Change: domain.MembershipJoined,
		Participant: source, Members: []domain.Participant{source},
	}))

	members, ok, err := g.Members(ctx, "AB12CD")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []domain.Participant{source}, members)
	assert.NoError(t, g.Release(ctx, "AB12CD"))
}

func TestGuardedMirror_FailsFastWhenDown(t *testing.T) {
	ctx := context.Background()
	inner := &downMirror{}
	g := newGuardedMirror(inner, circuitbreaker.Config{
		FailureThreshold: 2,
		SuccessThreshold: 1,
		Timeout:          time.Hour,
	}, zaptest.NewLogger(t).Sugar())

	_, err := g.Reserve(ctx, "AB12CD", time.Minute)
	assert.ErrorIs(t, err, errUnreachable)
	err = g.PublishMembership(ctx, domain.MembershipEvent{Code: "AB12CD"})
	assert.ErrorIs(t, err, errUnreachable)

	_, _, err = g.Members(ctx, "AB12CD")
	assert.ErrorIs(t, err, circuitbreaker.ErrOpen)
	assert.Equal(t, 2, inner.calls)
}
