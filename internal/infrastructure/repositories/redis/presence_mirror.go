package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/MeNameek/camerasystem/internal/core/domain"
	"github.com/MeNameek/camerasystem/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

const defaultPrefix = "camerasystem:"

// liveRoomTTL bounds how long a room survives in Redis if its relay dies
// without publishing the deletion. Every membership change refreshes it.
const liveRoomTTL = 12 * time.Hour

// issuedOwner marks a code handed out over HTTP that any instance may claim.
const issuedOwner = "issued"

// PresenceMirror shares room codes and membership between relay instances.
//
//	<prefix>room:<code>:owner    string, instance id or "issued"; SETNX
//	<prefix>room:<code>:members  hash, participant id -> participant JSON
//	<prefix>room:<code>:seq      string, last applied membership seq
type PresenceMirror struct {
	client     *redis.Client
	instanceID string
	prefix     string
}

func NewPresenceMirror(client *redis.Client, instanceID string) *PresenceMirror {
	return &PresenceMirror{
		client:     client,
		instanceID: instanceID,
		prefix:     defaultPrefix,
	}
}

func (m *PresenceMirror) ownerKey(code domain.RoomCode) string {
	return fmt.Sprintf("%sroom:%s:owner", m.prefix, code)
}

func (m *PresenceMirror) membersKey(code domain.RoomCode) string {
	return fmt.Sprintf("%sroom:%s:members", m.prefix, code)
}

func (m *PresenceMirror) seqKey(code domain.RoomCode) string {
	return fmt.Sprintf("%sroom:%s:seq", m.prefix, code)
}

// Issue holds code for whichever instance creates the room with it.
func (m *PresenceMirror) Issue(ctx context.Context, code domain.RoomCode, ttl time.Duration) (bool, error) {
	ok, err := m.client.SetNX(ctx, m.ownerKey(code), issuedOwner, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to issue room code: %w", err)
	}
	return ok, nil
}

// Reserve claims code for this instance. An issued code is taken over; a
// code held by another instance reports false.
func (m *PresenceMirror) Reserve(ctx context.Context, code domain.RoomCode, ttl time.Duration) (bool, error) {
	ok, err := m.client.SetNX(ctx, m.ownerKey(code), m.instanceID, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to reserve room code: %w", err)
	}
	if ok {
		return true, nil
	}
	return m.claim(ctx, code, ttl)
}

func (m *PresenceMirror) claim(ctx context.Context, code domain.RoomCode, ttl time.Duration) (bool, error) {
	key := m.ownerKey(code)
	claimed := false

	err := m.client.Watch(ctx, func(tx *redis.Tx) error {
		owner, err := tx.Get(ctx, key).Result()
		switch {
		case errors.Is(err, redis.Nil):
			// Expired since the SETNX.
		case err != nil:
			return err
		case owner == m.instanceID:
			claimed = true
			return nil
		case owner != issuedOwner:
			return nil
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, m.instanceID, ttl)
			return nil
		})
		if err == nil {
			claimed = true
		}
		return err
	}, key)

	if errors.Is(err, redis.TxFailedErr) {
		// Someone else claimed it between the read and the write.
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to claim room code: %w", err)
	}
	return claimed, nil
}

func (m *PresenceMirror) Release(ctx context.Context, code domain.RoomCode) error {
	if err := m.client.Del(ctx, m.ownerKey(code)).Err(); err != nil {
		return fmt.Errorf("failed to release room code: %w", err)
	}
	return nil
}

// PublishMembership replaces the mirrored member set with the snapshot in
// event. Snapshots older than the last one applied are skipped.
func (m *PresenceMirror) PublishMembership(ctx context.Context, event domain.MembershipEvent) error {
	last, err := m.client.Get(ctx, m.seqKey(event.Code)).Uint64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to read membership seq: %w", err)
	}
	if err == nil && event.Seq <= last {
		return nil
	}

	if event.Deleted() {
		if err := m.client.Del(ctx, m.ownerKey(event.Code), m.membersKey(event.Code), m.seqKey(event.Code)).Err(); err != nil {
			return fmt.Errorf("failed to remove room: %w", err)
		}
		return nil
	}

	fields := make(map[string]interface{}, len(event.Members))
	for _, p := range event.Members {
		data, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("failed to marshal participant: %w", err)
		}
		fields[string(p.ID)] = data
	}

	_, err = m.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, m.membersKey(event.Code))
		pipe.HSet(ctx, m.membersKey(event.Code), fields)
		pipe.Expire(ctx, m.membersKey(event.Code), liveRoomTTL)
		pipe.SetNX(ctx, m.ownerKey(event.Code), m.instanceID, liveRoomTTL)
		pipe.Expire(ctx, m.ownerKey(event.Code), liveRoomTTL)
		pipe.Set(ctx, m.seqKey(event.Code), event.Seq, liveRoomTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to publish membership: %w", err)
	}
	return nil
}

// Members reads the mirrored member set. Hash order is not join order, so
// callers needing order should use the owning relay's snapshot.
func (m *PresenceMirror) Members(ctx context.Context, code domain.RoomCode) ([]domain.Participant, bool, error) {
	values, err := m.client.HGetAll(ctx, m.membersKey(code)).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to read members: %w", err)
	}
	if len(values) == 0 {
		return nil, false, nil
	}

	members := make([]domain.Participant, 0, len(values))
	for _, raw := range values {
		var p domain.Participant
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return nil, false, fmt.Errorf("failed to unmarshal participant: %w", err)
		}
		members = append(members, p)
	}
	return members, true, nil
}

// Close is a no-op; the client belongs to the repository factory.
func (m *PresenceMirror) Close() error {
	return nil
}

var _ ports.PresenceMirror = (*PresenceMirror)(nil)
