package services

import (
	"fmt"
	"sync"
	"testing"

	"github.com/MeNameek/camerasystem/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func viewer(id string) domain.Participant {
	return domain.NewParticipant(domain.ParticipantID(id), "", domain.RoleViewer)
}

func source(id string) domain.Participant {
	return domain.NewParticipant(domain.ParticipantID(id), id, domain.RoleSource)
}

func memberIDs(members []domain.Participant) []domain.ParticipantID {
	ids := make([]domain.ParticipantID, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.ID)
	}
	return ids
}

func TestRoomRegistry_JoinCreatesRoomForViewer(t *testing.T) {
	r := NewRoomRegistry()

	room, err := r.Join("AB12CD", viewer("v1"))
	require.NoError(t, err)
	assert.Equal(t, domain.RoomCode("AB12CD"), room.Code)
	assert.Equal(t, []domain.ParticipantID{"v1"}, memberIDs(room.Members))
	assert.True(t, r.Exists("AB12CD"))
	assert.Equal(t, "Viewer", room.Members[0].DisplayName)
}

func TestRoomRegistry_SourceCannotCreateRoom(t *testing.T) {
	r := NewRoomRegistry()

	_, err := r.Join("AB12CD", source("s1"))
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)
	assert.False(t, r.Exists("AB12CD"))

	_, ok := r.RoomOf("s1")
	assert.False(t, ok)
}

func TestRoomRegistry_Create(t *testing.T) {
	r := NewRoomRegistry()

	_, err := r.Create("", viewer("v1"))
	assert.ErrorIs(t, err, domain.ErrInvalidRoomCode)

	room, err := r.Create("XYZ789", viewer("v1"))
	require.NoError(t, err)
	assert.Len(t, room.Members, 1)

	_, err = r.Create("XYZ789", viewer("v2"))
	assert.ErrorIs(t, err, domain.ErrDuplicateRoomCode)

	_, err = r.Create("OTHER1", viewer("v1"))
	assert.ErrorIs(t, err, domain.ErrAlreadyInRoom)
}

func TestRoomRegistry_RejectsInvalidInput(t *testing.T) {
	r := NewRoomRegistry()

	_, err := r.Join("", viewer("v1"))
	assert.ErrorIs(t, err, domain.ErrInvalidRoomCode)

	_, err = r.Join("AB12CD", domain.Participant{ID: "x", Role: "admin"})
	assert.ErrorIs(t, err, domain.ErrInvalidRole)
}

func TestRoomRegistry_DoubleJoinRejected(t *testing.T) {
	r := NewRoomRegistry()

	_, err := r.Join("AB12CD", viewer("v1"))
	require.NoError(t, err)

	_, err = r.Join("AB12CD", viewer("v1"))
	assert.ErrorIs(t, err, domain.ErrAlreadyInRoom)
	assert.Len(t, r.MembersOf("AB12CD"), 1)
}

func TestRoomRegistry_LeaveDeletesEmptyRoom(t *testing.T) {
	r := NewRoomRegistry()

	_, err := r.Join("AB12CD", viewer("v1"))
	require.NoError(t, err)
	_, err = r.Join("AB12CD", source("s1"))
	require.NoError(t, err)

	room, changed := r.Leave("v1")
	assert.True(t, changed)
	assert.Equal(t, []domain.ParticipantID{"s1"}, memberIDs(room.Members))
	assert.True(t, r.Exists("AB12CD"))

	room, changed = r.Leave("s1")
	assert.True(t, changed)
	assert.Empty(t, room.Members)
	assert.False(t, r.Exists("AB12CD"))
	assert.Nil(t, r.MembersOf("AB12CD"))

	rooms, participants := r.Stats()
	assert.Zero(t, rooms)
	assert.Zero(t, participants)
}

func TestRoomRegistry_LeaveIsIdempotent(t *testing.T) {
	r := NewRoomRegistry()

	var events []domain.MembershipEvent
	r.Subscribe(func(e domain.MembershipEvent) { events = append(events, e) })

	_, err := r.Join("AB12CD", viewer("v1"))
	require.NoError(t, err)

	_, changed := r.Leave("v1")
	assert.True(t, changed)
	_, changed = r.Leave("v1")
	assert.False(t, changed)
	_, changed = r.Leave("never-joined")
	assert.False(t, changed)

	assert.Len(t, events, 2)
}

func TestRoomRegistry_EventsMatchMemberSet(t *testing.T) {
	r := NewRoomRegistry()

	var events []domain.MembershipEvent
	r.Subscribe(func(e domain.MembershipEvent) { events = append(events, e) })

	steps := []struct {
		join bool
		p    domain.Participant
		want []domain.ParticipantID
	}{
		{true, viewer("v1"), []domain.ParticipantID{"v1"}},
		{true, source("s1"), []domain.ParticipantID{"v1", "s1"}},
		{true, source("s2"), []domain.ParticipantID{"v1", "s1", "s2"}},
		{false, source("s1"), []domain.ParticipantID{"v1", "s2"}},
		{true, source("s3"), []domain.ParticipantID{"v1", "s2", "s3"}},
		{false, viewer("v1"), []domain.ParticipantID{"s2", "s3"}},
		{false, source("s2"), []domain.ParticipantID{"s3"}},
		{false, source("s3"), []domain.ParticipantID{}},
	}

	for i, step := range steps {
		if step.join {
			_, err := r.Join("AB12CD", step.p)
			require.NoError(t, err, "step %d", i)
		} else {
			_, changed := r.Leave(step.p.ID)
			require.True(t, changed, "step %d", i)
		}

		require.Len(t, events, i+1)
		last := events[len(events)-1]
		assert.Equal(t, step.want, memberIDs(last.Members), "step %d", i)
		assert.Equal(t, step.p.ID, last.Participant.ID)

		current := r.MembersOf("AB12CD")
		assert.Equal(t, len(step.want), len(current), "step %d", i)
	}

	assert.True(t, events[len(events)-1].Deleted())
	for i := 1; i < len(events); i++ {
		assert.Greater(t, events[i].Seq, events[i-1].Seq)
	}
}

func TestRoomRegistry_MembersOfReturnsCopy(t *testing.T) {
	r := NewRoomRegistry()
	_, err := r.Join("AB12CD", viewer("v1"))
	require.NoError(t, err)

	members := r.MembersOf("AB12CD")
	members[0].DisplayName = "changed"

	assert.Equal(t, "Viewer", r.MembersOf("AB12CD")[0].DisplayName)
}

func TestRoomRegistry_ConcurrentJoinLeave(t *testing.T) {
	r := NewRoomRegistry()

	var mu sync.Mutex
	lastSeq := map[domain.RoomCode]uint64{}
	r.Subscribe(func(e domain.MembershipEvent) {
		mu.Lock()
		defer mu.Unlock()
		assert.Greater(t, e.Seq, lastSeq[e.Code])
		lastSeq[e.Code] = e.Seq
	})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := domain.ParticipantID(fmt.Sprintf("v%d", i))
			for j := 0; j < 20; j++ {
				_, err := r.Join("AB12CD", viewer(string(id)))
				if !assert.NoError(t, err) {
					return
				}
				r.Leave(id)
			}
		}(i)
	}
	wg.Wait()

	rooms, participants := r.Stats()
	assert.Zero(t, rooms)
	assert.Zero(t, participants)
}
