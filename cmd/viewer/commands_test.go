package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/MeNameek/camerasystem/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockSwitcher struct {
	mock.Mock
}

func (m *mockSwitcher) Next() error     { return m.Called().Error(0) }
func (m *mockSwitcher) Previous() error { return m.Called().Error(0) }

func (m *mockSwitcher) Select(source domain.ParticipantID) error {
	return m.Called(source).Error(0)
}

func (m *mockSwitcher) Sources() []domain.ParticipantID {
	return m.Called().Get(0).([]domain.ParticipantID)
}

func (m *mockSwitcher) Active() domain.ParticipantID {
	return m.Called().Get(0).(domain.ParticipantID)
}

func (m *mockSwitcher) Pending() domain.ParticipantID {
	return m.Called().Get(0).(domain.ParticipantID)
}

type mockFlipper struct {
	mock.Mock
}

func (m *mockFlipper) Flip(ctx context.Context) error { return m.Called(ctx).Error(0) }

func (m *mockFlipper) Facing() domain.Facing {
	return m.Called().Get(0).(domain.Facing)
}

func TestViewerCommand(t *testing.T) {
	v := new(mockSwitcher)
	v.On("Next").Return(nil).Once()
	v.On("Previous").Return(nil).Once()
	v.On("Select", domain.ParticipantID("s2")).Return(domain.ErrUnknownSource).Once()

	var out bytes.Buffer
	require.NoError(t, viewerCommand(v, &out, "next"))
	require.NoError(t, viewerCommand(v, &out, "p"))
	assert.ErrorIs(t, viewerCommand(v, &out, "select s2"), domain.ErrUnknownSource)
	assert.Error(t, viewerCommand(v, &out, "select"))
	assert.Error(t, viewerCommand(v, &out, "dance"))

	v.AssertExpectations(t)
}

func TestViewerCommand_List(t *testing.T) {
	v := new(mockSwitcher)
	v.On("Sources").Return([]domain.ParticipantID{"s1", "s2", "s3"})
	v.On("Active").Return(domain.ParticipantID("s1"))
	v.On("Pending").Return(domain.ParticipantID("s3"))

	var out bytes.Buffer
	require.NoError(t, viewerCommand(v, &out, "list"))
	assert.Equal(t, "* s1\n  s2\n~ s3\n", out.String())
}

func TestSourceCommand(t *testing.T) {
	ctx := context.Background()
	s := new(mockFlipper)
	s.On("Flip", ctx).Return(nil).Once()
	s.On("Facing").Return(domain.FacingEnvironment)

	var out bytes.Buffer
	require.NoError(t, sourceCommand(ctx, s, &out, "flip"))
	assert.Equal(t, "facing environment\n", out.String())

	s.On("Flip", ctx).Return(domain.ErrCaptureUnavailable).Once()
	assert.ErrorIs(t, sourceCommand(ctx, s, &out, "f"), domain.ErrCaptureUnavailable)
	assert.Error(t, sourceCommand(ctx, s, &out, "zoom"))
}

func TestReadCommands(t *testing.T) {
	var lines []string
	readCommands(context.Background(), strings.NewReader("next\n\n  list  \n"), func(line string) {
		lines = append(lines, line)
	})
	assert.Equal(t, []string{"next", "list"}, lines)
}

func TestParseRoomCode(t *testing.T) {
	code, err := parseRoomCode(" ab12cd ")
	require.NoError(t, err)
	assert.Equal(t, domain.RoomCode("AB12CD"), code)

	_, err = parseRoomCode("AB-12")
	assert.True(t, errors.Is(err, domain.ErrInvalidRoomCode))
}

func TestValidateCommon(t *testing.T) {
	defer func(server, name string) { flagServer, flagName = server, name }(flagServer, flagName)

	flagServer, flagName = "ws://localhost:8080/ws", "Desk"
	assert.NoError(t, validateCommon())

	flagServer = "ftp://example.com"
	assert.Error(t, validateCommon())
}
