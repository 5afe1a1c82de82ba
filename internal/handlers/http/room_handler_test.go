package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MeNameek/camerasystem/internal/core/domain"
	"github.com/MeNameek/camerasystem/internal/core/ports"
	"github.com/MeNameek/camerasystem/internal/core/services"
	"github.com/MeNameek/camerasystem/internal/infrastructure/distributed"
	"github.com/MeNameek/camerasystem/internal/infrastructure/middleware"
	"github.com/MeNameek/camerasystem/internal/infrastructure/repositories/memory"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubIssuer struct {
	code domain.RoomCode
	err  error
}

func (s stubIssuer) FreshCode(context.Context) (domain.RoomCode, error) {
	return s.code, s.err
}

func newTestRouter(issuer CodeIssuer, rooms Rooms, directory ports.RoomDirectory, mirror ports.PresenceMirror) *gin.Engine {
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop().Sugar()

	router := gin.New()
	router.Use(middleware.ErrorHandlerMiddleware(logger))
	NewRoomHandler(issuer, rooms, directory, mirror, func() int { return 3 }, logger).SetupRoutes(router)
	return router
}

func do(router http.Handler, method, path string) (*httptest.ResponseRecorder, map[string]interface{}) {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(method, path, nil))
	var body map[string]interface{}
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	return w, body
}

func TestRoomHandler_CreateRoomCode(t *testing.T) {
	router := newTestRouter(stubIssuer{code: "XK7P2Q"}, services.NewRoomRegistry(), nil, nil)

	w, body := do(router, http.MethodPost, "/api/v1/rooms")
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "XK7P2Q", body["code"])
}

func TestRoomHandler_CreateRoomCode_Exhausted(t *testing.T) {
	router := newTestRouter(stubIssuer{err: domain.ErrDuplicateRoomCode}, services.NewRoomRegistry(), nil, nil)

	w, body := do(router, http.MethodPost, "/api/v1/rooms")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "DUPLICATE_ROOM_CODE", body["error"])
}

func TestRoomHandler_GetRoom_Local(t *testing.T) {
	registry := services.NewRoomRegistry()
	_, err := registry.Create("AB12CD", domain.NewParticipant("s1", "", domain.RoleSource))
	require.NoError(t, err)
	_, err = registry.Join("AB12CD", domain.NewParticipant("v1", "Alice", domain.RoleViewer))
	require.NoError(t, err)

	router := newTestRouter(stubIssuer{}, registry, nil, memory.NewPresenceMirror())

	w, body := do(router, http.MethodGet, "/api/v1/rooms/ab12cd")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "AB12CD", body["code"])
	assert.Equal(t, true, body["local"])
	assert.EqualValues(t, 1, body["sources"])
	assert.Len(t, body["members"], 2)
}

func TestRoomHandler_GetRoom_FromMirror(t *testing.T) {
	mirror := memory.NewPresenceMirror()
	source := domain.NewParticipant("s1", "", domain.RoleSource)
	require.NoError(t, mirror.PublishMembership(context.Background(), domain.MembershipEvent{
		Code: "REMOTE", Seq: 1, Change: domain.MembershipJoined,
		Participant: source, Members: []domain.Participant{source},
	}))

	router := newTestRouter(stubIssuer{}, services.NewRoomRegistry(), nil, mirror)

	w, body := do(router, http.MethodGet, "/api/v1/rooms/REMOTE")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, body["local"])
}

func TestRoomHandler_GetRoom_FromDirectory(t *testing.T) {
	directory := distributed.NewRoomDirectory(0, nil)
	viewer := domain.NewParticipant("v1", "Alice", domain.RoleViewer)
	source := domain.NewParticipant("s1", "", domain.RoleSource)
	require.NoError(t, directory.Apply(&distributed.Event{
		Type:       distributed.EventParticipantJoined,
		InstanceID: "other",
		Room:       "REMOTE",
		Seq:        2,
		Members:    []domain.Participant{viewer, source},
	}))

	// the directory keeps join order and wins over the mirror
	router := newTestRouter(stubIssuer{}, services.NewRoomRegistry(), directory, memory.NewPresenceMirror())

	w, body := do(router, http.MethodGet, "/api/v1/rooms/remote")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, body["local"])
	assert.EqualValues(t, 1, body["sources"])
	members := body["members"].([]interface{})
	require.Len(t, members, 2)
	assert.Equal(t, "v1", members[0].(map[string]interface{})["id"])

	require.NoError(t, directory.Apply(&distributed.Event{
		Type:       distributed.EventRoomDeleted,
		InstanceID: "other",
		Room:       "REMOTE",
		Seq:        3,
	}))
	w, _ = do(router, http.MethodGet, "/api/v1/rooms/REMOTE")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRoomHandler_GetRoom_Errors(t *testing.T) {
	router := newTestRouter(stubIssuer{}, services.NewRoomRegistry(), nil, memory.NewPresenceMirror())

	w, body := do(router, http.MethodGet, "/api/v1/rooms/NOPE42")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "ROOM_NOT_FOUND", body["error"])

	w, body = do(router, http.MethodGet, "/api/v1/rooms/bad-code!")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_ROOM_CODE", body["error"])
}

func TestRoomHandler_GetStats(t *testing.T) {
	registry := services.NewRoomRegistry()
	_, err := registry.Create("AB12CD", domain.NewParticipant("s1", "", domain.RoleSource))
	require.NoError(t, err)

	router := newTestRouter(stubIssuer{err: errors.New("unused")}, registry, nil, nil)

	w, body := do(router, http.MethodGet, "/api/v1/stats")
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, body["rooms"])
	assert.EqualValues(t, 1, body["participants"])
	assert.EqualValues(t, 3, body["connections"])
}
