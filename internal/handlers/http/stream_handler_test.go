package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"livecast/internal/core/domain"
	"livecast/internal/core/ports"
	"livecast/internal/core/services"
	"livecast/internal/infrastructure/middleware"
	"livecast/internal/infrastructure/plans"
	"livecast/internal/infrastructure/repositories/memory"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

type noopRecording struct{}

func (noopRecording) AcquireResource(ctx context.Context, channelName string, uid uint32) (string, error) {
	return "res", nil
}

func (noopRecording) Start(ctx context.Context, channelName string, uid uint32, resourceID string) (string, error) {
	return "sess", nil
}

func (noopRecording) Stop(ctx context.Context, channelName string, uid uint32, resourceID, sessionID string) ([]domain.RecordingFile, error) {
	return nil, nil
}

// testRouter wires the handler against the in-memory stack with a stub auth
// middleware that injects the caller from the X-Test-User header.
func testRouter(t *testing.T) (*gin.Engine, ports.Lifecycle) {
	gin.SetMode(gin.TestMode)
	logger := zaptest.NewLogger(t).Sugar()

	streams := memory.NewMemoryStreamRepository()
	sessions := memory.NewMemorySessionCache()
	planService := plans.NewStaticPlanService(plans.Limits{Premium: true, MaxConcurrentStreams: 10}, nil)

	lifecycle := services.NewLifecycleService(
		streams,
		sessions,
		planService,
		services.NewConcurrencyGuard(streams, planService),
		services.NewTokenService("test-app", "rtc-secret", "rtm-secret"),
		services.NewRecordingController(noopRecording{}, logger),
		services.NewMetricsService(prometheus.NewRegistry()),
		services.NewStreamNotifier(),
		logger,
		services.LifecycleConfig{ChannelPrefix: "live"},
	)

	router := gin.New()
	router.Use(middleware.ErrorHandlerMiddleware(logger))
	api := router.Group("/api/v1")
	api.Use(func(c *gin.Context) {
		if user := c.GetHeader("X-Test-User"); user != "" {
			c.Set("user_id", domain.UserID(user))
		}
		c.Next()
	})
	NewStreamHandler(lifecycle).SetupRoutes(api)

	return router, lifecycle
}

func doJSON(t *testing.T, router *gin.Engine, method, path, user string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		assert.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req, err := http.NewRequest(method, path, &buf)
	assert.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set("X-Test-User", user)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func createTestStream(t *testing.T, router *gin.Engine, owner string, body gin.H) string {
	t.Helper()

	w := doJSON(t, router, http.MethodPost, "/api/v1/streams", owner, body)
	assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp struct {
		Stream struct {
			ID string `json:"id"`
		} `json:"stream"`
	}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Stream.ID)
	return resp.Stream.ID
}

func TestStreamHandler_CreateAndGet(t *testing.T) {
	router, _ := testRouter(t)

	id := createTestStream(t, router, "owner", gin.H{"title": "my show", "max_viewers": 5})

	w := doJSON(t, router, http.MethodGet, "/api/v1/streams/"+id, "owner", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Stream struct {
			Title             string `json:"title"`
			Status            string `json:"status"`
			MaxViewers        int    `json:"max_viewers"`
			PasswordProtected bool   `json:"password_protected"`
		} `json:"stream"`
	}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "my show", resp.Stream.Title)
	assert.Equal(t, "preparing", resp.Stream.Status)
	assert.Equal(t, 5, resp.Stream.MaxViewers)
	assert.False(t, resp.Stream.PasswordProtected)
}

func TestStreamHandler_CreateRequiresTitle(t *testing.T) {
	router, _ := testRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/v1/streams", "owner", gin.H{"max_viewers": 5})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStreamHandler_CreateRequiresAuth(t *testing.T) {
	router, _ := testRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/v1/streams", "", gin.H{"title": "x"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestStreamHandler_PasswordNeverLeaks(t *testing.T) {
	router, _ := testRouter(t)

	id := createTestStream(t, router, "owner", gin.H{"title": "secret show", "password": "hunter2"})

	w := doJSON(t, router, http.MethodGet, "/api/v1/streams/"+id, "viewer", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "hunter2")
	assert.NotContains(t, w.Body.String(), "PasswordHash")
	assert.Contains(t, w.Body.String(), `"password_protected":true`)
}

func TestStreamHandler_StartEndFlow(t *testing.T) {
	router, _ := testRouter(t)

	id := createTestStream(t, router, "owner", gin.H{"title": "show"})

	w := doJSON(t, router, http.MethodPost, "/api/v1/streams/"+id+"/start", "owner", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"live"`)

	// Double start conflicts.
	w = doJSON(t, router, http.MethodPost, "/api/v1/streams/"+id+"/start", "owner", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "INVALID_STATE")

	w = doJSON(t, router, http.MethodPost, "/api/v1/streams/"+id+"/end", "owner", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ended"`)
}

func TestStreamHandler_StartForbiddenForStranger(t *testing.T) {
	router, _ := testRouter(t)

	id := createTestStream(t, router, "owner", gin.H{"title": "show"})

	w := doJSON(t, router, http.MethodPost, "/api/v1/streams/"+id+"/start", "mallory", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestStreamHandler_JoinGrantsTokens(t *testing.T) {
	router, _ := testRouter(t)

	id := createTestStream(t, router, "owner", gin.H{"title": "show", "max_viewers": 10})

	w := doJSON(t, router, http.MethodPost, "/api/v1/streams/"+id+"/join", "viewer", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		UID      uint32 `json:"uid"`
		Role     string `json:"role"`
		RTCToken string `json:"rtc_token"`
		RTMToken string `json:"rtm_token"`
	}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotZero(t, resp.UID)
	assert.Equal(t, "subscriber", resp.Role)
	assert.NotEmpty(t, resp.RTCToken)
	assert.NotEmpty(t, resp.RTMToken)
}

func TestStreamHandler_JoinErrorMapping(t *testing.T) {
	router, _ := testRouter(t)

	// Capacity: zero viewer slots.
	full := createTestStream(t, router, "owner", gin.H{"title": "full", "max_viewers": 0})
	w := doJSON(t, router, http.MethodPost, "/api/v1/streams/"+full+"/join", "viewer", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "CAPACITY_EXCEEDED")

	// Wrong password.
	locked := createTestStream(t, router, "owner", gin.H{"title": "locked", "password": "pw", "max_viewers": 10})
	w = doJSON(t, router, http.MethodPost, "/api/v1/streams/"+locked+"/join", "viewer", gin.H{"password": "nope"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "PASSWORD_REQUIRED")

	// Private stream.
	private := createTestStream(t, router, "owner", gin.H{"title": "private", "visibility": "private", "max_viewers": 10})
	w = doJSON(t, router, http.MethodPost, "/api/v1/streams/"+private+"/join", "viewer", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "PRIVATE_ACCESS")

	// Unknown stream.
	w = doJSON(t, router, http.MethodPost, "/api/v1/streams/nope/join", "viewer", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStreamHandler_UpdateAndDelete(t *testing.T) {
	router, _ := testRouter(t)

	id := createTestStream(t, router, "owner", gin.H{"title": "old"})

	w := doJSON(t, router, http.MethodPatch, "/api/v1/streams/"+id, "owner", gin.H{"title": "new"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"title":"new"`)

	// Live streams cannot be deleted.
	w = doJSON(t, router, http.MethodPost, "/api/v1/streams/"+id+"/start", "owner", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = doJSON(t, router, http.MethodDelete, "/api/v1/streams/"+id, "owner", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = doJSON(t, router, http.MethodPost, "/api/v1/streams/"+id+"/end", "owner", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = doJSON(t, router, http.MethodDelete, "/api/v1/streams/"+id, "owner", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodGet, "/api/v1/streams/"+id, "owner", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStreamHandler_ListStreams(t *testing.T) {
	router, _ := testRouter(t)

	createTestStream(t, router, "alice", gin.H{"title": "one"})
	createTestStream(t, router, "alice", gin.H{"title": "two"})
	createTestStream(t, router, "bob", gin.H{"title": "theirs"})

	w := doJSON(t, router, http.MethodGet, "/api/v1/streams", "alice", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Streams []json.RawMessage `json:"streams"`
	}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Streams, 2)
}

func TestStreamHandler_LeaveIsIdempotent(t *testing.T) {
	router, _ := testRouter(t)

	id := createTestStream(t, router, "owner", gin.H{"title": "show", "max_viewers": 10})

	w := doJSON(t, router, http.MethodPost, "/api/v1/streams/"+id+"/join", "viewer", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodPost, "/api/v1/streams/"+id+"/leave", "viewer", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodPost, "/api/v1/streams/"+id+"/leave", "viewer", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
