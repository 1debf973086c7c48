package progress

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/driverelay/internal/logging"
	relaymodel "github.com/zhouzirui/driverelay/internal/model/relay"
	"github.com/zhouzirui/driverelay/internal/service/task"
)

func setupRouter(t *testing.T) (*chi.Mux, *task.Registry) {
	t.Helper()
	registry := task.NewRegistry()
	publisher := task.NewPublisher(registry, 10*time.Millisecond)
	handler := New(publisher, logging.Discard())

	r := chi.NewRouter()
	handler.RegisterRoutes(r)
	return r, registry
}

func parseEvents(t *testing.T, body string) []relaymodel.Progress {
	t.Helper()
	var events []relaymodel.Progress
	for _, block := range strings.Split(strings.TrimSpace(body), "\n\n") {
		data, ok := strings.CutPrefix(block, "data: ")
		require.True(t, ok, "unexpected sse block %q", block)
		var p relaymodel.Progress
		require.NoError(t, json.Unmarshal([]byte(data), &p))
		events = append(events, p)
	}
	return events
}

func finishLater(registry *task.Registry, handle string, delay time.Duration) {
	go func() {
		time.Sleep(delay)
		_ = registry.Update(handle, task.Update{Status: relaymodel.StatusCompleted, Percent: 100})
	}()
}

func TestSSEStreamsUntilTerminal(t *testing.T) {
	r, registry := setupRouter(t)
	require.NoError(t, registry.Create("t1"))
	require.NoError(t, registry.Update("t1", task.Update{Status: relaymodel.StatusStreaming, Percent: 50}))
	finishLater(registry, "t1", 50*time.Millisecond)

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/progress/t1", nil))

	assert.Equal(t, "text/event-stream", resp.Header().Get("Content-Type"))
	events := parseEvents(t, resp.Body.String())
	require.GreaterOrEqual(t, len(events), 2)
	assert.Equal(t, relaymodel.StatusStreaming, events[0].Status)
	last := events[len(events)-1]
	assert.Equal(t, relaymodel.StatusCompleted, last.Status)
	assert.Equal(t, 100, last.Percent)
	for i := 1; i < len(events); i++ {
		assert.GreaterOrEqual(t, events[i].Percent, events[i-1].Percent)
	}
}

func TestSSETerminalTaskSingleEvent(t *testing.T) {
	r, registry := setupRouter(t)
	require.NoError(t, registry.Create("t1"))
	require.NoError(t, registry.Update("t1", task.Update{Status: relaymodel.StatusFailed, Error: "source exited"}))

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/progress/t1", nil))

	events := parseEvents(t, resp.Body.String())
	require.Len(t, events, 1)
	assert.Equal(t, relaymodel.StatusFailed, events[0].Status)
	assert.Equal(t, "source exited", events[0].Error)
}

func TestSSEObserverDisconnectLeavesTask(t *testing.T) {
	r, registry := setupRouter(t)
	require.NoError(t, registry.Create("t1"))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/progress/t1", nil).WithContext(ctx)
	resp := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		r.ServeHTTP(resp, req)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sse handler did not return after disconnect")
	}
	assert.Equal(t, relaymodel.StatusInitializing, registry.Read("t1").Status)
	require.NoError(t, registry.Update("t1", task.Update{Status: relaymodel.StatusStreaming, Percent: 50}))
}

func TestWebSocketStreamsUntilTerminal(t *testing.T) {
	r, registry := setupRouter(t)
	srv := httptest.NewServer(r)
	defer srv.Close()

	require.NoError(t, registry.Create("t1"))
	require.NoError(t, registry.Update("t1", task.Update{Status: relaymodel.StatusStreaming, Percent: 50}))
	finishLater(registry, "t1", 50*time.Millisecond)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/progress/t1"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var events []relaymodel.Progress
	for {
		var p relaymodel.Progress
		err := conn.ReadJSON(&p)
		if err != nil {
			assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "unexpected error: %v", err)
			break
		}
		events = append(events, p)
	}

	require.NotEmpty(t, events)
	assert.Equal(t, relaymodel.StatusStreaming, events[0].Status)
	assert.Equal(t, relaymodel.StatusCompleted, events[len(events)-1].Status)
}

func TestWebSocketUnknownTaskReportsWaiting(t *testing.T) {
	r, _ := setupRouter(t)
	srv := httptest.NewServer(r)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/progress/missing"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var p relaymodel.Progress
	require.NoError(t, conn.ReadJSON(&p))
	assert.Equal(t, relaymodel.StatusWaiting, p.Status)
}
