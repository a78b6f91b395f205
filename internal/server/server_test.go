package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"tally.dev/internal/config"
	"tally.dev/internal/health"
	"tally.dev/internal/process"
	"tally.dev/internal/pubsub"
	"tally.dev/internal/timer"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeSource struct {
	entries []process.Entry
	err     error

	// when set, Processes waits until it is closed
	block chan struct{}
}

func (s *fakeSource) Processes() ([]process.Entry, error) {
	if s.block != nil {
		<-s.block
	}
	if s.err != nil {
		return nil, s.err
	}
	return append([]process.Entry(nil), s.entries...), nil
}

func newTestServer(t *testing.T, source process.Source) (*Server, *clock.Mock) {
	t.Helper()

	mock := clock.NewMock()
	server, err := New(config.DefaultShellConfig(), source, mock)
	require.NoError(t, err)

	return server, mock
}

func call(t *testing.T, server *Server, method string, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/api/rpc/"+method, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	res := httptest.NewRecorder()
	server.Handler().ServeHTTP(res, req)
	return res
}

func TestGreet(t *testing.T) {
	server, _ := newTestServer(t, &fakeSource{})

	res := call(t, server, "greet", `{"name": "World"}`)
	require.Equal(t, http.StatusOK, res.Code)
	assert.JSONEq(t, `"Hello, World!"`, res.Body.String())
}

func TestBadInput(t *testing.T) {
	server, _ := newTestServer(t, &fakeSource{})

	res := call(t, server, "greet", `{"name": `)
	require.Equal(t, http.StatusBadRequest, res.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &body))
	assert.Equal(t, "error", body["type"])
	assert.NotEmpty(t, body["error"])
}

func TestTimerStartsIdle(t *testing.T) {
	server, _ := newTestServer(t, &fakeSource{})

	res := call(t, server, "get_timer_state", "")
	require.Equal(t, http.StatusOK, res.Code)
	assert.JSONEq(t, `{"active":false,"title":null,"elapsed_seconds":null}`, res.Body.String())

	res = call(t, server, "stop_timer", "")
	require.Equal(t, http.StatusOK, res.Code)
	assert.JSONEq(t, `{}`, res.Body.String())

	res = call(t, server, "get_timer_state", "")
	assert.JSONEq(t, `{"active":false,"title":null,"elapsed_seconds":null}`, res.Body.String())
	assert.Equal(t, 0, server.events.Info().Count, "stopping an idle timer should not emit anything")
}

func TestTimerLifecycle(t *testing.T) {
	server, mock := newTestServer(t, &fakeSource{})

	sub, err := pubsub.Subscribe(server.topics, EventsTopic)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	res := call(t, server, "start_timer", `{"title": "Invoices"}`)
	require.Equal(t, http.StatusOK, res.Code)
	assert.JSONEq(t, `{"active":true,"title":"Invoices","elapsed_seconds":0}`, res.Body.String())

	mock.Add(42 * time.Second)

	res = call(t, server, "get_timer_state", "")
	assert.JSONEq(t, `{"active":true,"title":"Invoices","elapsed_seconds":42}`, res.Body.String())

	res = call(t, server, "start_timer", `{"title": "Other"}`)
	assert.Equal(t, http.StatusConflict, res.Code)

	res = call(t, server, "stop_timer", "")
	require.Equal(t, http.StatusOK, res.Code)

	res = call(t, server, "get_timer_state", "")
	assert.JSONEq(t, `{"active":false,"title":null,"elapsed_seconds":null}`, res.Body.String())

	started := (<-sub.Out).(Event)
	assert.Equal(t, EventTimerStarted, started.Name)

	stopped := (<-sub.Out).(Event)
	assert.Equal(t, EventTimerStopped, stopped.Name)
	assert.NotEmpty(t, stopped.Id)
}

func TestTimerHistory(t *testing.T) {
	cfg := config.DefaultShellConfig()
	cfg.HistoryFile = filepath.Join(t.TempDir(), "history.json")

	mock := clock.NewMock()
	server, err := New(cfg, &fakeSource{}, mock)
	require.NoError(t, err)

	for _, title := range []string{"Invoices", "Review"} {
		require.Equal(t, http.StatusOK, call(t, server, "start_timer", `{"title": "`+title+`"}`).Code)
		mock.Add(time.Minute)
		require.Equal(t, http.StatusOK, call(t, server, "stop_timer", "").Code)
	}

	res := call(t, server, "get_timer_history", `{"limit": 1}`)
	require.Equal(t, http.StatusOK, res.Code)

	var sessions []timer.Session
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &sessions))
	require.Len(t, sessions, 1)
	assert.Equal(t, "Review", sessions[0].Title)
	assert.Equal(t, time.Minute, sessions[0].Elapsed)

	res = call(t, server, "get_timer_history", `{"limit": -1}`)
	assert.Equal(t, http.StatusBadRequest, res.Code)

	// a new server picks up the sessions saved by the previous one
	reopened, err := New(cfg, &fakeSource{}, mock)
	require.NoError(t, err)

	res = call(t, reopened, "get_timer_history", `{}`)
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &sessions))
	require.Len(t, sessions, 2)
	assert.Equal(t, "Invoices", sessions[1].Title)
}

func TestStartTimerRequiresTitle(t *testing.T) {
	server, _ := newTestServer(t, &fakeSource{})

	res := call(t, server, "start_timer", `{"title": ""}`)
	assert.Equal(t, http.StatusBadRequest, res.Code)
}

func TestGetProcesses(t *testing.T) {
	server, _ := newTestServer(t, &fakeSource{entries: []process.Entry{
		{Pid: 10, Name: "shell", CpuUsage: 0.5, MemoryUsage: 2048},
		{Pid: 11, Name: "builder", CpuUsage: 97.25, MemoryUsage: 4096},
		{Pid: 12, Name: "player", CpuUsage: 3, MemoryUsage: 1024},
	}})

	res := call(t, server, "get_processes", "")
	require.Equal(t, http.StatusOK, res.Code)

	var entries []process.Entry
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &entries))
	require.Len(t, entries, 3)
	assert.True(t, process.IsRanked(entries))
	assert.Equal(t, "builder", entries[0].Name)
	assert.Equal(t, uint64(4096), entries[0].MemoryUsage)
}

func TestGetProcessesEmpty(t *testing.T) {
	server, _ := newTestServer(t, &fakeSource{})

	res := call(t, server, "get_processes", "")
	require.Equal(t, http.StatusOK, res.Code)
	assert.JSONEq(t, `[]`, res.Body.String())
}

func TestGetProcessesQueryFailed(t *testing.T) {
	server, _ := newTestServer(t, &fakeSource{err: errors.New("permission denied")})

	res := call(t, server, "get_processes", "")
	require.Equal(t, http.StatusInternalServerError, res.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &body))
	assert.Equal(t, "QueryFailed", body["kind"])
	assert.Contains(t, body["error"], "permission denied")
}

func TestGetProcessesTimeout(t *testing.T) {
	source := &fakeSource{block: make(chan struct{})}
	defer close(source.block)

	cfg := config.DefaultShellConfig()
	cfg.SnapshotTimeoutMs = 20

	server, err := New(cfg, source, clock.New())
	require.NoError(t, err)

	res := call(t, server, "get_processes", "")
	assert.Equal(t, http.StatusGatewayTimeout, res.Code)
}

func TestToggleDevtoolsEmitsEvent(t *testing.T) {
	server, _ := newTestServer(t, &fakeSource{})

	sub, err := pubsub.Subscribe(server.topics, EventsTopic)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	res := call(t, server, "toggle_devtools", "")
	require.Equal(t, http.StatusOK, res.Code)

	event := (<-sub.Out).(Event)
	assert.Equal(t, EventOpenDevtools, event.Name)
	assert.Nil(t, event.Payload)
}

func TestToggleDevtoolsWithoutListeners(t *testing.T) {
	server, _ := newTestServer(t, &fakeSource{})

	res := call(t, server, "toggle_devtools", "")
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, 1, server.events.Info().Count)
}

func TestGetVersion(t *testing.T) {
	server, _ := newTestServer(t, &fakeSource{})

	res := call(t, server, "get_version", "")
	require.Equal(t, http.StatusOK, res.Code)

	var version GetVersionResponse
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &version))
	assert.Equal(t, config.GetTallyVersion(), version.Version)
	assert.NotEmpty(t, version.OS)
}

func TestGetTopics(t *testing.T) {
	server, _ := newTestServer(t, &fakeSource{})

	res := call(t, server, "get_topics", "")
	require.Equal(t, http.StatusOK, res.Code)

	var topics map[string]pubsub.TopicInfo
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &topics))
	assert.Contains(t, topics, EventsTopic.String())
	assert.Contains(t, topics, pubsub.MetaTopic.String())
}

type wsMessage struct {
	Id     string          `json:"id"`
	Kind   string          `json:"kind"`
	Method string          `json:"method"`
	Err    string          `json:"error"`
	Data   json.RawMessage `json:"data"`
}

func dialWebsocket(t *testing.T, httpServer *httptest.Server) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(httpServer.URL, "http") + "/api/websocket"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) wsMessage {
	t.Helper()

	var message wsMessage
	require.NoError(t, conn.ReadJSON(&message))
	return message
}

func TestWebsocketSubscribeEvents(t *testing.T) {
	server, _ := newTestServer(t, &fakeSource{})
	httpServer := httptest.NewServer(server.Handler())
	defer httpServer.Close()

	conn := dialWebsocket(t, httpServer)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]any{
		"id":     "events-1",
		"kind":   "call",
		"method": "SubscribeEvents",
		"data":   map[string]any{"names": []string{EventOpenDevtools}},
	}))

	started := readMessage(t, conn)
	assert.Equal(t, "methodStarted", started.Kind)
	assert.Equal(t, "events-1", started.Id)

	require.Eventually(t, func() bool {
		return server.events.Info().SubscriberCount == 1
	}, 5*time.Second, 10*time.Millisecond)

	// filtered out by the subscription
	call(t, server, "start_timer", `{"title": "Ignored"}`)

	res, err := http.Post(httpServer.URL+"/api/rpc/toggle_devtools", "application/json", nil)
	require.NoError(t, err)
	res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)

	output := readMessage(t, conn)
	require.Equal(t, "methodOutput", output.Kind)
	assert.Equal(t, "SubscribeEvents", output.Method)

	var event Event
	require.NoError(t, json.Unmarshal(output.Data, &event))
	assert.Equal(t, EventOpenDevtools, event.Name)
}

func TestWebsocketSubscribeTopic(t *testing.T) {
	server, _ := newTestServer(t, &fakeSource{})
	httpServer := httptest.NewServer(server.Handler())
	defer httpServer.Close()

	conn := dialWebsocket(t, httpServer)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]any{
		"id":     "topic-1",
		"kind":   "call",
		"method": "SubscribeTopic",
		"data":   map[string]any{"topic": EventsTopic.String()},
	}))
	assert.Equal(t, "methodStarted", readMessage(t, conn).Kind)

	require.Eventually(t, func() bool {
		return server.events.Info().SubscriberCount == 1
	}, 5*time.Second, 10*time.Millisecond)

	require.Equal(t, http.StatusOK, call(t, server, "toggle_devtools", "").Code)

	output := readMessage(t, conn)
	require.Equal(t, "methodOutput", output.Kind)
	assert.Equal(t, "topic-1", output.Id)

	var event Event
	require.NoError(t, json.Unmarshal(output.Data, &event))
	assert.Equal(t, EventOpenDevtools, event.Name)
}

func TestWebsocketSubscribeTopicErrors(t *testing.T) {
	server, _ := newTestServer(t, &fakeSource{})
	httpServer := httptest.NewServer(server.Handler())
	defer httpServer.Close()

	conn := dialWebsocket(t, httpServer)
	defer conn.Close()

	cases := map[string]string{
		"events#shell":  "invalid id",
		"/missing#none": "doesn't exist",
	}

	for topic, expected := range cases {
		require.NoError(t, conn.WriteJSON(map[string]any{
			"id":     topic,
			"kind":   "call",
			"method": "SubscribeTopic",
			"data":   map[string]any{"topic": topic},
		}))

		assert.Equal(t, "methodStarted", readMessage(t, conn).Kind)

		message := readMessage(t, conn)
		assert.Equal(t, "error", message.Kind, topic)
		assert.Equal(t, topic, message.Id)
		assert.Contains(t, message.Err, expected, topic)
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := config.DefaultShellConfig()
	cfg.SnapshotTimeoutMs = 0

	_, err := New(cfg, &fakeSource{}, nil)
	assert.Error(t, err)
}

func TestWebsocketErrors(t *testing.T) {
	server, _ := newTestServer(t, &fakeSource{})
	httpServer := httptest.NewServer(server.Handler())
	defer httpServer.Close()

	conn := dialWebsocket(t, httpServer)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"kind": `)))
	assert.Equal(t, "error", readMessage(t, conn).Kind)

	require.NoError(t, conn.WriteJSON(map[string]any{"id": "1", "kind": "call", "method": "Nope"}))
	message := readMessage(t, conn)
	assert.Equal(t, "error", message.Kind)
	assert.Contains(t, message.Err, "method")

	require.NoError(t, conn.WriteJSON(map[string]any{"id": "2", "kind": "cancel", "method": "GetHeartbeat"}))
	message = readMessage(t, conn)
	assert.Equal(t, "error", message.Kind)
	assert.Contains(t, message.Err, "not found")
}

func TestWebsocketHeartbeat(t *testing.T) {
	server, _ := newTestServer(t, &fakeSource{})
	httpServer := httptest.NewServer(server.Handler())
	defer httpServer.Close()

	conn := dialWebsocket(t, httpServer)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]any{"id": "hb", "kind": "call", "method": "GetHeartbeat"}))
	assert.Equal(t, "methodStarted", readMessage(t, conn).Kind)

	beat := readMessage(t, conn)
	require.Equal(t, "methodOutput", beat.Kind)
	assert.JSONEq(t, `{"ok":true}`, string(beat.Data))
}

func freePort(t *testing.T) int {
	t.Helper()

	listener, err := net.Listen("tcp", "localhost:0")
	require.NoError(t, err)
	defer listener.Close()

	return listener.Addr().(*net.TCPAddr).Port
}

func TestRunAndShutdown(t *testing.T) {
	cfg := config.DefaultShellConfig()
	cfg.Port = freePort(t)

	server, err := New(cfg, &fakeSource{}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- server.Run(ctx)
	}()

	healthCheck := health.HttpHealthCheck{
		Method: "GET",
		Url:    "http://" + net.JoinHostPort(cfg.BindAddress, strconv.Itoa(cfg.Port)) + "/api/health",
	}
	require.Eventually(t, func() bool {
		return health.CheckHttp(healthCheck)
	}, 5*time.Second, 20*time.Millisecond)

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not shut down")
	}
}
