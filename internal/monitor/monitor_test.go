package monitor

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreman2200/rendersphere/internal/diagnostics"
	"github.com/coreman2200/rendersphere/internal/render"
)

func newTestMonitor(t *testing.T) (*Monitor, *render.Params, *[]string, *httptest.Server) {
	t.Helper()
	params := render.NewParams(render.Snapshot{Contrast: 1})
	var shown []string
	m := New(Options{
		Health: func() Health {
			return Health{Status: "ok", RPS: 10, Params: params.Snapshot()}
		},
		Controls: params,
		ShowPattern: func(name string) error {
			if name != "hue" {
				return errors.New("unknown pattern " + name)
			}
			shown = append(shown, name)
			return nil
		},
	}, zerolog.Nop())
	ts := httptest.NewServer(m.Handler())
	t.Cleanup(ts.Close)
	return m, params, &shown, ts
}

func wsURL(ts *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + path
}

func TestHealth(t *testing.T) {
	_, _, _, ts := newTestMonitor(t)
	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

	var h Health
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&h))
	assert.Equal(t, "ok", h.Status)
	assert.Equal(t, 10.0, h.RPS)
	assert.GreaterOrEqual(t, h.UptimeS, 0.0)
}

func TestControlAppliesParams(t *testing.T) {
	_, params, shown, ts := newTestMonitor(t)
	c, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "/control"), nil)
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte(`{"x_offset":56,"contrast":1.5,"pattern":"hue"}`)))
	var h Health
	require.NoError(t, c.ReadJSON(&h))
	assert.Equal(t, render.Snapshot{XOffset: 56, Contrast: 1.5}, h.Params)
	assert.Equal(t, render.Snapshot{XOffset: 56, Contrast: 1.5}, params.Snapshot())
	assert.Equal(t, []string{"hue"}, *shown)

	// a partial message leaves the rest alone
	require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte(`{"brightness":-20}`)))
	require.NoError(t, c.ReadJSON(&h))
	assert.Equal(t, render.Snapshot{XOffset: 56, Brightness: -20, Contrast: 1.5}, params.Snapshot())

	require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte(`{"pattern":"nope"}`)))
	var reply map[string]any
	require.NoError(t, c.ReadJSON(&reply))
	assert.Contains(t, reply["error"], "unknown pattern")

	require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte(`not json`)))
	reply = nil
	require.NoError(t, c.ReadJSON(&reply))
	assert.NotEmpty(t, reply["error"])
}

func TestDiagFeed(t *testing.T) {
	m, _, _, ts := newTestMonitor(t)
	m.Push(diagnostics.Stale(4 * time.Second))

	c, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "/diag"), nil)
	require.NoError(t, err)
	defer c.Close()
	require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))

	var d diagnostics.Diagnostic
	require.NoError(t, c.ReadJSON(&d))
	assert.Equal(t, diagnostics.SensorStale, d.Code, "backlog is replayed")

	m.Push(diagnostics.Recovered(9.5))
	require.NoError(t, c.ReadJSON(&d))
	assert.Equal(t, diagnostics.SensorOK, d.Code)
	assert.Equal(t, 9.5, d.Evidence["rps"])
}

func TestBacklogIsBounded(t *testing.T) {
	m, _, _, _ := newTestMonitor(t)
	for i := 0; i < backlog+10; i++ {
		m.Push(diagnostics.Recovered(float64(i)))
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	require.Len(t, m.recent, backlog)
	assert.Equal(t, float64(10), m.recent[0].Evidence["rps"])
}

func TestPushNeverWaitsOnSlowClient(t *testing.T) {
	m, _, _, _ := newTestMonitor(t)

	// a client whose writer is stuck: its queue is full and nobody drains it
	stuck := &diagClient{send: make(chan diagnostics.Diagnostic, 1), done: make(chan struct{})}
	stuck.send <- diagnostics.Recovered(0)
	m.mu.Lock()
	m.diagClients[stuck] = true
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			m.Push(diagnostics.Stale(time.Second))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Push blocked on a stalled client")
	}
	assert.EqualValues(t, 100, m.Dropped())
	assert.Len(t, stuck.send, 1)
}
