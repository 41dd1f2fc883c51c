// Package monitor serves the HTTP side channel: health, live tuning and a
// diagnostics feed over websockets.
package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/coreman2200/rendersphere/internal/diagnostics"
	"github.com/coreman2200/rendersphere/internal/render"
	"github.com/coreman2200/rendersphere/internal/server"
)

// backlog is how many recent diagnostics a new /diag client receives.
const backlog = 32

// diagQueue bounds the diagnostics waiting for one slow /diag client. Beyond
// it new records are dropped for that client.
const diagQueue = 2 * backlog

type Health struct {
	Status          string          `json:"status"`
	UptimeS         float64         `json:"uptime_s"`
	RPS             float64         `json:"rps"`
	FPS             float64         `json:"fps"`
	SliceIntervalUS float64         `json:"slice_interval_us"`
	Pulses          uint64          `json:"pulses"`
	Render          render.Stats    `json:"render"`
	Gateway         server.Counters `json:"gateway"`
	Params          render.Snapshot `json:"params"`
	Driver          string          `json:"driver"`
	Sensor          string          `json:"sensor"`
}

// Control is a /control message. Absent fields are left unchanged.
type Control struct {
	XOffset    *uint32  `json:"x_offset,omitempty"`
	Brightness *float32 `json:"brightness,omitempty"`
	Contrast   *float32 `json:"contrast,omitempty"`
	Pattern    string   `json:"pattern,omitempty"`
}

type Options struct {
	Addr     string
	Health   func() Health
	Controls server.Controls
	// ShowPattern publishes a built-in panel by name.
	ShowPattern func(name string) error
}

type Monitor struct {
	opts    Options
	log     zerolog.Logger
	started time.Time
	up      websocket.Upgrader

	mu          sync.Mutex
	diagClients map[*diagClient]bool
	ctlClients  map[*websocket.Conn]bool
	recent      []diagnostics.Diagnostic
	dropped     uint64
}

// diagClient is fed by Push and drained by its own writer goroutine, so
// Push never waits on the network.
type diagClient struct {
	conn *websocket.Conn
	send chan diagnostics.Diagnostic
	done chan struct{}
}

func New(opts Options, log zerolog.Logger) *Monitor {
	return &Monitor{
		opts:        opts,
		log:         log,
		started:     time.Now(),
		up:          websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		diagClients: map[*diagClient]bool{},
		ctlClients:  map[*websocket.Conn]bool{},
	}
}

func (m *Monitor) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", m.HandleHealth)
	mux.HandleFunc("/control", m.HandleControlWS)
	mux.HandleFunc("/diag", m.HandleDiagWS)
	return withCORS(mux)
}

// ListenAndServe serves until ctx is done.
func (m *Monitor) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", m.opts.Addr)
	if err != nil {
		return fmt.Errorf("monitor: listen %s: %w", m.opts.Addr, err)
	}
	return m.Serve(ctx, ln)
}

func (m *Monitor) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:      m.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	stop := context.AfterFunc(ctx, func() {
		_ = srv.Close()
		m.closeClients()
	})
	defer stop()

	m.log.Info().Str("addr", ln.Addr().String()).Msg("monitor listening")
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("monitor: %w", err)
	}
	return nil
}

func (m *Monitor) health() Health {
	var h Health
	if m.opts.Health != nil {
		h = m.opts.Health()
	}
	h.UptimeS = time.Since(m.started).Seconds()
	return h
}

func (m *Monitor) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(m.health())
}

func (m *Monitor) HandleControlWS(w http.ResponseWriter, r *http.Request) {
	conn, err := m.up.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	m.mu.Lock()
	m.ctlClients[conn] = true
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		delete(m.ctlClients, conn)
		m.mu.Unlock()
		conn.Close()
	}()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg Control
		if err := json.Unmarshal(data, &msg); err != nil {
			_ = conn.WriteJSON(map[string]string{"error": err.Error()})
			continue
		}
		if err := m.apply(msg); err != nil {
			_ = conn.WriteJSON(map[string]string{"error": err.Error()})
			continue
		}
		_ = conn.WriteJSON(m.health())
	}
}

func (m *Monitor) apply(msg Control) error {
	c := m.opts.Controls
	if c != nil {
		if msg.XOffset != nil {
			c.SetXOffset(*msg.XOffset)
		}
		if msg.Brightness != nil {
			c.SetBrightness(*msg.Brightness)
		}
		if msg.Contrast != nil {
			c.SetContrast(*msg.Contrast)
		}
	}
	if msg.Pattern != "" {
		if m.opts.ShowPattern == nil {
			return errors.New("patterns are not available")
		}
		if err := m.opts.ShowPattern(msg.Pattern); err != nil {
			return err
		}
	}
	m.log.Info().Interface("control", msg).Msg("control applied")
	return nil
}

func (m *Monitor) HandleDiagWS(w http.ResponseWriter, r *http.Request) {
	conn, err := m.up.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := &diagClient{
		conn: conn,
		send: make(chan diagnostics.Diagnostic, diagQueue),
		done: make(chan struct{}),
	}
	m.mu.Lock()
	m.diagClients[c] = true
	for _, d := range m.recent {
		c.send <- d
	}
	m.mu.Unlock()

	go m.writeLoop(c)
	go func() {
		defer func() {
			m.mu.Lock()
			delete(m.diagClients, c)
			m.mu.Unlock()
			close(c.done)
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (m *Monitor) writeLoop(c *diagClient) {
	for {
		select {
		case <-c.done:
			return
		case d := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(200 * time.Millisecond))
			if err := c.conn.WriteJSON(d); err != nil {
				m.log.Debug().Err(err).Msg("write diagnostic")
			}
		}
	}
}

// Push records d and queues it for every /diag client without blocking. It
// is a diagnostics.Sink.
func (m *Monitor) Push(d diagnostics.Diagnostic) {
	if d.Time.IsZero() {
		d.Time = time.Now()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recent = append(m.recent, d)
	if len(m.recent) > backlog {
		m.recent = m.recent[len(m.recent)-backlog:]
	}
	for c := range m.diagClients {
		select {
		case c.send <- d:
		default:
			m.dropped++
		}
	}
}

// Dropped counts diagnostics discarded for clients that fell behind.
func (m *Monitor) Dropped() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dropped
}

// closeClients drops every websocket; http.Server.Close leaves hijacked
// connections open.
func (m *Monitor) closeClients() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for c := range m.diagClients {
		_ = c.conn.Close()
	}
	for c := range m.ctlClients {
		_ = c.Close()
	}
}

func withCORS(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		h.ServeHTTP(w, r)
	})
}
