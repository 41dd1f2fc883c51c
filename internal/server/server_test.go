package server

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"math"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreman2200/rendersphere/internal/diagnostics"
	"github.com/coreman2200/rendersphere/internal/panel"
	"github.com/coreman2200/rendersphere/internal/render"
	"github.com/coreman2200/rendersphere/internal/timing"
)

type rates struct {
	pacing *timing.Pacing
	pool   *panel.Pool
}

func (r rates) RPS() float64 { return r.pacing.RPS() }
func (r rates) FPS() float64 { return r.pool.FPS() }

type fixture struct {
	pool   *panel.Pool
	params *render.Params
	srv    *Server
	addr   string
	cancel context.CancelFunc
	done   chan error

	mu    sync.Mutex
	diags []diagnostics.Diagnostic
}

func start(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		pool:   panel.NewPool(8, 2),
		params: render.NewParams(render.Snapshot{Contrast: 1}),
		done:   make(chan error, 1),
	}
	pacing := timing.NewPacing(100*time.Millisecond, 224)
	f.srv = New(Config{ReadTimeout: time.Second}, f.pool, f.params, rates{pacing, f.pool}, zerolog.Nop(),
		func(d diagnostics.Diagnostic) {
			f.mu.Lock()
			f.diags = append(f.diags, d)
			f.mu.Unlock()
		})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	f.addr = ln.Addr().String()

	ctx, cancel := context.WithCancel(context.Background())
	f.cancel = cancel
	go func() { f.done <- f.srv.Serve(ctx, ln) }()
	t.Cleanup(func() {
		cancel()
		<-f.done
	})
	return f
}

func (f *fixture) dial(t *testing.T) net.Conn {
	t.Helper()
	c, err := net.Dial("tcp", f.addr)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func (f *fixture) codes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, d := range f.diags {
		out = append(out, d.Code)
	}
	return out
}

// closedByPeer waits for the server to drop the connection.
func closedByPeer(t *testing.T, c net.Conn) {
	t.Helper()
	require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err := c.Read(make([]byte, 1))
	require.Error(t, err)
	var ne net.Error
	if errors.As(err, &ne) {
		assert.False(t, ne.Timeout(), "connection should be closed, not idle")
	}
}

func queryStats(t *testing.T, c net.Conn) (float64, float64) {
	t.Helper()
	_, err := c.Write([]byte{CmdStats})
	require.NoError(t, err)
	reply := make([]byte, StatsReplySize)
	_, err = io.ReadFull(c, reply)
	require.NoError(t, err)
	rps, fps, err := ParseStats(reply)
	require.NoError(t, err)
	return rps, fps
}

func TestUploadThenStatsWithoutPulses(t *testing.T) {
	f := start(t)
	c := f.dial(t)

	data := bytes.Repeat([]byte{0, 1, 2, 3}, 8)
	_, err := c.Write(AppendPanel(nil, data))
	require.NoError(t, err)

	rps, fps := queryStats(t, c)
	assert.False(t, math.IsNaN(rps) || math.IsInf(rps, 0))
	assert.InDelta(t, 1e9/float64(224*100*time.Millisecond), rps, 1e-9)
	assert.Zero(t, fps)

	assert.EqualValues(t, 1, f.pool.Published())
	pn := f.pool.AcquireDraw()
	r, g, b := pn.RGB(0, 0, panel.XRGB)
	assert.Equal(t, []uint8{1, 2, 3}, []uint8{r, g, b})
	r, g, b = pn.RGB(1, 7, panel.XRGB)
	assert.Equal(t, []uint8{0, 0, 0}, []uint8{r, g, b}, "bytes past L are black")
}

func TestTuningCommands(t *testing.T) {
	f := start(t)
	c := f.dial(t)

	var req []byte
	req = AppendXOffset(req, 300)
	req = AppendBrightness(req, -12.5)
	req = AppendContrast(req, 1.75)
	_, err := c.Write(req)
	require.NoError(t, err)

	// the stats reply orders us after the tuning commands
	queryStats(t, c)
	assert.Equal(t, render.Snapshot{XOffset: 300, Brightness: -12.5, Contrast: 1.75}, f.params.Snapshot())
}

func TestOversizeUploadDropsConnection(t *testing.T) {
	f := start(t)
	before := f.pool.Indices()

	c := f.dial(t)
	req := []byte{CmdPanel}
	req = binary.BigEndian.AppendUint32(req, uint32(f.pool.Capacity()+1))
	_, err := c.Write(req)
	require.NoError(t, err)

	closedByPeer(t, c)
	assert.Equal(t, before, f.pool.Indices())
	assert.Zero(t, f.pool.Published())
	require.Eventually(t, func() bool { return len(f.codes()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{diagnostics.UploadOversize}, f.codes())
}

func TestTruncatedUploadIsNotPublished(t *testing.T) {
	f := start(t)
	before := f.pool.Indices()

	c := f.dial(t)
	req := []byte{CmdPanel}
	req = binary.BigEndian.AppendUint32(req, 40)
	req = append(req, make([]byte, 10)...)
	_, err := c.Write(req)
	require.NoError(t, err)
	require.NoError(t, c.(*net.TCPConn).CloseWrite())

	require.Eventually(t, func() bool { return f.srv.Counters().Rejected == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, before.ToDraw, f.pool.Indices().ToDraw)
	assert.Zero(t, f.pool.Published())
	assert.Equal(t, []string{diagnostics.UploadTruncated}, f.codes())

	// the fill slot was released
	c2 := f.dial(t)
	_, err = c2.Write(AppendPanel(nil, make([]byte, 4)))
	require.NoError(t, err)
	queryStats(t, c2)
	assert.EqualValues(t, 1, f.pool.Published())
}

func TestInvalidCommandDropsConnection(t *testing.T) {
	f := start(t)
	c := f.dial(t)
	_, err := c.Write([]byte{'z', 0, 0, 0, 1})
	require.NoError(t, err)
	closedByPeer(t, c)

	assert.Equal(t, render.Snapshot{Contrast: 1}, f.params.Snapshot())
	require.Eventually(t, func() bool { return len(f.codes()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{diagnostics.InvalidCommand}, f.codes())
}

func TestNonFiniteValueRejected(t *testing.T) {
	f := start(t)
	c := f.dial(t)
	_, err := c.Write(AppendContrast(nil, float32(math.NaN())))
	require.NoError(t, err)
	closedByPeer(t, c)
	assert.Equal(t, float32(1), f.params.Snapshot().Contrast)
}

func TestShutdownClosesConnections(t *testing.T) {
	f := start(t)
	c := f.dial(t)
	queryStats(t, c)
	require.EqualValues(t, 1, f.srv.Counters().Active)

	f.cancel()
	select {
	case err := <-f.done:
		require.NoError(t, err)
		f.done <- err
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return")
	}
	closedByPeer(t, c)
	assert.Zero(t, f.srv.Counters().Active)
}
