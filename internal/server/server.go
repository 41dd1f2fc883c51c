// Package server is the TCP gateway through which clients upload panels and
// tune the display.
package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/coreman2200/rendersphere/internal/diagnostics"
	"github.com/coreman2200/rendersphere/internal/panel"
)

const DefaultReadTimeout = 10 * time.Second

// Ingest reserves the writable panel.
type Ingest interface {
	BeginFill(ctx context.Context, n int) (*panel.Fill, error)
}

// Controls receives the tuning commands.
type Controls interface {
	SetXOffset(uint32)
	SetBrightness(float32)
	SetContrast(float32)
}

// Rates answers the stats query.
type Rates interface {
	RPS() float64
	FPS() float64
}

type Config struct {
	Addr string
	// ReadTimeout bounds each payload read. Waiting for the next command is
	// not bounded.
	ReadTimeout time.Duration
}

// Counters are the gateway totals.
type Counters struct {
	Connections uint64 `json:"connections"`
	Active      int64  `json:"active"`
	Panels      uint64 `json:"panels"`
	Rejected    uint64 `json:"rejected"`
}

type Server struct {
	cfg      Config
	ingest   Ingest
	controls Controls
	rates    Rates
	log      zerolog.Logger
	diag     diagnostics.Sink

	wg          sync.WaitGroup
	connections atomic.Uint64
	active      atomic.Int64
	panels      atomic.Uint64
	rejected    atomic.Uint64
}

func New(cfg Config, ingest Ingest, controls Controls, rates Rates, log zerolog.Logger, diag diagnostics.Sink) *Server {
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	return &Server{
		cfg:      cfg,
		ingest:   ingest,
		controls: controls,
		rates:    rates,
		log:      log,
		diag:     diag,
	}
}

func (s *Server) Counters() Counters {
	return Counters{
		Connections: s.connections.Load(),
		Active:      s.active.Load(),
		Panels:      s.panels.Load(),
		Rejected:    s.rejected.Load(),
	}
}

// ListenAndServe listens on the configured address and serves until ctx is
// done.
func (s *Server) ListenAndServe(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done, then closes every open
// connection and waits for their handlers to return.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()
	defer s.wg.Wait()

	s.log.Info().Str("addr", ln.Addr().String()).Msg("panel gateway listening")
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("server: accept: %w", err)
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serveConn(ctx, conn)
		}()
	}
}

func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	id := uuid.NewString()
	log := s.log.With().Str("session", id).Str("remote", conn.RemoteAddr().String()).Logger()
	s.connections.Add(1)
	s.active.Add(1)
	defer s.active.Add(-1)

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	defer conn.Close()

	log.Info().Msg("client connected")
	err := s.handle(ctx, conn, log)
	switch {
	case err == nil, ctx.Err() != nil:
		log.Info().Msg("client disconnected")
	case errors.Is(err, panel.ErrOversize):
		s.reject(log, err, diagnostics.UploadOversize, "panel upload larger than the panel")
	case errors.Is(err, panel.ErrShortPanel):
		s.reject(log, err, diagnostics.UploadTruncated, "panel upload ended early")
	case errors.Is(err, ErrInvalidCommand), errors.Is(err, ErrInvalidValue):
		s.reject(log, err, diagnostics.InvalidCommand, "connection sent an invalid command")
	default:
		log.Info().Err(err).Msg("connection closed")
	}
}

func (s *Server) reject(log zerolog.Logger, err error, code, summary string) {
	s.rejected.Add(1)
	log.Warn().Err(err).Str("code", code).Msg("dropping connection")
	s.diag.Emit(diagnostics.Rejected(code, summary, map[string]any{"error": err.Error()}))
}

// handle runs commands until the client closes the connection or a command
// fails. Clean EOF between commands returns nil.
func (s *Server) handle(ctx context.Context, conn net.Conn, log zerolog.Logger) error {
	r := bufio.NewReader(conn)
	for {
		if err := conn.SetReadDeadline(time.Time{}); err != nil {
			return err
		}
		cmd, err := r.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if err := conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout)); err != nil {
			return err
		}

		switch cmd {
		case CmdPanel:
			err = s.receivePanel(ctx, r, log)
		case CmdStats:
			_, err = conn.Write(AppendStats(nil, s.rates.RPS(), s.rates.FPS()))
		case CmdXOffset:
			var v uint32
			if v, err = readU32(r); err == nil {
				s.controls.SetXOffset(v)
				log.Info().Uint32("x_offset", v).Msg("offset set")
			}
		case CmdBrightness:
			var v float32
			if v, err = readF32(r); err == nil {
				s.controls.SetBrightness(v)
				log.Info().Float32("brightness", v).Msg("brightness set")
			}
		case CmdContrast:
			var v float32
			if v, err = readF32(r); err == nil {
				s.controls.SetContrast(v)
				log.Info().Float32("contrast", v).Msg("contrast set")
			}
		default:
			return fmt.Errorf("%w: %q", ErrInvalidCommand, cmd)
		}
		if err != nil {
			return err
		}
	}
}

func (s *Server) receivePanel(ctx context.Context, r io.Reader, log zerolog.Logger) error {
	n, err := readU32(r)
	if err != nil {
		return err
	}
	fill, err := s.ingest.BeginFill(ctx, int(n))
	if err != nil {
		return err
	}
	if err := fill.Load(r); err != nil {
		fill.Abort()
		return err
	}
	fill.Commit()
	s.panels.Add(1)
	log.Debug().Uint32("bytes", n).Int("panel", fill.Panel().Index()).Msg("panel published")
	return nil
}
