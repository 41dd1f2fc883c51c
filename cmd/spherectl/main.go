// Command spherectl talks to a running rendersphere over the panel gateway.
package main

import (
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/coreman2200/rendersphere/internal/layout"
	"github.com/coreman2200/rendersphere/internal/panel"
	"github.com/coreman2200/rendersphere/internal/pattern"
	"github.com/coreman2200/rendersphere/internal/server"
)

const usage = `usage: spherectl [flags] <command> [arg]

commands:
  upload <pattern>   publish a built-in pattern (%v)
  stats              print rotation and panel rates
  offset <n>         rotate the image by n slices
  brightness <f>     set brightness
  contrast <f>       set contrast

flags:
`

func main() {
	var (
		addr    = flag.String("addr", "127.0.0.1:9999", "rendersphere gateway address")
		format  = flag.String("format", "xRGB", "pixel format of uploads: xRGB | BGRx")
		timeout = flag.Duration("timeout", 5*time.Second, "dial and reply timeout")
	)
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), usage, pattern.Kinds())
		flag.PrintDefaults()
	}
	flag.Parse()
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}
	req, wantReply, err := build(args, *format)
	if err != nil {
		log.Error().Err(err).Msg("bad command")
		flag.Usage()
		os.Exit(2)
	}

	conn, err := net.DialTimeout("tcp", *addr, *timeout)
	if err != nil {
		log.Fatal().Err(err).Str("addr", *addr).Msg("dial failed")
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(*timeout))

	if _, err := conn.Write(req); err != nil {
		log.Fatal().Err(err).Msg("send failed")
	}
	if !wantReply {
		log.Info().Str("command", args[0]).Int("bytes", len(req)).Msg("sent")
		return
	}

	reply := make([]byte, server.StatsReplySize)
	if _, err := io.ReadFull(conn, reply); err != nil {
		log.Fatal().Err(err).Msg("read reply")
	}
	rps, fps, err := server.ParseStats(reply)
	if err != nil {
		log.Fatal().Err(err).Msg("bad reply")
	}
	fmt.Printf("rps %.3f\nfps %.3f\n", rps, fps)
}

// build encodes one command. Uploads use the reference sphere geometry.
func build(args []string, format string) ([]byte, bool, error) {
	arg := func() (string, error) {
		if len(args) < 2 {
			return "", fmt.Errorf("%s needs an argument", args[0])
		}
		return args[1], nil
	}

	switch args[0] {
	case "stats":
		return []byte{server.CmdStats}, true, nil
	case "upload":
		name, err := arg()
		if err != nil {
			return nil, false, err
		}
		f, err := panel.ParseFormat(format)
		if err != nil {
			return nil, false, err
		}
		l := layout.Default()
		data, err := pattern.Bytes(pattern.Kind(name), l.Slices(), l.Height(), f, l.Quadrants)
		if err != nil {
			return nil, false, err
		}
		return server.AppendPanel(nil, data), false, nil
	case "offset":
		s, err := arg()
		if err != nil {
			return nil, false, err
		}
		v, err := strconv.ParseUint(s, 10, 32)
		if err != nil {
			return nil, false, err
		}
		return server.AppendXOffset(nil, uint32(v)), false, nil
	case "brightness", "contrast":
		s, err := arg()
		if err != nil {
			return nil, false, err
		}
		v, err := strconv.ParseFloat(s, 32)
		if err != nil {
			return nil, false, err
		}
		if args[0] == "brightness" {
			return server.AppendBrightness(nil, float32(v)), false, nil
		}
		return server.AppendContrast(nil, float32(v)), false, nil
	default:
		return nil, false, fmt.Errorf("unknown command %q", args[0])
	}
}
