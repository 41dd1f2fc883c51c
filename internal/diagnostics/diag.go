package diagnostics

import "time"

type Severity string

const (
	Info Severity = "info"
	Warn Severity = "warning"
	Err  Severity = "error"
)

// Codes reported by the display.
const (
	SensorStale     = "SENSOR.STALE"
	SensorOK        = "SENSOR.OK"
	SensorFailed    = "SENSOR.FAILED"
	UploadOversize  = "UPLOAD.OVERSIZE"
	UploadTruncated = "UPLOAD.TRUNCATED"
	InvalidCommand  = "PROTO.INVALID_COMMAND"
	RenderFailed    = "RENDER.FAILED"
)

type Diagnostic struct {
	Time           time.Time      `json:"time"`
	Severity       Severity       `json:"severity"`
	Code           string         `json:"code"`
	Summary        string         `json:"summary"`
	Detail         string         `json:"detail,omitempty"`
	LikelyCauses   []string       `json:"likely_causes,omitempty"`
	SuggestedFixes []string       `json:"suggested_fixes,omitempty"`
	Evidence       map[string]any `json:"evidence,omitempty"`
}

// Sink receives diagnostics. A nil Sink drops them.
type Sink func(Diagnostic)

func (s Sink) Emit(d Diagnostic) {
	if s == nil {
		return
	}
	if d.Time.IsZero() {
		d.Time = time.Now()
	}
	s(d)
}

func Stale(since time.Duration) Diagnostic {
	return Diagnostic{
		Severity:       Warn,
		Code:           SensorStale,
		Summary:        "no rotation pulse received",
		LikelyCauses:   []string{"sphere stopped", "hall sensor disconnected", "magnet out of range"},
		SuggestedFixes: []string{"check the motor", "check the sensor wiring and pin configuration"},
		Evidence:       map[string]any{"silent_ms": since.Milliseconds()},
	}
}

func Recovered(rps float64) Diagnostic {
	return Diagnostic{
		Severity: Info,
		Code:     SensorOK,
		Summary:  "rotation pulses resumed",
		Evidence: map[string]any{"rps": rps},
	}
}

func Failure(code, summary string, err error) Diagnostic {
	d := Diagnostic{Severity: Err, Code: code, Summary: summary}
	if err != nil {
		d.Detail = err.Error()
	}
	return d
}

func Rejected(code, summary string, evidence map[string]any) Diagnostic {
	return Diagnostic{Severity: Warn, Code: code, Summary: summary, Evidence: evidence}
}
