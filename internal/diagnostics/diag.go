package diagnostics

import "time"

type Severity string

const (
	Info Severity = "info"
	Warn Severity = "warning"
	Err  Severity = "error"
)

// Codes pushed to diagnostics clients.
const (
	FrameRejected = "FRAME.REJECTED"
	OutputBlanked = "OUTPUT.BLANKED"
	SourceDone    = "SOURCE.DONE"
	SinkFault     = "SINK.FAULT"
)

type Diagnostic struct {
	Severity       Severity       `json:"severity"`
	Code           string         `json:"code"`
	Summary        string         `json:"summary"`
	Detail         string         `json:"detail,omitempty"`
	LikelyCauses   []string       `json:"likely_causes,omitempty"`
	SuggestedFixes []string       `json:"suggested_fixes,omitempty"`
	Evidence       map[string]any `json:"evidence,omitempty"`
	Time           time.Time      `json:"time"`
}

func New(sev Severity, code, summary string) Diagnostic {
	return Diagnostic{Severity: sev, Code: code, Summary: summary, Time: time.Now()}
}

// Rejected describes a frame that did not match the wall.
func Rejected(err error, got, want int) Diagnostic {
	d := New(Warn, FrameRejected, "Frame rejected")
	d.Detail = err.Error()
	d.LikelyCauses = []string{"sender uses a different panel geometry", "frame was truncated in transit"}
	d.SuggestedFixes = []string{"send exactly rows*cols bytes, row-major, one byte per pixel"}
	d.Evidence = map[string]any{"got_bytes": got, "want_bytes": want}
	return d
}

// Fault reports a sink that could not drive its outputs.
func Fault(err error, driver string) Diagnostic {
	d := New(Err, SinkFault, "Output driver fault")
	d.Detail = err.Error()
	d.LikelyCauses = []string{"GPIO line claimed by another process", "missing permissions on the GPIO device"}
	d.Evidence = map[string]any{"driver": driver}
	return d
}
