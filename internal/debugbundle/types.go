// Package debugbundle is the process-lifecycle core of the debug-bundle
// service: it serializes runs of an external diagnostic-collector binary
// on behalf of one node, captures its artifacts, and records durable
// metadata about the run. See SPEC_FULL.md for the full component
// breakdown.
package debugbundle

import (
	"time"

	"github.com/google/uuid"
)

// JobID names one collector invocation.
type JobID = uuid.UUID

// SCRAMMechanism is the SASL mechanism used by the authn variant.
type SCRAMMechanism string

const (
	SCRAMSHA256 SCRAMMechanism = "SCRAM-SHA-256"
	SCRAMSHA512 SCRAMMechanism = "SCRAM-SHA-512"
)

// SCRAMAuth is the `authn` parameter variant from spec.md §3.
type SCRAMAuth struct {
	Username  string
	Password  string
	Mechanism SCRAMMechanism
}

// Parameters is DebugBundleParameters from spec.md §3: every field is
// optional and, when set, maps to its own group of collector-binary
// arguments (nothing when unset).
type Parameters struct {
	Authn                        *SCRAMAuth
	ControllerLogsSizeLimitBytes *uint64
	CPUProfilerWaitSeconds       *uint64
	LogsSince                    string
	LogsSizeLimitBytes           *uint64
	LogsUntil                    string
	MetricsIntervalSeconds       *uint64
	Partition                    []string
	TLSEnabled                   *bool
	TLSInsecureSkipVerify        *bool
	K8sNamespace                 string
}

// Status is the derived run status from spec.md §3.
type Status string

const (
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// RunMetadata is the durable record spec.md §3 requires to persist in
// the KV store: one entry, replaced wholesale on every run.
type RunMetadata struct {
	CreatedAt             time.Time
	JobID                 JobID
	BundleFilePath        string
	ProcessOutputFilePath string
	SHA256OfBundle        string // empty if the run failed
	WaitStatus            *WaitStatus
}

// WaitStatus is the terminal outcome of the child process.
type WaitStatus struct {
	ExitCode int
}

// Success reports whether this terminal status represents exit code 0.
func (w *WaitStatus) Success() bool {
	return w != nil && w.ExitCode == 0
}

// StatusOf derives the Status enum for a RunMetadata per spec.md §3.
func (m *RunMetadata) StatusOf() Status {
	return statusFromWaitStatus(m.WaitStatus)
}

func statusFromWaitStatus(ws *WaitStatus) Status {
	switch {
	case ws == nil:
		return StatusRunning
	case ws.Success():
		return StatusSuccess
	default:
		return StatusError
	}
}

// Snapshot is the read payload returned by Status(), spec.md §4.E.
type Snapshot struct {
	JobID       JobID
	Status      Status
	CreatedAt   time.Time
	FileName    string
	FileSize    *int64
	StdoutLines []string
	StderrLines []string
}
