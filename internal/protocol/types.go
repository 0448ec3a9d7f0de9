// Package protocol defines the JSON envelopes exchanged with an exec
// backend: one Request on stdin, one Response on stdout, per hook call.
package protocol

import "time"

// Version is the only protocol version the daemon speaks.
const Version = 1

// Response statuses.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Request describes one hook invocation. Fields a hook does not use are
// omitted from the wire.
type Request struct {
	Protocol int    `json:"protocol"`
	CallID   string `json:"call_id"`
	Hook     string `json:"hook"`

	Path   string `json:"path,omitempty"`
	Name   string `json:"name,omitempty"`
	Args   string `json:"args,omitempty"`
	ArgLen int64  `json:"arg_len,omitempty"`

	// Capacity is the caller's output buffer size for info, list and
	// version.
	Capacity int `json:"capacity,omitempty"`

	// ImageDigest is the hex BLAKE3 digest of the image at Path, when it
	// was readable.
	ImageDigest string `json:"image_digest,omitempty"`

	Config     map[string]any `json:"config,omitempty"`
	DeadlineAt time.Time      `json:"deadline_at"`
}

// Response is a backend's answer. Result is optional so the hook's default
// applies when a backend only reports success.
type Response struct {
	Status string     `json:"status"`
	Error  string     `json:"error,omitempty"`
	Result *int32     `json:"result,omitempty"`
	Output string     `json:"output,omitempty"`
	Logs   []LogEntry `json:"logs,omitempty"`
}

// LogEntry is a message the backend asks the daemon to log on its behalf.
type LogEntry struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// ResultOr returns Result, or def when the backend left it out.
func (r *Response) ResultOr(def int32) int32 {
	if r.Result == nil {
		return def
	}
	return *r.Result
}
