package api

import "github.com/mattjoyce/kpmd/internal/hook"

// CallRequest is the JSON body for POST /v1/kpm/{command}. Which fields
// matter depends on the command.
type CallRequest struct {
	Path     string  `json:"path,omitempty"`
	Name     string  `json:"name,omitempty"`
	Args     *string `json:"args,omitempty"`
	Capacity int     `json:"capacity,omitempty"`
}

// CallResponse reports what the caller observed at its result address.
type CallResponse struct {
	Command     string `json:"command"`
	ControlCode uint64 `json:"control_code"`
	Result      int32  `json:"result"`
	Errno       string `json:"errno"`
	Output      string `json:"output,omitempty"`
}

// HooksResponse is returned by GET /v1/hooks.
type HooksResponse struct {
	Attached int               `json:"attached"`
	Hooks    []hook.SlotStatus `json:"hooks"`
}

// ErrorResponse is returned on errors
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthzResponse is returned by GET /healthz.
type HealthzResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	HooksAttached int    `json:"hooks_attached"`
}
