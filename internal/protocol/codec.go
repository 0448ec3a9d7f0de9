package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

var (
	// ErrNoResponse means the backend wrote nothing to stdout.
	ErrNoResponse = errors.New("backend produced no output on stdout")
	// ErrInvalidResponse wraps replies that parse but break the envelope
	// rules.
	ErrInvalidResponse = errors.New("invalid backend response")
)

// Validate checks the fields every request must carry.
func (r *Request) Validate() error {
	if r.Protocol != Version {
		return fmt.Errorf("unsupported protocol version %d (want %d)", r.Protocol, Version)
	}
	if r.Hook == "" {
		return errors.New("request has no hook")
	}
	return nil
}

// WriteRequest validates req and writes it to w as a single JSON line.
func WriteRequest(w io.Writer, req *Request) error {
	if err := req.Validate(); err != nil {
		return err
	}
	b, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	if _, err := w.Write(append(b, '\n')); err != nil {
		return fmt.Errorf("write request: %w", err)
	}
	return nil
}

// ParseResponse decodes a backend's stdout. Leading and trailing whitespace
// is ignored and unknown fields are tolerated so newer backends keep
// working.
func ParseResponse(out []byte) (*Response, error) {
	out = bytes.TrimSpace(out)
	if len(out) == 0 {
		return nil, ErrNoResponse
	}
	var resp Response
	if err := json.Unmarshal(out, &resp); err != nil {
		return nil, fmt.Errorf("%w: not JSON: %v", ErrInvalidResponse, err)
	}
	if err := resp.Validate(); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Validate enforces the status rules: "ok", or "error" with a message.
func (r *Response) Validate() error {
	switch r.Status {
	case StatusOK:
		return nil
	case StatusError:
		if r.Error == "" {
			return fmt.Errorf("%w: status error without a message", ErrInvalidResponse)
		}
		return nil
	case "":
		return fmt.Errorf("%w: missing status", ErrInvalidResponse)
	default:
		return fmt.Errorf("%w: unknown status %q", ErrInvalidResponse, r.Status)
	}
}
