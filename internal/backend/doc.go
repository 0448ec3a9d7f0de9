// Package backend discovers and runs out-of-process hook implementations.
//
// A backend is a directory holding manifest.yaml and an executable
// entrypoint. Each hook call spawns the entrypoint once, writes one JSON
// request on stdin and reads one JSON response from stdout (see
// internal/protocol).
//
// Timeout handling:
//   - every call is bounded by Options.Timeout
//   - on timeout or caller cancellation SIGTERM is sent, then SIGKILL after
//     Options.Grace
//   - a timed-out call reports -ETIMEDOUT, a cancelled one -ECANCELED
//
// Only the hooks a manifest declares are attached; the rest keep their
// default stubs.
package backend
