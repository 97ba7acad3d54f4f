// Package autosubmit provides the incremental credential validation and
// auto-submit decision engine for a login front end: as the user types a
// password it is debounced, checked against an external authentication
// backend off the interaction thread, and the session is admitted the
// moment a correct credential is recognized, without an explicit submit
// keystroke.
//
// The package is designed around a single interaction thread that must
// never block. [Engine] methods called on keystroke paths (HandleKey,
// Submit, Cancel) only mutate in-memory state; the backend conversation
// runs on a dedicated goroutine per validation request and its outcome is
// delivered back tagged with the credential buffer generation it answers.
// Outcomes for superseded generations are silently discarded, so the last
// keystroke always wins and no queue of stale checks can build up.
//
// # Architecture boundaries
//
// autosubmit is the public surface. It exposes [Engine], [Builder],
// [Config], the [Notifier] presentation contract, audit sinks, and the
// in-process metrics snapshot. The authentication backend is consumed
// through the narrow [backend.Backend] conversation contract and is never
// reimplemented here; visual rendering, session selection, and power
// management belong to the surrounding greeter.
//
// # What this package must NOT do
//
//   - Log, persist, or expose credential material or its length in any
//     audit event, error string, or metric.
//   - Block a keystroke path on backend I/O.
//   - Retry a rejected credential on its own; only further typing (or an
//     explicit Submit) triggers another check.
//
// # Secret handling
//
// The credential buffer and every per-request snapshot of it are owned
// zeroizable byte buffers. The per-request snapshot is overwritten, not
// merely dereferenced, as soon as the backend answers; the live buffer is
// overwritten on admission, lockout, cancellation, shutdown, and every
// abandonment path. A plain rejection keeps the live buffer so the user
// can type past the wrong guess.
package autosubmit
