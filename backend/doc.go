// Package backend defines the conversation contract between the
// auto-submit engine and an authentication authority, plus local
// implementations in subpackages: shadowauth verifies against the host
// shadow database, suauth drives su(1) behind a pty for hash formats no
// Go crypter supports, and memauth is a deterministic in-memory backend
// for tests and demos.
//
// The contract is deliberately conversational. Begin opens a scoped
// exchange for one username, SubmitSecret delivers the credential once,
// and End releases whatever the implementation holds. The engine calls
// End on every path, including timeouts and cancellation.
package backend
