package autosubmit

import "errors"

var (
	// ErrRejectedCredential reports that the backend proved the typed
	// credential wrong. Expected and frequent; counted toward lockout.
	ErrRejectedCredential = errors.New("credential rejected")
	// ErrBackendUnavailable reports that the authentication backend could
	// not be reached or timed out. Not counted toward lockout.
	ErrBackendUnavailable = errors.New("authentication backend unavailable")
	// ErrBackendError reports an unexpected backend condition (for example
	// a malformed username). Not counted toward lockout.
	ErrBackendError = errors.New("authentication backend error")
	// ErrLockoutActive is a policy-level refusal: too many consecutive
	// rejections, validation is paused until the lockout window passes.
	ErrLockoutActive = errors.New("lockout active")
	// ErrEngineClosed is returned by operations on a closed engine.
	ErrEngineClosed = errors.New("engine closed")
	// ErrEngineNotReady is returned when the engine is used before Build.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrNoUserSelected is returned when validation is requested before a
	// username has been selected.
	ErrNoUserSelected = errors.New("no user selected")
	// ErrBufferEmpty is returned by Submit when nothing has been typed.
	ErrBufferEmpty = errors.New("credential buffer empty")
	// ErrReceiptUnavailable reports that an admission receipt could not be
	// minted. Admission itself still succeeds.
	ErrReceiptUnavailable = errors.New("admission receipt unavailable")
)
