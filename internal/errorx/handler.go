package errorx

import (
	"errors"
	"fmt"
	"log"
	"runtime/debug"

	"menubot/internal/redact"
)

// ErrorLevel represents the severity of an error
type ErrorLevel int

const (
	// InfoLevel for informational messages
	InfoLevel ErrorLevel = iota
	// WarningLevel for warnings
	WarningLevel
	// ErrLevel for errors
	ErrLevel
	// CriticalLevel for critical errors
	CriticalLevel
)

// Kind classifies a failure on the dispatch path.
type Kind int

const (
	// Internal is anything that does not fit another kind (including recovered panics).
	Internal Kind = iota
	// CapabilityDenied means a role or feature gate failed. Never shown to users.
	CapabilityDenied
	// UnknownSelector means a token did not resolve in the current menu.
	UnknownSelector
	// PersistenceFailure means a durable store write failed.
	PersistenceFailure
	// TransportFailure means an outbound send failed.
	TransportFailure
)

func (k Kind) String() string {
	switch k {
	case CapabilityDenied:
		return "capability_denied"
	case UnknownSelector:
		return "unknown_selector"
	case PersistenceFailure:
		return "persistence_failure"
	case TransportFailure:
		return "transport_failure"
	default:
		return "internal"
	}
}

// Level is the severity the kind is logged at.
func (k Kind) Level() ErrorLevel {
	switch k {
	case CapabilityDenied, UnknownSelector:
		return InfoLevel
	case PersistenceFailure, TransportFailure:
		return ErrLevel
	default:
		return CriticalLevel
	}
}

// Error is a classified failure.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so sentinels below work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Err == nil && t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrCapabilityDenied   = &Error{Kind: CapabilityDenied}
	ErrUnknownSelector    = &Error{Kind: UnknownSelector}
	ErrPersistenceFailure = &Error{Kind: PersistenceFailure}
	ErrTransportFailure   = &Error{Kind: TransportFailure}
)

// E builds a classified error.
func E(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of err, or Internal when err is not classified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Handler provides centralized error handling
type Handler struct {
	// RecoveryEnabled determines if panics should be recovered
	RecoveryEnabled bool
	// LogStackTraces determines if stack traces should be logged
	LogStackTraces bool
	// OnCritical callback for critical errors
	OnCritical func(error)
}

// NewHandler creates a new error handler
func NewHandler() *Handler {
	return &Handler{
		RecoveryEnabled: true,
		LogStackTraces:  true,
	}
}

// Handle processes an error with the given level
func (h *Handler) Handle(err error, level ErrorLevel, msg string) {
	if err == nil {
		return
	}

	formatted := redact.Redact(fmt.Sprintf("[%s] %s: %v", h.levelString(level), msg, err))

	switch level {
	case InfoLevel:
		log.Printf("ℹ️  %s", formatted)
	case WarningLevel:
		log.Printf("⚠️  %s", formatted)
	case ErrLevel:
		log.Printf("❌ %s", formatted)
	case CriticalLevel:
		log.Printf("🚨 %s", formatted)
		if h.LogStackTraces {
			log.Printf("Stack trace:\n%s", debug.Stack())
		}
		if h.OnCritical != nil {
			h.OnCritical(err)
		}
	}
}

// Report logs err at the level its kind implies.
func (h *Handler) Report(err error, msg string) {
	if err == nil {
		return
	}
	h.Handle(err, KindOf(err).Level(), msg)
}

// HandleWithRecovery wraps a function with panic recovery.
// A recovered panic is returned as an Internal error.
func (h *Handler) HandleWithRecovery(fn func() error) (err error) {
	if !h.RecoveryEnabled {
		return fn()
	}

	defer func() {
		if r := recover(); r != nil {
			err = E(Internal, "recover", fmt.Errorf("panic: %v", r))
			h.Handle(err, CriticalLevel, "Panic recovered")
		}
	}()

	return fn()
}

// levelString returns the string representation of an error level
func (h *Handler) levelString(level ErrorLevel) string {
	switch level {
	case InfoLevel:
		return "INFO"
	case WarningLevel:
		return "WARN"
	case ErrLevel:
		return "ERROR"
	case CriticalLevel:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// DefaultHandler is the default error handler instance
var DefaultHandler = NewHandler()

// Handle is a convenience function using the default handler
func Handle(err error, level ErrorLevel, msg string) {
	DefaultHandler.Handle(err, level, msg)
}

// Report is a convenience function using the default handler
func Report(err error, msg string) {
	DefaultHandler.Report(err, msg)
}

// HandleWithRecovery is a convenience function using the default handler
func HandleWithRecovery(fn func() error) error {
	return DefaultHandler.HandleWithRecovery(fn)
}
