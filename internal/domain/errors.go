package domain

import "errors"

var (
	// ErrNotConnected is returned when a commit is attempted without a connected wallet.
	ErrNotConnected = errors.New("wallet not connected")
	// ErrLoadFailure wraps quiz data source failures; the session never starts.
	ErrLoadFailure = errors.New("quiz load failed")
	// ErrChainRejected indicates the commitment write failed or was rejected.
	ErrChainRejected = errors.New("commitment rejected by chain")
	// ErrBackendRejected indicates the plaintext answers were refused after the
	// commitment was accepted on-chain. The two channels are out of sync.
	ErrBackendRejected = errors.New("answers rejected by backend")

	// ErrInvalidPhase is returned when an operation is not allowed in the current phase.
	ErrInvalidPhase = errors.New("operation not allowed in current phase")
	// ErrAlreadyStarted is returned by Start on a session that has left NotStarted.
	ErrAlreadyStarted = errors.New("session already started")
	// ErrInvalidDirection is returned by navigation with an unknown direction.
	ErrInvalidDirection = errors.New("unknown navigation direction")
	// ErrAtBoundary is returned when navigation would move past the first or last question.
	ErrAtBoundary = errors.New("no question in that direction")
	// ErrSessionClosed is returned after the hosting context tore the session down.
	ErrSessionClosed = errors.New("session closed")
	// ErrSessionNotFound is returned when a quiz session has not been initialized.
	ErrSessionNotFound = errors.New("quiz session not found")

	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrInvalidQuiz indicates the loaded quiz failed structural validation.
	ErrInvalidQuiz = errors.New("invalid quiz")
	// ErrQuestionNotFound indicates a submitted question ID is invalid.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrOptionNotFound indicates a submitted option ID is invalid.
	ErrOptionNotFound = errors.New("option not found")
	// ErrEmptyAnswer indicates an answer carried no option label.
	ErrEmptyAnswer = errors.New("answer has no value")
)

// ErrorKind returns the stable wire name of the outcome error, or "" for nil.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotConnected):
		return "not_connected"
	case errors.Is(err, ErrLoadFailure):
		return "load_failure"
	case errors.Is(err, ErrChainRejected):
		return "chain_rejected"
	case errors.Is(err, ErrBackendRejected):
		return "backend_rejected"
	case errors.Is(err, ErrInvalidPhase), errors.Is(err, ErrAlreadyStarted):
		return "invalid_phase"
	case errors.Is(err, ErrAtBoundary):
		return "at_boundary"
	case errors.Is(err, ErrQuestionNotFound), errors.Is(err, ErrOptionNotFound), errors.Is(err, ErrEmptyAnswer):
		return "invalid_answer"
	case errors.Is(err, ErrSessionClosed), errors.Is(err, ErrSessionNotFound):
		return "session_closed"
	case errors.Is(err, ErrInvalidDirection):
		return "bad_request"
	default:
		return "internal"
	}
}
