package domain

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrJobExists       = errors.New("job already exists")
	ErrInvalidSettings = errors.New("invalid settings")

	ErrUploadFailed              = errors.New("media upload failed")
	ErrTranscriptionCreateFailed = errors.New("transcript creation failed")
	ErrQueryFailed               = errors.New("transcript query failed")
	ErrTranscriptionFailed       = errors.New("transcription failed")
	ErrPollTimeout               = errors.New("transcript polling timed out")

	ErrEncodeFailed = errors.New("encode failed")
	ErrConcatFailed = errors.New("concat failed")
	ErrEmptyPlan    = errors.New("empty cut plan")
	ErrEmptyInput   = errors.New("no valid input files")
)

// ReasonError attaches a human readable reason to one of the error kinds above.
type ReasonError struct {
	Kind   error
	Reason string
}

func (e *ReasonError) Error() string {
	if e.Reason == "" {
		return e.Kind.Error()
	}
	return e.Kind.Error() + ": " + e.Reason
}

func (e *ReasonError) Unwrap() error {
	return e.Kind
}

func WithReason(kind error, reason string) error {
	return &ReasonError{Kind: kind, Reason: reason}
}

// ReasonOf returns the reason carried by err, or err's message when no
// ReasonError is present in the chain.
func ReasonOf(err error) string {
	if err == nil {
		return ""
	}
	var re *ReasonError
	if errors.As(err, &re) {
		return re.Reason
	}
	return err.Error()
}

// ErrorKind maps err to a short stable code used in job metadata and API payloads.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUploadFailed):
		return "upload_failed"
	case errors.Is(err, ErrTranscriptionCreateFailed):
		return "transcription_create_failed"
	case errors.Is(err, ErrQueryFailed):
		return "query_failed"
	case errors.Is(err, ErrTranscriptionFailed):
		return "transcription_failed"
	case errors.Is(err, ErrPollTimeout):
		return "poll_timeout"
	case errors.Is(err, ErrEncodeFailed):
		return "encode_failed"
	case errors.Is(err, ErrConcatFailed):
		return "concat_failed"
	case errors.Is(err, ErrEmptyPlan):
		return "empty_plan"
	case errors.Is(err, ErrEmptyInput):
		return "empty_input"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrJobExists):
		return "job_exists"
	default:
		return "internal"
	}
}
