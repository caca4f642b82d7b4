package usecase

import (
	"errors"
	"fmt"

	"jumpcut/internal/domain"
)

var (
	ErrBusy    = errors.New("no processing slot available")
	ErrStorage = errors.New("storage error")
)

// PipelineError reports the stage and video at which a pipeline run stopped.
type PipelineError struct {
	Stage      domain.VideoStage
	VideoIndex int
	Err        error
}

func (e *PipelineError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("video %d: %s: %v", e.VideoIndex, e.Stage, e.Err)
}

func (e *PipelineError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func wrapStorage(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrStorage, err)
}
