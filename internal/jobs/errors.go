package jobs

import (
	"fmt"
)

type ErrJobAlreadyActive struct {
	error
}

func NewErrJobAlreadyActive(courseID string, phase int) *ErrJobAlreadyActive {
	return &ErrJobAlreadyActive{fmt.Errorf("a job is already active for course %s phase %d", courseID, phase)}
}

type ErrJobNotFound struct {
	error
}

func NewErrJobNotFound(courseID string, phase int) *ErrJobNotFound {
	return &ErrJobNotFound{fmt.Errorf("no job found for course %s phase %d", courseID, phase)}
}

type ErrCorpusNotFound struct {
	error
}

func NewErrCorpusNotFound(courseID string, phase int) *ErrCorpusNotFound {
	return &ErrCorpusNotFound{fmt.Errorf("no corpus found for course %s phase %d", courseID, phase)}
}

type ErrInvalidTransition struct {
	error
}

func NewErrInvalidTransition(from, to State) *ErrInvalidTransition {
	return &ErrInvalidTransition{fmt.Errorf("invalid transition from %s to %s", from, to)}
}

type ErrReextractNotAllowed struct {
	error
}

func NewErrReextractNotAllowed(courseID string, phase int) *ErrReextractNotAllowed {
	return &ErrReextractNotAllowed{fmt.Errorf("course %s phase %d has an active job running its own re-extraction cycles", courseID, phase)}
}

type ErrInvalidRequest struct {
	error
}

func NewErrInvalidRequest(format string, args ...any) *ErrInvalidRequest {
	return &ErrInvalidRequest{fmt.Errorf("bad request: "+format, args...)}
}
