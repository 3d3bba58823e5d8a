package service

import "strings"

// ValidationError reports malformed command input. Not retryable; callers
// surface it to the end user.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid command: " + strings.Join(e.Problems, "; ")
}

func validationError(problems ...string) error {
	return &ValidationError{Problems: problems}
}
