package model

import (
	"errors"
	"fmt"
)

// ErrorKind is the failure taxonomy used for logging and metrics.
type ErrorKind int

const (
	ConfigurationKind ErrorKind = iota
	RobotsBlockedKind
	SubmissionKind
	LookupKind
	StoreKind
)

func (k ErrorKind) String() string {
	return [...]string{"configuration", "robots_blocked", "submission", "lookup", "store"}[k]
}

// FailureKind classifies a failed call to the archive service. Adapters map
// transport level errors into one of these at the boundary.
type FailureKind int

const (
	FailureServiceError FailureKind = iota
	FailureRobotsBlocked
	FailureRateLimited
	FailureTimeout
)

func (k FailureKind) String() string {
	return [...]string{"service_error", "robots_blocked", "rate_limited", "timeout"}[k]
}

type SubmitError struct {
	Kind       FailureKind
	StatusCode int
	Err        error
}

func (e *SubmitError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("archive submission failed (%s, status %d): %v", e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("archive submission failed (%s): %v", e.Kind, e.Err)
}

func (e *SubmitError) Unwrap() error {
	return e.Err
}

// BlockReasonFor maps a submission error to the reason recorded in the blocked table.
func BlockReasonFor(err error) BlockReason {
	var se *SubmitError
	if errors.As(err, &se) && se.Kind == FailureRobotsBlocked {
		return ReasonRobotsTxt
	}
	return ReasonUnknownError
}

// KindOf maps a submission error to the logging taxonomy.
func KindOf(err error) ErrorKind {
	if BlockReasonFor(err) == ReasonRobotsTxt {
		return RobotsBlockedKind
	}
	return SubmissionKind
}
