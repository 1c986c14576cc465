package services

import "errors"

// Typed failures surfaced to the API layer
var (
	// ErrReportNotFound means no report exists with the given id
	ErrReportNotFound = errors.New("report not found")

	// ErrNotOwner means the caller is neither the report owner nor an admin
	ErrNotOwner = errors.New("not authorized to operate on this report")

	// ErrInvalidStateTransition means the operation is not legal for the
	// report's current status
	ErrInvalidStateTransition = errors.New("operation not allowed in current report status")

	// ErrWorkerUnavailable means the analysis service rejected a job submission
	ErrWorkerUnavailable = errors.New("analysis service unavailable")
)
