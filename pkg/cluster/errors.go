package cluster

import "fmt"

// Severity classifies how badly a failure hurts the cluster. Containment
// policy decisions key off it.
type Severity string

const (
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Code groups cluster errors by subsystem.
type Code string

const (
	CodeLifecycle   Code = "lifecycle"
	CodeTransition  Code = "transition"
	CodeWorker      Code = "worker"
	CodeScaling     Code = "scaling"
	CodePersistence Code = "persistence"
	CodeContainment Code = "containment"
)

// Error is the typed cluster error: which subsystem failed, during which
// operation, how severe it is, and the wrapped cause.
type Error struct {
	Code     Code
	Op       string
	Severity Severity
	Err      error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("cluster: %s/%s (%s)", e.Code, e.Op, e.Severity)
	}
	return fmt.Sprintf("cluster: %s/%s (%s): %v", e.Code, e.Op, e.Severity, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// E wraps err into a typed cluster error.
func E(code Code, op string, severity Severity, err error) *Error {
	return &Error{Code: code, Op: op, Severity: severity, Err: err}
}
