package model

import "fmt"

// FailureKind classifies a failure reported by an engine component
type FailureKind string

const (
	FailureTransient    FailureKind = "transient"    // Infrastructure hiccup, retried silently
	FailureApplication  FailureKind = "application"  // Error budget exhausted
	FailureStall        FailureKind = "stall"        // No forward progress before a deadline
	FailureConnection   FailureKind = "connection"   // Reconnect attempts exhausted
	FailureRegistration FailureKind = "registration" // Could not join the finished set
)

// Failure is a fatal condition surfaced to the session controller
type Failure struct {
	Component string
	Kind      FailureKind
	Title     string
	Message   string
	Err       error
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%s: %s: %s (%v)", f.Component, f.Title, f.Message, f.Err)
	}
	return fmt.Sprintf("%s: %s: %s", f.Component, f.Title, f.Message)
}

func (f *Failure) Unwrap() error {
	return f.Err
}
