package session

import (
	"errors"
	"fmt"
	"time"
)

// ErrExpiredSession is returned by accessors of a record that was invalidated or
// has been idle for longer than its max inactive interval.
var ErrExpiredSession = errors.New("session expired or invalidated")

// NonReplicableAttributeError is returned by Set when the value cannot be sent to the
// distributed store. The record is left unchanged.
type NonReplicableAttributeError struct {
	Name string // attribute name
	Type string // dynamic type of the rejected value
	Err  error  // reason reported by the encoder, may be nil
}

func (e *NonReplicableAttributeError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("attribute %q of type %s cannot be replicated", e.Name, e.Type)
	}
	return fmt.Sprintf("attribute %q of type %s cannot be replicated: %v", e.Name, e.Type, e.Err)
}

func (e *NonReplicableAttributeError) Unwrap() error {
	return e.Err
}

// OwnershipTimeoutError is returned when the cluster wide lock for a session could
// not be acquired in time. It is retryable.
type OwnershipTimeoutError struct {
	RealID  string
	Timeout time.Duration
}

func (e *OwnershipTimeoutError) Error() string {
	return fmt.Sprintf("timed out after %s acquiring ownership of session %s", e.Timeout, e.RealID)
}

// Retryable reports whether the caller may try again.
func (e *OwnershipTimeoutError) Retryable() bool {
	return true
}

// ReplicationPushError wraps a failure of the distributed store while pushing a session.
type ReplicationPushError struct {
	RealID string
	Err    error
}

func (e *ReplicationPushError) Error() string {
	return fmt.Sprintf("failed to replicate session %s: %v", e.RealID, e.Err)
}

func (e *ReplicationPushError) Unwrap() error {
	return e.Err
}
