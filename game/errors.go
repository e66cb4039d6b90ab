package game

import (
	"errors"
	"fmt"
)

// ValidationError is a malformed request, reported before any hashing
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func IsValidationError(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// HashMismatchError means the revealed seed does not match its commitment.
// The submitter may resubmit.
type HashMismatchError struct {
	ServerSeedHash string
}

func (e *HashMismatchError) Error() string {
	return fmt.Sprintf("hash mismatch: revealed seed does not hash to %s", e.ServerSeedHash)
}

func NewHashMismatchError(serverSeedHash string) *HashMismatchError {
	return &HashMismatchError{ServerSeedHash: serverSeedHash}
}

func IsHashMismatchError(err error) bool {
	var target *HashMismatchError
	return errors.As(err, &target)
}

// ReplayError means the seed was already credited
type ReplayError struct {
	ServerSeedHash string
}

func (e *ReplayError) Error() string {
	return fmt.Sprintf("replay: server seed %s already used", e.ServerSeedHash)
}

func NewReplayError(serverSeedHash string) *ReplayError {
	return &ReplayError{ServerSeedHash: serverSeedHash}
}

func IsReplayError(err error) bool {
	var target *ReplayError
	return errors.As(err, &target)
}

// InternalConsistencyFault is a sampler that ran out of iterations. It is a
// logic defect, not user error.
type InternalConsistencyFault struct {
	Strategy   string
	GridSize   int
	MineCount  int
	Collected  int
	Iterations int
}

func (e *InternalConsistencyFault) Error() string {
	return fmt.Sprintf("internal consistency fault: %s sampler collected %d/%d cells of %d after %d iterations",
		e.Strategy, e.Collected, e.MineCount, e.GridSize, e.Iterations)
}

func IsInternalConsistencyFault(err error) bool {
	var target *InternalConsistencyFault
	return errors.As(err, &target)
}
