package store

import "fmt"

// Every mutating operation that can fail for a domain (not low-level IO)
// reason returns one of these sentinel-wrapped struct types, following
// the taxonomy in spec.md §7. Low-level *sql.DB failures are wrapped and
// surfaced to the envelope layer as STORE_ERROR instead.

// UnknownBranchError means the named branch does not exist in the workspace.
type UnknownBranchError struct {
	Branch string
}

func (e *UnknownBranchError) Error() string {
	return fmt.Sprintf("store: unknown branch %q", e.Branch)
}

// UnknownIDError means a referenced task/plan/card/job/ref id does not exist.
type UnknownIDError struct {
	ID string
}

func (e *UnknownIDError) Error() string {
	return fmt.Sprintf("store: unknown id %q", e.ID)
}

// BranchAlreadyExistsError means branch_create was called with a name already in use.
type BranchAlreadyExistsError struct {
	Branch string
}

func (e *BranchAlreadyExistsError) Error() string {
	return fmt.Sprintf("store: branch %q already exists", e.Branch)
}

// BranchCycleError means a base_branch chain would form a cycle.
type BranchCycleError struct {
	Branch string
}

func (e *BranchCycleError) Error() string {
	return fmt.Sprintf("store: branch %q introduces a base_branch cycle", e.Branch)
}

// BranchDepthExceededError means a base_branch chain exceeds the depth guard (32).
type BranchDepthExceededError struct {
	Branch string
	Depth  int
}

func (e *BranchDepthExceededError) Error() string {
	return fmt.Sprintf("store: branch %q exceeds max base_branch depth (%d)", e.Branch, e.Depth)
}

// RevisionMismatchError is the optimistic-concurrency failure surfaced
// whenever expected_revision does not match the entity's current revision.
type RevisionMismatchError struct {
	Expected int64
	Actual   int64
}

func (e *RevisionMismatchError) Error() string {
	return fmt.Sprintf("store: revision mismatch: expected %d, actual %d", e.Expected, e.Actual)
}

// StepNotFoundError means a step path/id does not resolve within a task.
type StepNotFoundError struct {
	TaskID string
	Path   string
}

func (e *StepNotFoundError) Error() string {
	return fmt.Sprintf("store: step %q not found on task %q", e.Path, e.TaskID)
}

// InvalidInputError wraps a domain validation failure with a human message.
type InvalidInputError struct {
	Msg string
}

func (e *InvalidInputError) Error() string { return "store: invalid input: " + e.Msg }

// JobNotRequeueableError means jobs.requeue was called on a job whose
// status does not permit requeue.
type JobNotRequeueableError struct {
	JobID  string
	Status string
}

func (e *JobNotRequeueableError) Error() string {
	return fmt.Sprintf("store: job %q in status %q is not requeueable", e.JobID, e.Status)
}

// MergeNotSupportedError means a merge was requested outside the
// base->child model (into_branch must equal base_branch(from_branch)).
type MergeNotSupportedError struct {
	From string
	Into string
}

func (e *MergeNotSupportedError) Error() string {
	return fmt.Sprintf("store: cannot merge %q into %q: not a base/child pair", e.From, e.Into)
}

// ReasoningRequiredError means a step/task cannot close because its
// reasoning_mode (strict/deep) demands confirmations that are still
// missing.
type ReasoningRequiredError struct {
	TaskID string
	Path   string
	Missing []string
}

func (e *ReasoningRequiredError) Error() string {
	return fmt.Sprintf("store: task %q step %q missing required confirmations: %v", e.TaskID, e.Path, e.Missing)
}

// ResetRequiredError is returned by Open when the on-disk schema version
// predates what this binary expects; the caller must explicitly
// back up, wipe, and reopen rather than have the store silently migrate.
type ResetRequiredError struct {
	Expected int
	Found    int
	Reason   string
}

func (e *ResetRequiredError) Error() string {
	return fmt.Sprintf("store: schema reset required: found version %d, expected %d (%s)", e.Found, e.Expected, e.Reason)
}
