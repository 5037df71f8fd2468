package errors

// Kind is the outcome taxonomy shared by the sync engine, the snapshot
// manager and the HTTP boundary.
type Kind string

const (
	KindNone                Kind = ""
	KindMergeConflict       Kind = "merge_conflict"
	KindNonFastForward      Kind = "non_fast_forward"
	KindAuthFailure         Kind = "auth_failure"
	KindStashApplyFailed    Kind = "stash_apply_failed"
	KindOperationInProgress Kind = "operation_in_progress"
	KindGeneral             Kind = "general_error"
)

// Conflict reports whether the kind asks the caller for a decision rather
// than signalling a terminal failure.
func (k Kind) Conflict() bool {
	switch k {
	case KindMergeConflict, KindNonFastForward, KindOperationInProgress, KindStashApplyFailed:
		return true
	}
	return false
}

func (k Kind) String() string {
	if k == KindNone {
		return "none"
	}
	return string(k)
}
