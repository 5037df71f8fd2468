package models

import (
	"time"

	"datasync/pkg/errors"
)

// Operation tags a mutating sync operation and the snapshot guarding it.
type Operation string

const (
	OperationPush      Operation = "push"
	OperationPull      Operation = "pull"
	OperationForcePush Operation = "force-push"
	OperationForcePull Operation = "force-pull"
	OperationUndo      Operation = "undo"
	OperationInit      Operation = "init"
	OperationAutoSync  Operation = "auto-sync"
)

// WarningLocalStateNotRestored marks a sync whose stashed local changes
// could not be popped back.
const WarningLocalStateNotRestored = "local_state_not_restored"

// Outcome is the tagged result of a sync engine or snapshot operation.
type Outcome struct {
	Success   bool        `json:"success"`
	Message   string      `json:"message"`
	Kind      errors.Kind `json:"error,omitempty"`
	Warning   string      `json:"warning,omitempty"`
	Operation Operation   `json:"operation,omitempty"`
	Details   string      `json:"details,omitempty"`
}

// Succeeded builds a successful outcome.
func Succeeded(op Operation, message string) *Outcome {
	return &Outcome{Success: true, Message: message, Operation: op}
}

// Failed builds a failed outcome of the given kind.
func Failed(op Operation, kind errors.Kind, message, details string) *Outcome {
	if kind == errors.KindNone {
		kind = errors.KindGeneral
	}
	return &Outcome{Message: message, Kind: kind, Operation: op, Details: details}
}

// Availability describes whether an undo is possible.
type Availability struct {
	Available bool       `json:"available"`
	Operation Operation  `json:"operation"`
	Timestamp *time.Time `json:"timestamp"`
}

// RepoStatus is reported by GET /git/status.
type RepoStatus struct {
	Initialized bool     `json:"initialized"`
	Changes     []string `json:"changes"`
}
