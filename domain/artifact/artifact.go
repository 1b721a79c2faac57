// Package artifact provides value types for generated artifacts
// (violation letters, walkthrough videos). An artifact is created only
// as the side effect of a successful usage-gate pass and is owned by
// exactly one account.
package artifact

import (
	"time"

	"github.com/hoaworks/metergate/domain/quota"
)

// Status is the generation lifecycle state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Artifact is an immutable generation record. Only Status, ResultURL
// and UpdatedAt change after creation, and only along legal transitions.
type Artifact struct {
	ID         string
	AccountKey string
	Feature    quota.Feature
	Status     Status
	Params     string // opaque generation parameters, JSON
	ResultURL  string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// CanTransition reports whether a status change is legal. Terminal
// states (completed, failed) never transition again.
// This is a PURE function.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusProcessing || to == StatusFailed
	case StatusProcessing:
		return to == StatusCompleted || to == StatusFailed
	}
	return false
}

// Terminal reports whether a status is final.
// This is a PURE function.
func Terminal(s Status) bool {
	return s == StatusCompleted || s == StatusFailed
}
