// Package status contains the sync metadata record persisted next to the product cache.
package status

import "time"

// SyncPhase is the outcome recorded by the most recent sync attempt
type SyncPhase string

const (
	// SyncPhaseSuccess means the last attempt replaced the cache
	SyncPhaseSuccess SyncPhase = "success"

	// SyncPhaseError means the last attempt failed and the cache was left untouched
	SyncPhaseError SyncPhase = "error"

	// SyncPhasePending means an attempt is in progress; the cache still holds
	// the generation described by LastSuccessTime and Hash
	SyncPhasePending SyncPhase = "pending"

	// SyncPhaseNever means no attempt has been recorded yet
	SyncPhaseNever SyncPhase = "never"
)

// MetadataKey is the fixed key of the singleton metadata record
const MetadataKey = "last_sync"

// SyncMetadata is the singleton record describing the last sync attempt
type SyncMetadata struct {
	// LastSyncTime is the epoch-millisecond time of the last attempt, successful or not
	LastSyncTime int64 `json:"lastSyncTime"`

	// ProductCount is the number of products written by the last attempt (0 on failure)
	ProductCount int `json:"productCount"`

	// SyncStatus is the outcome of the last attempt
	SyncStatus SyncPhase `json:"syncStatus"`

	// ErrorMessage is set when SyncStatus is error
	ErrorMessage string `json:"errorMessage,omitempty"`

	// LastSuccessTime is the epoch-millisecond time of the last successful attempt
	LastSuccessTime int64 `json:"lastSuccessTime,omitempty"`

	// Hash identifies the product generation currently in the cache
	Hash string `json:"hash,omitempty"`

	// Source is where the current generation was fetched from
	Source string `json:"source,omitempty"`
}

// NewDefaultMetadata returns the record reported before any sync was written
func NewDefaultMetadata() *SyncMetadata {
	return &SyncMetadata{
		SyncStatus: SyncPhaseNever,
	}
}

// HasSucceeded reports whether any sync has ever succeeded
func (m *SyncMetadata) HasSucceeded() bool {
	return m != nil && m.LastSuccessTime > 0
}

// LastSuccess returns the time of the last successful sync, or the zero time
func (m *SyncMetadata) LastSuccess() time.Time {
	if !m.HasSucceeded() {
		return time.Time{}
	}
	return time.UnixMilli(m.LastSuccessTime)
}

// Copy returns a shallow copy safe to hand to callers
func (m *SyncMetadata) Copy() *SyncMetadata {
	if m == nil {
		return nil
	}
	c := *m
	return &c
}
