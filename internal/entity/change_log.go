package entity

import (
	"fmt"
	"strings"
	"time"
)

// Source records which path produced an alt text change.
type Source string

const (
	SourceHeuristic  Source = "heuristic"
	SourceAI         Source = "ai"
	SourceAIFallback Source = "ai-fallback"
	SourceManual     Source = "manual"
	SourceRevert     Source = "revert"
	SourceSystem     Source = "system"
)

type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
	StatusSkipped Status = "skipped"
)

// Severity is ordered: debug < info < error.
type Severity string

const (
	SeverityDebug Severity = "debug"
	SeverityInfo  Severity = "info"
	SeverityError Severity = "error"
)

// Rank returns the ordinal of the severity; unknown values rank as info.
func (s Severity) Rank() int {
	switch s {
	case SeverityDebug:
		return 0
	case SeverityError:
		return 2
	default:
		return 1
	}
}

// AtLeast reports whether s is at or above min.
func (s Severity) AtLeast(min Severity) bool {
	return s.Rank() >= min.Rank()
}

// ParseSeverity parses a configured log level.
func ParseSeverity(value string) (Severity, error) {
	switch Severity(strings.ToLower(strings.TrimSpace(value))) {
	case SeverityDebug:
		return SeverityDebug, nil
	case SeverityInfo:
		return SeverityInfo, nil
	case SeverityError:
		return SeverityError, nil
	}
	return "", fmt.Errorf("unknown severity %q", value)
}

// ChangeLogEntry mirrors the `alt_change_log` table. Entries are
// append-only; a revert is recorded as a new entry.
type ChangeLogEntry struct {
	ID               int64     `json:"id"`
	Timestamp        time.Time `json:"timestamp"`
	ImageID          *string   `json:"image_id,omitempty"`
	ParentDocumentID *string   `json:"parent_document_id,omitempty"`
	OldAltText       *string   `json:"old_alt_text,omitempty"`
	NewAltText       *string   `json:"new_alt_text,omitempty"`
	Source           Source    `json:"source"`
	ModelUsed        *string   `json:"model_used,omitempty"`
	Status           Status    `json:"status"`
	Severity         Severity  `json:"severity"`
	Message          *string   `json:"message,omitempty"`
}

// StringPtr returns nil for an empty string.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Deref returns the pointed-to string or "".
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
