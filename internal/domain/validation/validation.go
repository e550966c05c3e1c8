package validation

import (
	"sort"
	"strconv"
	"strings"
)

type Issue struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// Error is returned by domain services when input is rejected before any write.
type Error struct {
	Issues []Issue
}

func (e *Error) Error() string {
	if e == nil || len(e.Issues) == 0 {
		return "validation failed"
	}
	parts := make([]string, 0, len(e.Issues))
	for _, issue := range e.Issues {
		parts = append(parts, issue.Field+": "+issue.Reason)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

type Builder struct {
	issues []Issue
}

func (b *Builder) Add(field, reason string) {
	b.issues = append(b.issues, Issue{Field: field, Reason: reason})
}

func (b *Builder) Required(field, value string) {
	if strings.TrimSpace(value) == "" {
		b.Add(field, "is required")
	}
}

func (b *Builder) Length(field, value string, minLen, maxLen int) {
	n := len([]rune(strings.TrimSpace(value)))
	if n < minLen || (maxLen > 0 && n > maxLen) {
		if maxLen > 0 {
			b.Add(field, "must be between "+strconv.Itoa(minLen)+" and "+strconv.Itoa(maxLen)+" characters")
			return
		}
		b.Add(field, "must be at least "+strconv.Itoa(minLen)+" characters")
	}
}

func (b *Builder) MaxLength(field, value string, maxLen int) {
	if len([]rune(value)) > maxLen {
		b.Add(field, "must be at most "+strconv.Itoa(maxLen)+" characters")
	}
}

func (b *Builder) HasIssues() bool {
	return len(b.issues) > 0
}

// Err returns nil when no issue was recorded. Issues are sorted by field.
func (b *Builder) Err() error {
	if len(b.issues) == 0 {
		return nil
	}
	out := make([]Issue, len(b.issues))
	copy(out, b.issues)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Field < out[j].Field
	})
	return &Error{Issues: out}
}

func New(field, reason string) error {
	return &Error{Issues: []Issue{{Field: field, Reason: reason}}}
}
