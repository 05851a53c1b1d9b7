package domain

import (
	"fmt"
	"strings"
)

// Priority orders detected issues. Only the ordering is meaningful.
type Priority int

// Issue priorities, lowest first.
const (
	PriorityInformation Priority = iota + 1
	PriorityWarning
	PriorityError
)

func (p Priority) String() string {
	switch p {
	case PriorityInformation:
		return "information"
	case PriorityWarning:
		return "warning"
	case PriorityError:
		return "error"
	default:
		return fmt.Sprintf("priority(%d)", int(p))
	}
}

// ParsePriority maps a case-insensitive name to a Priority.
func ParsePriority(s string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "information", "info":
		return PriorityInformation, nil
	case "warning", "warn":
		return PriorityWarning, nil
	case "error":
		return PriorityError, nil
	default:
		return 0, fmt.Errorf("unknown priority %q", s)
	}
}

// MarshalText encodes the priority by name.
func (p Priority) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText decodes a priority name.
func (p *Priority) UnmarshalText(b []byte) error {
	parsed, err := ParsePriority(string(b))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// DetectedIssue is a validation finding. Issues are data, not errors.
type DetectedIssue struct {
	Text      string   `json:"text"`
	Priority  Priority `json:"priority"`
	Validator string   `json:"validator,omitempty"`
}

// Issues is an ordered list of detected issues.
type Issues []DetectedIssue

// AtOrAbove returns the issues whose priority is at least min, preserving order.
func (is Issues) AtOrAbove(min Priority) Issues {
	var out Issues
	for _, issue := range is {
		if issue.Priority >= min {
			out = append(out, issue)
		}
	}
	return out
}

// Highest returns the highest priority present.
func (is Issues) Highest() (Priority, bool) {
	var max Priority
	for _, issue := range is {
		if issue.Priority > max {
			max = issue.Priority
		}
	}
	return max, len(is) > 0
}

// Texts returns the issue identifiers in order.
func (is Issues) Texts() []string {
	out := make([]string, len(is))
	for i, issue := range is {
		out[i] = issue.Text
	}
	return out
}

// IssueBlockError is returned by hosts that refuse to commit an object
// carrying issues at or above the blocking priority.
type IssueBlockError struct {
	Type   string
	ID     string
	Issues Issues
}

func (e IssueBlockError) Error() string {
	return fmt.Sprintf("%s %s blocked by %d issue(s): %s", e.Type, e.ID, len(e.Issues), strings.Join(e.Issues.Texts(), ", "))
}
