package models

import (
	"fmt"
	"time"
)

// Default and boundary values shared by the service and dispatcher.
const (
	DefaultSearchThreshold = 0.7
	DefaultSearchLimit     = 10
	DefaultListLimit       = 50
	MaxLimit               = 1000
)

// orderableColumns is the allow-list for ListParams.OrderBy. Anything
// else is a validation error and never reaches the query layer.
var orderableColumns = map[string]struct{}{
	"created_at": {},
	"updated_at": {},
	"confidence": {},
	"type":       {},
}

// CreateMemoryParams carries the input of a create operation.
type CreateMemoryParams struct {
	Type       string         `json:"type"`
	Content    map[string]any `json:"content"`
	Source     string         `json:"source,omitempty"`
	Tags       []string       `json:"tags,omitempty"`
	Confidence *float64       `json:"confidence,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Validate checks required fields and value ranges.
func (p *CreateMemoryParams) Validate() error {
	if p.Type == "" {
		return NewValidationError("type", "required")
	}
	if len(p.Content) == 0 {
		return NewValidationError("content", "required")
	}
	if p.Confidence != nil && (*p.Confidence < 0 || *p.Confidence > 1) {
		return NewValidationError("confidence", fmt.Sprintf("must be in [0, 1], got %g", *p.Confidence))
	}
	return nil
}

// UpdateMemoryParams carries the mutable fields of an update. Nil fields
// are left untouched; the embedding is recomputed only when Content is
// present.
type UpdateMemoryParams struct {
	Type       *string        `json:"type,omitempty"`
	Content    map[string]any `json:"content,omitempty"`
	Source     *string        `json:"source,omitempty"`
	Tags       []string       `json:"tags,omitempty"`
	Confidence *float64       `json:"confidence,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Validate checks value ranges on the fields that are present.
func (p *UpdateMemoryParams) Validate() error {
	if p.Confidence != nil && (*p.Confidence < 0 || *p.Confidence > 1) {
		return NewValidationError("confidence", fmt.Sprintf("must be in [0, 1], got %g", *p.Confidence))
	}
	return nil
}

// Empty reports whether the update carries no fields at all.
func (p *UpdateMemoryParams) Empty() bool {
	return p.Type == nil && p.Content == nil && p.Source == nil &&
		p.Tags == nil && p.Confidence == nil && p.Metadata == nil
}

// SearchParams carries the input of a similarity search.
type SearchParams struct {
	Query     string   `json:"query"`
	Type      string   `json:"type,omitempty"`
	Tags      []string `json:"tags,omitempty"`
	Limit     int      `json:"limit,omitempty"`
	Threshold *float64 `json:"threshold,omitempty"`
}

// Validate checks the query and normalizes limit and threshold.
func (p *SearchParams) Validate() error {
	if p.Query == "" {
		return NewValidationError("query", "required")
	}
	if p.Threshold != nil && (*p.Threshold < 0 || *p.Threshold > 1) {
		return NewValidationError("threshold", fmt.Sprintf("must be in [0, 1], got %g", *p.Threshold))
	}
	if p.Limit < 0 || p.Limit > MaxLimit {
		return NewValidationError("limit", fmt.Sprintf("must be in [0, %d], got %d", MaxLimit, p.Limit))
	}
	if p.Limit == 0 {
		p.Limit = DefaultSearchLimit
	}
	if p.Threshold == nil {
		threshold := DefaultSearchThreshold
		p.Threshold = &threshold
	}
	return nil
}

// ListParams carries the filter, ordering, and pagination of a list
// operation.
type ListParams struct {
	Type    string     `json:"type,omitempty"`
	Tags    []string   `json:"tags,omitempty"`
	Since   *time.Time `json:"since,omitempty"`
	Until   *time.Time `json:"until,omitempty"`
	Limit   int        `json:"limit,omitempty"`
	Offset  int        `json:"offset,omitempty"`
	OrderBy string     `json:"order_by,omitempty"`
	Desc    bool       `json:"desc,omitempty"`
}

// Validate enforces the orderBy allow-list and normalizes pagination.
func (p *ListParams) Validate() error {
	if p.OrderBy == "" {
		p.OrderBy = "created_at"
		p.Desc = true
	}
	if _, ok := orderableColumns[p.OrderBy]; !ok {
		return NewValidationError("order_by", fmt.Sprintf("column %q is not orderable", p.OrderBy))
	}
	if p.Limit < 0 || p.Limit > MaxLimit {
		return NewValidationError("limit", fmt.Sprintf("must be in [0, %d], got %d", MaxLimit, p.Limit))
	}
	if p.Offset < 0 {
		return NewValidationError("offset", "must not be negative")
	}
	if p.Limit == 0 {
		p.Limit = DefaultListLimit
	}
	return nil
}

// ListResult is the page of rows plus the unpaginated total for the same
// filters.
type ListResult struct {
	Memories []*Memory `json:"memories"`
	Total    int64     `json:"total"`
}

// BatchOpKind names the operation of one batch item.
type BatchOpKind string

// Supported batch operation kinds.
const (
	BatchOpCreate BatchOpKind = "create"
	BatchOpUpdate BatchOpKind = "update"
	BatchOpDelete BatchOpKind = "delete"
)

// BatchOperation is one item of a heterogeneous batch. Create uses
// Create; update uses ID plus Update; delete uses ID alone.
type BatchOperation struct {
	Op     BatchOpKind         `json:"op"`
	ID     string              `json:"id,omitempty"`
	Create *CreateMemoryParams `json:"create,omitempty"`
	Update *UpdateMemoryParams `json:"update,omitempty"`
}

// BatchResult records the outcome of one batch item. A failed item does
// not stop later items; the transaction boundary is separate (see the
// service documentation).
type BatchResult struct {
	Index   int         `json:"index"`
	Op      BatchOpKind `json:"op"`
	Success bool        `json:"success"`
	ID      string      `json:"id,omitempty"`
	Memory  *Memory     `json:"memory,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// LinkParams carries the input of a link operation.
type LinkParams struct {
	SourceID     string         `json:"source_id"`
	TargetID     string         `json:"target_id"`
	Relationship string         `json:"relationship"`
	Strength     float64        `json:"strength"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// Validate checks required endpoints and the strength range.
func (p *LinkParams) Validate() error {
	if p.SourceID == "" {
		return NewValidationError("source_id", "required")
	}
	if p.TargetID == "" {
		return NewValidationError("target_id", "required")
	}
	if p.Relationship == "" {
		return NewValidationError("relationship", "required")
	}
	if p.Strength < 0 || p.Strength > 1 {
		return NewValidationError("strength", fmt.Sprintf("must be in [0, 1], got %g", p.Strength))
	}
	return nil
}

// StreamFilter restricts which created memories a stream subscriber
// receives. Zero-valued fields match everything.
type StreamFilter struct {
	Type   string   `json:"type,omitempty"`
	Source string   `json:"source,omitempty"`
	Tags   []string `json:"tags,omitempty"`
}

// Matches reports whether a memory passes the filter. Tags use overlap
// semantics: any shared tag matches.
func (f *StreamFilter) Matches(m *Memory) bool {
	if m == nil {
		return false
	}
	if f.Type != "" && f.Type != m.Type {
		return false
	}
	if f.Source != "" && f.Source != m.Source {
		return false
	}
	if len(f.Tags) > 0 {
		overlap := false
		for _, want := range f.Tags {
			for _, have := range m.Tags {
				if want == have {
					overlap = true
					break
				}
			}
			if overlap {
				break
			}
		}
		if !overlap {
			return false
		}
	}
	return true
}
