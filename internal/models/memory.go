// Package models defines the persistent record types and typed errors
// shared by the storage, cache, service, and protocol layers.
package models

import (
	"encoding/json"
	"time"
)

// Memory is a single stored record with its semantic embedding.
// Rows are created and mutated exclusively by the memory service.
type Memory struct {
	ID         string         `json:"id" db:"id"`
	Type       string         `json:"type" db:"type"`
	Content    map[string]any `json:"content" db:"content"`
	Source     string         `json:"source,omitempty" db:"source"`
	Embedding  []float32      `json:"-" db:"embedding"`
	Tags       []string       `json:"tags" db:"tags"`
	Confidence float64        `json:"confidence" db:"confidence"`
	Metadata   map[string]any `json:"metadata,omitempty" db:"metadata"`
	CreatedAt  time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at" db:"updated_at"`
}

// MemoryLink is a directed edge between two memories, unique per
// (source_id, target_id, relationship). Links are cascade-deleted with
// either endpoint by the storage engine.
type MemoryLink struct {
	SourceID     string         `json:"source_id" db:"source_id"`
	TargetID     string         `json:"target_id" db:"target_id"`
	Relationship string         `json:"relationship" db:"relationship"`
	Strength     float64        `json:"strength" db:"strength"`
	Metadata     map[string]any `json:"metadata,omitempty" db:"metadata"`
	CreatedAt    time.Time      `json:"created_at" db:"created_at"`
}

// SearchResult pairs a memory with its similarity to the query vector.
type SearchResult struct {
	Memory     *Memory `json:"memory"`
	Similarity float64 `json:"similarity"`
}

// CanonicalText derives the text that gets embedded for a content
// document. A string-valued "text" key wins; anything else falls back to
// the compact JSON encoding of the whole document, so structurally equal
// documents embed identically.
func CanonicalText(content map[string]any) string {
	if text, ok := content["text"].(string); ok && text != "" {
		return text
	}
	raw, err := json.Marshal(content)
	if err != nil {
		return ""
	}
	return string(raw)
}
