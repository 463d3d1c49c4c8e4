package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dev.helix.recall/internal/models"
)

func TestListFilters(t *testing.T) {
	since := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	until := since.Add(24 * time.Hour)

	tests := []struct {
		name      string
		query     ListQuery
		wantWhere string
		wantArgs  int
	}{
		{
			name:      "no filters",
			query:     ListQuery{},
			wantWhere: "",
			wantArgs:  0,
		},
		{
			name:      "type only",
			query:     ListQuery{Type: "note"},
			wantWhere: " WHERE type = $1",
			wantArgs:  1,
		},
		{
			name:      "type and tags",
			query:     ListQuery{Type: "note", Tags: []string{"a", "b"}},
			wantWhere: " WHERE type = $1 AND tags && $2",
			wantArgs:  2,
		},
		{
			name:      "time window",
			query:     ListQuery{Since: &since, Until: &until},
			wantWhere: " WHERE created_at >= $1 AND created_at <= $2",
			wantArgs:  2,
		},
		{
			name:      "everything",
			query:     ListQuery{Type: "note", Tags: []string{"a"}, Since: &since, Until: &until},
			wantWhere: " WHERE type = $1 AND tags && $2 AND created_at >= $3 AND created_at <= $4",
			wantArgs:  4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			where, args := listFilters(tt.query)
			assert.Equal(t, tt.wantWhere, where)
			assert.Len(t, args, tt.wantArgs)
		})
	}
}

func TestOrderClause_AllowList(t *testing.T) {
	for _, column := range []string{"created_at", "updated_at", "confidence", "type"} {
		clause, err := orderClause(column, false)
		require.NoError(t, err)
		assert.Equal(t, column+" ASC", clause)

		clause, err = orderClause(column, true)
		require.NoError(t, err)
		assert.Equal(t, column+" DESC", clause)
	}
}

func TestOrderClause_RejectsUnknownColumn(t *testing.T) {
	// Injection attempts must fail validation, never reach query text.
	for _, column := range []string{"id; DROP TABLE memories", "embedding", "content", ""} {
		_, err := orderClause(column, false)
		require.Error(t, err)
		assert.True(t, models.IsValidation(err))
	}
}
