package memory

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"

	"dev.helix.recall/internal/models"
)

// Cache key namespaces. Creates invalidate list: only; any mutation of
// an existing row invalidates all three.
const (
	memoryKeyPrefix = "memory:"
	listKeyPrefix   = "list:"
	searchKeyPrefix = "search:"
)

func memoryKey(id string) string {
	return memoryKeyPrefix + id
}

// searchKey canonicalizes the full parameter set so equal searches share
// a cache entry regardless of tag order.
func searchKey(p *models.SearchParams) string {
	threshold := models.DefaultSearchThreshold
	if p.Threshold != nil {
		threshold = *p.Threshold
	}
	return searchKeyPrefix + hashParams(struct {
		Query     string   `json:"query"`
		Type      string   `json:"type"`
		Tags      []string `json:"tags"`
		Limit     int      `json:"limit"`
		Threshold float64  `json:"threshold"`
	}{p.Query, p.Type, sortedCopy(p.Tags), p.Limit, threshold})
}

// listKey canonicalizes the full filter, ordering, and pagination set.
func listKey(p *models.ListParams) string {
	var since, until int64
	if p.Since != nil {
		since = p.Since.UnixNano()
	}
	if p.Until != nil {
		until = p.Until.UnixNano()
	}
	return listKeyPrefix + hashParams(struct {
		Type    string   `json:"type"`
		Tags    []string `json:"tags"`
		Since   int64    `json:"since"`
		Until   int64    `json:"until"`
		Limit   int      `json:"limit"`
		Offset  int      `json:"offset"`
		OrderBy string   `json:"order_by"`
		Desc    bool     `json:"desc"`
	}{p.Type, sortedCopy(p.Tags), since, until, p.Limit, p.Offset, p.OrderBy, p.Desc})
}

func hashParams(v any) string {
	raw, _ := json.Marshal(v)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

func sortedCopy(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	sorted := make([]string, len(tags))
	copy(sorted, tags)
	sort.Strings(sorted)
	return sorted
}
