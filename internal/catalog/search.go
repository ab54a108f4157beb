package catalog

import (
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/storagepod/storagepod/internal/fsops"
)

// DefaultLimit caps search results when the caller doesn't set one.
const DefaultLimit = 50

// Query carries the search parameters. Zero values select the defaults:
// sort by modified_at, descending, limit 50. An unrecognized sort field
// falls back to modified_at.
type Query struct {
	Q     string `form:"q" json:"q"`
	Type  string `form:"type" json:"type"`
	Sort  string `form:"sort" json:"sort"`
	Order string `form:"order" json:"order"`
	Limit int    `form:"limit" json:"limit"`
	Glob  string `form:"glob" json:"glob"`
}

// Normalize fills in defaults and canonicalizes fields.
func (q *Query) Normalize() {
	switch q.Sort {
	case "name", "path", "size", "type", "modified_at":
	default:
		q.Sort = "modified_at"
	}
	if q.Order != "asc" {
		q.Order = "desc"
	}
	if q.Limit <= 0 {
		q.Limit = DefaultLimit
	}
}

// Matches reports whether a record passes the query's filters.
func (q Query) Matches(rec fsops.Record) bool {
	if q.Q != "" && !strings.Contains(strings.ToLower(rec.Name), strings.ToLower(q.Q)) {
		return false
	}
	if q.Type != "" && string(rec.Type) != q.Type {
		return false
	}
	if q.Glob != "" {
		ok, err := doublestar.Match(q.Glob, rec.Path)
		if err != nil || !ok {
			return false
		}
	}
	return true
}

// Apply filters, sorts, and truncates records in place per the query policy.
// Callers must Normalize the query first.
func (q Query) Apply(records []fsops.Record) []fsops.Record {
	filtered := records[:0]
	for _, rec := range records {
		if q.Matches(rec) {
			filtered = append(filtered, rec)
		}
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		less := lessBy(q.Sort, filtered[i], filtered[j])
		if q.Order == "desc" {
			return !less && !equalBy(q.Sort, filtered[i], filtered[j])
		}
		return less
	})

	if len(filtered) > q.Limit {
		filtered = filtered[:q.Limit]
	}
	return filtered
}

func lessBy(field string, a, b fsops.Record) bool {
	switch field {
	case "name":
		return strings.ToLower(a.Name) < strings.ToLower(b.Name)
	case "path":
		return a.Path < b.Path
	case "size":
		return a.Size < b.Size
	case "type":
		return a.Type < b.Type
	default:
		return a.ModifiedAt.Before(b.ModifiedAt)
	}
}

func equalBy(field string, a, b fsops.Record) bool {
	switch field {
	case "name":
		return strings.EqualFold(a.Name, b.Name)
	case "path":
		return a.Path == b.Path
	case "size":
		return a.Size == b.Size
	case "type":
		return a.Type == b.Type
	default:
		return a.ModifiedAt.Equal(b.ModifiedAt)
	}
}
