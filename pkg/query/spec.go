// Package query turns logical request specs into concrete upstream
// queries: validated and clamped listing queries, or per-entity query
// sets for report endpoints that the assembler joins in memory.
package query

import (
	"strconv"
	"time"

	"github.com/openelt/nsgateway/pkg/config"
	"github.com/openelt/nsgateway/pkg/errors"
)

// Spec is one logical inbound request before it is turned into concrete
// upstream queries.
type Spec struct {
	// Entity is the upstream entity name (customer, salesorder, ...)
	Entity string

	// DateStart and DateEnd bound the transaction date range, inclusive
	DateStart *time.Time
	DateEnd   *time.Time

	// OwnerID scopes results to one owning user (0 = unscoped)
	OwnerID int

	// Limit and Offset control pagination. A zero limit takes the
	// configured default; limits above the configured maximum are
	// clamped, not rejected.
	Limit  int
	Offset int

	// Raw is a query-language override passed through verbatim,
	// bypassing all generated filtering
	Raw string

	// SavedSearchID references a stored search instead of a generated
	// query
	SavedSearchID string

	// Filter is an optional upstream-side filter expression for plain
	// listings (the REST listing `q` parameter)
	Filter string

	// Fields restricts listing responses to a comma-separated field set
	Fields string

	// Expand re-fetches each listed record for full detail
	Expand bool

	// NoCache bypasses the response cache for this request
	NoCache bool
}

// Normalize validates the spec and applies the configured bounds.
// Out-of-range limits are clamped; negative values are rejected.
func (s *Spec) Normalize(cfg *config.Config) error {
	if len(s.Entity) < 2 && s.Raw == "" {
		return errors.New(errors.ErrorTypeInvalidRequest, "invalid entity name")
	}

	if s.Limit < 0 {
		return errors.New(errors.ErrorTypeInvalidRequest, "limit must not be negative")
	}
	if s.Offset < 0 {
		return errors.New(errors.ErrorTypeInvalidRequest, "offset must not be negative")
	}

	if s.Limit == 0 {
		s.Limit = cfg.Upstream.DefaultPageSize
	}
	if s.Limit > cfg.Upstream.MaxPageSize {
		s.Limit = cfg.Upstream.MaxPageSize
	}

	if s.DateStart != nil && s.DateEnd != nil && s.DateEnd.Before(*s.DateStart) {
		return errors.New(errors.ErrorTypeInvalidRequest, "date range end precedes start")
	}

	if s.OwnerID < 0 {
		return errors.New(errors.ErrorTypeInvalidRequest, "owner id must not be negative")
	}

	return nil
}

// CacheKeyParts serializes the request identity for the cache key.
// Expand changes the payload and NoCache does not, so only the former
// participates.
func (s *Spec) CacheKeyParts() []string {
	dateStart, dateEnd := "", ""
	if s.DateStart != nil {
		dateStart = s.DateStart.Format("2006-01-02")
	}
	if s.DateEnd != nil {
		dateEnd = s.DateEnd.Format("2006-01-02")
	}

	return []string{
		strconv.Itoa(s.Limit),
		strconv.Itoa(s.Offset),
		dateStart,
		dateEnd,
		strconv.Itoa(s.OwnerID),
		s.Filter,
		s.Fields,
		s.SavedSearchID,
		strconv.FormatBool(s.Expand),
		hashRaw(s.Raw),
	}
}

// hashRaw keeps raw query text out of cache keys while preserving
// identity; FNV-1a is enough here.
func hashRaw(raw string) string {
	if raw == "" {
		return ""
	}
	var h uint64 = 14695981039346656037
	for i := 0; i < len(raw); i++ {
		h ^= uint64(raw[i])
		h *= 1099511628211
	}
	return "raw-" + strconv.FormatUint(h, 16)
}

// sqlDate renders a date for the typed query language.
func sqlDate(t time.Time) string {
	return "TO_DATE('" + t.Format("2006-01-02") + "', 'YYYY-MM-DD')"
}
