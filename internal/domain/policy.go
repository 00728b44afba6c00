package domain

import "time"

const day = 24 * time.Hour

// RetentionPolicy decides when a memory expires, per class.
// Deep memories never expire automatically.
type RetentionPolicy struct {
	ShortTTL            time.Duration
	RelationshipTTL     time.Duration
	RelationshipMinRefs int
}

func DefaultRetentionPolicy() RetentionPolicy {
	return RetentionPolicy{
		ShortTTL:            30 * day,
		RelationshipTTL:     45 * day,
		RelationshipMinRefs: 3,
	}
}

// Expired reports whether m should be soft-deleted at now.
func (p RetentionPolicy) Expired(m *Memory, now time.Time) bool {
	if m.Deleted {
		return false
	}
	idle := now.Sub(m.LastReferencedAt)
	switch m.Class {
	case MemoryClassShort:
		return idle > p.ShortTTL
	case MemoryClassRelationship:
		return idle > p.RelationshipTTL && m.ReferenceCount < p.RelationshipMinRefs
	default:
		return false
	}
}

// Days converts a day count from configuration into a duration.
func Days(n int) time.Duration {
	return time.Duration(n) * day
}
