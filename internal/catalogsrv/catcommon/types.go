package catcommon

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

// RoleName identifies the role a caller acts under. Authorization decisions
// are supplied by the orchestration layer; this core only enforces them.
type RoleName string

// SessionID identifies an orchestration session. Sessions bound how many
// views a single caller may create.
type SessionID string

// Hash is a hex-encoded SHA-256 digest of a view definition. Definitions are
// opaque to the core; the hash is used only for identity checks on revival.
type Hash string

// HashDefinition returns the identity hash for a view definition.
func HashDefinition(definition string) Hash {
	sum := sha256.Sum256([]byte(definition))
	return Hash(hex.EncodeToString(sum[:]))
}

// ViewStatus is the lifecycle status of a view record. The set is closed;
// transitions happen only through the lifecycle engine.
type ViewStatus string

const (
	StatusDraft        ViewStatus = "DRAFT"
	StatusPromoted     ViewStatus = "PROMOTED"
	StatusMaterialized ViewStatus = "MATERIALIZED"
	StatusStale        ViewStatus = "STALE"
	StatusArchived     ViewStatus = "ARCHIVED"
)

// ParseStatus converts a stored status string back into a ViewStatus. The
// second return is false for strings outside the closed set.
func ParseStatus(s string) (ViewStatus, bool) {
	status := ViewStatus(s)
	return status, status.Valid()
}

// Valid reports whether s is a member of the closed status set.
func (s ViewStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusPromoted, StatusMaterialized, StatusStale, StatusArchived:
		return true
	}
	return false
}

// PlannerEligible reports whether views in this status participate in
// cost-based planning. Draft, stale and archived views stay visible in the
// catalog but are never offered as shortcuts.
func (s ViewStatus) PlannerEligible() bool {
	return s == StatusPromoted || s == StatusMaterialized
}

// Domain is the business domain a view or table belongs to.
type Domain string

const (
	DomainFraud       Domain = "fraud"
	DomainCompliance  Domain = "compliance"
	DomainCustomer    Domain = "customer"
	DomainMerchant    Domain = "merchant"
	DomainTransaction Domain = "transaction"
	DomainRisk        Domain = "risk"
)

// Domains returns the closed set of business domains.
func Domains() []Domain {
	return []Domain{
		DomainFraud,
		DomainCompliance,
		DomainCustomer,
		DomainMerchant,
		DomainTransaction,
		DomainRisk,
	}
}

// Valid reports whether d is a member of the closed domain set.
func (d Domain) Valid() bool {
	for _, known := range Domains() {
		if d == known {
			return true
		}
	}
	return false
}

// Layer is a view's position in the crystallization hierarchy. It bounds how
// many dependency hops the view sits above raw tables.
type Layer int

const (
	LayerDiscovery Layer = 1
	LayerResearch  Layer = 2
	LayerCompound  Layer = 3
)

// Valid reports whether l is a member of the closed layer set.
func (l Layer) Valid() bool {
	return l >= LayerDiscovery && l <= LayerCompound
}

// FreshnessType describes how a view's contents track its sources.
type FreshnessType string

const (
	FreshnessLive      FreshnessType = "LIVE"
	FreshnessStatic    FreshnessType = "STATIC"
	FreshnessScheduled FreshnessType = "SCHEDULED"
)

// Valid reports whether f is a member of the closed freshness set.
func (f FreshnessType) Valid() bool {
	switch f {
	case FreshnessLive, FreshnessStatic, FreshnessScheduled:
		return true
	}
	return false
}

// viewNameRe enforces the v_{domain}_{concept}_{granularity} naming pattern.
var viewNameRe = regexp.MustCompile(`^v_[a-z]+_[a-z0-9]+(?:_[a-z0-9]+)*$`)

// ValidViewName reports whether name matches the catalog naming pattern and
// names a known domain in its second segment.
func ValidViewName(name string) bool {
	if !viewNameRe.MatchString(name) {
		return false
	}
	parts := strings.SplitN(name, "_", 3)
	if len(parts) < 3 {
		return false
	}
	return Domain(parts[1]).Valid()
}

// ViewNameDomain extracts the domain segment from a view name. Returns the
// empty domain if the name does not follow the naming pattern.
func ViewNameDomain(name string) Domain {
	if !ValidViewName(name) {
		return Domain("")
	}
	parts := strings.SplitN(name, "_", 3)
	return Domain(parts[1])
}
