package rank

import (
	"strings"
	"time"
)

// Role distinguishes the merchant's product from the competitor's.
type Role string

const (
	// RolePrimary is the merchant's own product.
	RolePrimary Role = "primary"
	// RoleReference is the optional competitor product.
	RoleReference Role = "reference"
)

// Target is one tracked marketplace identifier.
type Target struct {
	Role Role
	ID   string
}

// Targets is either Single or Compared.
type Targets interface {
	// Primary returns the merchant's target.
	Primary() Target
	// All returns the targets in role order, primary first.
	All() []Target
	isTargets()
}

// Single tracks only the merchant's product.
type Single struct {
	PrimaryID string
}

// Primary implements Targets.
func (s Single) Primary() Target { return Target{Role: RolePrimary, ID: s.PrimaryID} }

// All implements Targets.
func (s Single) All() []Target { return []Target{s.Primary()} }

func (Single) isTargets() {}

// Compared tracks the merchant's product alongside a competitor's.
type Compared struct {
	PrimaryID   string
	ReferenceID string
}

// Primary implements Targets.
func (c Compared) Primary() Target { return Target{Role: RolePrimary, ID: c.PrimaryID} }

// Reference returns the competitor target.
func (c Compared) Reference() Target { return Target{Role: RoleReference, ID: c.ReferenceID} }

// All implements Targets.
func (c Compared) All() []Target { return []Target{c.Primary(), c.Reference()} }

func (Compared) isTargets() {}

// NewTargets returns Single when referenceID is empty and Compared otherwise.
func NewTargets(primaryID, referenceID string) Targets {
	if referenceID == "" {
		return Single{PrimaryID: primaryID}
	}
	return Compared{PrimaryID: primaryID, ReferenceID: referenceID}
}

// ReferenceOf reports the competitor target when one is tracked.
func ReferenceOf(t Targets) (Target, bool) {
	switch v := t.(type) {
	case Compared:
		return v.Reference(), true
	default:
		return Target{}, false
	}
}

// RankRecord is a 1-based rank and page. Zero values mean not found.
type RankRecord struct {
	Rank int
	Page int
}

// Found reports whether the record carries a usable rank.
func (r RankRecord) Found() bool {
	return r.Rank >= 1 && r.Page >= 1
}

// Ranks holds the records for both roles within one region.
type Ranks struct {
	Primary   RankRecord
	Reference RankRecord
}

// For returns the record for the given role.
func (r Ranks) For(role Role) RankRecord {
	if role == RoleReference {
		return r.Reference
	}
	return r.Primary
}

func (r *Ranks) set(role Role, rec RankRecord) {
	if role == RoleReference {
		r.Reference = rec
		return
	}
	r.Primary = rec
}

// RegionRanks ties a region to its resolved or synthesized ranks.
type RegionRanks struct {
	Region      Region
	Ranks       Ranks
	Synthesized bool
}

// ProductInfo describes a marketplace product card.
type ProductInfo struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	ArticleID string `json:"articleId"`
	Price     int    `json:"price"`
	Image     string `json:"image"`
	Brand     string `json:"brand"`
}

// Products carries the primary product and, when compared, the reference one.
type Products struct {
	Primary   ProductInfo  `json:"primary"`
	Reference *ProductInfo `json:"reference"`
}

// Position is the display form of one region's ranks.
type Position struct {
	Region        string   `json:"region"`
	PrimaryPage   Display  `json:"primaryPage"`
	PrimaryRank   Display  `json:"primaryRank"`
	ReferencePage *Display `json:"referencePage,omitempty"`
	ReferenceRank *Display `json:"referenceRank,omitempty"`
}

// ChartPoint holds linearized ranks for charting.
type ChartPoint struct {
	Region              string `json:"region"`
	PrimaryLinearRank   int    `json:"primaryLinearRank"`
	ReferenceLinearRank int    `json:"referenceLinearRank"`
}

// CrawlResult is the aggregate returned for every crawl request.
type CrawlResult struct {
	Products    Products     `json:"products"`
	Positions   []Position   `json:"positions"`
	ChartPoints []ChartPoint `json:"chartPoints"`
	Query       string       `json:"query"`
	CrawledAt   time.Time    `json:"crawledAt"`
	Degraded    bool         `json:"degraded,omitempty"`
	Cached      bool         `json:"cached,omitempty"`
	SnapshotID  string       `json:"snapshotId,omitempty"`

	Regions []RegionRanks `json:"-"`
}

// Snapshot is the persisted form of a successful crawl.
type Snapshot struct {
	ID          string
	Query       string
	PrimaryID   string
	ReferenceID string
	Products    Products
	Regions     []RegionRanks
	CreatedAt   time.Time
}

// Targets rebuilds the tagged target variant for the snapshot.
func (s Snapshot) Targets() Targets {
	return NewTargets(s.PrimaryID, s.ReferenceID)
}

// HistoryFilter narrows ListSnapshots.
type HistoryFilter struct {
	ArticleID string
	Query     string
	Limit     int
}

const (
	// DefaultHistoryLimit applies when a filter carries no limit.
	DefaultHistoryLimit = 10
	// MaxHistoryLimit caps a single history page.
	MaxHistoryLimit = 100
)

// Normalize applies the default and maximum limits.
func (f HistoryFilter) Normalize() HistoryFilter {
	if f.Limit <= 0 {
		f.Limit = DefaultHistoryLimit
	}
	if f.Limit > MaxHistoryLimit {
		f.Limit = MaxHistoryLimit
	}
	if f.ArticleID != "" && f.Query != "" {
		f.Limit = 1
	}
	return f
}

// Matches reports whether snap satisfies the article and query filters.
// Queries compare case-insensitively and must match whole.
func (f HistoryFilter) Matches(snap Snapshot) bool {
	if f.ArticleID != "" && snap.PrimaryID != f.ArticleID && snap.ReferenceID != f.ArticleID {
		return false
	}
	if q := strings.TrimSpace(f.Query); q != "" && !strings.EqualFold(strings.TrimSpace(snap.Query), q) {
		return false
	}
	return true
}

// SnapshotEvent is published once a snapshot is stored.
type SnapshotEvent struct {
	SnapshotID  string    `json:"snapshot_id"`
	Query       string    `json:"query"`
	PrimaryID   string    `json:"primary_id"`
	ReferenceID string    `json:"reference_id,omitempty"`
	PrimaryRank int       `json:"primary_rank"`
	PrimaryPage int       `json:"primary_page"`
	CreatedAt   time.Time `json:"created_at"`
}
