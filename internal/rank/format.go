package rank

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// PageSize is the page-size convention used to linearize ranks.
const PageSize = 100

const (
	// NotFound marks a rank or page that was not located.
	NotFound = "-"
	// ErrorMark marks a rank or page that could not be computed.
	ErrorMark = "Ошибка"
)

// Display is either a positive number or a sentinel string.
type Display struct {
	Value    int
	Sentinel string
}

// Number wraps a value for display.
func Number(v int) Display { return Display{Value: v} }

// Sentinel wraps a marker for display.
func Sentinel(s string) Display { return Display{Sentinel: s} }

// IsNumber reports whether the display holds a rank or page.
func (d Display) IsNumber() bool { return d.Sentinel == "" }

func (d Display) String() string {
	if d.IsNumber() {
		return strconv.Itoa(d.Value)
	}
	return d.Sentinel
}

// MarshalJSON emits a JSON number or a JSON string.
func (d Display) MarshalJSON() ([]byte, error) {
	if d.IsNumber() {
		return []byte(strconv.Itoa(d.Value)), nil
	}
	return json.Marshal(d.Sentinel)
}

// UnmarshalJSON accepts either form.
func (d *Display) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		*d = Number(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("decode display value: %w", err)
	}
	*d = Sentinel(s)
	return nil
}

// Linearize folds page and rank into one comparable integer; 0 means not ranked.
func Linearize(rank, page int) int {
	if rank <= 0 {
		return 0
	}
	if page <= 1 {
		return rank
	}
	return (page-1)*PageSize + rank
}

// FormatRank returns the rank, or NotFound.
func FormatRank(rank int) Display {
	if rank > 0 {
		return Number(rank)
	}
	return Sentinel(NotFound)
}

// FormatPage returns the page for a found rank, or NotFound.
func FormatPage(rank, page int) Display {
	if rank > 0 && page > 0 {
		return Number(page)
	}
	return Sentinel(NotFound)
}

// BuildPositions renders every region for display.
func BuildPositions(regions []RegionRanks, targets Targets) []Position {
	_, compared := ReferenceOf(targets)
	out := make([]Position, 0, len(regions))
	for _, rr := range regions {
		pos := Position{
			Region:      rr.Region.Name,
			PrimaryPage: FormatPage(rr.Ranks.Primary.Rank, rr.Ranks.Primary.Page),
			PrimaryRank: FormatRank(rr.Ranks.Primary.Rank),
		}
		if compared {
			page := FormatPage(rr.Ranks.Reference.Rank, rr.Ranks.Reference.Page)
			rank := FormatRank(rr.Ranks.Reference.Rank)
			pos.ReferencePage = &page
			pos.ReferenceRank = &rank
		}
		out = append(out, pos)
	}
	return out
}

// BuildChart linearizes every region for charting.
func BuildChart(regions []RegionRanks, targets Targets) []ChartPoint {
	_, compared := ReferenceOf(targets)
	out := make([]ChartPoint, 0, len(regions))
	for _, rr := range regions {
		pt := ChartPoint{
			Region:            rr.Region.Name,
			PrimaryLinearRank: Linearize(rr.Ranks.Primary.Rank, rr.Ranks.Primary.Page),
		}
		if compared {
			pt.ReferenceLinearRank = Linearize(rr.Ranks.Reference.Rank, rr.Ranks.Reference.Page)
		}
		out = append(out, pt)
	}
	return out
}

// ResultFromSnapshot renders a stored snapshot in the crawl result shape.
func ResultFromSnapshot(snap Snapshot) CrawlResult {
	targets := snap.Targets()
	return CrawlResult{
		Products:    snap.Products,
		Positions:   BuildPositions(snap.Regions, targets),
		ChartPoints: BuildChart(snap.Regions, targets),
		Query:       snap.Query,
		CrawledAt:   snap.CreatedAt,
		SnapshotID:  snap.ID,
		Regions:     snap.Regions,
	}
}
