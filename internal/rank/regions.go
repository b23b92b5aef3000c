package rank

import "fmt"

// Region is a storefront locality identified by its locality code.
type Region struct {
	Name string `json:"name"`
	Code string `json:"code"`
}

// DefaultRegions is the fixed ordered catalogue; the first entry is crawled for real.
var DefaultRegions = []Region{
	{Name: "Москва", Code: "msk"},
	{Name: "СПб", Code: "spb"},
	{Name: "Казань", Code: "kzn"},
	{Name: "Краснодар", Code: "krd"},
	{Name: "Екатеринбург", Code: "ekb"},
	{Name: "Новосибирск", Code: "nsk"},
	{Name: "Хабаровск", Code: "khb"},
	{Name: "Владивосток", Code: "vvo"},
}

// RegionSet is the crawl plan: one real region plus the regions derived from it.
type RegionSet struct {
	Primary Region
	Derived []Region
}

// All returns the primary region followed by the derived ones.
func (s RegionSet) All() []Region {
	out := make([]Region, 0, len(s.Derived)+1)
	out = append(out, s.Primary)
	return append(out, s.Derived...)
}

// NewRegionSet picks the region with primaryCode and the next derived entries in catalogue order.
func NewRegionSet(catalogue []Region, primaryCode string, derived int) (RegionSet, error) {
	if len(catalogue) == 0 {
		return RegionSet{}, fmt.Errorf("region catalogue is empty")
	}
	if derived < 0 {
		return RegionSet{}, fmt.Errorf("derived region count must be >= 0")
	}
	idx := 0
	if primaryCode != "" {
		idx = -1
		for i, r := range catalogue {
			if r.Code == primaryCode {
				idx = i
				break
			}
		}
		if idx < 0 {
			return RegionSet{}, fmt.Errorf("unknown region code %q", primaryCode)
		}
	}
	set := RegionSet{Primary: catalogue[idx]}
	for i := 0; i < len(catalogue) && len(set.Derived) < derived; i++ {
		if i == idx {
			continue
		}
		set.Derived = append(set.Derived, catalogue[i])
	}
	return set, nil
}

// RegionByCode looks up a catalogue entry by locality code.
func RegionByCode(catalogue []Region, code string) (Region, bool) {
	for _, r := range catalogue {
		if r.Code == code {
			return r, true
		}
	}
	return Region{}, false
}
