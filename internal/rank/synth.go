package rank

import "math/rand/v2"

// DefaultVariance bounds how far a derived region may drift from the primary rank.
const DefaultVariance = 5

// Synthesizer estimates ranks for regions that are not crawled.
// The estimates are approximations around the primary region and are not authoritative.
type Synthesizer struct {
	variance int
	rng      RandSource
}

// NewSynthesizer builds a Synthesizer; variance < 0 falls back to DefaultVariance.
func NewSynthesizer(variance int, rng RandSource) *Synthesizer {
	if variance < 0 {
		variance = DefaultVariance
	}
	return &Synthesizer{variance: variance, rng: rng}
}

// Synthesize perturbs the primary ranks for each derived region and reuses the primary pages.
func (s *Synthesizer) Synthesize(primary Ranks, targets Targets, derived []Region) []RegionRanks {
	out := make([]RegionRanks, 0, len(derived))
	usable := primary.Primary.Rank > 0 || primary.Reference.Rank > 0
	for _, region := range derived {
		rr := RegionRanks{Region: region, Synthesized: true}
		if usable {
			for _, t := range targets.All() {
				rr.Ranks.set(t.Role, s.perturb(primary.For(t.Role)))
			}
		}
		out = append(out, rr)
	}
	return out
}

func (s *Synthesizer) perturb(rec RankRecord) RankRecord {
	if rec.Rank <= 0 {
		return RankRecord{}
	}
	offset := 0
	if s.variance > 0 && s.rng != nil {
		offset = s.rng.IntN(2*s.variance+1) - s.variance
	}
	return RankRecord{Rank: max(1, rec.Rank+offset), Page: rec.Page}
}

// DefaultRand draws from the process-wide generator.
var DefaultRand RandSource = globalRand{}

type globalRand struct{}

func (globalRand) IntN(n int) int { return rand.IntN(n) }
