// Package rank resolves where products sit in marketplace search results.
//
// An Orchestrator run launches one browser, scans the primary region's search
// pages with a Resolver, estimates the remaining regions with a Synthesizer,
// and formats everything into a CrawlResult. Product details are looked up
// concurrently. Runs never fail: overruns and internal errors produce a
// degraded result carrying ErrorMark instead of ranks.
package rank
