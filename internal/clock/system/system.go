// Package system provides the wall clock used for crawl timestamps and cache days.
package system

import (
	"fmt"
	"time"
)

// DefaultLocation is the storefront's home time zone; cache days roll over at its midnight.
const DefaultLocation = "Europe/Moscow"

// Clock implements rank.Clock in a fixed location.
type Clock struct {
	loc *time.Location
}

// New creates a Clock reporting times in loc. A nil loc means UTC.
func New(loc *time.Location) *Clock {
	if loc == nil {
		loc = time.UTC
	}
	return &Clock{loc: loc}
}

// NewNamed resolves an IANA zone name. An empty name selects DefaultLocation.
func NewNamed(name string) (*Clock, error) {
	if name == "" {
		name = DefaultLocation
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load location %q: %w", name, err)
	}
	return New(loc), nil
}

// Now returns the current time in the clock's location.
func (c *Clock) Now() time.Time {
	return time.Now().In(c.loc)
}

// Location returns the configured location.
func (c *Clock) Location() *time.Location {
	return c.loc
}
