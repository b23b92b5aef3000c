// Package headless drives Chrome through chromedp to load marketplace pages.
package headless

import (
	"fmt"
	"time"
)

// DefaultUserAgent is a desktop Chrome identity.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

// DefaultContentSelector matches result cards, the empty state, or a not-found page.
const DefaultContentSelector = ".product-card, .not-found-search, .catalog-page__empty"

// Config controls browser launch and navigation.
type Config struct {
	// MaxParallel bounds concurrently running browsers across the process. 0 means unbounded.
	MaxParallel int
	UserAgent   string
	// ExecPath overrides the Chrome binary.
	ExecPath string
	Headless bool

	DOMTimeout   time.Duration
	IdleTimeout  time.Duration
	HardTimeout  time.Duration
	SelectorWait time.Duration
	// CaptureTimeout bounds reading the DOM after navigation.
	CaptureTimeout  time.Duration
	ContentSelector string

	BlockedResourceTypes []string
	BlockedURLSubstrings []string
	BlockedHosts         []string

	CookieDomain string
	CookieNames  []string

	// NavigationQPS throttles navigations per host. 0 disables throttling.
	NavigationQPS float64
}

// DefaultConfig returns the production navigation settings.
func DefaultConfig() Config {
	return Config{
		MaxParallel:          4,
		UserAgent:            DefaultUserAgent,
		Headless:             true,
		DOMTimeout:           20 * time.Second,
		IdleTimeout:          15 * time.Second,
		HardTimeout:          10 * time.Second,
		SelectorWait:         5 * time.Second,
		CaptureTimeout:       5 * time.Second,
		ContentSelector:      DefaultContentSelector,
		BlockedResourceTypes: []string{"Stylesheet", "Font", "Media"},
		BlockedURLSubstrings: []string{"google", "analytics"},
		CookieDomain:         ".wildberries.ru",
		CookieNames:          []string{"wbx-ssid", "region_id"},
		NavigationQPS:        2,
	}
}

func (c Config) withDefaults() (Config, error) {
	if c.MaxParallel < 0 {
		return Config{}, fmt.Errorf("max parallel must be >= 0")
	}
	def := DefaultConfig()
	if c.UserAgent == "" {
		c.UserAgent = def.UserAgent
	}
	if c.DOMTimeout <= 0 {
		c.DOMTimeout = def.DOMTimeout
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = def.IdleTimeout
	}
	if c.HardTimeout <= 0 {
		c.HardTimeout = def.HardTimeout
	}
	if c.SelectorWait <= 0 {
		c.SelectorWait = def.SelectorWait
	}
	if c.CaptureTimeout <= 0 {
		c.CaptureTimeout = def.CaptureTimeout
	}
	if c.ContentSelector == "" {
		c.ContentSelector = def.ContentSelector
	}
	if c.CookieDomain == "" {
		c.CookieDomain = def.CookieDomain
	}
	if len(c.CookieNames) == 0 {
		c.CookieNames = def.CookieNames
	}
	return c, nil
}
