package headless

import (
	"net/url"
	"strings"

	"github.com/chromedp/cdproto/network"
)

// hostBlocklist stores exact hosts and suffix wildcards.
type hostBlocklist struct {
	exact    map[string]struct{}
	suffixes []string
}

func newHostBlocklist(patterns []string) *hostBlocklist {
	b := &hostBlocklist{exact: make(map[string]struct{})}
	for _, raw := range patterns {
		value := strings.TrimSpace(strings.ToLower(raw))
		switch {
		case value == "":
		case strings.HasPrefix(value, "*."):
			b.addSuffix(strings.TrimPrefix(value, "*."))
		case strings.HasPrefix(value, "."):
			b.addSuffix(strings.TrimPrefix(value, "."))
		default:
			b.exact[value] = struct{}{}
		}
	}
	if len(b.exact) == 0 && len(b.suffixes) == 0 {
		return nil
	}
	return b
}

func (b *hostBlocklist) addSuffix(suffix string) {
	if suffix == "" {
		return
	}
	for _, existing := range b.suffixes {
		if existing == suffix {
			return
		}
	}
	b.suffixes = append(b.suffixes, suffix)
}

func (b *hostBlocklist) blocked(host string) bool {
	if b == nil {
		return false
	}
	host = strings.TrimSpace(strings.ToLower(host))
	if host == "" {
		return false
	}
	if _, ok := b.exact[host]; ok {
		return true
	}
	for _, suffix := range b.suffixes {
		if host == suffix || strings.HasSuffix(host, "."+suffix) {
			return true
		}
	}
	return false
}

// requestFilter decides which intercepted requests are aborted.
type requestFilter struct {
	types      map[network.ResourceType]struct{}
	substrings []string
	hosts      *hostBlocklist
}

func newRequestFilter(cfg Config) *requestFilter {
	f := &requestFilter{
		types: make(map[network.ResourceType]struct{}, len(cfg.BlockedResourceTypes)),
		hosts: newHostBlocklist(cfg.BlockedHosts),
	}
	for _, t := range cfg.BlockedResourceTypes {
		if t = strings.TrimSpace(t); t != "" {
			f.types[network.ResourceType(t)] = struct{}{}
		}
	}
	for _, s := range cfg.BlockedURLSubstrings {
		if s = strings.TrimSpace(strings.ToLower(s)); s != "" {
			f.substrings = append(f.substrings, s)
		}
	}
	return f
}

// Blocked reports whether a request for rawURL of the given resource type should be aborted.
func (f *requestFilter) Blocked(rawURL string, resourceType network.ResourceType) bool {
	if _, ok := f.types[resourceType]; ok {
		return true
	}
	lower := strings.ToLower(rawURL)
	for _, s := range f.substrings {
		if strings.Contains(lower, s) {
			return true
		}
	}
	if f.hosts != nil {
		if u, err := url.Parse(rawURL); err == nil && f.hosts.blocked(u.Hostname()) {
			return true
		}
	}
	return false
}
