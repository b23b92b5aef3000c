package headless

import (
	"context"
	"testing"
	"time"

	"github.com/chromedp/cdproto/cdp"
)

func TestInFrame(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		main  cdp.FrameID
		frame cdp.FrameID
		want  bool
	}{
		{"main frame", "F1", "F1", true},
		{"iframe", "F1", "IFRAME-7", false},
		{"main unknown", "", "IFRAME-7", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := inFrame(tc.main, tc.frame); got != tc.want {
				t.Fatalf("inFrame(%q, %q) = %v, want %v", tc.main, tc.frame, got, tc.want)
			}
		})
	}
}

func TestAwaitReleasesOnlyNamedEvent(t *testing.T) {
	t.Parallel()

	p := &Page{ctx: context.Background(), waiters: make(map[string][]chan struct{})}
	if p.mainFrame() != "" {
		t.Fatalf("expected no main frame without a browser context")
	}
	idle := p.await(eventNetworkIdle)

	p.notify(eventDOMContentLoaded)
	select {
	case <-idle:
		t.Fatalf("networkIdle waiter released by DOMContentLoaded")
	case <-time.After(10 * time.Millisecond):
	}

	p.notify(eventNetworkIdle)
	select {
	case <-idle:
	case <-time.After(time.Second):
		t.Fatalf("networkIdle waiter not released")
	}
}
