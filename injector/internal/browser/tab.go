package browser

import (
	"context"
	"fmt"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// Tab wraps a rod page the injector is keeping a control alive on.
type Tab struct {
	Page     *rod.Page
	TargetID proto.TargetTargetID
}

// Attach wraps an existing page (a tab the user already had open).
func Attach(page *rod.Page) *Tab {
	return &Tab{Page: page, TargetID: page.TargetID}
}

// OpenPage creates a new page and navigates it to url; used by the -url
// path where sharedock opens the record page itself. withStealth applies
// the stealth evasions before navigation.
func OpenPage(ctx context.Context, b *rod.Browser, url string, withStealth bool) (*Tab, error) {
	var page *rod.Page
	var err error

	if withStealth {
		page, err = stealth.Page(b)
	} else {
		page, err = b.Page(proto.TargetCreateTarget{URL: ""})
	}
	if err != nil {
		return nil, fmt.Errorf("browser: create page: %w", err)
	}

	if err := page.Context(ctx).Navigate(url); err != nil {
		page.Close()
		return nil, fmt.Errorf("browser: navigate %s: %w", url, err)
	}
	if err := page.Context(ctx).WaitLoad(); err != nil {
		// Heavy SPAs routinely miss the load event; the keeper's retries
		// cover the gap.
		return &Tab{Page: page, TargetID: page.TargetID}, nil
	}

	return &Tab{Page: page, TargetID: page.TargetID}, nil
}

// CurrentURL reads location.href from inside the page. Target info can lag
// behind client-side navigation, the JS view never does.
func (t *Tab) CurrentURL(ctx context.Context) (string, error) {
	res, err := t.Page.Context(ctx).Eval(`() => location.href`)
	if err != nil {
		return "", fmt.Errorf("browser: current url: %w", err)
	}
	return res.Value.Str(), nil
}

// Snapshot serialises the page DOM as outer HTML.
func (t *Tab) Snapshot(ctx context.Context) ([]byte, error) {
	res, err := t.Page.Context(ctx).Eval(`() => document.documentElement.outerHTML`)
	if err != nil {
		return nil, fmt.Errorf("browser: snapshot: %w", err)
	}
	return []byte(res.Value.Str()), nil
}

// Close closes the tab.
func (t *Tab) Close() error {
	if t.Page != nil {
		return t.Page.Close()
	}
	return nil
}
