// Package locator finds elements in the live page, piercing open shadow
// trees. Salesforce Lightning renders most of its chrome inside nested web
// components, so a plain querySelector from the document root rarely
// reaches the interesting containers.
package locator

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/go-rod/rod"
)

//go:embed deepquery.js
var deepQueryJS string

// Install evaluates the deep-query helper into the page. Idempotent; must
// run before Find and after any document replacement.
func Install(page *rod.Page) error {
	if _, err := page.Eval(deepQueryJS); err != nil {
		return fmt.Errorf("locator: install: %w", err)
	}
	return nil
}

// Find reports whether selector matches anywhere in the page, including
// inside open shadow roots. In-page failures (malformed selector, closed
// roots) surface as "not found", never as an error; only transport-level
// CDP failures are returned.
func Find(ctx context.Context, page *rod.Page, selector string) (bool, error) {
	res, err := page.Context(ctx).Eval(
		`(sel) => !!window.__sharedock_deepQuery(sel)`, selector)
	if err != nil {
		return false, fmt.Errorf("locator: find %q: %w", selector, err)
	}
	return res.Value.Bool(), nil
}
