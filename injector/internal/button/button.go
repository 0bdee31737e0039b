// Package button builds and places the injected action element. The JS side
// owns DOM construction; Go owns every decision about when and where.
package button

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/go-rod/rod"
)

//go:embed button.js
var buttonJS string

// States reported by the in-page helpers.
const (
	StateNone     = ""         // no injected element present
	StateDocked   = "docked"   // placed inside the host container
	StateFloating = "floating" // fixed-position fallback
	StateExisting = "existing" // insertion skipped, an element was already there
)

// Variants select the visual preset; they are mutually exclusive.
const (
	VariantLightning = "lightning"
	VariantClassic   = "classic"
)

// ClickBinding is the CDP binding the element's activation handler calls
// with the page's current URL.
const ClickBinding = "__sharedock_clicked"

// Params configures one build of the element.
type Params struct {
	Label     string `json:"label"`
	Title     string `json:"title"`
	Variant   string `json:"variant"`
	Container string `json:"container"`
}

// Install evaluates the element helpers into the page. Idempotent; must run
// after the locator helper and again after any document replacement.
func Install(page *rod.Page) error {
	if _, err := page.Eval(buttonJS); err != nil {
		return fmt.Errorf("button: install: %w", err)
	}
	return nil
}

// Present returns which variant currently exists in the page, if any.
func Present(ctx context.Context, page *rod.Page) (string, error) {
	res, err := page.Context(ctx).Eval(`() => window.__sharedock.present()`)
	if err != nil {
		return StateNone, fmt.Errorf("button: present: %w", err)
	}
	return res.Value.Str(), nil
}

// InsertDocked attempts the docked placement.
func InsertDocked(ctx context.Context, page *rod.Page, p Params) (string, error) {
	res, err := page.Context(ctx).Eval(`(p) => window.__sharedock.insertDocked(p)`, p)
	if err != nil {
		return StateNone, fmt.Errorf("button: insert docked: %w", err)
	}
	return res.Value.Str(), nil
}

// InsertFloating places the fixed-position fallback.
func InsertFloating(ctx context.Context, page *rod.Page, p Params) (string, error) {
	res, err := page.Context(ctx).Eval(`(p) => window.__sharedock.insertFloating(p)`, p)
	if err != nil {
		return StateNone, fmt.Errorf("button: insert floating: %w", err)
	}
	return res.Value.Str(), nil
}

// Remove deletes both variants from the page.
func Remove(ctx context.Context, page *rod.Page) error {
	if _, err := page.Context(ctx).Eval(`() => window.__sharedock.remove()`); err != nil {
		return fmt.Errorf("button: remove: %w", err)
	}
	return nil
}

// Notify shows a blocking user-visible message in the page.
func Notify(ctx context.Context, page *rod.Page, msg string) error {
	if _, err := page.Context(ctx).Eval(`(m) => window.__sharedock.notify(m)`, msg); err != nil {
		return fmt.Errorf("button: notify: %w", err)
	}
	return nil
}
