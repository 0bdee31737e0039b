package keeper

import (
	"context"

	"github.com/sharedock/sharedock/injector/internal/browser"
	"github.com/sharedock/sharedock/injector/internal/button"
)

// rodOps is the production PageOps: every call goes through CDP to the
// live page.
type rodOps struct {
	tab *browser.Tab
}

func (r rodOps) CurrentURL(ctx context.Context) (string, error) {
	return r.tab.CurrentURL(ctx)
}

func (r rodOps) Snapshot(ctx context.Context) ([]byte, error) {
	return r.tab.Snapshot(ctx)
}

func (r rodOps) State(ctx context.Context) (string, error) {
	return button.Present(ctx, r.tab.Page)
}

func (r rodOps) InsertDocked(ctx context.Context, p button.Params) (string, error) {
	return button.InsertDocked(ctx, r.tab.Page, p)
}

func (r rodOps) InsertFloating(ctx context.Context, p button.Params) (string, error) {
	return button.InsertFloating(ctx, r.tab.Page, p)
}

func (r rodOps) Remove(ctx context.Context) error {
	return button.Remove(ctx, r.tab.Page)
}

func (r rodOps) Notify(ctx context.Context, msg string) error {
	return button.Notify(ctx, r.tab.Page, msg)
}

// BrowserLanguage reads navigator.language; an empty result makes the
// keeper fall back to the process environment.
func (r rodOps) BrowserLanguage(ctx context.Context) string {
	res, err := r.tab.Page.Context(ctx).Eval(`() => navigator.language || ""`)
	if err != nil {
		return ""
	}
	return res.Value.Str()
}
