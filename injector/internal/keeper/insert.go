package keeper

import (
	"context"

	"github.com/sharedock/sharedock/injector/internal/button"
	"github.com/sharedock/sharedock/recordid"
)

// ensureInserted makes sure exactly one control exists on a relevant page.
// Reports whether an element is present afterwards (newly inserted or
// already there). finalAttempt marks the deferred dock retry: when it also
// fails to find a container, the floating fallback is used instead of
// scheduling another retry.
func (k *Keeper) ensureInserted(ctx context.Context, finalAttempt bool) bool {
	// Relevance gate: never place the control on list/search/setup pages
	// where a sharing action is meaningless.
	if !recordid.IsRecordPage(k.last.url) {
		return false
	}

	st, err := k.ops.State(ctx)
	if err != nil {
		k.logger.Debug("keeper: state check failed", "error", err)
		return false
	}
	if st != button.StateNone {
		return true
	}

	p := k.params(ctx)

	st, err = k.ops.InsertDocked(ctx, p)
	if err != nil {
		k.logger.Warn("keeper: docked insert failed", "error", err)
		return false
	}
	switch st {
	case button.StateDocked:
		k.logger.Info("keeper: control docked", "container", p.Container)
		return true
	case button.StateExisting:
		return true
	}

	// Container not in the DOM yet, which is common mid-render. Exactly one
	// deferred retry per navigation, then the floating fallback.
	if !finalAttempt {
		if !k.dockRetryArmed {
			k.dockRetryArmed = true
			k.after(k.cfg.Timing.DockRetry, sigDockRetry)
		}
		return false
	}

	// The in-page helper re-checks both markers before creating the
	// overlay, so a docked insertion that won the race is preserved.
	st, err = k.ops.InsertFloating(ctx, p)
	if err != nil {
		k.logger.Warn("keeper: floating insert failed", "error", err)
		return false
	}
	if st == button.StateFloating {
		k.logger.Info("keeper: control floating", "url", k.last.url)
	}
	return st == button.StateFloating || st == button.StateExisting
}

// params builds the element parameters for the current page view: strings
// from the settings/i18n resolution, style variant and container from the
// detected UI mode.
func (k *Keeper) params(ctx context.Context) button.Params {
	str := k.strings(ctx)

	variant := button.VariantLightning
	container := k.cfg.Selectors.Lightning
	if recordid.Mode(k.last.url) == recordid.ModeClassic {
		variant = button.VariantClassic
		container = k.cfg.Selectors.Classic
	}

	return button.Params{
		Label:     str.ButtonText,
		Title:     str.ButtonTitle,
		Variant:   variant,
		Container: container,
	}
}
