package coordinator

import (
	"context"

	"spendguard-agent/internal/decision"
	"spendguard-agent/internal/extract"
	"spendguard-agent/internal/intervene"
	"spendguard-agent/internal/sites"
	"spendguard-agent/internal/watch"
)

// ManagerOps adapts the watch manager to TabOps.
type ManagerOps struct {
	Mgr *watch.Manager
}

func (o ManagerOps) Match(tabID string) (sites.Match, bool) {
	return o.Mgr.Match(tabID)
}

func (o ManagerOps) Snapshot(ctx context.Context, tabID string) extract.Snapshot {
	page, ok := o.Mgr.Page(tabID)
	if !ok {
		return extract.Snapshot{}
	}
	match, _ := o.Mgr.Match(tabID)
	return extract.TakeSnapshot(ctx, page, match.Profile)
}

func (o ManagerOps) SampleText(ctx context.Context, tabID string) string {
	page, ok := o.Mgr.Page(tabID)
	if !ok {
		return ""
	}
	return watch.SampleText(ctx, page)
}

func (o ManagerOps) ShowOverlay(ctx context.Context, tabID string, d decision.RiskDecision) error {
	page, ok := o.Mgr.Page(tabID)
	if !ok {
		return errTabGone(tabID)
	}
	return intervene.ShowOverlay(ctx, page, d)
}

func (o ManagerOps) RemoveOverlay(ctx context.Context, tabID string) {
	if page, ok := o.Mgr.Page(tabID); ok {
		intervene.RemoveOverlay(ctx, page)
	}
}

func (o ManagerOps) ReplayPending(ctx context.Context, tabID string) bool {
	page, ok := o.Mgr.Page(tabID)
	if !ok {
		return false
	}
	return watch.ReplayPending(ctx, page)
}

func (o ManagerOps) ClearPending(ctx context.Context, tabID string) {
	if page, ok := o.Mgr.Page(tabID); ok {
		watch.ClearPending(ctx, page)
	}
}

type errTabGone string

func (e errTabGone) Error() string {
	return "tab no longer watched: " + string(e)
}
