package mcp

import (
	"context"
	"fmt"

	"spendguard-agent/internal/coordinator"
	"spendguard-agent/internal/stats"
	"spendguard-agent/internal/watch"
)

type LaunchBrowserTool struct {
	mgr *watch.Manager
}

func (t *LaunchBrowserTool) Name() string { return "launch-browser" }
func (t *LaunchBrowserTool) Description() string {
	return `Connect to Chrome (or launch one) so tabs can be watched.

USE THIS FIRST: all other tab tools need a connected browser.
Safe to call repeatedly; a healthy connection is reused.

Returns: {connected, control_url}.`
}
func (t *LaunchBrowserTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	}
}
func (t *LaunchBrowserTool) Execute(ctx context.Context, _ map[string]interface{}) (interface{}, error) {
	if err := t.mgr.Start(ctx); err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"connected":   t.mgr.IsConnected(),
		"control_url": t.mgr.ControlURL(),
	}, nil
}

type ShutdownBrowserTool struct {
	mgr *watch.Manager
}

func (t *ShutdownBrowserTool) Name() string { return "shutdown-browser" }
func (t *ShutdownBrowserTool) Description() string {
	return `Stop watching all tabs and disconnect from the browser.

WHEN TO USE:
- Ending a monitoring run
- Before restarting the browser with different flags

Returns: {shutdown: true}.`
}
func (t *ShutdownBrowserTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	}
}
func (t *ShutdownBrowserTool) Execute(ctx context.Context, _ map[string]interface{}) (interface{}, error) {
	if err := t.mgr.Shutdown(ctx); err != nil {
		return nil, err
	}
	return map[string]interface{}{"shutdown": true}, nil
}

type WatchTabTool struct {
	mgr *watch.Manager
}

func (t *WatchTabTool) Name() string { return "watch-tab" }
func (t *WatchTabTool) Description() string {
	return `Start purchase monitoring on a page.

Provide either url (a new tab is opened) or target_id (an existing
Chrome tab is instrumented in place). The page gets the purchase
detector injected and its events feed the decision pipeline.

Returns: {tab: {id, url, site}} - the id drives stop-tab and analyze-url.`
}
func (t *WatchTabTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"url": map[string]interface{}{
				"type":        "string",
				"description": "URL to open and watch",
			},
			"target_id": map[string]interface{}{
				"type":        "string",
				"description": "CDP TargetID of an existing tab to watch",
			},
		},
	}
}
func (t *WatchTabTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	url := getStringArg(args, "url")
	targetID := getStringArg(args, "target_id")

	var (
		tab *watch.Tab
		err error
	)
	switch {
	case targetID != "":
		tab, err = t.mgr.AttachTarget(ctx, targetID)
	case url != "":
		tab, err = t.mgr.Watch(ctx, url)
	default:
		return nil, fmt.Errorf("url or target_id is required")
	}
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"tab": tab}, nil
}

type ListTabsTool struct {
	mgr *watch.Manager
}

func (t *ListTabsTool) Name() string { return "list-tabs" }
func (t *ListTabsTool) Description() string {
	return `List all tabs currently under purchase monitoring.

Returns: Array of {id, url, site, status, last_active}.`
}
func (t *ListTabsTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	}
}
func (t *ListTabsTool) Execute(_ context.Context, _ map[string]interface{}) (interface{}, error) {
	return map[string]interface{}{"tabs": t.mgr.List()}, nil
}

type StopTabTool struct {
	mgr *watch.Manager
}

func (t *StopTabTool) Name() string { return "stop-tab" }
func (t *StopTabTool) Description() string {
	return `Stop monitoring one tab. The page itself stays open.

Returns: {stopped: bool}.`
}
func (t *StopTabTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"tab_id": map[string]interface{}{
				"type":        "string",
				"description": "Tab ID from watch-tab or list-tabs",
			},
		},
		"required": []string{"tab_id"},
	}
}
func (t *StopTabTool) Execute(_ context.Context, args map[string]interface{}) (interface{}, error) {
	tabID := getStringArg(args, "tab_id")
	if tabID == "" {
		return nil, fmt.Errorf("tab_id is required")
	}
	return map[string]interface{}{"stopped": t.mgr.StopTab(tabID)}, nil
}

type ToggleMonitoringTool struct {
	coord *coordinator.Coordinator
}

func (t *ToggleMonitoringTool) Name() string { return "toggle-monitoring" }
func (t *ToggleMonitoringTool) Description() string {
	return `Switch purchase intervention on or off globally.

While off, watched tabs keep their instrumentation but every purchase
click passes straight through. The toggle persists across restarts.

Returns: {active: bool}.`
}
func (t *ToggleMonitoringTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"active": map[string]interface{}{
				"type":        "boolean",
				"description": "Desired state; omit to just read the current one",
			},
		},
	}
}
func (t *ToggleMonitoringTool) Execute(_ context.Context, args map[string]interface{}) (interface{}, error) {
	if _, ok := args["active"]; ok {
		if err := t.coord.SetActive(getBoolArg(args, "active", true)); err != nil {
			return nil, err
		}
	}
	return map[string]interface{}{"active": t.coord.Active()}, nil
}

type AnalyzeURLTool struct {
	mgr   *watch.Manager
	coord *coordinator.Coordinator
}

func (t *AnalyzeURLTool) Name() string { return "analyze-url" }
func (t *AnalyzeURLTool) Description() string {
	return `Run the risk pipeline against a product page on demand.

Opens the URL in a watched tab (or reuses tab_id), extracts the
purchase context, and returns the decision without intervening.

WHEN TO USE:
- Checking what the agent would say before buying
- Debugging extraction on a specific site

Returns: {decision, context, tab_id}.`
}
func (t *AnalyzeURLTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"url": map[string]interface{}{
				"type":        "string",
				"description": "Product page URL to open and analyze",
			},
			"tab_id": map[string]interface{}{
				"type":        "string",
				"description": "Already-watched tab to analyze instead of opening a new one",
			},
		},
	}
}
func (t *AnalyzeURLTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	tabID := getStringArg(args, "tab_id")
	if tabID == "" {
		url := getStringArg(args, "url")
		if url == "" {
			return nil, fmt.Errorf("url or tab_id is required")
		}
		tab, err := t.mgr.Watch(ctx, url)
		if err != nil {
			return nil, err
		}
		tabID = tab.ID
	}

	d, pc := t.coord.Analyze(ctx, tabID)
	return map[string]interface{}{
		"decision": d,
		"context":  pc,
		"tab_id":   tabID,
	}, nil
}

type DailyStatsTool struct {
	agg *stats.Aggregator
}

func (t *DailyStatsTool) Name() string { return "daily-stats" }
func (t *DailyStatsTool) Description() string {
	return `Read today's intervention counters.

Returns: {date, interventions, potential_savings}. Counters reset at
local midnight.`
}
func (t *DailyStatsTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	}
}
func (t *DailyStatsTool) Execute(_ context.Context, _ map[string]interface{}) (interface{}, error) {
	return map[string]interface{}{"stats": t.agg.Today()}, nil
}
