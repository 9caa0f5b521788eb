package watch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-rod/rod"

	"spendguard-agent/internal/sites"
)

// Kind discriminates events coming out of the page buffer.
type Kind string

const (
	// KindPurchaseClick is a suppressed purchase-control activation.
	KindPurchaseClick Kind = "purchase_click"
	// KindOverlayAction is the user responding to the overlay.
	KindOverlayAction Kind = "overlay_action"
	// KindFailOpen reports the in-page timer releasing a suppressed click
	// because no decision arrived in time.
	KindFailOpen Kind = "fail_open"
)

// Event is one page-side occurrence forwarded to the coordinator.
type Event struct {
	TabID          string
	Kind           Kind
	Control        string
	Action         string
	URL            string
	ClickTimesMs   []int64
	PageStartMs    int64
	NowMs          int64
	ScrollDistance float64
}

// pageEvent mirrors the JSON objects the detector pushes into the buffer.
type pageEvent struct {
	Type    string  `json:"type"`
	Control string  `json:"control"`
	Action  string  `json:"action"`
	URL     string  `json:"url"`
	Clicks  []int64 `json:"clicks"`
	StartMs int64   `json:"startMs"`
	TS      int64   `json:"ts"`
	Scroll  float64 `json:"scroll"`
}

// injectDetector installs the purchase-control instrumentation. Idempotent
// per page load: the hooked flag survives until navigation resets the JS
// context.
func injectDetector(ctx context.Context, page *rod.Page, profile sites.Profile, failOpenMs, clickWindow int) error {
	sel, err := json.Marshal(profile.Selectors)
	if err != nil {
		return fmt.Errorf("marshal selectors: %w", err)
	}
	_, err = page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS:           fmt.Sprintf(detectorJS, string(sel), failOpenMs, clickWindow),
		ByValue:      true,
		AwaitPromise: true,
	})
	if err != nil {
		return fmt.Errorf("inject detector: %w", err)
	}
	return nil
}

// isInstrumented reports whether the current JS context still carries the
// detector. False after navigation.
func isInstrumented(ctx context.Context, page *rod.Page) bool {
	res, err := page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS:      `() => !!window.__spendguardHooked`,
		ByValue: true,
	})
	if err != nil || res == nil {
		return false
	}
	return res.Value.Bool()
}

// drainEvents empties the page's event buffer.
func drainEvents(ctx context.Context, page *rod.Page) []pageEvent {
	res, err := page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS: `
		() => {
			const buf = Array.isArray(window.__spendguardEvents) ? window.__spendguardEvents : [];
			window.__spendguardEvents = [];
			return buf;
		}
		`,
		ByValue:      true,
		AwaitPromise: true,
	})
	if err != nil || res == nil || res.Value.Nil() {
		return nil
	}
	raw, err := res.Value.MarshalJSON()
	if err != nil {
		return nil
	}
	var events []pageEvent
	if err := json.Unmarshal(raw, &events); err != nil {
		return nil
	}
	return events
}

// ReplayPending re-resolves the suppressed element and fires its click
// exactly once. Returns false when nothing was pending or it was already
// released (fail-open beat us to it).
func ReplayPending(ctx context.Context, page *rod.Page) bool {
	res, err := page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS:           replayPendingJS,
		ByValue:      true,
		AwaitPromise: true,
	})
	if err != nil || res == nil {
		return false
	}
	return res.Value.Bool()
}

// ClearPending drops the suppressed click without replaying it.
func ClearPending(ctx context.Context, page *rod.Page) {
	_, _ = page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS:           `() => { window.__spendguardPending = null; return true; }`,
		ByValue:      true,
		AwaitPromise: true,
	})
}

// SampleText grabs a bounded slice of the page's visible text for the
// keyword scan.
func SampleText(ctx context.Context, page *rod.Page) string {
	res, err := page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS:           `() => ((document.body && document.body.innerText) || '').slice(0, 20000)`,
		ByValue:      true,
		AwaitPromise: true,
	})
	if err != nil || res == nil {
		return ""
	}
	return res.Value.Str()
}

// detectorJS instruments purchase controls: selector probes from the site
// profile plus a text/attribute keyword fallback for unknown markup.
// Matched elements are marked so re-scans and the overlay can find them.
// A suppressed click parks in the pending slot with a fail-open timer; if
// no verdict arrives in time the original click is released so the user is
// never trapped.
const detectorJS = `
() => {
	const selectors = %s;
	const failOpenMs = %d;
	const clickWindow = %d;
	const w = window;

	if (w.__spendguardHooked) return true;
	w.__spendguardHooked = true;
	w.__spendguardEvents = [];
	w.__spendguardClicks = [];
	w.__spendguardStart = Date.now();
	w.__spendguardScroll = 0;
	w.__spendguardPending = null;
	w.__spendguardBypass = false;

	let lastY = w.scrollY || 0;
	w.addEventListener('scroll', () => {
		const y = w.scrollY || 0;
		w.__spendguardScroll += Math.abs(y - lastY);
		lastY = y;
	}, { passive: true });

	document.addEventListener('click', () => {
		w.__spendguardClicks.push(Date.now());
		if (w.__spendguardClicks.length > clickWindow) {
			w.__spendguardClicks = w.__spendguardClicks.slice(-clickWindow);
		}
	}, true);

	const keywords = [
		'buy now', 'add to cart', 'add to bag', 'purchase', 'checkout',
		'proceed to checkout', 'place order', 'pay now', 'order now',
		'proceed to cart', 'complete order', 'submit order',
		'खरीदें', 'कार्ट में डालें'
	];
	const notPurchase = ['search', 'filter', 'sort', 'menu', 'close', 'back', 'nav'];

	const release = (pending) => {
		if (!pending || pending.released) return false;
		pending.released = true;
		if (pending.timer) clearTimeout(pending.timer);
		if (w.__spendguardPending === pending) w.__spendguardPending = null;
		let el = pending.el;
		if (!el || !document.contains(el)) {
			el = pending.selector ? document.querySelector(pending.selector) : null;
		}
		if (!el) return false;
		w.__spendguardBypass = true;
		try { el.click(); } finally { w.__spendguardBypass = false; }
		return true;
	};
	w.__spendguardRelease = release;

	const onPurchaseClick = (ev, el, control, selector) => {
		if (w.__spendguardBypass) return;
		ev.preventDefault();
		ev.stopPropagation();
		if (ev.stopImmediatePropagation) ev.stopImmediatePropagation();

		if (w.__spendguardPending) return;
		const pending = { el, selector, control, released: false };
		pending.timer = setTimeout(() => {
			if (release(pending)) {
				w.__spendguardEvents.push({ type: 'fail_open', control, ts: Date.now() });
			}
		}, failOpenMs);
		w.__spendguardPending = pending;

		w.__spendguardEvents.push({
			type: 'purchase_click',
			control,
			url: location.href,
			clicks: w.__spendguardClicks.slice(),
			startMs: w.__spendguardStart,
			scroll: w.__spendguardScroll,
			ts: Date.now()
		});
	};

	const attach = (el, control, selector) => {
		if (el.dataset.spendguardMonitored) return;
		el.dataset.spendguardMonitored = 'true';
		el.addEventListener('click', (ev) => onPurchaseClick(ev, el, control, selector), { capture: true });
	};

	const attachBySelectors = (list, control) => {
		for (const s of list || []) {
			let els;
			try { els = document.querySelectorAll(s); } catch (e) { continue; }
			els.forEach((el) => attach(el, control, s));
		}
	};

	const attachByKeywords = () => {
		const candidates = document.querySelectorAll(
			'button, a[href*="cart"], a[href*="buy"], input[type="button"], input[type="submit"], [role="button"]');
		candidates.forEach((el) => {
			if (el.dataset.spendguardMonitored) return;
			const text = (el.textContent || '').toLowerCase().trim();
			const label = (el.getAttribute('aria-label') || '').toLowerCase();
			const cls = (typeof el.className === 'string' ? el.className : '').toLowerCase();
			const matched = keywords.some(k =>
				text === k || text.includes(k + ' ') || text.includes(' ' + k) ||
				label.includes(k) || cls.includes(k.replace(' ', '-')));
			if (!matched) return;
			const noisy = notPurchase.some(k => text.includes(k) || cls.includes(k));
			if (noisy || text.length <= 2) return;
			attach(el, 'keyword', null);
		});
	};

	const scan = () => {
		attachBySelectors(selectors.buy_now, 'buy_now');
		attachBySelectors(selectors.add_to_cart, 'add_to_cart');
		attachBySelectors(selectors.checkout, 'checkout');
		attachByKeywords();
	};
	scan();

	let scheduled = false;
	const observer = new MutationObserver(() => {
		if (scheduled) return;
		scheduled = true;
		setTimeout(() => { scheduled = false; scan(); }, 500);
	});
	observer.observe(document.body || document.documentElement, { childList: true, subtree: true });

	return true;
}
`

// replayPendingJS releases the parked click through the shared release
// path, which enforces the replay-once guard.
const replayPendingJS = `
() => {
	const w = window;
	const pending = w.__spendguardPending;
	if (!pending || !w.__spendguardRelease) return false;
	return w.__spendguardRelease(pending);
}
`
