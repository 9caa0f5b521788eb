package extract

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-rod/rod"

	"spendguard-agent/internal/sites"
)

// TakeSnapshot runs one evaluation against the live page: probe the
// profile's selector lists in order, grab the first heading, and run the
// universal currency-text scan. A failed evaluation returns an empty
// snapshot with only the URL set, so extraction degrades instead of
// aborting.
func TakeSnapshot(ctx context.Context, page *rod.Page, profile sites.Profile) Snapshot {
	sel, err := json.Marshal(profile.Selectors)
	if err != nil {
		return Snapshot{}
	}

	res, err := page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS:           fmt.Sprintf(snapshotJS, string(sel)),
		ByValue:      true,
		AwaitPromise: true,
	})
	if err != nil || res == nil || res.Value.Nil() {
		return Snapshot{URL: pageURL(page)}
	}

	raw, err := res.Value.MarshalJSON()
	if err != nil {
		return Snapshot{URL: pageURL(page)}
	}
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return Snapshot{URL: pageURL(page)}
	}
	if snap.URL == "" {
		snap.URL = pageURL(page)
	}
	return snap
}

func pageURL(page *rod.Page) string {
	info, err := page.Info()
	if err != nil || info == nil {
		return ""
	}
	return info.URL
}

// snapshotJS probes each selector list and scans visible text for
// currency-prefixed figures. Candidate count is capped so a long catalog
// page cannot flood the result.
const snapshotJS = `
() => {
	const selectors = %s;

	const probe = (list) => {
		for (const s of list || []) {
			let el;
			try { el = document.querySelector(s); } catch (e) { continue; }
			if (el) {
				const text = (el.textContent || el.value || '').trim();
				if (text) return text;
			}
		}
		return '';
	};

	const heading = document.querySelector('h1, h2, [role="heading"]');

	const candidates = [];
	const re = /[₹$€£]\s*[0-9][0-9,]*(?:\.[0-9]{1,2})?/g;
	const walker = document.createTreeWalker(document.body, NodeFilter.SHOW_TEXT);
	let node;
	while ((node = walker.nextNode()) && candidates.length < 50) {
		const parent = node.parentElement;
		if (!parent) continue;
		const tag = parent.tagName;
		if (tag === 'SCRIPT' || tag === 'STYLE' || tag === 'NOSCRIPT') continue;
		const matches = node.textContent.match(re);
		if (matches) {
			for (const m of matches) {
				candidates.push(m);
				if (candidates.length >= 50) break;
			}
		}
	}

	return {
		url: location.href,
		priceText: probe(selectors.price),
		originalPriceText: probe(['.strike-price', '.original-price', '.was-price', 'del', 's', '.a-text-price .a-offscreen']),
		discountText: probe(['.discount-percent', '.off-percent', '.savings-percent']),
		titleText: probe(selectors.title),
		categoryText: probe(selectors.category),
		firstHeading: heading ? heading.textContent.trim() : '',
		priceCandidates: candidates
	};
}
`
