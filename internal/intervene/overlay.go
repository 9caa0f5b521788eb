package intervene

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-rod/rod"

	"spendguard-agent/internal/decision"
)

// ShowOverlay renders the intervention overlay into the page. Any prior
// overlay is torn down first so one session at most is visible. Purchase
// controls are disabled for the overlay's lifetime.
func ShowOverlay(ctx context.Context, page *rod.Page, d decision.RiskDecision) error {
	payload, err := json.Marshal(struct {
		RiskLevel       string   `json:"riskLevel"`
		Reasons         []string `json:"reasons"`
		Recommendations []string `json:"recommendations"`
		DelaySeconds    int      `json:"delaySeconds"`
	}{
		RiskLevel:       d.RiskLevel,
		Reasons:         d.Reasons,
		Recommendations: d.Recommendations,
		DelaySeconds:    d.DelayMinutes * 60,
	})
	if err != nil {
		return fmt.Errorf("marshal overlay payload: %w", err)
	}

	_, err = page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS:           fmt.Sprintf(overlayJS, string(payload)),
		ByValue:      true,
		AwaitPromise: true,
	})
	if err != nil {
		return fmt.Errorf("render overlay: %w", err)
	}
	return nil
}

// RemoveOverlay tears the overlay down and re-enables the page's purchase
// controls. Best effort.
func RemoveOverlay(ctx context.Context, page *rod.Page) {
	_, _ = page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS:           removeOverlayJS,
		ByValue:      true,
		AwaitPromise: true,
	})
}

// overlayJS renders the pause screen. The countdown runs in the page so it
// keeps ticking between polls; expiry only relabels the proceed button,
// it never blocks. Proceeding needs a second confirming click. Responses
// land in the shared event buffer the watcher polls.
const overlayJS = `
() => {
	const d = %s;
	const w = window;

	const prior = document.getElementById('spendguard-overlay');
	if (prior) {
		if (prior.__cleanup) prior.__cleanup();
		prior.remove();
	}

	const disabled = [];
	document.querySelectorAll('[data-spendguard-monitored]').forEach((el) => {
		disabled.push([el, el.style.pointerEvents, el.style.opacity]);
		el.style.pointerEvents = 'none';
		el.style.opacity = '0.4';
	});

	const overlay = document.createElement('div');
	overlay.id = 'spendguard-overlay';
	overlay.style.cssText = 'position:fixed;inset:0;z-index:2147483647;background:rgba(15,23,42,0.92);' +
		'display:flex;align-items:center;justify-content:center;font-family:system-ui,sans-serif;color:#f8fafc;';

	const rows = (items) => (items || []).map(t => '<li>' + String(t)
		.replace(/&/g, '&amp;').replace(/</g, '&lt;').replace(/>/g, '&gt;') + '</li>').join('');

	const card = document.createElement('div');
	card.style.cssText = 'max-width:480px;width:92%%;background:#1e293b;border-radius:12px;padding:28px;';
	card.innerHTML =
		'<h2 style="margin:0 0 4px;font-size:20px;">Take a moment</h2>' +
		'<p style="margin:0 0 12px;color:#94a3b8;">Risk level: <strong>' + d.riskLevel + '</strong></p>' +
		'<div id="spendguard-timer" style="font-size:34px;font-weight:700;text-align:center;margin:10px 0;"></div>' +
		'<ul style="margin:0 0 10px;padding-left:18px;color:#e2e8f0;">' + rows(d.reasons) + '</ul>' +
		'<ul style="margin:0 0 16px;padding-left:18px;color:#86efac;">' + rows(d.recommendations) + '</ul>' +
		'<div style="display:flex;gap:10px;justify-content:flex-end;">' +
		'<button id="spendguard-cancel" style="padding:10px 16px;border:0;border-radius:8px;background:#334155;color:#f8fafc;cursor:pointer;">Skip this purchase</button>' +
		'<button id="spendguard-proceed" style="padding:10px 16px;border:0;border-radius:8px;background:#475569;color:#f8fafc;cursor:pointer;">Proceed anyway</button>' +
		'</div>';
	overlay.appendChild(card);
	document.body.appendChild(overlay);

	const deadline = Date.now() + d.delaySeconds * 1000;
	const timerEl = card.querySelector('#spendguard-timer');
	const proceedBtn = card.querySelector('#spendguard-proceed');
	const cancelBtn = card.querySelector('#spendguard-cancel');
	let expired = false;
	let armed = false;

	const tick = () => {
		const left = Math.max(0, Math.ceil((deadline - Date.now()) / 1000));
		const mm = String(Math.floor(left / 60)).padStart(2, '0');
		const ss = String(left %% 60).padStart(2, '0');
		timerEl.textContent = mm + ':' + ss;
		if (left === 0 && !expired) {
			expired = true;
			if (!armed) proceedBtn.textContent = 'Proceed safely';
			proceedBtn.style.background = '#16a34a';
		}
	};
	tick();
	const interval = setInterval(tick, 1000);

	overlay.__cleanup = () => {
		clearInterval(interval);
		disabled.forEach(([el, pe, op]) => {
			el.style.pointerEvents = pe;
			el.style.opacity = op;
		});
	};

	const respond = (action) => {
		w.__spendguardEvents = w.__spendguardEvents || [];
		w.__spendguardEvents.push({ type: 'overlay_action', action, ts: Date.now() });
	};

	proceedBtn.addEventListener('click', () => {
		if (!armed) {
			armed = true;
			proceedBtn.textContent = 'Confirm: yes, buy it';
			proceedBtn.style.background = '#dc2626';
			return;
		}
		respond('proceed');
	});
	cancelBtn.addEventListener('click', () => respond('cancel'));

	return true;
}
`

const removeOverlayJS = `
() => {
	const overlay = document.getElementById('spendguard-overlay');
	if (!overlay) return false;
	if (overlay.__cleanup) overlay.__cleanup();
	overlay.remove();
	return true;
}
`
