// Package extract resolves a purchase context from a page snapshot.
// The snapshot comes from a single in-page evaluation; everything in this
// file is pure so the resolution rules stay testable without a browser.
package extract

import (
	"log"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"spendguard-agent/internal/sites"
)

// PurchaseContext is the structured read of one attempted purchase.
// Created fresh per purchase-button activation, never persisted past
// the decision cycle.
type PurchaseContext struct {
	Amount             float64  `json:"amount"`
	Currency           string   `json:"currency"`
	ProductName        string   `json:"product_name"`
	Category           string   `json:"category"`
	Merchant           string   `json:"merchant"`
	OriginalPrice      float64  `json:"original_price,omitempty"`
	DiscountPercentage float64  `json:"discount_percentage,omitempty"`
	URL                string   `json:"url"`
	UrgencyIndicators  []string `json:"urgency_indicators,omitempty"`
}

// Snapshot carries the raw strings probed out of the live page. Empty
// fields mean the probe found nothing; candidate lists come from the
// universal text scan.
type Snapshot struct {
	URL               string   `json:"url"`
	PriceText         string   `json:"priceText"`
	OriginalPriceText string   `json:"originalPriceText"`
	DiscountText      string   `json:"discountText"`
	TitleText         string   `json:"titleText"`
	CategoryText      string   `json:"categoryText"`
	FirstHeading      string   `json:"firstHeading"`
	PriceCandidates   []string `json:"priceCandidates"`
}

const (
	// MaxPlausibleAmount rejects parsed prices above this value. Page
	// text scans pick up order ids and phone numbers otherwise.
	MaxPlausibleAmount = 10_000_000

	defaultCurrency = "INR"
)

var priceRe = regexp.MustCompile(`([0-9][0-9,]*(?:\.[0-9]{1,2})?)`)

// ParseAmount pulls the first numeric price out of free text. Commas are
// thousands separators. Returns false for no number or an implausible one.
func ParseAmount(text string) (float64, bool) {
	m := priceRe.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	cleaned := strings.ReplaceAll(m[1], ",", "")
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	if v < 0 || v > MaxPlausibleAmount {
		return 0, false
	}
	return v, true
}

// DetectCurrency maps a currency symbol in the text to an ISO code.
// Unrecognized text keeps the configured default.
func DetectCurrency(text, fallback string) string {
	switch {
	case strings.Contains(text, "₹"), strings.Contains(strings.ToUpper(text), "RS."), strings.Contains(strings.ToUpper(text), "INR"):
		return "INR"
	case strings.Contains(text, "$"):
		return "USD"
	case strings.Contains(text, "€"):
		return "EUR"
	case strings.Contains(text, "£"):
		return "GBP"
	}
	if fallback == "" {
		return defaultCurrency
	}
	return fallback
}

// FromSnapshot resolves the snapshot into a purchase context under the
// site's profile. Total: unresolvable fields degrade to zero values, the
// function never fails.
func FromSnapshot(match sites.Match, snap Snapshot, fallbackCurrency string) PurchaseContext {
	pc := PurchaseContext{
		URL:      snap.URL,
		Merchant: merchantFrom(match, snap.URL),
		Currency: DetectCurrency(snap.PriceText, fallbackCurrency),
	}

	if amt, ok := ParseAmount(snap.PriceText); ok {
		pc.Amount = amt
	} else if amt, ok := maxCandidate(snap.PriceCandidates); ok {
		pc.Amount = amt
		pc.Currency = bestCandidateCurrency(snap.PriceCandidates, fallbackCurrency)
	}

	pc.ProductName = firstNonEmpty(
		clean(snap.TitleText),
		clean(snap.FirstHeading),
		match.Profile.DefaultProductName,
		"Unknown Item",
	)
	pc.Category = resolveCategory(match, snap)

	if orig, ok := ParseAmount(snap.OriginalPriceText); ok {
		pc.OriginalPrice = orig
	}
	pc.DiscountPercentage = resolveDiscount(pc, snap)

	return pc
}

// resolveDiscount prefers an explicit on-page discount figure, then derives
// one from original vs current price. An original price below the current
// amount is page noise (a struck-through per-unit price, a stale node); the
// derived discount is zeroed and the anomaly logged instead of going
// negative.
func resolveDiscount(pc PurchaseContext, snap Snapshot) float64 {
	if d, ok := ParseAmount(snap.DiscountText); ok && d > 0 && d <= 100 {
		return d
	}
	if pc.OriginalPrice <= 0 || pc.Amount <= 0 {
		return 0
	}
	if pc.OriginalPrice < pc.Amount {
		log.Printf("extract: original price %.2f below amount %.2f on %s, dropping discount",
			pc.OriginalPrice, pc.Amount, pc.URL)
		return 0
	}
	return (pc.OriginalPrice - pc.Amount) / pc.OriginalPrice * 100
}

func resolveCategory(match sites.Match, snap Snapshot) string {
	// Site overrides win over whatever the breadcrumb says: food
	// aggregators label pages by restaurant, not product category.
	if match.Profile.DefaultCategory != "" {
		return match.Profile.DefaultCategory
	}
	if c := clean(snap.CategoryText); c != "" {
		return strings.ToLower(c)
	}
	return "general"
}

// maxCandidate takes the maximum plausible value over the universal-scan
// candidates. Pages list many prices (per-unit, shipping, totals); the
// order total tends to be the largest plausible figure.
func maxCandidate(candidates []string) (float64, bool) {
	var best float64
	found := false
	for _, c := range candidates {
		if v, ok := ParseAmount(c); ok && v > best {
			best = v
			found = true
		}
	}
	return best, found
}

func bestCandidateCurrency(candidates []string, fallback string) string {
	var best float64
	cur := ""
	for _, c := range candidates {
		if v, ok := ParseAmount(c); ok && v > best {
			best = v
			cur = DetectCurrency(c, fallback)
		}
	}
	if cur == "" {
		return DetectCurrency("", fallback)
	}
	return cur
}

func merchantFrom(match sites.Match, rawURL string) string {
	if match.IsKnownSite {
		return match.ProfileName
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func clean(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > 200 {
		// Cut on a rune boundary so multibyte titles stay valid UTF-8.
		cut := 200
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = s[:cut]
	}
	return s
}
