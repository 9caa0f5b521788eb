package sites

import (
	"net/url"
	"strings"
)

// Selectors groups the CSS selector lists used to locate purchase controls
// and product attributes on a commerce page. Lists are probed in order;
// the first match wins.
type Selectors struct {
	BuyNow    []string `json:"buy_now"`
	AddToCart []string `json:"add_to_cart"`
	Checkout  []string `json:"checkout"`
	Price     []string `json:"price"`
	Title     []string `json:"title"`
	Category  []string `json:"category"`
}

// Profile describes how to read one site family.
type Profile struct {
	Name          string    `json:"name"`
	MatchPatterns []string  `json:"match_patterns"`
	Selectors     Selectors `json:"selectors"`
	// DefaultCategory overrides extracted category when set (food, fashion, ...).
	DefaultCategory string `json:"default_category,omitempty"`
	// DefaultProductName fills the product name when extraction finds none.
	DefaultProductName string `json:"default_product_name,omitempty"`
}

// Match is the result of resolving a URL against the registry.
type Match struct {
	ProfileName string
	Profile     Profile
	IsKnownSite bool
}

// GenericProfileName identifies the fallback profile.
const GenericProfileName = "generic"

// Registry holds the immutable site profile table. Built once at startup.
type Registry struct {
	profiles []Profile
	generic  Profile
}

// NewRegistry returns the built-in profile table.
func NewRegistry() *Registry {
	return &Registry{
		profiles: builtinProfiles(),
		generic:  genericProfile(),
	}
}

// Resolve maps a page URL to a site profile. Pure and total: unparsable URLs
// and unknown hosts yield the generic profile with IsKnownSite false.
func (r *Registry) Resolve(originURL string) Match {
	host := normalizeHost(originURL)
	if host != "" {
		for _, p := range r.profiles {
			for _, pattern := range p.MatchPatterns {
				if strings.Contains(host, strings.ToLower(pattern)) {
					return Match{ProfileName: p.Name, Profile: p, IsKnownSite: true}
				}
			}
		}
	}
	return Match{ProfileName: GenericProfileName, Profile: r.generic, IsKnownSite: false}
}

// Generic returns the fallback profile directly.
func (r *Registry) Generic() Profile {
	return r.generic
}

// Names lists known profile names, generic excluded.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.profiles))
	for _, p := range r.profiles {
		names = append(names, p.Name)
	}
	return names
}

func normalizeHost(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	return strings.TrimPrefix(host, "www.")
}

func builtinProfiles() []Profile {
	return []Profile{
		{
			Name:          "amazon",
			MatchPatterns: []string{"amazon.com", "amazon.in", "amazon.co.uk", "amazon.de", "amazon.fr"},
			Selectors: Selectors{
				BuyNow: []string{
					"#buy-now-button",
					`input[name="submit.buy-now"]`,
					"#buyNow_feature_div input",
					"#turbo-checkout-pyo-button",
				},
				AddToCart: []string{
					"#add-to-cart-button",
					`input[name="submit.add-to-cart"]`,
					"#add-to-cart-button-ubb",
				},
				Checkout: []string{
					"#sc-buy-box-ptc-button",
					`input[name="proceedToRetailCheckout"]`,
					"#hlb-ptc-btn",
				},
				Price:    []string{".a-price .a-offscreen", ".a-price-whole", ".a-color-price", "#priceblock_ourprice", "#priceblock_dealprice"},
				Title:    []string{"#productTitle", "#title"},
				Category: []string{"#nav-subnav", ".a-breadcrumb a"},
			},
		},
		{
			Name:          "flipkart",
			MatchPatterns: []string{"flipkart.com"},
			Selectors: Selectors{
				BuyNow:    []string{"._2KpZ6l._2U9uOA._3v1-ww"},
				AddToCart: []string{"._2KpZ6l._2U9uOA._31hAvz"},
				Checkout:  []string{"._2AkmmA._29YdH8", ".checkout-button"},
				Price:     []string{"._30jeq3", "._1_WHN1", ".selling-price"},
				Title:     []string{".B_NuCI", "._35KyD6", ".product-title", "h1"},
				Category:  []string{"._1QZ6fC a", ".breadcrumb a"},
			},
		},
		{
			Name:          "myntra",
			MatchPatterns: []string{"myntra.com"},
			Selectors: Selectors{
				BuyNow:    []string{".pdp-add-to-bag", ".product-actionsButton"},
				AddToCart: []string{".pdp-add-to-bag"},
				Checkout:  []string{".checkout-button"},
				Price:     []string{".pdp-price", ".product-price", ".price-current"},
				Title:     []string{".pdp-name", "h1", ".product-name"},
				Category:  []string{".breadcrumb a"},
			},
			DefaultCategory: "fashion",
		},
		{
			Name:          "ajio",
			MatchPatterns: []string{"ajio.com"},
			Selectors: Selectors{
				BuyNow:    []string{".btn-gold", ".pdp-add-to-bag-btn"},
				AddToCart: []string{".pdp-add-to-bag-btn"},
				Checkout:  []string{".checkout-btn"},
				Price:     []string{".price-current", ".prod-price"},
				Title:     []string{".prod-name", "h1", ".product-title"},
				Category:  []string{".breadcrumb a"},
			},
			DefaultCategory: "fashion",
		},
		{
			Name:          "swiggy",
			MatchPatterns: []string{"swiggy.com"},
			Selectors: Selectors{
				BuyNow:    []string{"._3v5cC"},
				AddToCart: []string{`[data-testid="add-button"]`},
				Checkout:  []string{".place-order-button", "._3uCc3"},
				Price:     []string{".bill-total", ".total-amount", ".order-total"},
				Title:     []string{".restaurant-name", "h1", ".rest-name"},
				Category:  []string{".category"},
			},
			DefaultCategory:    "food",
			DefaultProductName: "Food Order",
		},
		{
			Name:          "zomato",
			MatchPatterns: []string{"zomato.com"},
			Selectors: Selectors{
				BuyNow:    []string{".sc-1s0saks-0", `[data-testid="add-button"]`},
				AddToCart: []string{".item-add-button"},
				Checkout:  []string{".place-order-btn", `[data-testid="place-order"]`},
				Price:     []string{".total-cost", ".bill-total", ".order-amount"},
				Title:     []string{".restaurant-name", "h1", ".res-name"},
				Category:  []string{".cuisine"},
			},
			DefaultCategory:    "food",
			DefaultProductName: "Food Order",
		},
		{
			Name:          "nykaa",
			MatchPatterns: []string{"nykaa.com"},
			Selectors: Selectors{
				BuyNow:    []string{".btn-section .nykaa-btn", ".AddToBagButton"},
				AddToCart: []string{".AddToBagButton"},
				Checkout:  []string{".checkout-button"},
				Price:     []string{".price", ".product-price", ".final-price"},
				Title:     []string{".product-title", "h1", ".prod-title"},
				Category:  []string{".breadcrumb a"},
			},
			DefaultCategory: "beauty",
		},
		{
			Name:          "croma",
			MatchPatterns: []string{"croma.com", "cromaretail.com"},
			Selectors: Selectors{
				BuyNow:    []string{".buy-now", ".add-to-cart"},
				AddToCart: []string{".add-to-cart"},
				Checkout:  []string{".checkout-btn"},
				Price:     []string{".price-current", ".final-price"},
				Title:     []string{"h1", ".product-name", ".prod-title"},
				Category:  []string{".breadcrumb a"},
			},
			DefaultCategory: "electronics",
		},
		{
			Name:          "pepperfry",
			MatchPatterns: []string{"pepperfry.com"},
			Selectors: Selectors{
				BuyNow:    []string{".vip-cart-button", ".btn-buy-now"},
				AddToCart: []string{".pf_btn_cart"},
				Checkout:  []string{".checkout-btn"},
				Price:     []string{".pf_pdp_price", ".price-current"},
				Title:     []string{".pf_pdp_pName", "h1", ".product-name"},
				Category:  []string{".breadcrumb a"},
			},
			DefaultCategory: "furniture",
		},
	}
}

func genericProfile() Profile {
	return Profile{
		Name:          GenericProfileName,
		MatchPatterns: []string{"*"},
		Selectors: Selectors{
			BuyNow:    []string{".buy-now", ".buy-button", `[data-testid*="buy"]`, ".purchase-button"},
			AddToCart: []string{".add-to-cart", ".cart-button", `[data-testid*="cart"]`, ".add-cart-btn"},
			Checkout:  []string{".checkout", ".place-order", `[data-testid*="checkout"]`, ".proceed-checkout"},
			Price:     []string{`[itemprop="price"]`, `[data-price]`, ".price", ".cost", ".amount", ".selling-price", ".final-price"},
			Title:     []string{"h1", ".product-title", ".product-name", ".item-title"},
			Category:  []string{".breadcrumb a", ".category"},
		},
	}
}
