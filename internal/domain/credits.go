package domain

// CreditPackage is a purchasable bundle of credits.
type CreditPackage struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Credits  int    `json:"credits"`
	PriceUSD int64  `json:"price_usd_cents"`
}

// CreditPackages is the fixed set of purchasable bundles. Prices are in
// cents to keep the payment path free of floating-point arithmetic.
var CreditPackages = []CreditPackage{
	{ID: "starter", Name: "Starter", Credits: 50, PriceUSD: 100},
	{ID: "popular", Name: "Popular", Credits: 100, PriceUSD: 150},
	{ID: "best-value", Name: "Best Value", Credits: 1000, PriceUSD: 1000},
}

// PackageByID looks up a credit package by its identifier.
func PackageByID(id string) (CreditPackage, bool) {
	for _, p := range CreditPackages {
		if p.ID == id {
			return p, true
		}
	}
	return CreditPackage{}, false
}
