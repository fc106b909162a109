// Package payments sells credit packages through a card/QR payment gateway
// and credits the ledger exactly once per successful charge.
package payments

import "fmt"

const Currency = "thb"

// Package is a purchasable credit bundle priced in whole baht.
type Package struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Credits      int64  `json:"credits"`
	PriceTHB     int64  `json:"price"`
	PriceDisplay string `json:"price_display"`
	Popular      bool   `json:"popular,omitempty"`
}

// AmountSatang is the charge amount in the gateway's smallest unit.
func (p Package) AmountSatang() int64 { return p.PriceTHB * 100 }

var defaultPackages = []Package{
	{ID: "starter", Name: "Starter Pack", Credits: 1000, PriceTHB: 350, PriceDisplay: "฿350"},
	{ID: "basic", Name: "Basic Pack", Credits: 2500, PriceTHB: 850, PriceDisplay: "฿850", Popular: true},
	{ID: "pro", Name: "Pro Pack", Credits: 5000, PriceTHB: 1650, PriceDisplay: "฿1,650"},
	{ID: "premium", Name: "Premium Pack", Credits: 10000, PriceTHB: 3200, PriceDisplay: "฿3,200"},
}

// DefaultPackages returns a copy of the package list.
func DefaultPackages() []Package {
	return append([]Package(nil), defaultPackages...)
}

func findPackage(pkgs []Package, id string) (Package, error) {
	for _, p := range pkgs {
		if p.ID == id {
			return p, nil
		}
	}
	return Package{}, fmt.Errorf("%w %q", ErrUnknownPackage, id)
}
