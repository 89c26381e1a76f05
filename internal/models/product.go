package models

import "github.com/shopspring/decimal"

// ProductInfo holds descriptive data scraped alongside availability
type ProductInfo struct {
	Name     string              `json:"name,omitempty"`
	Price    string              `json:"price,omitempty"`
	Amount   decimal.NullDecimal `json:"amount"`
	Currency string              `json:"currency,omitempty"`
}

// DisplayPrice returns the most readable price representation available
func (p ProductInfo) DisplayPrice() string {
	if p.Amount.Valid {
		if p.Currency != "" {
			return p.Currency + p.Amount.Decimal.StringFixed(2)
		}
		return p.Amount.Decimal.StringFixed(2)
	}
	if p.Price != "" {
		return p.Price
	}
	return "N/A"
}

// DisplayName falls back to a placeholder when no name was found
func (p ProductInfo) DisplayName() string {
	if p.Name == "" {
		return "Unknown product"
	}
	return p.Name
}
