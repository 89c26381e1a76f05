package parser

import (
	"context"

	"github.com/PuerkitoBio/goquery"
	"github.com/aleister1102/marketplace-monitor/internal/config"
	"github.com/aleister1102/marketplace-monitor/internal/models"
)

// NikeID identifies the Nike parser
const NikeID = "nike"

var (
	nikeNameSelectors  = []string{`h1[data-testid="product-title"]`, "#pdp_product_title", ".pdp-product-name-title", ".product-title h1"}
	nikePriceSelectors = []string{`[data-testid="product-price"]`, ".product-price .sr-only", ".product-price", ".price-wrapper .price"}
	nikeStateMarkers   = []string{"INITIAL_REDUX_STATE", "NIKE_REDUX_STATE", "__NEXT_DATA__"}
)

// NikeParser reads nike.com product pages
type NikeParser struct {
	pageParser
}

// NewNikeParser is the Factory for the Nike parser
func NewNikeParser(deps Deps) Parser {
	return &NikeParser{pageParser: newPageParser(NikeID, deps, NormalizeSize)}
}

// ID returns "nike"
func (p *NikeParser) ID() string { return NikeID }

// CanHandle accepts sites whose URLs are all on nike.com
func (p *NikeParser) CanHandle(site config.SiteConfig) bool {
	return hostMatches(site, "nike.com")
}

// Parse fetches url and reports the availability of targetSizes
func (p *NikeParser) Parse(ctx context.Context, url string, targetSizes []string, opts RequestOptions) (models.AvailabilitySnapshot, error) {
	return p.parsePage(ctx, url, targetSizes, opts, func(doc *goquery.Document, sizes *sizeCollector) models.ProductInfo {
		collectNikeSkuInputs(doc, sizes)
		collectNikeState(doc, sizes)

		// Picker containers fail the label length check
		doc.Find(`[data-qa*="size"]`).Each(func(_ int, el *goquery.Selection) {
			sizes.observe(text(el), !isUnavailable(el))
		})

		return extractProduct(doc, nikeNameSelectors, nikePriceSelectors)
	})
}

// collectNikeSkuInputs reads the skuAndSize radio inputs through their labels
func collectNikeSkuInputs(doc *goquery.Document, sizes *sizeCollector) {
	doc.Find(`input[name="skuAndSize"]`).Each(func(_ int, input *goquery.Selection) {
		id := input.AttrOr("id", "")
		if id == "" {
			return
		}
		label := doc.Find(`label[for="` + id + `"]`).First()
		_, disabled := input.Attr("disabled")
		sizes.observe(text(label), !disabled)
	})
}

// collectNikeState reads availableSkus and skus from the embedded redux or next.js state
func collectNikeState(doc *goquery.Document, sizes *sizeCollector) {
	for _, marker := range nikeStateMarkers {
		for _, body := range scripts(doc, marker) {
			for _, state := range jsonObjects(body, "") {
				walkObjects(state, func(obj map[string]interface{}) {
					if skus, ok := obj["availableSkus"].([]interface{}); ok {
						for _, sku := range skus {
							if entry, ok := sku.(map[string]interface{}); ok {
								if size, ok := entry["localizedSize"].(string); ok {
									sizes.observe(size, true)
								}
							}
						}
					}
					if skus, ok := obj["skus"].([]interface{}); ok {
						for _, sku := range skus {
							entry, ok := sku.(map[string]interface{})
							if !ok {
								continue
							}
							available, _ := entry["available"].(bool)
							if size, ok := entry["localizedSize"].(string); ok {
								sizes.observe(size, available)
							} else if size, ok := entry["nikeSize"].(string); ok {
								sizes.observe(size, available)
							}
						}
					}
				})
			}
		}
	}
}
