package parser

import (
	"context"

	"github.com/PuerkitoBio/goquery"
	"github.com/aleister1102/marketplace-monitor/internal/config"
	"github.com/aleister1102/marketplace-monitor/internal/models"
)

// AdidasID identifies the Adidas parser
const AdidasID = "adidas"

var (
	adidasNameSelectors  = []string{`h1[data-auto-id="product-title"]`, ".product-title h1", ".pdp-product-name"}
	adidasPriceSelectors = []string{`[data-auto-id="product-price"]`, ".price .gl-price", ".product-price", ".price-wrapper .price"}
	adidasSizeKeys       = []string{"sizes", "availableSizes", "variants", "sizeOptions", "variation_list"}
	adidasDomains        = []string{"adidas.com", "adidas.de", "adidas.co.uk", "adidas.fr", "adidas.it", "adidas.es"}
)

// adidasHeaders mirror a browser navigation, which the storefront expects
var adidasHeaders = map[string]string{
	"Accept-Language": "en-US,en;q=0.9,de;q=0.8",
	"Sec-Fetch-Dest":  "document",
	"Sec-Fetch-Mode":  "navigate",
	"Sec-Fetch-Site":  "none",
	"Sec-Fetch-User":  "?1",
}

// AdidasParser reads adidas product pages
type AdidasParser struct {
	pageParser
}

// NewAdidasParser is the Factory for the Adidas parser
func NewAdidasParser(deps Deps) Parser {
	return &AdidasParser{pageParser: newPageParser(AdidasID, deps, NormalizeSize)}
}

// ID returns "adidas"
func (p *AdidasParser) ID() string { return AdidasID }

// CanHandle accepts sites whose URLs are all on an adidas storefront
func (p *AdidasParser) CanHandle(site config.SiteConfig) bool {
	return hostMatches(site, adidasDomains...)
}

// Parse fetches url and reports the availability of targetSizes
func (p *AdidasParser) Parse(ctx context.Context, url string, targetSizes []string, opts RequestOptions) (models.AvailabilitySnapshot, error) {
	opts.Headers = mergeHeaders(adidasHeaders, opts.Headers)

	return p.parsePage(ctx, url, targetSizes, opts, func(doc *goquery.Document, sizes *sizeCollector) models.ProductInfo {
		doc.Find(`[data-auto-id="size-selector-size-button"]`).Each(func(_ int, el *goquery.Selection) {
			sizes.observe(text(el), !isUnavailable(el))
		})

		for _, body := range scripts(doc, "DATA_STORE") {
			for _, store := range jsonObjects(body, "") {
				walkObjects(store, func(obj map[string]interface{}) {
					for _, key := range adidasSizeKeys {
						if value, ok := obj[key]; ok {
							sizeEntries(value, sizes.observe)
						}
					}
				})
			}
		}

		collectSelectSizes(doc.Find(`select[data-auto-id*="size"]`), sizes)

		return extractProduct(doc, adidasNameSelectors, adidasPriceSelectors)
	})
}

// mergeHeaders layers site headers over parser defaults
func mergeHeaders(defaults, overrides map[string]string) map[string]string {
	merged := make(map[string]string, len(defaults)+len(overrides))
	for key, value := range defaults {
		merged[key] = value
	}
	for key, value := range overrides {
		merged[key] = value
	}
	return merged
}
