package parser

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/aleister1102/marketplace-monitor/internal/config"
	"github.com/aleister1102/marketplace-monitor/internal/models"
)

// GenericID identifies the fallback parser
const GenericID = "generic"

var (
	scriptSizeArray = regexp.MustCompile(`(?is)(?:available)?sizes?\s*[:=]\s*\[(.*?)\]`)
	quotedValue     = regexp.MustCompile(`["']([^"']+)["']`)
	jsonLDSizeKeys  = []string{"size", "sizes", "availableSizes", "variants", "options"}
)

// GenericParser reads sizes from common storefront markup: size selects, size buttons,
// data-size attributes, JSON-LD and inline script arrays.
type GenericParser struct {
	pageParser
}

// NewGenericParser is the Factory for the generic parser
func NewGenericParser(deps Deps) Parser {
	return &GenericParser{pageParser: newPageParser(GenericID, deps, NormalizeSize)}
}

// ID returns "generic"
func (p *GenericParser) ID() string { return GenericID }

// CanHandle accepts any site
func (p *GenericParser) CanHandle(site config.SiteConfig) bool { return true }

// Parse fetches url and reports the availability of targetSizes
func (p *GenericParser) Parse(ctx context.Context, url string, targetSizes []string, opts RequestOptions) (models.AvailabilitySnapshot, error) {
	return p.parsePage(ctx, url, targetSizes, opts, func(doc *goquery.Document, sizes *sizeCollector) models.ProductInfo {
		collectSelectSizes(doc.Find("select"), sizes)
		collectSizeElements(doc, sizes)
		collectJSONLDSizes(doc, sizes)
		collectScriptArrays(doc, sizes)
		return extractProduct(doc, nil, nil)
	})
}

// collectSelectSizes reads the options of selects whose name or id mentions size
func collectSelectSizes(selects *goquery.Selection, sizes *sizeCollector) {
	selects.Each(func(_ int, sel *goquery.Selection) {
		attrs := strings.ToLower(sel.AttrOr("name", "") + sel.AttrOr("id", "") + sel.AttrOr("data-auto-id", ""))
		if !strings.Contains(attrs, "size") {
			return
		}
		sel.Find("option").Each(func(_ int, opt *goquery.Selection) {
			value := opt.AttrOr("value", "")
			label := text(opt)
			if value == "" || isPlaceholder(label) {
				return
			}
			if label == "" {
				label = value
			}
			_, disabled := opt.Attr("disabled")
			sizes.observe(label, !disabled)
		})
	})
}

func isPlaceholder(label string) bool {
	switch strings.ToLower(label) {
	case "select size", "choose size", "size", "select a size":
		return true
	}
	return false
}

// collectSizeElements reads buttons, links and spans with a size class, and any element
// carrying a data-size attribute
func collectSizeElements(doc *goquery.Document, sizes *sizeCollector) {
	doc.Find(`button[class*="size"], a[class*="size"], span[class*="size"], li[class*="size"], button[class*="Size"]`).Each(func(_ int, el *goquery.Selection) {
		label := el.AttrOr("data-size", "")
		if label == "" {
			label = text(el)
		}
		sizes.observe(label, !isUnavailable(el))
	})

	doc.Find("[data-size]").Each(func(_ int, el *goquery.Selection) {
		sizes.observe(el.AttrOr("data-size", ""), !isUnavailable(el))
	})
}

// collectJSONLDSizes reads size lists from structured data. Offers marked OutOfStock are unavailable.
func collectJSONLDSizes(doc *goquery.Document, sizes *sizeCollector) {
	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		var data interface{}
		if err := json.Unmarshal([]byte(s.Text()), &data); err != nil {
			return
		}
		walkObjects(data, func(obj map[string]interface{}) {
			available := offerAvailable(obj)
			for _, key := range jsonLDSizeKeys {
				value, ok := obj[key]
				if !ok {
					continue
				}
				sizeEntries(value, func(label string, entryAvailable bool) {
					sizes.observe(label, available && entryAvailable)
				})
			}
		})
	})
}

func offerAvailable(obj map[string]interface{}) bool {
	offers, ok := obj["offers"].(map[string]interface{})
	if !ok {
		return availabilityOf(obj)
	}
	return availabilityOf(offers)
}

// collectScriptArrays reads quoted values out of `sizes: [...]` style script literals
func collectScriptArrays(doc *goquery.Document, sizes *sizeCollector) {
	doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		if s.AttrOr("type", "") == "application/ld+json" {
			return
		}
		for _, match := range scriptSizeArray.FindAllStringSubmatch(s.Text(), -1) {
			var entries []interface{}
			if err := json.Unmarshal([]byte("["+match[1]+"]"), &entries); err == nil {
				sizeEntries(entries, sizes.observe)
				continue
			}
			for _, quoted := range quotedValue.FindAllStringSubmatch(match[1], -1) {
				sizes.observe(quoted[1], true)
			}
		}
	})
}
