package parser

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/aleister1102/marketplace-monitor/internal/config"
	"github.com/aleister1102/marketplace-monitor/internal/models"
)

// MangoID identifies the Mango parser
const MangoID = "mango"

// MangoUserAgent is sent instead of the desktop agent; the storefront answers 403 to desktop browsers
const MangoUserAgent = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1"

var (
	mangoNameSelectors  = []string{"h1.product-name", ".product-title h1", ".pdp-product-name", `h1[data-testid="product-name"]`, ".product-display-name h1"}
	mangoPriceSelectors = []string{".product-price .price", ".price-current", ".price-now", `[data-testid="price"]`, ".product-price-current"}
	mangoOneSize        = strings.NewReplacer("EINHEITSGRÖSSE", "U", "ONE SIZE", "U", "UNICA", "U")
	mangoSoldOutTexts   = []string{"ich will es", "nicht verfügbar", "ausverkauft", "i want it", "not available", "sold out", "out of stock", "notify me"}
	mangoLowStockTexts  = []string{"nur wenige", "only few"}
	mangoSoldOutClasses = []string{"notavailable", "not-available", "sold-out", "soldout", "unavailable", "disabled"}
	nextFlightPush      = regexp.MustCompile(`self\.__next_f\.push\(\[\s*\d+\s*,\s*("(?:[^"\\]|\\.)*")\s*\]\)`)
)

// MangoParser reads shop.mango.com product pages
type MangoParser struct {
	pageParser
}

// NewMangoParser is the Factory for the Mango parser
func NewMangoParser(deps Deps) Parser {
	p := &MangoParser{}
	p.pageParser = newPageParser(MangoID, deps, p.NormalizeSize)
	return p
}

// ID returns "mango"
func (p *MangoParser) ID() string { return MangoID }

// CanHandle accepts sites whose URLs are all on mango.com
func (p *MangoParser) CanHandle(site config.SiteConfig) bool {
	return hostMatches(site, "mango.com")
}

// NormalizeSize folds the one-size labels (Einheitsgröße, One Size, Única) into "U"
func (p *MangoParser) NormalizeSize(size string) string {
	normalized := NormalizeSize(size)
	normalized = strings.ReplaceAll(normalized, "ÚNICA", "UNICA")
	return mangoOneSize.Replace(normalized)
}

// Parse fetches url with a mobile user agent and reports the availability of targetSizes
func (p *MangoParser) Parse(ctx context.Context, url string, targetSizes []string, opts RequestOptions) (models.AvailabilitySnapshot, error) {
	if ua := headerValue(opts.Headers, "User-Agent"); ua != "" {
		opts.UserAgent = ua
	} else {
		opts.UserAgent = MangoUserAgent
	}
	opts.Headers = mergeHeaders(map[string]string{"Accept-Language": "de-de"}, opts.Headers)

	return p.parsePage(ctx, url, targetSizes, opts, func(doc *goquery.Document, sizes *sizeCollector) models.ProductInfo {
		var name, price string
		for _, data := range mangoProductData(doc) {
			walkObjects(data, func(obj map[string]interface{}) {
				if list, ok := obj["sizes"]; ok {
					sizeEntries(list, sizes.observe)
				}
				if info, ok := obj["productInfo"].(map[string]interface{}); ok && name == "" {
					name = firstString(info, "name", "nameEn")
				}
				if info, ok := obj["priceInfo"].(map[string]interface{}); ok && price == "" {
					price = mangoPrice(info["price"])
				}
			})
		}

		doc.Find(`button[class*="size"], button[class*="Size"]`).Each(func(_ int, el *goquery.Selection) {
			label := text(el)
			if span := el.Find("span").First(); span.Length() > 0 {
				label = text(span)
			}
			sizes.observe(label, !mangoUnavailable(el))
		})
		doc.Find(`li[class*="size"], li[class*="Size"]`).Each(func(_ int, item *goquery.Selection) {
			available := !mangoUnavailable(item)
			item.Find("span").Each(func(_ int, span *goquery.Selection) {
				if label := text(span); len([]rune(label)) <= 5 {
					sizes.observe(label, available)
				}
			})
		})

		product := extractProduct(doc, mangoNameSelectors, mangoPriceSelectors)
		if name != "" && doc.Find(strings.Join(mangoNameSelectors, ", ")).Length() == 0 {
			product.Name = name
		}
		if product.Price == "" && price != "" {
			product = newProductInfo(product.Name, price)
		}
		return product
	})
}

// mangoProductData decodes the productInfo objects embedded in scripts, including the
// escaped next.js flight payloads
func mangoProductData(doc *goquery.Document) []interface{} {
	var data []interface{}
	for _, body := range scripts(doc, "productInfo") {
		if strings.Contains(body, "self.__next_f.push") {
			for _, match := range nextFlightPush.FindAllStringSubmatch(body, -1) {
				var payload string
				if err := json.Unmarshal([]byte(match[1]), &payload); err != nil {
					continue
				}
				data = append(data, jsonObjects(payload, "productInfo")...)
			}
			continue
		}
		data = append(data, jsonObjects(body, "productInfo")...)
	}
	return data
}

func mangoPrice(value interface{}) string {
	switch v := value.(type) {
	case float64:
		return fmt.Sprintf("€%s", formatNumber(v))
	case string:
		return v
	}
	return ""
}

func firstString(obj map[string]interface{}, keys ...string) string {
	for _, key := range keys {
		if v, ok := obj[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// mangoUnavailable adds the storefront's German and English sold-out texts to the common markers.
// Low stock counts as available.
func mangoUnavailable(el *goquery.Selection) bool {
	if isUnavailable(el) || hasClassMarker(el, mangoSoldOutClasses) {
		return true
	}
	if soldOutText(text(el)) {
		return true
	}
	// A wrapper around this element alone may carry the label
	parent := el.Parent()
	return parent.Children().Length() == 1 && soldOutText(text(parent))
}

func soldOutText(value string) bool {
	lower := strings.ToLower(value)
	for _, marker := range mangoLowStockTexts {
		if strings.Contains(lower, marker) {
			return false
		}
	}
	for _, marker := range mangoSoldOutTexts {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// headerValue looks up name regardless of how the configured header key is cased
func headerValue(headers map[string]string, name string) string {
	canonical := http.CanonicalHeaderKey(name)
	for key, value := range headers {
		if http.CanonicalHeaderKey(key) == canonical {
			return value
		}
	}
	return ""
}
