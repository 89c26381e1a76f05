package parser

import (
	"bytes"
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/aleister1102/marketplace-monitor/internal/models"
	"github.com/rs/zerolog"
)

// Size labels longer than this are page copy, not sizes
const maxSizeLabelLen = 16

var unavailableClasses = []string{"disabled", "sold-out", "unavailable", "out-of-stock"}

var genericNameSelectors = []string{
	`h1[data-testid="product-title"]`,
	"h1.product-title",
	"h1.pdp-product-name",
	".product-name h1",
	".product-title",
	"h1",
	`[data-testid="product-name"]`,
	".product-display-name",
}

var genericPriceSelectors = []string{
	".price",
	".product-price",
	`[data-testid="price"]`,
	".current-price",
	".sale-price",
	".price-current",
	".price-now",
}

// sizeCollector accumulates every size seen on a page keyed by normalized size.
// A size is available when any source reports it available.
type sizeCollector struct {
	normalize func(string) string
	seen      map[string]bool
}

func newSizeCollector(normalize func(string) string) *sizeCollector {
	return &sizeCollector{normalize: normalize, seen: make(map[string]bool)}
}

func (c *sizeCollector) observe(label string, available bool) {
	label = strings.TrimSpace(label)
	if label == "" || len([]rune(label)) > maxSizeLabelLen {
		return
	}
	normalized := c.normalize(label)
	if normalized == "" {
		return
	}
	c.seen[normalized] = c.seen[normalized] || available
}

func (c *sizeCollector) empty() bool {
	return len(c.seen) == 0
}

// availability reports every target size, absent sizes as false
func (c *sizeCollector) availability(targetSizes []string) map[string]bool {
	sizes := make(map[string]bool, len(targetSizes))
	for _, target := range targetSizes {
		normalized := c.normalize(target)
		if normalized == "" {
			continue
		}
		sizes[normalized] = c.seen[normalized]
	}
	return sizes
}

// pageExtractor fills the collector from a document and returns the product details
type pageExtractor func(doc *goquery.Document, sizes *sizeCollector) models.ProductInfo

// pageParser holds the fetch and snapshot plumbing shared by every built-in parser
type pageParser struct {
	id        string
	deps      Deps
	logger    zerolog.Logger
	normalize func(string) string
}

func newPageParser(id string, deps Deps, normalize func(string) string) pageParser {
	return pageParser{
		id:        id,
		deps:      deps,
		logger:    deps.Logger.With().Str("component", "Parser").Str("parser", id).Logger(),
		normalize: normalize,
	}
}

func (p pageParser) parsePage(ctx context.Context, url string, targetSizes []string, opts RequestOptions, extract pageExtractor) (models.AvailabilitySnapshot, error) {
	page, err := p.deps.Fetcher.Fetch(ctx, url, opts)
	if err != nil {
		return models.AvailabilitySnapshot{}, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return models.NewFailedSnapshot(url, p.deps.now(), "failed to parse HTML: "+err.Error()), nil
	}

	sizes := newSizeCollector(p.normalize)
	product := extract(doc, sizes)

	if sizes.empty() {
		p.logger.Debug().Str("url", url).Msg("No size information found on page")
		snapshot := models.NewFailedSnapshot(url, p.deps.now(), "no size information found on page")
		snapshot.Product = product
		return snapshot, nil
	}

	snapshot := models.NewSnapshot(url, p.deps.now(), sizes.availability(targetSizes))
	snapshot.Product = product

	p.logger.Debug().
		Str("url", url).
		Int("sizes_seen", len(sizes.seen)).
		Strs("available", snapshot.AvailableSizes()).
		Msg("Parsed product page")

	return snapshot, nil
}

// isUnavailable applies the common sold-out markers to an element and its parent
func isUnavailable(sel *goquery.Selection) bool {
	if _, disabled := sel.Attr("disabled"); disabled {
		return true
	}
	if strings.EqualFold(sel.AttrOr("aria-disabled", ""), "true") {
		return true
	}
	return hasClassMarker(sel, unavailableClasses) || hasClassMarker(sel.Parent(), unavailableClasses)
}

func hasClassMarker(sel *goquery.Selection, markers []string) bool {
	class := strings.ToLower(sel.AttrOr("class", ""))
	if class == "" {
		return false
	}
	for _, marker := range markers {
		if strings.Contains(class, marker) {
			return true
		}
	}
	return false
}

func text(sel *goquery.Selection) string {
	return strings.Join(strings.Fields(sel.Text()), " ")
}

// firstText returns the text of the first selector match longer than minLen
func firstText(doc *goquery.Document, minLen int, selectors ...string) string {
	for _, selector := range selectors {
		if value := text(doc.Find(selector).First()); len(value) > minLen {
			return value
		}
	}
	return ""
}

// firstPrice returns the first selector match that carries a currency sign
func firstPrice(doc *goquery.Document, selectors ...string) string {
	for _, selector := range selectors {
		value := text(doc.Find(selector).First())
		for _, sign := range currencySigns {
			if strings.Contains(value, sign) {
				return value
			}
		}
	}
	return ""
}

// extractProduct tries the parser's own selectors before the generic ones and the page title
func extractProduct(doc *goquery.Document, nameSelectors, priceSelectors []string) models.ProductInfo {
	name := firstText(doc, 0, nameSelectors...)
	if name == "" {
		name = firstText(doc, 3, genericNameSelectors...)
	}
	if name == "" {
		name = text(doc.Find("title").First())
	}

	price := firstPrice(doc, priceSelectors...)
	if price == "" {
		price = firstPrice(doc, genericPriceSelectors...)
	}
	return newProductInfo(name, price)
}

func newProductInfo(name, price string) models.ProductInfo {
	info := models.ProductInfo{Name: name, Price: price}
	if price != "" {
		info.Amount, info.Currency = ParsePrice(price)
	}
	return info
}

// scripts returns the text of every script element containing all markers
func scripts(doc *goquery.Document, markers ...string) []string {
	var out []string
	doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		body := s.Text()
		for _, marker := range markers {
			if !strings.Contains(body, marker) {
				return
			}
		}
		out = append(out, body)
	})
	return out
}

// jsonObjects decodes every top-level {...} object in text that contains marker.
// Braces inside JSON strings are skipped.
func jsonObjects(text, marker string) []interface{} {
	var objects []interface{}
	for start := 0; start < len(text); {
		open := strings.IndexByte(text[start:], '{')
		if open < 0 {
			break
		}
		open += start

		end := matchingBrace(text, open)
		if end < 0 {
			break
		}

		candidate := text[open : end+1]
		if marker == "" || strings.Contains(candidate, marker) {
			var value interface{}
			if err := json.Unmarshal([]byte(candidate), &value); err == nil {
				objects = append(objects, value)
				start = end + 1
				continue
			}
		}
		start = open + 1
	}
	return objects
}

func matchingBrace(text string, open int) int {
	depth := 0
	inString := false
	escaped := false
	for i := open; i < len(text); i++ {
		ch := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// walkObjects calls fn for every JSON object nested in value, depth first
func walkObjects(value interface{}, fn func(map[string]interface{})) {
	switch v := value.(type) {
	case map[string]interface{}:
		fn(v)
		for _, child := range v {
			walkObjects(child, fn)
		}
	case []interface{}:
		for _, child := range v {
			walkObjects(child, fn)
		}
	}
}

var sizeLabelKeys = []string{"localizedSize", "label", "shortDescription", "displaySize", "size", "name", "value"}

// sizeEntries reports each entry of a size list: plain strings are available,
// objects carry their own label and availability hints
func sizeEntries(value interface{}, observe func(label string, available bool)) {
	switch v := value.(type) {
	case string:
		observe(v, true)
	case []interface{}:
		for _, item := range v {
			switch entry := item.(type) {
			case string:
				observe(entry, true)
			case float64:
				observe(formatNumber(entry), true)
			case map[string]interface{}:
				if label := labelOf(entry); label != "" {
					observe(label, availabilityOf(entry))
				}
			}
		}
	}
}

func labelOf(obj map[string]interface{}) string {
	for _, key := range sizeLabelKeys {
		switch v := obj[key].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return formatNumber(v)
		}
	}
	return ""
}

// availabilityOf reads the usual stock hints and defaults to available
func availabilityOf(obj map[string]interface{}) bool {
	for _, key := range []string{"available", "isAvailable", "inStock", "in_stock", "orderable"} {
		if v, ok := obj[key].(bool); ok {
			return v
		}
	}
	for _, key := range []string{"availability", "availability_status", "availabilityStatus", "stockStatus", "status"} {
		if v, ok := obj[key].(string); ok && v != "" {
			upper := strings.ToUpper(v)
			for _, marker := range []string{"OUT", "NOT", "UNAVAILABLE", "SOLD", "NO_STOCK"} {
				if strings.Contains(upper, marker) {
					return false
				}
			}
			return true
		}
	}
	for _, key := range []string{"stock", "quantity", "stockLevel"} {
		if v, ok := obj[key].(float64); ok {
			return v > 0
		}
	}
	return true
}

var trailingZeros = regexp.MustCompile(`\.0+$`)

func formatNumber(v float64) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return trailingZeros.ReplaceAllString(string(b), "")
}
