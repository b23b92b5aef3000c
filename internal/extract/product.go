package extract

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Fallback values used when a detail page lacks a field.
const (
	NoImage         = "/images/no-image.svg"
	MissingName     = "Наименование отсутствует"
	MissingBrand    = "Бренд не указан"
	NotFoundName    = "Товар не найден"
	UnknownBrand    = "Н/Д"
	maxPlainPrice   = 100000
	clampedPriceLen = 5
)

// ProductSelector signals that a detail page has rendered.
const ProductSelector = ".product-page__header, .catalog-page, .not-found-search"

var (
	priceSelectors = []string{".price-block__final-price", ".ins-product-price"}
	imageSelectors = []string{".slider-content img", ".swiper-wrapper img", ".img-plug img"}

	// Prices use regular and non-breaking spaces as thousands separators.
	pricePattern = regexp.MustCompile(`(\d[\d\s\x{00a0}\x{2009}\x{202f}]*)[\s\x{00a0}\x{2009}\x{202f}]*₽`)
	nonDigits    = regexp.MustCompile(`\D`)
)

// ProductFields is the parsed content of a product detail page.
type ProductFields struct {
	Name     string
	Price    int
	Brand    string
	Image    string
	NotFound bool
}

// ParseProduct reads name, price, brand, and image from a detail page.
func ParseProduct(html, articleID string) (ProductFields, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ProductFields{}, fmt.Errorf("parse product page: %w", err)
	}
	if doc.Find(".not-found-search").Length() > 0 {
		return ProductFields{
			Name:     NotFoundName,
			Brand:    UnknownBrand,
			Image:    NoImage,
			NotFound: true,
		}, nil
	}

	fields := ProductFields{
		Name:  firstText(doc, ".product-page__header h1", MissingName),
		Price: findPrice(doc),
		Brand: firstText(doc, ".product-page__brand-link", MissingBrand),
		Image: findImage(doc, articleID),
	}
	return fields, nil
}

// HasProductHeader reports whether the markup already contains a rendered product header.
func HasProductHeader(html string) bool {
	return strings.Contains(html, "product-page__header") || strings.Contains(html, "not-found-search")
}

func firstText(doc *goquery.Document, selector, fallback string) string {
	if text := strings.TrimSpace(doc.Find(selector).First().Text()); text != "" {
		return text
	}
	return fallback
}

func findPrice(doc *goquery.Document) int {
	for _, sel := range priceSelectors {
		el := doc.Find(sel).First()
		if el.Length() == 0 {
			continue
		}
		if price := ParsePrice(el.Text()); price > 0 {
			return price
		}
	}

	// Last resort: any leaf element whose own text carries a ruble amount.
	price := 0
	doc.Find("body *").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if s.Children().Length() > 0 {
			return true
		}
		price = ParsePrice(s.Text())
		return price == 0
	})
	return price
}

// ParsePrice extracts a ruble amount such as "1 299 ₽". Amounts above 100000 are
// cut to their first five digits, since those come from concatenated price blocks.
// It returns 0 when no amount is present.
func ParsePrice(text string) int {
	m := pricePattern.FindStringSubmatch(strings.TrimSpace(text))
	if len(m) < 2 {
		return 0
	}
	digits := nonDigits.ReplaceAllString(m[1], "")
	if digits == "" {
		return 0
	}
	price, err := strconv.Atoi(digits)
	if err != nil {
		if len(digits) < clampedPriceLen {
			return 0
		}
		price = maxPlainPrice + 1
	}
	if price > maxPlainPrice {
		price, err = strconv.Atoi(digits[:clampedPriceLen])
		if err != nil {
			return 0
		}
	}
	return price
}

func findImage(doc *goquery.Document, articleID string) string {
	for _, sel := range imageSelectors {
		src, ok := doc.Find(sel).First().Attr("src")
		if !ok || src == "" || strings.Contains(src, "data:image") {
			continue
		}
		if strings.HasPrefix(src, "http") {
			return src
		}
		return "https:" + src
	}
	if articleID == "" {
		return NoImage
	}
	return BasketImageURL(articleID)
}

// BasketImageURL builds the CDN location of a product's first photo.
func BasketImageURL(articleID string) string {
	vol := articleID[:min(4, len(articleID))]
	part := articleID[:min(6, len(articleID))]
	return fmt.Sprintf("https://basket-10.wbbasket.ru/vol%s/part%s/%s/images/c516x688/1.webp", vol, part, articleID)
}
