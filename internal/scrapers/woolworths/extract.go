package woolworths

import (
	"net/url"
	"strings"

	"pricewise-backend/internal/catalog"
	"pricewise-backend/pkg/htmlutil"

	"github.com/PuerkitoBio/goquery"
)

// listing page selectors
const (
	selectorCard        = ".product-list__item"
	selectorImage       = ".product--image img"
	selectorLink        = "a.product--view"
	selectorName        = ".prod_details .product-card__name"
	selectorRange       = ".prod_details .product--range a"
	selectorDescription = ".prod_details .product--desc a"
	selectorPrice       = ".product__price-field .price"
	selectorPromotion   = ".product__price-field .product__special"
	// shown in place of the product grid past the last page
	selectorNoResults = ".search-no-results"
)

// Extract reads every product card out of a rendered listing page, relative
// links are resolved against BaseURL.
func Extract(html string) []catalog.ScrapedItem {
	base, _ := url.Parse(BaseURL)
	return ExtractFrom(html, base)
}

// ExtractFrom is Extract with an explicit base url. A card missing any field
// still produces an item, missing fields are left empty.
func ExtractFrom(html string, base *url.URL) []catalog.ScrapedItem {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	items := []catalog.ScrapedItem{}
	doc.Find(selectorCard).Each(func(_ int, card *goquery.Selection) {
		items = append(items, extractCard(card, base))
	})
	return items
}

func extractCard(card *goquery.Selection, base *url.URL) catalog.ScrapedItem {
	item := catalog.ScrapedItem{
		Name:        htmlutil.Text(card.Find(selectorName)),
		Currency:    Currency,
		ImageURL:    htmlutil.FirstAttr(card.Find(selectorImage), "src"),
		Description: htmlutil.Text(card.Find(selectorDescription)),
		Brand:       htmlutil.Text(card.Find(selectorRange)),
		Promotion:   htmlutil.Text(card.Find(selectorPromotion)),
		ProductURL:  htmlutil.ResolveURL(base, htmlutil.FirstAttr(card.Find(selectorLink), "href")),
	}

	price := card.Find(selectorPrice)
	if price.Length() > 0 {
		item.Price = catalog.ParsePrice(htmlutil.Text(price))
	}
	return item
}
