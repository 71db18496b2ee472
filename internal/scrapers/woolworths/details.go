package woolworths

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"pricewise-backend/internal/catalog"
	"pricewise-backend/internal/components/assert"
	"pricewise-backend/internal/components/telemetry"
	"pricewise-backend/internal/scrapers/browser"
	"pricewise-backend/pkg/htmlutil"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

// product page selectors
const (
	selectorDetailName        = ".product-name"
	selectorDetailDescription = ".product-description"
	selectorDetailBrand       = ".product-brand"
	selectorDetailCategory    = ".product-category"
	selectorDetailPrice       = ".price"
	selectorDetailImage       = ".product-image img"
	selectorDetailBarcode     = ".product-barcode"
)

const report_details_get = "details.get"

// DetailsClient reads a single product page, which carries fields the listing
// cards lack (category, barcode). Product pages are served without client side
// rendering so a plain http client is enough.
type DetailsClient struct {
	baseURL *url.URL
	http    *resty.Client
	tel     telemetry.API
}

func NewDetailsClient(baseURL string, tel telemetry.API) (DetailsClient, error) {
	assert.NotNil(tel)
	tel = telemetry.NewScopedAPI("woolworths", tel)

	if baseURL == "" {
		baseURL = BaseURL
	}
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return DetailsClient{}, err
	}

	client := resty.New()
	client.SetBaseURL(baseURL)
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)
	client.SetHeader("user-agent", browser.DefaultUserAgent)
	client.SetRedirectPolicy(resty.DomainCheckRedirectPolicy(parsed.Hostname()))
	client.SetTimeout(30 * time.Second)

	// 2 requests max per second
	rateLimiter := rate.NewLimiter(2, 2)
	client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		return rateLimiter.Wait(req.Context())
	})

	telemetry.InstrumentResty(client, tel)

	return DetailsClient{
		baseURL: parsed,
		http:    client,
		tel:     tel,
	}, nil
}

// Details fetches and parses the product page at productURL, which may be
// relative to the base url.
func (c DetailsClient) Details(ctx context.Context, productURL string) (catalog.ScrapedItem, error) {
	res, err := c.http.R().
		SetContext(ctx).
		Get(productURL)
	if err != nil {
		c.tel.ReportBroken(report_details_get, err, productURL)
		return catalog.ScrapedItem{}, catalog.NavigationError{URL: productURL, Err: err}
	}
	if res.IsError() {
		return catalog.ScrapedItem{}, catalog.NavigationError{URL: productURL, Status: res.StatusCode()}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body()))
	if err != nil {
		c.tel.ReportBroken(report_details_get, err, productURL)
		return catalog.ScrapedItem{}, err
	}
	if doc.Find(selectorDetailName).Length() == 0 {
		return catalog.ScrapedItem{}, catalog.RenderTimeoutError{
			Selector: selectorDetailName,
			Err:      fmt.Errorf("product name missing from %s", productURL),
		}
	}

	item := ParseDetails(doc, c.baseURL)
	item.ProductURL = htmlutil.ResolveURL(c.baseURL, productURL)
	return item, nil
}

// ParseDetails reads a product page document.
func ParseDetails(doc *goquery.Document, base *url.URL) catalog.ScrapedItem {
	return catalog.ScrapedItem{
		Name:        htmlutil.Text(doc.Find(selectorDetailName)),
		Description: htmlutil.Text(doc.Find(selectorDetailDescription)),
		Brand:       htmlutil.Text(doc.Find(selectorDetailBrand)),
		Category:    htmlutil.Text(doc.Find(selectorDetailCategory)),
		Price:       catalog.ParsePrice(htmlutil.Text(doc.Find(selectorDetailPrice))),
		Currency:    Currency,
		ImageURL:    detailImage(doc.Find(selectorDetailImage), base),
		Barcode:     htmlutil.Text(doc.Find(selectorDetailBarcode)),
	}
}

// detailImage prefers src, then lazy loaded data-src, then the first srcset
// candidate. Placeholders and inline images are dropped.
func detailImage(img *goquery.Selection, base *url.URL) string {
	src := htmlutil.FirstAttr(img, "src", "data-src")
	if src == "" {
		src = htmlutil.FirstSrcset(htmlutil.FirstAttr(img, "srcset"))
	}
	if src == "" || strings.Contains(src, "placeholder") || strings.HasPrefix(src, "data:image") {
		return ""
	}
	return htmlutil.ResolveURL(base, src)
}
