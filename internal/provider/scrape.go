package provider

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// ScrapedSource scrapes tabular dividend-history listings from a public
// web page as a last-resort dividend source.
//
// Pages of this shape present one HTML table with an ex-date column and
// an amount column; header labels and column order vary between sites,
// so columns are located by header text rather than position. Anything
// unparseable degrades to ErrNoData, never to a crash.
type ScrapedSource struct {
	// Name identifies the source in logs.
	Name string

	// URLTemplate builds the page URL from a provider symbol, e.g.
	// "https://example.com/dividends/%s/".
	URLTemplate string

	// DateLayouts are tried in order when parsing the ex-date cell.
	DateLayouts []string

	client *http.Client
}

// NewScrapedSource creates a scraping dividend source.
func NewScrapedSource(name, urlTemplate string, timeout time.Duration) *ScrapedSource {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ScrapedSource{
		Name:        name,
		URLTemplate: urlTemplate,
		DateLayouts: []string{"2006-01-02", "Jan 2, 2006", "01/02/2006", "2 Jan 2006"},
		client:      &http.Client{Timeout: timeout},
	}
}

// headerIndex returns the index of the first header cell containing any
// of the given fragments (case-insensitive), or -1.
func headerIndex(headers []string, fragments ...string) int {
	for i, h := range headers {
		lower := strings.ToLower(h)
		for _, frag := range fragments {
			if strings.Contains(lower, frag) {
				return i
			}
		}
	}
	return -1
}

// parseAmount extracts a decimal dividend amount from a table cell,
// stripping currency symbols and thousands separators.
func parseAmount(cell string) (decimal.Decimal, bool) {
	cleaned := strings.NewReplacer("$", "", ",", "", " ", " ").Replace(strings.TrimSpace(cell))
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" || cleaned == "-" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil || d.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, false
	}
	return d, true
}

// parseDate tries each configured layout against a table cell.
func (s *ScrapedSource) parseDate(cell string) (time.Time, bool) {
	cleaned := strings.TrimSpace(cell)
	for _, layout := range s.DateLayouts {
		if t, err := time.Parse(layout, cleaned); err == nil {
			return t.UTC().Truncate(24 * time.Hour), true
		}
	}
	return time.Time{}, false
}

// Dividends implements DividendClient by scraping the source page for
// symbol. Rows with a missing or unparseable ex-date or amount are
// skipped individually; a page with no usable rows yields ErrNoData.
func (s *ScrapedSource) Dividends(ctx context.Context, symbol string) ([]Dividend, error) {
	u := fmt.Sprintf(s.URLTemplate, strings.ToLower(symbol))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s fetch: %w", s.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s status %d", ErrNoData, s.Name, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s parse: %w", s.Name, err)
	}

	var divs []Dividend
	doc.Find("table").EachWithBreak(func(_ int, table *goquery.Selection) bool {
		var headers []string
		table.Find("tr").First().Find("th, td").Each(func(_ int, cell *goquery.Selection) {
			headers = append(headers, cell.Text())
		})

		dateCol := headerIndex(headers, "ex-div", "ex div", "ex date", "ex-date")
		amountCol := headerIndex(headers, "amount", "cash", "dividend")
		if dateCol < 0 || amountCol < 0 {
			return true // not the dividend table, keep looking
		}

		table.Find("tr").Each(func(i int, row *goquery.Selection) {
			if i == 0 {
				return // header row
			}
			var cells []string
			row.Find("td").Each(func(_ int, cell *goquery.Selection) {
				cells = append(cells, cell.Text())
			})
			if dateCol >= len(cells) || amountCol >= len(cells) {
				return
			}
			exDate, ok := s.parseDate(cells[dateCol])
			if !ok {
				return
			}
			amount, ok := parseAmount(cells[amountCol])
			if !ok {
				return
			}
			divs = append(divs, Dividend{ExDate: exDate, Amount: amount})
		})
		return len(divs) == 0 // stop once a table yielded events
	})

	if len(divs) == 0 {
		return nil, fmt.Errorf("%w: %s had no parseable rows for %s", ErrNoData, s.Name, symbol)
	}

	// Oldest first, matching the primary client.
	sort.Slice(divs, func(i, j int) bool { return divs[i].ExDate.Before(divs[j].ExDate) })
	return divs, nil
}

// FallbackDividends tries each source in order and returns the first
// answer with at least one event. Used when the primary provider has no
// dividend history for a security.
func FallbackDividends(ctx context.Context, symbol string, sources ...DividendClient) ([]Dividend, error) {
	for _, src := range sources {
		divs, err := src.Dividends(ctx, symbol)
		if err != nil {
			log.Debug().Err(err).Str("symbol", symbol).Msg("dividend fallback source empty")
			continue
		}
		if len(divs) > 0 {
			return divs, nil
		}
	}
	return nil, fmt.Errorf("%w: no dividend source had events for %s", ErrNoData, symbol)
}
