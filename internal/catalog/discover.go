package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	collyfetcher "github.com/JakeFAU/metadata-scraper/internal/fetcher/colly"
)

// ErrSectionNotFound reports that the index lacks the expected section.
var ErrSectionNotFound = errors.New("catalog: metadata types section not found")

// SectionPath locates the metadata type listing inside the index.
var SectionPath = []string{"Reference", "Metadata Types"}

// Fetcher retrieves the index document.
type Fetcher interface {
	Fetch(ctx context.Context, request collyfetcher.Request) (collyfetcher.Response, error)
}

// Config controls discovery.
type Config struct {
	IndexURL string
	BaseURL  string
}

// Discoverer turns the documentation index into page records.
type Discoverer struct {
	cfg     Config
	fetcher Fetcher
	logger  *zap.Logger
}

// NewDiscoverer builds a Discoverer.
func NewDiscoverer(cfg Config, fetcher Fetcher, logger *zap.Logger) *Discoverer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Discoverer{cfg: cfg, fetcher: fetcher, logger: logger}
}

// Discover fetches the index and returns every metadata type page under the
// Reference > Metadata Types section. Any failure yields an empty list.
func (d *Discoverer) Discover(ctx context.Context) ([]Record, error) {
	resp, err := d.fetcher.Fetch(ctx, collyfetcher.Request{URL: d.cfg.IndexURL})
	if err != nil {
		return nil, fmt.Errorf("fetch index %s: %w", d.cfg.IndexURL, err)
	}
	toc, err := ParseTOC(resp.Body)
	if err != nil {
		return nil, err
	}
	section, ok := toc.Section(SectionPath...)
	if !ok {
		return nil, ErrSectionNotFound
	}

	var records []Record
	for _, n := range section {
		records = d.walk(n, records)
	}
	records = Filter(records)
	d.logger.Info("catalog discovered",
		zap.String("index", d.cfg.IndexURL),
		zap.Int("records", len(records)))
	return records, nil
}

func (d *Discoverer) walk(n Node, acc []Record) []Record {
	if n.Text == "" || n.Attr.Href == "" {
		return acc
	}
	if prunesSubtree(n) {
		return acc
	}
	if !matchesAny(excludedPageOnly, n.Text, n.Attr.Href, n.ID) && isPage(n.Text, n.Attr.Href) {
		acc = append(acc, Record{Name: n.Text, URL: d.resolve(n.Attr.Href)})
	}
	for _, c := range n.Children {
		acc = d.walk(c, acc)
	}
	return acc
}

func (d *Discoverer) resolve(href string) string {
	if strings.HasPrefix(href, "http") {
		return href
	}
	return d.cfg.BaseURL + href
}
