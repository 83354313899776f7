package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Extract parses a content-frame snapshot and returns its field tables,
// page-level text, section headings and the headings that own no table.
func Extract(snapshot string) (Result, error) {
	p, err := parse(snapshot)
	if err != nil {
		return Result{}, err
	}

	res := Result{
		Title:       p.title(),
		Description: p.description(),
	}

	claimed := make(map[string]struct{})
	p.doc.Find("table").Each(func(_ int, tbl *goquery.Selection) {
		cols, ok := classify(tableHeaders(tbl))
		if !ok {
			return
		}
		fields := tableRows(tbl, cols)
		if len(fields) == 0 {
			return
		}
		name, desc := tableCaption(tbl.Get(0))
		if name != "" {
			claimed[name] = struct{}{}
		}
		res.Tables = append(res.Tables, Table{Name: name, Description: desc, Fields: fields})
	})

	headings, nodes := p.headings()
	res.PageHeadings = headings
	for _, h := range headings {
		if _, ok := claimed[h]; ok {
			continue
		}
		if h == res.Title || strings.Contains(h, " ") {
			continue
		}
		if desc := descriptionUnderHeading(nodes[h]); desc != "" {
			res.HeadingsWithoutTables = append(res.HeadingsWithoutTables, Heading{Name: h, Description: desc})
		}
	}
	return res, nil
}
