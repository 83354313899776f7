package extract

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var fieldTypeLabel = regexp.MustCompile(`Field Type\s*([A-Z][\w\[\]]+)`)

// cellStrategy recovers one value from the detail cell of a two column table.
type cellStrategy func(cell *goquery.Selection) string

var nestedTypeStrategies = []cellStrategy{
	typeFromDefinitionList,
	typeFromReferenceLink,
	typeFromLabel,
}

// nestedDescStrategies take the already recovered type so the line fallback
// never returns it.
var nestedDescStrategies = []func(cell *goquery.Selection, typ string) string{
	func(cell *goquery.Selection, _ string) string { return descFromDefinitionList(cell) },
	func(cell *goquery.Selection, _ string) string { return descAfterLabel(cell) },
	descFromLastLine,
}

func tableRows(tbl *goquery.Selection, cols columns) []Field {
	owner := tbl.Get(0)
	var fields []Field
	tbl.Find("tbody tr, tr:not(:first-child)").Each(func(_ int, row *goquery.Selection) {
		if nearestTable(row.Get(0)) != owner {
			return
		}
		cells := row.ChildrenFiltered("td, th")
		if cells.Length() < 2 {
			return
		}
		var f Field
		if cells.Length() >= 3 && cols.typ >= 0 && cols.desc >= 0 {
			f = traditionalRow(cells, cols)
		} else {
			f = nestedRow(cells)
		}
		if f.Name == "" || f.Type == "" || f.Description == "" {
			return
		}
		if strings.Contains(strings.ToLower(f.Name), "field") {
			return
		}
		fields = append(fields, f)
	})
	return fields
}

func nearestTable(n *html.Node) *html.Node {
	for p := n.Parent; p != nil; p = p.Parent {
		if p.DataAtom == atom.Table {
			return p
		}
	}
	return nil
}

func traditionalRow(cells *goquery.Selection, cols columns) Field {
	n := cells.Length()
	if cols.field >= n || cols.typ >= n || cols.desc >= n {
		return Field{}
	}
	return Field{
		Name:        selText(cells.Eq(cols.field)),
		Type:        selText(cells.Eq(cols.typ)),
		Description: selText(cells.Eq(cols.desc)),
	}
}

func nestedRow(cells *goquery.Selection) Field {
	detail := cells.Eq(1)
	f := Field{Name: selText(cells.Eq(0))}
	for _, s := range nestedTypeStrategies {
		if f.Type = s(detail); f.Type != "" {
			break
		}
	}
	for _, s := range nestedDescStrategies {
		if f.Description = s(detail, f.Type); f.Description != "" {
			break
		}
	}
	return f
}

func typeFromDefinitionList(cell *goquery.Selection) string {
	var typ string
	cell.Find("dt").EachWithBreak(func(_ int, dt *goquery.Selection) bool {
		label := strings.ToLower(selText(dt))
		if !strings.Contains(label, "field type") && label != "type" {
			return true
		}
		for s := nextElement(dt.Get(0)); s != nil; s = nextElement(s) {
			if s.DataAtom == atom.Dd {
				typ = nodeText(s)
				break
			}
			if s.DataAtom == atom.Dt {
				break
			}
		}
		return typ == ""
	})
	return typ
}

func typeFromReferenceLink(cell *goquery.Selection) string {
	return selText(cell.Find(`a[href*="meta_"]`).First())
}

func typeFromLabel(cell *goquery.Selection) string {
	if m := fieldTypeLabel.FindStringSubmatch(cell.Text()); m != nil {
		return m[1]
	}
	return ""
}

func descFromDefinitionList(cell *goquery.Selection) string {
	var desc string
	cell.Find("dt").EachWithBreak(func(_ int, dt *goquery.Selection) bool {
		label := strings.ToLower(selText(dt))
		if !strings.Contains(label, "description") && label != "desc" {
			return true
		}
		var parts []string
		for s := nextElement(dt.Get(0)); s != nil && s.DataAtom != atom.Dt; s = nextElement(s) {
			if s.DataAtom == atom.Dd {
				if t := nodeText(s); t != "" {
					parts = append(parts, t)
				}
			}
		}
		desc = strings.Join(parts, "\n\n")
		return desc == ""
	})
	return desc
}

// descAfterLabel finds an element reading exactly "Description" and returns
// the next element in document order with real content.
func descAfterLabel(cell *goquery.Selection) string {
	seenLabel := false
	var desc string
	cell.Find("*").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		t := selText(s)
		if !seenLabel {
			seenLabel = strings.ToLower(t) == "description"
			return true
		}
		if len(t) > 10 {
			desc = t
			return false
		}
		return true
	})
	return desc
}

func descFromLastLine(cell *goquery.Selection, typ string) string {
	lines := strings.Split(cell.Text(), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		lower := strings.ToLower(line)
		if len(line) > 20 && !containsAny(lower, "field type", "description") && line != typ {
			return line
		}
	}
	return ""
}
