package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// columns describes a table accepted by the header classifier.
type columns struct {
	field  int
	typ    int
	desc   int
	nested bool
}

func tableHeaders(tbl *goquery.Selection) []string {
	var headers []string
	tbl.Find("th, thead td").Each(func(_ int, s *goquery.Selection) {
		headers = append(headers, strings.ToLower(selText(s)))
	})
	return headers
}

// repairDuplicateType renames the first of two "field type" columns in a
// three column table that has no name column.
func repairDuplicateType(headers []string) []string {
	if len(headers) != 3 {
		return headers
	}
	var typeCols []int
	for i, h := range headers {
		switch h {
		case "field name", "field", "name":
			return headers
		case "field type", "type":
			typeCols = append(typeCols, i)
		}
	}
	if len(typeCols) != 2 {
		return headers
	}
	fixed := append([]string(nil), headers...)
	fixed[typeCols[0]] = "field name"
	return fixed
}

// classify accepts traditional name/type/description tables and two column
// name/description tables.
func classify(headers []string) (columns, bool) {
	if len(headers) == 0 {
		return columns{}, false
	}
	headers = repairDuplicateType(headers)

	cols := columns{field: -1, typ: -1, desc: -1}
	var hasField, hasType, hasDesc bool
	for i, h := range headers {
		isField := strings.Contains(h, "field") || h == "name"
		isType := strings.Contains(h, "type")
		isDesc := strings.Contains(h, "description") || strings.Contains(h, "detail")
		hasField = hasField || isField
		hasType = hasType || isType
		hasDesc = hasDesc || isDesc

		if cols.field < 0 && ((strings.Contains(h, "field") && strings.Contains(h, "name")) || h == "field" || h == "name") {
			cols.field = i
		}
		if cols.typ < 0 && isType {
			cols.typ = i
		}
		if cols.desc < 0 && isDesc {
			cols.desc = i
		}
	}

	traditional := hasField && hasType && hasDesc
	cols.nested = len(headers) == 2 && hasField && hasDesc
	if !traditional && !cols.nested {
		return columns{}, false
	}
	if cols.field < 0 {
		cols.field = 0
	}
	return cols, true
}

// HasCandidateTable reports whether a snapshot contains at least one table the
// extractor would accept by its headers.
func HasCandidateTable(snapshot string) bool {
	p, err := parse(snapshot)
	if err != nil {
		return false
	}
	found := false
	p.doc.Find("table").EachWithBreak(func(_ int, tbl *goquery.Selection) bool {
		_, found = classify(tableHeaders(tbl))
		return !found
	})
	return found
}
