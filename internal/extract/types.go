package extract

// Field is one accepted row of a field table.
type Field struct {
	Name        string
	Type        string
	Description string
}

// Table is a field table found on a page.
type Table struct {
	// Name is the caption or nearest heading, empty when none was found.
	Name        string
	Description string
	Fields      []Field
}

// Heading is a section heading that owns no table.
type Heading struct {
	Name        string
	Description string
}

// Result is everything extracted from one rendered page.
type Result struct {
	Title                 string
	Description           string
	Tables                []Table
	PageHeadings          []string
	HeadingsWithoutTables []Heading
}
