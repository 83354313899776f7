package entity

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/JakeFAU/metadata-scraper/internal/extract"
)

var (
	extendsClause   = regexp.MustCompile(`\bextends\s+(?:the\s+)?([A-Z][a-zA-Z0-9_]+)`)
	inheritedClause = regexp.MustCompile(`(?i)inherited from (?:the\s+)?([A-Z][a-zA-Z0-9_]+)`)
)

// folderPage is the page whose generic Folder entity stands for each concrete
// folder type.
const folderPage = "meta_folder.htm"

var folderTypes = []string{
	"DocumentFolder",
	"EmailFolder",
	"EmailTemplateFolder",
	"ReportFolder",
	"DashboardFolder",
}

var genericTableLabels = map[string]struct{}{
	"":           {},
	"fields":     {},
	"field name": {},
	"properties": {},
	"attributes": {},
}

// resolver accumulates the named entities of a single page. assigned tracks
// every name already handed out so inference never reuses one.
type resolver struct {
	typeName string
	url      string
	page     extract.Result
	out      []Named
	assigned map[string]struct{}
}

// Resolve names the tables of one page and derives the page's entities.
// typeName is the catalog name the page was scheduled under and is the
// fallback whenever the page yields no usable title.
func Resolve(typeName, pageURL string, page extract.Result) []Named {
	if len(page.Tables) == 0 && len(page.HeadingsWithoutTables) == 0 {
		return nil
	}
	r := &resolver{
		typeName: typeName,
		url:      stripFragment(pageURL),
		page:     page,
		assigned: make(map[string]struct{}),
	}
	for i := range page.Tables {
		name := r.tableName(i)
		r.add(name, r.tableDescription(i), page.Tables[i].Fields)
	}
	r.addReferencedPlaceholders()
	r.foldHeadings()
	r.expandFolder()
	return r.out
}

func (r *resolver) titleOrTypeName() string {
	if t := strings.TrimSpace(r.page.Title); t != "" {
		return t
	}
	return r.typeName
}

func (r *resolver) tableName(i int) string {
	tables := r.page.Tables
	caption := strings.TrimSpace(tables[i].Name)
	switch {
	case len(tables) == 1:
		return r.titleOrTypeName()
	case i == 0:
		if _, generic := genericTableLabels[strings.ToLower(caption)]; generic {
			return r.titleOrTypeName()
		}
		return caption
	case caption != "":
		return caption
	}
	return r.inferName(i)
}

// inferName picks a name for an uncaptioned table from the types referenced
// by earlier tables, most recent first, preferring array element types.
func (r *resolver) inferName(i int) string {
	var arrays, complexes []string
	for j := i - 1; j >= 0; j-- {
		for _, f := range r.page.Tables[j].Fields {
			if strings.TrimSpace(f.Name) == "" {
				continue
			}
			if name, ok := ArrayTypeName(f.Type); ok {
				arrays = append(arrays, name)
			}
			if name, ok := ComplexTypeName(f.Type); ok {
				complexes = append(complexes, name)
			}
		}
	}
	for _, candidate := range append(arrays, complexes...) {
		if _, used := r.assigned[candidate]; !used {
			return candidate
		}
	}
	return fmt.Sprintf("%s (Table %d)", r.typeName, i+1)
}

func (r *resolver) tableDescription(i int) string {
	tbl := r.page.Tables[i]
	if i == 0 && r.page.Description != "" {
		return r.page.Description
	}
	return tbl.Description
}

func (r *resolver) add(name, description string, fields []extract.Field) {
	cleaned := make([]Field, 0, len(fields))
	for _, f := range fields {
		cleaned = append(cleaned, Field{
			Name:        CleanDescription(f.Name),
			Type:        CleanDescription(f.Type),
			Description: CleanDescription(f.Description),
		})
	}
	short := CleanDescription(description)
	r.out = append(r.out, Named{
		Name: name,
		Entry: Entry{
			Fields:           cleaned,
			ShortDescription: short,
			URL:              r.url,
			Parent:           ParentOf(short, cleaned),
		},
	})
	r.assigned[name] = struct{}{}
}

// addReferencedPlaceholders creates empty entities for referenced types that
// have their own section heading on the page but no table.
func (r *resolver) addReferencedPlaceholders() {
	headings := make(map[string]struct{}, len(r.page.PageHeadings))
	for _, h := range r.page.PageHeadings {
		headings[strings.ToLower(strings.TrimSpace(h))] = struct{}{}
	}
	var refs []string
	seen := make(map[string]struct{})
	for _, n := range r.out {
		for _, f := range n.Entry.Fields {
			if f.Name == "" {
				continue
			}
			for _, extractRef := range []func(string) (string, bool){ArrayTypeName, ComplexTypeName} {
				ref, ok := extractRef(f.Type)
				if !ok {
					continue
				}
				if _, exists := r.assigned[ref]; exists {
					continue
				}
				if _, dup := seen[ref]; dup {
					continue
				}
				if _, hasHeading := headings[strings.ToLower(ref)]; !hasHeading {
					continue
				}
				seen[ref] = struct{}{}
				refs = append(refs, ref)
			}
		}
	}
	for _, ref := range refs {
		r.add(ref, ReferencedPrefix+" "+r.url, nil)
	}
}

// foldHeadings attaches descriptions found under tableless headings. An
// existing entity is only upgraded while it still has a placeholder
// description.
func (r *resolver) foldHeadings() {
	for _, h := range r.page.HeadingsWithoutTables {
		idx := r.indexOf(h.Name)
		if idx < 0 {
			r.add(h.Name, h.Description, nil)
			continue
		}
		existing := &r.out[idx].Entry
		if strings.HasPrefix(existing.ShortDescription, ReferencedPrefix) {
			existing.ShortDescription = CleanDescription(h.Description)
			existing.Parent = ParentOf(existing.ShortDescription, existing.Fields)
		}
	}
}

// expandFolder replaces the generic Folder entity of the folder page with one
// entity per concrete folder type.
func (r *resolver) expandFolder() {
	if !strings.Contains(r.url, folderPage) {
		return
	}
	idx := r.indexOf("Folder")
	if idx < 0 {
		return
	}
	folder := r.out[idx].Entry
	r.out = slices.Delete(r.out, idx, idx+1)
	delete(r.assigned, "Folder")
	for _, name := range folderTypes {
		entry := folder
		entry.Fields = slices.Clone(folder.Fields)
		r.out = append(r.out, Named{Name: name, Entry: entry})
		r.assigned[name] = struct{}{}
	}
}

// ParentOf returns the supertype named by an "extends X" clause in the
// description or an "inherited from X" note on a field. It returns "" when
// neither appears.
func ParentOf(description string, fields []Field) string {
	if m := extendsClause.FindStringSubmatch(description); m != nil {
		return m[1]
	}
	for _, f := range fields {
		if m := inheritedClause.FindStringSubmatch(f.Description); m != nil {
			return m[1]
		}
	}
	return ""
}

func (r *resolver) indexOf(name string) int {
	for i, n := range r.out {
		if n.Name == name {
			return i
		}
	}
	return -1
}
