package entity

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/metadata-scraper/internal/extract"
)

// TestCleanDescription verifies whitespace collapsing and idempotence.
func TestCleanDescription(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
		want string
	}{
		{name: "indented break", in: "Foo\n   bar   baz", want: "Foo bar baz"},
		{name: "tabs", in: "\tA\t\tB\n\tC ", want: "A B C"},
		{name: "empty", in: "   ", want: ""},
		{name: "clean", in: "Already clean.", want: "Already clean."},
		{name: "nbsp", in: "Foo\u00a0\u00a0 bar\n\u00a0 baz", want: "Foo bar baz"},
		{name: "nbsp edges", in: "\u00a0Layout[]\u00a0", want: "Layout[]"},
		{name: "byte order mark", in: "\ufeffA\u2003B", want: "A B"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := CleanDescription(tc.in)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, got, CleanDescription(got))
		})
	}
}

// TestTypeNames verifies array and complex reference detection.
func TestTypeNames(t *testing.T) {
	t.Parallel()

	name, ok := ArrayTypeName("Layout[]")
	require.True(t, ok)
	assert.Equal(t, "Layout", name)

	name, ok = ArrayTypeName("Layout​[]")
	require.True(t, ok)
	assert.Equal(t, "Layout", name)

	_, ok = ArrayTypeName("string[]")
	assert.False(t, ok)

	name, ok = ComplexTypeName("SharedTo (see below)")
	require.True(t, ok)
	assert.Equal(t, "SharedTo", name)

	for _, ty := range []string{"string", "Boolean", "dateTime", "FieldType (enumeration of type string)", "Layout[]", ""} {
		_, ok = ComplexTypeName(ty)
		assert.False(t, ok, ty)
	}
}

// TestResolveSingleTableUsesTitle verifies a lone table is named after the page title.
func TestResolveSingleTableUsesTitle(t *testing.T) {
	t.Parallel()

	page := extract.Result{
		Title:       "CustomField",
		Description: "Represents a custom field.",
		Tables: []extract.Table{{
			Name:        "Fields",
			Description: "Table level text.",
			Fields:      []extract.Field{{Name: "label", Type: "string", Description: "The\n   label."}},
		}},
	}
	got := Resolve("CustomField", "https://docs.example.com/meta_customfield.htm#top", page)
	require.Len(t, got, 1)
	assert.Equal(t, "CustomField", got[0].Name)
	assert.Equal(t, "Represents a custom field.", got[0].Entry.ShortDescription)
	assert.Equal(t, "https://docs.example.com/meta_customfield.htm", got[0].Entry.URL)
	assert.Equal(t, []Field{{Name: "label", Type: "string", Description: "The label."}}, got[0].Entry.Fields)
}

// TestResolveSingleTableFallsBackToTypeName verifies the catalog name is used without a title.
func TestResolveSingleTableFallsBackToTypeName(t *testing.T) {
	t.Parallel()

	page := extract.Result{
		Tables: []extract.Table{{
			Name:        "Something Else",
			Description: "Table text.",
			Fields:      []extract.Field{{Name: "a", Type: "string", Description: "A field."}},
		}},
	}
	got := Resolve("Workflow", "https://x/meta_workflow.htm", page)
	require.Len(t, got, 1)
	assert.Equal(t, "Workflow", got[0].Name)
	assert.Equal(t, "Table text.", got[0].Entry.ShortDescription)
}

// TestResolveInfersArrayName verifies an uncaptioned table takes an unused array type name.
func TestResolveInfersArrayName(t *testing.T) {
	t.Parallel()

	page := extract.Result{
		Title: "CustomApplication",
		Tables: []extract.Table{
			{
				Name: "Fields",
				Fields: []extract.Field{
					{Name: "actionOverrides", Type: "AppActionOverride[]", Description: "Overrides."},
					{Name: "layouts", Type: "Layout[]", Description: "Layouts."},
				},
			},
			{
				Name:        "AppActionOverride",
				Description: "Action override type.",
				Fields:      []extract.Field{{Name: "formFactor", Type: "FormFactor (enumeration of type string)", Description: "Form factor."}},
			},
			{
				Fields: []extract.Field{{Name: "name", Type: "string", Description: "Layout name."}},
			},
		},
	}
	got := Resolve("CustomApplication", "https://x/meta_customapplication.htm", page)
	require.Len(t, got, 3)
	assert.Equal(t, "CustomApplication", got[0].Name)
	assert.Equal(t, "AppActionOverride", got[1].Name)
	assert.Equal(t, "Layout", got[2].Name)
	assert.Empty(t, got[2].Entry.ShortDescription)
}

// TestResolveInferenceFallback verifies the positional fallback name.
func TestResolveInferenceFallback(t *testing.T) {
	t.Parallel()

	page := extract.Result{
		Title: "Flow",
		Tables: []extract.Table{
			{Fields: []extract.Field{{Name: "a", Type: "string", Description: "A."}}},
			{Fields: []extract.Field{{Name: "b", Type: "int", Description: "B."}}},
		},
	}
	got := Resolve("Flow", "https://x/meta_flow.htm", page)
	require.Len(t, got, 2)
	assert.Equal(t, "Flow", got[0].Name)
	assert.Equal(t, "Flow (Table 2)", got[1].Name)
}

// TestResolveInfersComplexName verifies complex types back up array types and
// that the most recent table's references win.
func TestResolveInfersComplexName(t *testing.T) {
	t.Parallel()

	page := extract.Result{
		Title: "SharingRules",
		Tables: []extract.Table{
			{
				Name: "Fields",
				Fields: []extract.Field{
					{Name: "rules", Type: "SharingCriteriaRule[]", Description: "Rules."},
				},
			},
			{
				Name:   "SharingCriteriaRule",
				Fields: []extract.Field{{Name: "sharedTo", Type: "SharedTo", Description: "Target."}},
			},
			{
				Fields: []extract.Field{{Name: "group", Type: "string", Description: "Group."}},
			},
		},
	}
	got := Resolve("SharingRules", "https://x/meta_sharingrules.htm", page)
	require.Len(t, got, 3)
	assert.Equal(t, "SharingRules", got[0].Name)
	assert.Equal(t, "SharingCriteriaRule", got[1].Name)
	assert.Equal(t, "SharedTo", got[2].Name)

	page.Tables[1].Fields = append(page.Tables[1].Fields,
		extract.Field{Name: "criteria", Type: "FilterItem[]", Description: "Criteria."})
	page.Tables[0].Fields = append(page.Tables[0].Fields,
		extract.Field{Name: "owners", Type: "OwnerRule[]", Description: "Owners."})
	got = Resolve("SharingRules", "https://x/meta_sharingrules.htm", page)
	require.Len(t, got, 3)
	assert.Equal(t, "FilterItem", got[2].Name)
}

// TestResolvePlaceholdersRequireHeading verifies referenced types only appear with a heading.
func TestResolvePlaceholdersRequireHeading(t *testing.T) {
	t.Parallel()

	page := extract.Result{
		Title:        "SharingRules",
		PageHeadings: []string{"SharingRules", "sharedto"},
		Tables: []extract.Table{{
			Fields: []extract.Field{
				{Name: "sharedTo", Type: "SharedTo", Description: "Target."},
				{Name: "criteria", Type: "FilterItem[]", Description: "Criteria."},
			},
		}},
	}
	got := Resolve("SharingRules", "https://x/meta_sharingrules.htm", page)
	require.Len(t, got, 2)
	assert.Equal(t, "SharedTo", got[1].Name)
	assert.Empty(t, got[1].Entry.Fields)
	assert.NotNil(t, got[1].Entry.Fields)
	assert.Equal(t, "Referenced type from https://x/meta_sharingrules.htm", got[1].Entry.ShortDescription)
}

// TestResolveHeadingUpgradesPlaceholder verifies heading descriptions replace placeholder text only.
func TestResolveHeadingUpgradesPlaceholder(t *testing.T) {
	t.Parallel()

	page := extract.Result{
		Title:        "SharingRules",
		Description:  "Sharing rules.",
		PageHeadings: []string{"SharedTo"},
		Tables: []extract.Table{{
			Fields: []extract.Field{{Name: "sharedTo", Type: "SharedTo", Description: "Target."}},
		}},
		HeadingsWithoutTables: []extract.Heading{
			{Name: "SharedTo", Description: "Who the rule\n   shares with."},
			{Name: "SharingRules", Description: "Must not replace."},
			{Name: "Orphan", Description: "Standalone."},
		},
	}
	got := Resolve("SharingRules", "https://x/meta_sharingrules.htm", page)
	require.Len(t, got, 3)
	assert.Equal(t, "Sharing rules.", got[0].Entry.ShortDescription)
	assert.Equal(t, "Who the rule shares with.", got[1].Entry.ShortDescription)
	assert.Equal(t, "Orphan", got[2].Name)
	assert.Equal(t, "Standalone.", got[2].Entry.ShortDescription)
}

// TestResolveExpandsFolder verifies the folder page yields one entity per folder type.
func TestResolveExpandsFolder(t *testing.T) {
	t.Parallel()

	page := extract.Result{
		Title:       "Folder",
		Description: "Represents a folder.",
		Tables: []extract.Table{{
			Fields: []extract.Field{{Name: "name", Type: "string", Description: "Folder name."}},
		}},
	}
	got := Resolve("Folder", "https://x/meta_folder.htm#top", page)
	names := make([]string, 0, len(got))
	for _, n := range got {
		names = append(names, n.Name)
		assert.Equal(t, "Represents a folder.", n.Entry.ShortDescription)
		assert.Equal(t, "https://x/meta_folder.htm", n.Entry.URL)
		assert.Equal(t, []Field{{Name: "name", Type: "string", Description: "Folder name."}}, n.Entry.Fields)
	}
	assert.Equal(t, []string{"DocumentFolder", "EmailFolder", "EmailTemplateFolder", "ReportFolder", "DashboardFolder"}, names)

	got[0].Entry.Fields[0].Name = "changed"
	assert.Equal(t, "name", got[1].Entry.Fields[0].Name)

	other := Resolve("Folder", "https://x/meta_other.htm", page)
	require.Len(t, other, 1)
	assert.Equal(t, "Folder", other[0].Name)
}

// TestParentOf verifies supertype detection and the default parent.
func TestParentOf(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		desc   string
		fields []Field
		want   string
	}{
		{name: "extends", desc: "Represents a rule. It extends SharingBaseRule.", want: "SharingBaseRule"},
		{name: "extends the", desc: "This type extends the MetadataWithContent metadata type.", want: "MetadataWithContent"},
		{
			name:   "inherited",
			desc:   "Represents a document.",
			fields: []Field{{Name: "content", Description: "Inherited from the MetadataWithContent component."}},
			want:   "MetadataWithContent",
		},
		{name: "none", desc: "Represents a layout.", want: ""},
		{name: "lowercase extends", desc: "extends nothing", want: ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, ParentOf(tc.desc, tc.fields))
		})
	}

	assert.Equal(t, DefaultParent, Entry{}.ParentType())
	assert.Equal(t, "SharingBaseRule", Entry{Parent: "SharingBaseRule"}.ParentType())
}

// TestResolveSetsParent verifies tables and upgraded placeholders carry their supertype.
func TestResolveSetsParent(t *testing.T) {
	t.Parallel()

	page := extract.Result{
		Title:        "SharingCriteriaRule",
		Description:  "Represents a criteria rule. It extends SharingBaseRule.",
		PageHeadings: []string{"SharedTo"},
		Tables: []extract.Table{{
			Fields: []extract.Field{{Name: "sharedTo", Type: "SharedTo", Description: "Target."}},
		}},
		HeadingsWithoutTables: []extract.Heading{
			{Name: "SharedTo", Description: "Recipients. This type extends the SharingTarget type."},
		},
	}
	got := Resolve("SharingCriteriaRule", "https://x/meta_sharingrules.htm", page)
	require.Len(t, got, 2)
	assert.Equal(t, "SharingBaseRule", got[0].Entry.Parent)
	assert.Equal(t, "SharingTarget", got[1].Entry.Parent)
}

// TestResolveEmptyPage verifies a page without tables or headings yields nothing.
func TestResolveEmptyPage(t *testing.T) {
	t.Parallel()

	assert.Nil(t, Resolve("X", "https://x", extract.Result{Title: "X", PageHeadings: []string{"X"}}))
}

// TestMergerNeverDowngrades verifies placeholders cannot overwrite populated entries.
func TestMergerNeverDowngrades(t *testing.T) {
	t.Parallel()

	m := NewMerger()
	full := Entry{Fields: []Field{{Name: "a", Type: "string", Description: "A."}}, ShortDescription: "Full."}
	placeholder := Entry{ShortDescription: ReferencedPrefix + " https://x"}

	assert.True(t, m.Merge("Layout", full))
	assert.False(t, m.Merge("Layout", placeholder))
	assert.Equal(t, full, m.Snapshot()["Layout"])

	assert.True(t, m.Merge("Other", placeholder))
	assert.True(t, m.Merge("Other", full))
	assert.Equal(t, full, m.Snapshot()["Other"])

	replacement := Entry{Fields: []Field{{Name: "b", Type: "int", Description: "B."}}}
	assert.True(t, m.Merge("Layout", replacement))
	assert.Equal(t, replacement, m.Snapshot()["Layout"])
}

// TestMergerConcurrent verifies concurrent merges are serialized.
func TestMergerConcurrent(t *testing.T) {
	t.Parallel()

	m := NewMerger()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m.MergeAll([]Named{{Name: string(rune('A' + i%26)), Entry: Entry{}}})
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 26, m.Len())
}

// TestEntryJSONShape verifies the serialized keys and empty field arrays.
func TestEntryJSONShape(t *testing.T) {
	t.Parallel()

	m := NewMerger()
	m.Merge("Bare", Entry{ShortDescription: "d", URL: "u"})
	raw, err := json.Marshal(m.Snapshot())
	require.NoError(t, err)
	assert.JSONEq(t, `{"Bare":{"fields":[],"short_description":"d","url":"u"}}`, string(raw))

	raw, err = json.Marshal(Entry{Fields: []Field{}, Parent: "SharingBaseRule"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"fields":[],"short_description":"","url":"","parent":"SharingBaseRule"}`, string(raw))

	raw, err = json.Marshal(Field{Name: "n", Type: "t", Description: "d"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"Field Name":"n","Field Type":"t","Description":"d"}`, string(raw))
}
