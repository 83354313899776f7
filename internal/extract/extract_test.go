package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const shadowFixture = `<html><head><title>CustomField | Metadata API Developer Guide</title></head><body>
<doc-content>
<template shadowrootmode="open">
<div class="section" id="customfield">
<h1 class="helpHead1">CustomField</h1>
<div class="shortdesc">Represents a custom field on a custom object or standard object.</div>
<h2>Fields</h2>
<table>
<thead><tr><th>Field Name</th><th>Field Type</th><th>Description</th></tr></thead>
<tbody>
<tr><td>label</td><td>string</td><td>The label of the field.</td></tr>
<tr><td>length</td><td>int</td><td>The length of the field.</td></tr>
<tr><td>fieldManageability</td><td>string</td><td>Rows naming a field are dropped.</td></tr>
<tr><td>type</td><td></td><td>Missing type.</td></tr>
</tbody>
</table>
</div>
</template>
</doc-content>
</body></html>`

const nestedFixture = `<html><body>
<h1>CustomApplication</h1>
<p>Short.</p>
<table>
<tr><th>Field</th><th>Details</th></tr>
<tr><td>actionOverrides</td><td><dl><dt>Field Type</dt><dd><a href="meta_appactionoverride.htm">AppActionOverride[]</a></dd><dt>Description</dt><dd>A list of action overrides for the application.</dd><dd>Available in API version 38.0.</dd></dl></td></tr>
<tr><td>layouts</td><td><p>Field Type Layout[]</p>
<p>Description</p>
<p>The layouts shown in the app.</p></td></tr>
<tr><td>flag</td><td><a href="meta_flag.htm">Flag</a>
This flag controls something important.</td></tr>
</table>
</body></html>`

const sectionFixture = `<html><head><title>SharingRules - Metadata | Docs</title></head><body>
<div class="section" id="sharingrules">
<h2>SharingRules</h2>
<p>Represents the sharing rules for a given object, including criteria and owner based rules across the org.</p>
<div class="p"><strong>SharingCriteriaRule</strong></div>
<p>Represents a criteria based sharing rule in detail.</p>
<table>
<thead><tr><th>Field Type</th><th>Field Type</th><th>Description</th></tr></thead>
<tbody>
<tr><td>criteriaItems</td><td>FilterItem[]</td><td>The criteria items.</td></tr>
<tr><td>sharedTo</td><td>SharedTo</td><td>Who the rule shares with.</td></tr>
</tbody>
</table>
</div>
<div class="section" id="sharedto">
<h2>SharedTo</h2>
<p>SharedTo describes the group that receives access.</p>
</div>
<div class="section" id="notes">
<h2>Usage Notes</h2>
<p>These headings contain spaces and are skipped entirely.</p>
</div>
</body></html>`

// TestExtractShadowTable verifies tables inside serialized shadow roots are found.
func TestExtractShadowTable(t *testing.T) {
	t.Parallel()

	res, err := Extract(shadowFixture)
	require.NoError(t, err)
	assert.Equal(t, "CustomField", res.Title)
	assert.Equal(t, "Represents a custom field on a custom object or standard object.", res.Description)
	require.Len(t, res.Tables, 1)
	assert.Equal(t, "Fields", res.Tables[0].Name)
	assert.Empty(t, res.Tables[0].Description)
	assert.Equal(t, []Field{
		{Name: "label", Type: "string", Description: "The label of the field."},
		{Name: "length", Type: "int", Description: "The length of the field."},
	}, res.Tables[0].Fields)
	assert.Equal(t, []string{"CustomField", "Fields"}, res.PageHeadings)
	assert.Empty(t, res.HeadingsWithoutTables)
}

// TestExtractNestedTable verifies the two column detail-cell fallbacks.
func TestExtractNestedTable(t *testing.T) {
	t.Parallel()

	res, err := Extract(nestedFixture)
	require.NoError(t, err)
	require.Len(t, res.Tables, 1)
	assert.Equal(t, "CustomApplication", res.Tables[0].Name)
	assert.Equal(t, []Field{
		{
			Name:        "actionOverrides",
			Type:        "AppActionOverride[]",
			Description: "A list of action overrides for the application.\n\nAvailable in API version 38.0.",
		},
		{Name: "layouts", Type: "Layout[]", Description: "The layouts shown in the app."},
		{Name: "flag", Type: "Flag", Description: "This flag controls something important."},
	}, res.Tables[0].Fields)
}

// TestExtractSections verifies duplicate header repair, strong-text captions and tableless headings.
func TestExtractSections(t *testing.T) {
	t.Parallel()

	res, err := Extract(sectionFixture)
	require.NoError(t, err)
	assert.Equal(t, "SharingRules", res.Title)
	assert.Equal(t, "Represents the sharing rules for a given object, including criteria and owner based rules across the org.", res.Description)
	require.Len(t, res.Tables, 1)
	tbl := res.Tables[0]
	assert.Equal(t, "SharingCriteriaRule", tbl.Name)
	assert.Equal(t, "Represents a criteria based sharing rule in detail.", tbl.Description)
	assert.Equal(t, []Field{
		{Name: "criteriaItems", Type: "FilterItem[]", Description: "The criteria items."},
		{Name: "sharedTo", Type: "SharedTo", Description: "Who the rule shares with."},
	}, tbl.Fields)
	assert.Equal(t, []string{"SharingRules", "SharedTo", "Usage Notes"}, res.PageHeadings)
	assert.Equal(t, []Heading{{Name: "SharedTo", Description: "SharedTo describes the group that receives access."}}, res.HeadingsWithoutTables)
}

// TestExtractCaption verifies an explicit caption names the table.
func TestExtractCaption(t *testing.T) {
	t.Parallel()

	res, err := Extract(`<table><caption>Layout</caption><tr><th>Field Name</th><th>Field Type</th><th>Description</th></tr><tr><td>a</td><td>string</td><td>Alpha value.</td></tr></table>`)
	require.NoError(t, err)
	assert.Empty(t, res.Title)
	require.Len(t, res.Tables, 1)
	assert.Equal(t, "Layout", res.Tables[0].Name)
	assert.Equal(t, []Field{{Name: "a", Type: "string", Description: "Alpha value."}}, res.Tables[0].Fields)
}

// TestExtractDescriptionFallback verifies the document-order description scan.
func TestExtractDescriptionFallback(t *testing.T) {
	t.Parallel()

	res, err := Extract(`<html><body><h1>Flow</h1><section>` +
		`<p>Tip: this is a tip paragraph that is long enough to pass the length test.</p>` +
		`<p>The Flow type represents the metadata associated with a flow in the org.</p>` +
		`</section></body></html>`)
	require.NoError(t, err)
	assert.Equal(t, "Flow", res.Title)
	assert.Equal(t, "The Flow type represents the metadata associated with a flow in the org.", res.Description)
	assert.Empty(t, res.Tables)
}

// TestExtractTitleFromDocumentTitle verifies chrome headings fall through to <title>.
func TestExtractTitleFromDocumentTitle(t *testing.T) {
	t.Parallel()

	res, err := Extract(`<html><head><title>ApexClass - Metadata | Docs</title></head><body><h1>Salesforce Developers</h1></body></html>`)
	require.NoError(t, err)
	assert.Equal(t, "ApexClass", res.Title)
}

// TestHasCandidateTable verifies the header classifier used while polling.
func TestHasCandidateTable(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		html string
		want bool
	}{
		{name: "traditional in shadow root", html: shadowFixture, want: true},
		{name: "nested", html: nestedFixture, want: true},
		{name: "name value table", html: `<table><tr><th>Name</th><th>Value</th></tr></table>`, want: false},
		{name: "no headers", html: `<table><tr><td>a</td><td>b</td></tr></table>`, want: false},
		{name: "empty", html: "", want: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, HasCandidateTable(tc.html))
		})
	}
}

// TestClassify verifies column index selection.
func TestClassify(t *testing.T) {
	t.Parallel()

	cols, ok := classify([]string{"description", "field name", "type"})
	require.True(t, ok)
	assert.Equal(t, columns{field: 1, typ: 2, desc: 0}, cols)

	cols, ok = classify([]string{"field type", "field type", "description"})
	require.True(t, ok)
	assert.Equal(t, columns{field: 0, typ: 1, desc: 2}, cols)

	cols, ok = classify([]string{"name", "details"})
	require.True(t, ok)
	assert.True(t, cols.nested)
	assert.Equal(t, -1, cols.typ)

	_, ok = classify(nil)
	assert.False(t, ok)
}
