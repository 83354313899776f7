package catalog

import "strings"

// excludedWithChildren removes a page and everything below it.
var excludedWithChildren = []string{
	"metadata components and types",
	"metadata coverage report",
	"unsupported metadata types",
	"special behavior in metadata api deployments",
	"meta_objects_intro",
	"meta_coverage_report",
	"meta_unsupported_types",
	"meta_special_behavior",
	"_intro",
	"_overview",
	"_calls",
}

// excludedPageOnly removes a page but still walks its children.
var excludedPageOnly = []string{
	"meta_data_cloud_types",
	"meta_activationplatformactvattr",
	"meta_datasourcetenant",
	"meta_externaldatatransportfieldtemplate",
	"meta_externaldatatransportobjecttemplate",
	"meta_internaldataconnector",
	"meta_appmenu",
	"meta_digitalexperiencebundle_marketing",
	"meta_digitalexperiencebundle_site",
	"meta_flowvaluemap",
	"meta_rparobotpoolmetadata",
	"meta_settings",
	"meta_userprofilesearchscope",
	"meta_webstorebundle",
}

const maxNameLength = 200

func matchesAny(list []string, values ...string) bool {
	for _, v := range values {
		lower := strings.ToLower(v)
		if lower == "" {
			continue
		}
		for _, pattern := range list {
			if strings.Contains(lower, pattern) {
				return true
			}
		}
	}
	return false
}

func prunesSubtree(n Node) bool {
	return matchesAny(excludedWithChildren, n.Text, n.Attr.Href, n.ID)
}

func isPage(name, href string) bool {
	if len(name) == 0 || len(name) >= maxNameLength {
		return false
	}
	return strings.HasSuffix(href, ".htm") && !strings.Contains(href, "#")
}

// Keep reports whether a record describes a schedulable metadata type page.
func Keep(r Record) bool {
	if matchesAny(excludedWithChildren, r.Name, r.URL) || matchesAny(excludedPageOnly, r.Name, r.URL) {
		return false
	}
	return isPage(r.Name, r.URL)
}

// Filter returns the records that pass Keep, in order. Filter(Filter(x)) is
// equal to Filter(x).
func Filter(records []Record) []Record {
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if Keep(r) {
			out = append(out, r)
		}
	}
	return out
}
