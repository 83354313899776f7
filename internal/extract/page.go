package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const headingSelector = "div.section[id] h2, h1.helpHead1"

// title prefers the first h1 unless it is site chrome, then a short h2, then
// the document title.
func (p *page) title() string {
	h1 := selText(p.doc.Find("h1").First())
	if h1 != "" && !strings.Contains(h1, "|") && !strings.Contains(h1, "Developers") {
		return h1
	}
	h2 := selText(p.doc.Find("h2").First())
	if h2 != "" && len(h2) < 100 && !strings.Contains(h2, "|") {
		return h2
	}
	t := selText(p.doc.Find("title").First())
	t, _, _ = strings.Cut(t, "|")
	t, _, _ = strings.Cut(t, "-")
	return strings.TrimSpace(t)
}

func (p *page) mainHeading() *html.Node {
	if h := p.doc.Find("h1").First(); h.Length() > 0 {
		return h.Get(0)
	}
	if h := p.doc.Find("h2").First(); h.Length() > 0 {
		return h.Get(0)
	}
	return nil
}

// descriptionStrategies run in order; the first non-empty result wins.
var descriptionStrategies = []func(*page) string{
	(*page).shortDescription,
	(*page).descriptionNearHeading,
	(*page).descriptionAfterHeading,
}

func (p *page) description() string {
	for _, s := range descriptionStrategies {
		if d := s(p); d != "" {
			return d
		}
	}
	return ""
}

func (p *page) shortDescription() string {
	var desc string
	p.doc.Find("div.shortdesc").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if t := selText(s); len(t) > 20 {
			desc = t
			return false
		}
		return true
	})
	return desc
}

func (p *page) descriptionNearHeading() string {
	heading := p.mainHeading()
	if heading == nil {
		return ""
	}
	s := nextElement(heading)
	for i := 0; s != nil && i < 15; i, s = i+1, nextElement(s) {
		switch {
		case s.DataAtom == atom.Table:
			return ""
		case isHeading(s) && s.DataAtom != atom.H1:
			t := nodeText(s)
			if strings.Contains(strings.ToLower(t), "field") || len(t) < 100 {
				return ""
			}
		case s.DataAtom == atom.P || s.DataAtom == atom.Dd:
			if t := nodeText(s); isPageDescription(t) {
				return t
			}
		case s.DataAtom == atom.Div:
			if t := p.firstValid(p.doc.FindNodes(s).Find("p, dd")); t != "" {
				return t
			}
		}
	}
	return ""
}

func (p *page) descriptionAfterHeading() string {
	heading := p.mainHeading()
	if heading == nil {
		return ""
	}
	candidates := p.doc.Find("p, dd").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return p.after(heading, s.Get(0))
	})
	return p.firstValid(candidates)
}

func (p *page) firstValid(sel *goquery.Selection) string {
	var desc string
	sel.EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if t := selText(s); isPageDescription(t) {
			desc = t
			return false
		}
		return true
	})
	return desc
}

func isPageDescription(t string) bool {
	if len(t) <= 50 {
		return false
	}
	lower := strings.ToLower(t)
	if containsAny(lower, "cookie", "in this section", "©", "skip navigation", "related topics", "see also") {
		return false
	}
	for _, prefix := range []string{"note:", "tip:", "important:"} {
		if strings.HasPrefix(lower, prefix) {
			return false
		}
	}
	return true
}

// headings returns the distinct section headings of the page in document
// order together with the first element carrying each text.
func (p *page) headings() ([]string, map[string]*html.Node) {
	var names []string
	nodes := make(map[string]*html.Node)
	p.doc.Find(headingSelector).Each(func(_ int, s *goquery.Selection) {
		t := selText(s)
		if t == "" {
			return
		}
		if _, dup := nodes[t]; dup {
			return
		}
		nodes[t] = s.Get(0)
		names = append(names, t)
	})
	return names, nodes
}

// descriptionUnderHeading scans forward from a section heading for its first
// paragraph, stopping at the next table or heading.
func descriptionUnderHeading(heading *html.Node) string {
	s := nextElement(heading)
	for i := 0; s != nil && i < siblingWindow; i, s = i+1, nextElement(s) {
		if s.DataAtom == atom.Table || isHeading(s) {
			return ""
		}
		if isCallout(s) {
			continue
		}
		switch s.DataAtom {
		case atom.P, atom.Dd:
			if t := nodeText(s); isSectionDescription(t) {
				return t
			}
		case atom.Div:
			if hasClass(s, "p") {
				if t := textBeforeBlock(s); isSectionDescription(t) {
					return t
				}
				continue
			}
			if para := firstDescendant(s, atom.P); para != nil && !isCallout(para) {
				if t := nodeText(para); isSectionDescription(t) {
					return t
				}
			}
		}
	}
	return ""
}

func isSectionDescription(t string) bool {
	return len(t) > 20 && !containsAny(strings.ToLower(t), "cookie", "in this section", "©")
}

func isCallout(n *html.Node) bool {
	for p := n; p != nil; p = p.Parent {
		for _, c := range []string{"note", "warning", "callout", "box"} {
			if hasClass(p, c) {
				return true
			}
		}
	}
	return false
}

// textBeforeBlock collects the text of n up to its first table, list or
// heading child.
func textBeforeBlock(n *html.Node) string {
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			switch c.DataAtom {
			case atom.Table, atom.Ul, atom.Ol, atom.Dl:
				return strings.TrimSpace(sb.String())
			}
			if isHeading(c) {
				return strings.TrimSpace(sb.String())
			}
			sb.WriteString(nodeText(c))
			sb.WriteByte(' ')
			continue
		}
		if c.Type == html.TextNode {
			sb.WriteString(c.Data)
		}
	}
	return strings.TrimSpace(sb.String())
}
