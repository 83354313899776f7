package extract

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const siblingWindow = 10

// tableCaption returns the name and description for tbl. An explicit
// <caption> wins and carries no description. Otherwise the nearest heading
// before the table (or before its parent) names it and the first substantial
// paragraph after that heading describes it.
func tableCaption(tbl *html.Node) (name, desc string) {
	for c := tbl.FirstChild; c != nil; c = c.NextSibling {
		if c.DataAtom == atom.Caption {
			if t := nodeText(c); t != "" {
				return t, ""
			}
		}
	}

	heading, name := headingBefore(tbl)
	if heading == nil && tbl.Parent != nil {
		heading, name = headingBefore(tbl.Parent)
	}
	if heading == nil {
		return "", ""
	}
	return name, descriptionBetween(heading, tbl)
}

func headingBefore(n *html.Node) (*html.Node, string) {
	s := prevElement(n)
	for i := 0; s != nil && i < siblingWindow; i, s = i+1, prevElement(s) {
		if t := headingLabel(s); t != "" {
			return s, t
		}
	}
	return nil, ""
}

func headingLabel(n *html.Node) string {
	if isHeading(n) || n.DataAtom == atom.Dt {
		return nodeText(n)
	}
	if n.DataAtom != atom.Div && n.DataAtom != atom.P {
		return ""
	}
	if strong := firstDescendant(n, atom.Strong, atom.B); strong != nil {
		t := nodeText(strong)
		if len(t) > 2 && len(t) < 100 {
			return t
		}
	}
	return ""
}

func descriptionBetween(heading, tbl *html.Node) string {
	s := nextElement(heading)
	for i := 0; s != nil && i < siblingWindow; i, s = i+1, nextElement(s) {
		if contains(s, tbl) {
			break
		}
		t := nodeText(s)
		switch s.DataAtom {
		case atom.P:
			if len(t) > 20 && !containsAny(strings.ToLower(t), "cookie", "in this section", "©") {
				return t
			}
		case atom.Dd:
			if len(t) > 20 {
				return t
			}
		}
	}
	return ""
}

func firstDescendant(n *html.Node, atoms ...atom.Atom) *html.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			for _, a := range atoms {
				if c.DataAtom == a {
					return c
				}
			}
		}
		if found := firstDescendant(c, atoms...); found != nil {
			return found
		}
	}
	return nil
}
