// Package catalog discovers metadata type pages from the documentation table
// of contents.
package catalog

import (
	"encoding/json"
	"fmt"
)

// Record is one schedulable documentation page.
type Record struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Node is one entry of the table of contents.
type Node struct {
	Text     string `json:"text"`
	ID       string `json:"id"`
	Attr     Attr   `json:"a_attr"`
	Children []Node `json:"children"`
}

// Attr carries the anchor attributes of a node.
type Attr struct {
	Href string `json:"href"`
}

// TOC is the top level of the index document.
type TOC struct {
	Entries []Node `json:"toc"`
}

// ParseTOC decodes an index document.
func ParseTOC(body []byte) (TOC, error) {
	var toc TOC
	if err := json.Unmarshal(body, &toc); err != nil {
		return TOC{}, fmt.Errorf("decode toc: %w", err)
	}
	return toc, nil
}

// Section follows a path of node texts from the top level and returns the
// children of the last node on it.
func (t TOC) Section(path ...string) ([]Node, bool) {
	nodes := t.Entries
	for _, text := range path {
		next, ok := findText(nodes, text)
		if !ok {
			return nil, false
		}
		nodes = next.Children
	}
	return nodes, true
}

func findText(nodes []Node, text string) (Node, bool) {
	for _, n := range nodes {
		if n.Text == text {
			return n, true
		}
	}
	return Node{}, false
}
