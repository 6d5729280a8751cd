// Package extract implements two-phase selector-driven article extraction.
//
// The extraction algorithm is written against a minimal DOM capability
// interface so it stays independent of the HTML backend that produced the
// markup; goquery provides the single implementation for both the plain
// HTTP and the headless fetch paths.
package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Document is the root capability handle over parsed HTML.
type Document interface {
	Select(selector string) []Node
}

// Node is one matched element.
type Node interface {
	Select(selector string) []Node
	Text() string
	Attr(name string) (string, bool)
	TagName() string
	Parent() Node
}

// Parse builds a Document from raw HTML.
func Parse(html []byte) (Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return goqueryDocument{doc: doc}, nil
}

type goqueryDocument struct {
	doc *goquery.Document
}

func (d goqueryDocument) Select(selector string) []Node {
	return wrapSelection(d.doc.Find(selector))
}

type goqueryNode struct {
	sel *goquery.Selection
}

func (n goqueryNode) Select(selector string) []Node {
	return wrapSelection(n.sel.Find(selector))
}

func (n goqueryNode) Text() string {
	return n.sel.Text()
}

func (n goqueryNode) Attr(name string) (string, bool) {
	return n.sel.Attr(name)
}

func (n goqueryNode) TagName() string {
	return strings.ToLower(goquery.NodeName(n.sel))
}

func (n goqueryNode) Parent() Node {
	parent := n.sel.Parent()
	if parent.Length() == 0 {
		return nil
	}
	return goqueryNode{sel: parent}
}

func wrapSelection(sel *goquery.Selection) []Node {
	nodes := make([]Node, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		nodes = append(nodes, goqueryNode{sel: s})
	})
	return nodes
}
