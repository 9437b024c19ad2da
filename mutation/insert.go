package mutation

import (
	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"gorged/models"
)

// InsertInsistently appends node at the best anchor the document offers: the
// root element, else a body-equivalent container, else the document node.
// It returns the anchor used.
func InsertInsistently(doc *goquery.Document, node *html.Node) (*html.Node, error) {
	anchor := RootElement(doc)
	if anchor == nil {
		anchor = bodyContainer(doc)
	}
	if anchor == nil {
		anchor = documentNode(doc)
	}
	if anchor == nil {
		return nil, &models.MutationError{Strategy: "insert", Err: models.ErrSelectorNotFound}
	}
	if node.Parent != nil {
		node.Parent.RemoveChild(node)
	}
	anchor.AppendChild(node)
	return anchor, nil
}

func bodyContainer(doc *goquery.Document) *html.Node {
	top := documentNode(doc)
	if top == nil {
		return nil
	}
	var found *html.Node
	var visit func(n *html.Node)
	visit = func(n *html.Node) {
		for c := n.FirstChild; c != nil && found == nil; c = c.NextSibling {
			if c.Type == html.ElementNode && (c.DataAtom == atom.Body || c.DataAtom == atom.Frameset) {
				found = c
				return
			}
			visit(c)
		}
	}
	visit(top)
	return found
}

// newElement builds a detached element with a single text child.
func newElement(a atom.Atom, text string, attrs ...html.Attribute) *html.Node {
	n := &html.Node{Type: html.ElementNode, DataAtom: a, Data: a.String(), Attr: attrs}
	if text != "" {
		n.AppendChild(&html.Node{Type: html.TextNode, Data: text})
	}
	return n
}
