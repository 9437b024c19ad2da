package mutation

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"gorged/models"
)

// ParseDocument parses one response body. The returned document belongs to the
// caller and must not be shared between responses.
func ParseDocument(body string) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parsing html: %w", err)
	}
	return doc, nil
}

// RenderDocument serializes the whole tree, doctype included.
func RenderDocument(doc *goquery.Document) (string, error) {
	if doc == nil || len(doc.Nodes) == 0 {
		return "", fmt.Errorf("render: empty document")
	}
	var buf bytes.Buffer
	if err := html.Render(&buf, doc.Nodes[0]); err != nil {
		return "", fmt.Errorf("rendering html: %w", err)
	}
	return buf.String(), nil
}

// documentNode walks up from the selection root to the tree's top node.
func documentNode(doc *goquery.Document) *html.Node {
	if doc == nil || len(doc.Nodes) == 0 {
		return nil
	}
	n := doc.Nodes[0]
	for n.Parent != nil {
		n = n.Parent
	}
	return n
}

// RootElement returns the document's root element (normally <html>), or nil.
func RootElement(doc *goquery.Document) *html.Node {
	top := documentNode(doc)
	if top == nil {
		return nil
	}
	if top.Type == html.ElementNode {
		return top
	}
	for c := top.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			return c
		}
	}
	return nil
}

// EmptyRoot drops every child of the root element, leaving an empty shell.
func EmptyRoot(doc *goquery.Document) error {
	root := RootElement(doc)
	if root == nil {
		return &models.MutationError{Strategy: "empty-root", Err: models.ErrSelectorNotFound}
	}
	for root.FirstChild != nil {
		root.RemoveChild(root.FirstChild)
	}
	return nil
}
