package mutation

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html/atom"

	"gorged/models"
)

// HideRule returns the stylesheet rule a static-hide strategy inserts.
func HideRule(selector string, variant Strategy) (string, error) {
	switch variant {
	case DisplayNone:
		return fmt.Sprintf("%s { display: none !important; }", selector), nil
	case OpacityZero:
		return fmt.Sprintf("%s { opacity: 0 !important; pointer-events: none !important; }", selector), nil
	default:
		return "", fmt.Errorf("%s is not a static-hide strategy", variant)
	}
}

// Hide inserts a <style> element suppressing selector. The selector does not
// need to match anything yet; the rule also applies to elements rendered later.
func Hide(doc *goquery.Document, selector string, variant Strategy) error {
	if _, err := cascadia.Compile(selector); err != nil {
		return &models.MutationError{Strategy: variant.String(), Selector: selector, Err: err}
	}
	if strings.Contains(strings.ToLower(selector), "</style") {
		return &models.MutationError{Strategy: variant.String(), Selector: selector, Err: fmt.Errorf("selector closes the style element")}
	}
	rule, err := HideRule(selector, variant)
	if err != nil {
		return &models.MutationError{Strategy: variant.String(), Selector: selector, Err: err}
	}
	if _, err := InsertInsistently(doc, newElement(atom.Style, rule)); err != nil {
		return err
	}
	return nil
}
