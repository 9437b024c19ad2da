package mutation

import (
	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"

	"gorged/models"
)

// RemoveFirst deletes exactly the first element matching selector. A miss is
// reported as a MutationError wrapping models.ErrSelectorNotFound.
func RemoveFirst(doc *goquery.Document, selector string) error {
	matcher, err := cascadia.Compile(selector)
	if err != nil {
		return &models.MutationError{Strategy: NodeRemoval.String(), Selector: selector, Err: err}
	}
	match := doc.FindMatcher(matcher).First()
	if match.Length() == 0 {
		return &models.MutationError{Strategy: NodeRemoval.String(), Selector: selector, Err: models.ErrSelectorNotFound}
	}
	match.Remove()
	return nil
}
