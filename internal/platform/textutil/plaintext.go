package textutil

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var strictPolicy = bluemonday.StrictPolicy()

// PlainText strips every HTML element from back-office supplied labels and collapses whitespace.
func PlainText(value string) string {
	stripped := html.UnescapeString(strictPolicy.Sanitize(value))
	return strings.Join(strings.Fields(stripped), " ")
}
