// Package textutil holds normalisation helpers shared by services and handlers.
package textutil

import (
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var folder = cases.Fold()

// CollapseSpace trims value and replaces every run of whitespace with a single space.
func CollapseSpace(value string) string {
	return strings.Join(strings.FieldsFunc(value, unicode.IsSpace), " ")
}

// NormalizeName applies NFKC composition and collapses whitespace.
func NormalizeName(value string) string {
	return CollapseSpace(norm.NFKC.String(value))
}

// NormalizeEmail returns the canonical form used for uniqueness checks.
func NormalizeEmail(value string) string {
	return strings.ToLower(strings.TrimSpace(norm.NFKC.String(value)))
}

// NormalizeSearch prepares a free text query for case-insensitive matching.
func NormalizeSearch(value string) string {
	return folder.String(NormalizeName(value))
}

// NewDescriptionPolicy returns the HTML policy applied to catalog descriptions.
func NewDescriptionPolicy() *bluemonday.Policy {
	policy := bluemonday.UGCPolicy()
	policy.AllowAttrs("class").OnElements("p", "span")
	policy.RequireNoFollowOnLinks(true)
	return policy
}

// StripTags removes all markup from value.
func StripTags(value string) string {
	return strings.TrimSpace(bluemonday.StrictPolicy().Sanitize(value))
}
