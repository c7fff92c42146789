// ABOUTME: Recommended-duration parsing for deal products
// ABOUTME: Extracts the first numeric token from free text while preserving the original
package canonical

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/harperreed/dealsync/rawjson"
)

var numericToken = regexp.MustCompile(`[0-9]+(?:[.,][0-9]+)?`)

// ParseRecommendedHours accepts a numeric value directly or extracts the
// first numeric token from a string, treating a comma as the decimal
// separator. The original text is preserved verbatim even when no number
// can be parsed, because the UI must display the source text exactly.
func ParseRecommendedHours(value any) (*float64, string) {
	if value == nil {
		return nil, ""
	}
	if f, ok := rawjson.AsNumber(value); ok {
		return &f, ""
	}
	text, ok := rawjson.AsString(value)
	if !ok {
		return nil, ""
	}
	token := numericToken.FindString(text)
	if token == "" {
		return nil, text
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(token, ",", "."), 64)
	if err != nil {
		return nil, text
	}
	return &f, text
}
