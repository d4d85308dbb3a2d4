package render

import (
	"regexp"
	"strings"
)

var placeholderRe = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_]+)\s*\}\}`)

// Substitute replaces {{ field }} placeholders with their values. Tokens
// with no matching field are left in the output untouched so a template
// typo is visible on the rendered certificate instead of silently blank.
func Substitute(template string, fields map[string]string) string {
	return placeholderRe.ReplaceAllStringFunc(template, func(token string) string {
		key := placeholderRe.FindStringSubmatch(token)[1]
		value, ok := fields[strings.ToLower(key)]
		if !ok {
			return token
		}
		return value
	})
}
