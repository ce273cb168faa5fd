// Package render substitutes {{variable}} placeholders in template text.
package render

import (
	"regexp"

	"notification-dispatch/internal/models"
)

// A key is any run of characters other than braces and whitespace.
var placeholder = regexp.MustCompile(`\{\{\s*([^{}\s]+)\s*\}\}`)

// Render replaces every {{key}} in text with values[key], falling back to
// defaults[key]. Keys found in neither are left as the literal placeholder.
// Substituted values are inserted as-is and never expanded again.
func Render(text string, values, defaults map[string]string) string {
	return placeholder.ReplaceAllStringFunc(text, func(m string) string {
		key := placeholder.FindStringSubmatch(m)[1]
		if v, ok := values[key]; ok {
			return v
		}
		if v, ok := defaults[key]; ok {
			return v
		}
		return m
	})
}

// Template renders a template's subject and content.
func Template(t models.Template, values map[string]string) (subject, body string) {
	defaults := t.Defaults()
	return Render(t.Subject, values, defaults), Render(t.Content, values, defaults)
}

// Placeholders lists the distinct keys referenced in texts, in order of first
// appearance.
func Placeholders(texts ...string) []string {
	seen := make(map[string]bool)
	var keys []string
	for _, text := range texts {
		for _, m := range placeholder.FindAllStringSubmatch(text, -1) {
			if !seen[m[1]] {
				seen[m[1]] = true
				keys = append(keys, m[1])
			}
		}
	}
	return keys
}

// Unresolved lists the placeholders still present in a rendered text.
func Unresolved(text string) []string {
	return Placeholders(text)
}
