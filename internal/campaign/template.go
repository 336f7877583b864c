package campaign

import "strings"

// RenderTemplate substitutes {placeholder} markers with their values.
// Missing or empty values render as "N/A" so a half-filled lead record
// never produces a message with a bare placeholder in it.
func RenderTemplate(template string, values map[string]string) string {
	out := template
	for name, value := range values {
		if value == "" {
			value = "N/A"
		}
		out = strings.ReplaceAll(out, "{"+name+"}", value)
	}
	return out
}
