package orchestration

import (
	"fmt"

	"golang.org/x/text/language"
)

const defaultLanguage = "en-US"

func normalizeLanguage(tag string) (string, error) {
	parsed, err := language.Parse(tag)
	if err != nil {
		return "", fmt.Errorf("invalid language tag %q: %w", tag, err)
	}
	return parsed.String(), nil
}

// baseLanguage returns the base subtag sent with user messages, "hi" for
// "hi-IN".
func baseLanguage(tag string) string {
	parsed, err := language.Parse(tag)
	if err != nil {
		return tag
	}
	base, _ := parsed.Base()
	return base.String()
}
