package language

import (
	"fmt"
	"strings"
)

// Language is a supported answer language, always lower case.
type Language string

// Default is the language the answer stage writes in.
const Default Language = "english"

// Supported lists the languages a caller may request.
var Supported = []Language{
	"english", "french", "spanish", "german", "italian", "portuguese", "dutch",
	"russian", "chinese", "japanese", "korean", "arabic", "hindi", "turkish",
}

// Parse normalizes s and checks it against the allowed list.
// An empty allowed list means Supported.
func Parse(s string, allowed []Language) (Language, error) {
	if allowed == nil {
		allowed = Supported
	}
	l := Language(strings.ToLower(strings.TrimSpace(s)))
	if l == "" {
		return "", fmt.Errorf("language is required")
	}
	for _, a := range allowed {
		if l == a {
			return l, nil
		}
	}
	return "", fmt.Errorf("unsupported language %q", s)
}

// Is reports whether l names the same language as other, ignoring case.
func (l Language) Is(other Language) bool {
	return strings.EqualFold(string(l), string(other))
}

func (l Language) String() string { return string(l) }
