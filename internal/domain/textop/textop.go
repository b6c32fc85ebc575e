package textop

import (
	"fmt"
	"strings"
)

// Option is a rewrite applied to a message text outside the conversation.
type Option string

const (
	// Summarize shortens the text.
	Summarize Option = "summarize"
	// Paraphrase rewords the text keeping its structure.
	Paraphrase Option = "paraphrase"
)

// MaxTextLength bounds the input accepted for a rewrite.
const MaxTextLength = 32 * 1024

// Parse accepts an option name in any case ("Summarize", "paraphrase").
func Parse(s string) (Option, error) {
	o := Option(strings.ToLower(strings.TrimSpace(s)))
	switch o {
	case Summarize, Paraphrase:
		return o, nil
	default:
		return "", fmt.Errorf("unknown text option %q", s)
	}
}
