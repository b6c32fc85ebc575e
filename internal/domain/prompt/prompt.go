// Package prompt assembles the chat messages sent to the language model.
// Every builder is pure and deterministic; none of them truncates its input.
package prompt

import (
	"strconv"
	"strings"

	"github.com/kailas-cloud/docchat/internal/domain/conversation"
	"github.com/kailas-cloud/docchat/internal/domain/language"
	"github.com/kailas-cloud/docchat/internal/domain/passage"
)

// Role is the author of a prompt message.
type Role string

const (
	// RoleSystem carries instructions.
	RoleSystem Role = "system"
	// RoleUser carries the human turn.
	RoleUser Role = "user"
	// RoleAssistant carries prior model output.
	RoleAssistant Role = "assistant"
)

// Message is one entry of a prompt.
type Message struct {
	Role    Role
	Content string
}

// Prompt is an ordered list of messages.
type Prompt []Message

// Text concatenates every message body, separated by newlines.
func (p Prompt) Text() string {
	parts := make([]string, len(p))
	for i, m := range p {
		parts[i] = m.Content
	}
	return strings.Join(parts, "\n")
}

// Answer builds the answer-mode prompt from ranked passages, chronological history and the question.
func Answer(passages []passage.Passage, history []conversation.Turn, question string) Prompt {
	system := strings.NewReplacer(
		"{context}", FormatContext(passages),
		"{chat_history}", FormatHistory(history),
	).Replace(answerSystem)

	return Prompt{
		{Role: RoleSystem, Content: system},
		{Role: RoleUser, Content: question},
	}
}

// Translation builds the translation-mode prompt for text produced by an earlier stage.
func Translation(text string, lang language.Language) Prompt {
	r := strings.NewReplacer("{language}", lang.String(), "{input}", text)
	return Prompt{
		{Role: RoleSystem, Content: r.Replace(translationSystem)},
		{Role: RoleUser, Content: r.Replace(translationHuman)},
	}
}

// Summarize builds a prompt that shortens text.
func Summarize(text string) Prompt {
	return Prompt{
		{Role: RoleSystem, Content: strings.ReplaceAll(summarizeSystem, "{text}", text)},
	}
}

// Paraphrase builds a prompt that rewords text without changing its format.
func Paraphrase(text string) Prompt {
	return Prompt{
		{Role: RoleSystem, Content: strings.ReplaceAll(paraphraseSystem, "{text}", text)},
	}
}

// FormatContext renders passages in rank order, each followed by its page locator.
func FormatContext(passages []passage.Passage) string {
	parts := make([]string, len(passages))
	for i := range passages {
		p := &passages[i]
		parts[i] = p.Text() + "\nPage Number: " + strconv.Itoa(p.Page())
	}
	return strings.Join(parts, "\n\n")
}

// FormatHistory renders turns as labeled lines, oldest first.
func FormatHistory(history []conversation.Turn) string {
	var b strings.Builder
	for i := range history {
		t := &history[i]
		if t.IsUser() {
			b.WriteString("User: ")
		} else {
			b.WriteString("Assistant: ")
		}
		b.WriteString(t.Text())
		b.WriteByte('\n')
	}
	return b.String()
}
