package brain

import (
	"regexp"
	"strings"
)

const maxTaskNameRunes = 120

// markupPattern matches Slack-style mention and link markup, e.g.
// "<@U024BE7LH>", "<#C9|general>", "<https://x.io|docs>".
var markupPattern = regexp.MustCompile(`<([@#!][^<>|]*|https?://[^<>|]*)(\|([^<>]*))?>`)

// SanitizeTaskName turns a generated task name into plain text: markup is
// replaced by its label (or dropped), whitespace is collapsed and the name is
// capped at maxTaskNameRunes. Returns the cleaned name and the count of
// markup spans rewritten.
func SanitizeTaskName(name string) (string, int) {
	count := 0
	name = markupPattern.ReplaceAllStringFunc(name, func(m string) string {
		count++
		sub := markupPattern.FindStringSubmatch(m)
		return sub[3]
	})
	name = strings.Join(strings.Fields(name), " ")

	if runes := []rune(name); len(runes) > maxTaskNameRunes {
		name = strings.TrimSpace(string(runes[:maxTaskNameRunes]))
	}
	return name, count
}
