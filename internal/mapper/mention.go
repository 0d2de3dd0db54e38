package mapper

import (
	"regexp"
	"strings"
)

var (
	leadingMention = regexp.MustCompile(`^@\w+\s`)
	mentionPattern = regexp.MustCompile(`@([\w][\w.-]*)`)
)

// StripLeadingMention removes a single leading "@name " token.
func StripLeadingMention(text string) string {
	return leadingMention.ReplaceAllString(text, "")
}

// ExtractMentions returns the distinct @handles in text, in order of appearance.
func ExtractMentions(text string) []string {
	matches := mentionPattern.FindAllStringSubmatch(text, -1)
	seen := make(map[string]struct{}, len(matches))
	var out []string
	for _, m := range matches {
		name := strings.TrimRight(m[1], ".")
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}

// replaceSlackMentions rewrites <@ID> tokens for the given ids to @appName.
// The output never contains "<@", so a second pass is a no-op.
func replaceSlackMentions(text, appName string, ids ...string) string {
	if appName == "" {
		return text
	}
	for _, id := range ids {
		if id == "" {
			continue
		}
		text = strings.ReplaceAll(text, "<@"+id+">", "@"+appName)
	}
	return text
}

// replaceHandle rewrites a literal @handle to @appName. The handle only
// matches when it is not followed by another handle character, so an
// appName that extends the handle is not rewritten again on a second pass.
func replaceHandle(text, handle, appName string) string {
	if handle == "" || appName == "" || handle == appName {
		return text
	}
	re := regexp.MustCompile(`@` + regexp.QuoteMeta(handle) + `([^\w-]|$)`)
	return re.ReplaceAllString(text, "@"+appName+"${1}")
}

func containsHandle(text, handle string) bool {
	if handle == "" {
		return false
	}
	return strings.Contains(text, "@"+handle)
}
