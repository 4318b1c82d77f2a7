package core

import (
	"regexp"
	"strings"
)

// DeriveText reduces an ordered block sequence to plain text.
//
// Text blocks contribute their text; tool_result blocks contribute the
// recursively derived text of their nested content, appended as if they
// were text blocks. Everything else (images, unknown kinds) is skipped.
// Non-empty parts are joined with a blank line.
func DeriveText(blocks []ContentBlock) string {
	var parts []string
	for _, b := range blocks {
		switch b.Type {
		case BlockText:
			if b.Text != "" {
				parts = append(parts, b.Text)
			}
		case BlockToolResult:
			if t := DeriveText(b.Content); t != "" {
				parts = append(parts, t)
			}
		}
	}
	return strings.Join(parts, "\n\n")
}

var userMessageSection = regexp.MustCompile(`(?s)<user_message>\s*(.*?)\s*</user_message>`)

// StorageText returns the text a message contributes to a stored
// exchange. Assistant turns use the derived text as-is. For user turns,
// when the derived text carries exactly one delimited user_message
// section, only that section's inner text is the user's actual words;
// the surrounding text is host framing and is discarded. Zero or
// multiple sections fall back to the full derived text.
func StorageText(m Message) string {
	t := DeriveText(m.Content)
	if m.Role != RoleUser {
		return t
	}
	matches := userMessageSection.FindAllStringSubmatch(t, -1)
	if len(matches) == 1 {
		return matches[0][1]
	}
	return t
}
