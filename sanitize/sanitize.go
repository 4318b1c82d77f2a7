// Package sanitize removes tool markup, host framing, and previously
// injected recall blocks from conversation text before it is used as a
// memory query or stored as part of an exchange.
package sanitize

import (
	"regexp"
	"strings"
)

// Recall block delimiters. Text between these markers was injected by a
// prior enrichment pass and must never be queried or stored again.
const (
	RecallOpen  = "<recalled_memories>"
	RecallClose = "</recalled_memories>"
)

// CompletionSignal marks an assistant turn that announces task
// completion. The storage handler switches from single-exchange storage
// to a full history sync when it sees this.
const CompletionSignal = "<attempt_completion"

// Action tells the sanitizer what to do with a matched rule.
type Action int

const (
	// ActionDropBlock removes the entire match, inner text included.
	ActionDropBlock Action = iota

	// ActionStripTags removes only the tags, keeping inner text.
	ActionStripTags
)

// Rule is one entry of the sanitization table.
type Rule struct {
	Name    string
	Pattern *regexp.Regexp
	Action  Action
}

// dropTag builds a rule that removes a tag pair and everything between.
func dropTag(name string) Rule {
	return Rule{
		Name:    name,
		Pattern: regexp.MustCompile(`(?s)<` + name + `(?:\s[^<>]*)?>.*?</` + name + `>`),
		Action:  ActionDropBlock,
	}
}

// stripTag builds a rule that removes only a tag's open/close markers.
func stripTag(name string) Rule {
	return Rule{
		Name:    name,
		Pattern: regexp.MustCompile(`</?` + name + `(?:\s[^<>]*)?>`),
		Action:  ActionStripTags,
	}
}

// rules is the fixed pipeline, applied in order. Order matters: recall
// and metadata blocks go first so their inner markup never leaks into
// later tag-strip passes, and the generic residual strip runs last as a
// fail-open catch-all for wrapper tags not named here.
var rules = []Rule{
	dropTag("environment_details"),
	dropTag("recalled_memories"),
	{
		Name:    "diff_markup",
		Pattern: regexp.MustCompile(`(?s)-------+ SEARCH.*?\+\+\+\+\+\+\++ REPLACE`),
		Action:  ActionDropBlock,
	},
	dropTag("ask_followup_question"),
	dropTag("attempt_completion"),
	dropTag("task_progress"),
	stripTag("task"),
	stripTag("feedback"),
	stripTag("answer"),
	stripTag("user_message"),
	stripTag("thinking"),
	stripTag("result"),
	stripTag("command"),
	stripTag("question"),
	stripTag("follow_up"),
	stripTag("suggest"),
	{
		Name:    "residual_tags",
		Pattern: regexp.MustCompile(`</?[a-zA-Z][a-zA-Z0-9_-]*(?:\s[^<>]*)?/?>`),
		Action:  ActionStripTags,
	},
}

var blankLines = regexp.MustCompile(`\n{3,}`)

// Sanitizer applies the rule table. The zero value is not usable; call
// New.
type Sanitizer struct {
	rules []Rule
}

// New returns a Sanitizer with the default rule table.
func New() *Sanitizer {
	return &Sanitizer{rules: rules}
}

// Clean runs the full pipeline over text. It is deterministic and
// idempotent: Clean(Clean(x)) == Clean(x). An empty or markup-only
// input cleans to ""; callers treat that as "no content" and skip
// whatever operation the text was for.
func (s *Sanitizer) Clean(text string) string {
	if text == "" {
		return ""
	}
	for _, r := range s.rules {
		text = r.Pattern.ReplaceAllString(text, "")
	}
	text = blankLines.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// ContainsCompletionSignal reports whether text carries the completion
// marker of an assistant turn.
func ContainsCompletionSignal(text string) bool {
	return strings.Contains(text, CompletionSignal)
}

// IsRecallBlock reports whether a text block is an injected recall
// block (its trimmed text starts with the recall open marker).
func IsRecallBlock(text string) bool {
	return strings.HasPrefix(strings.TrimSpace(text), RecallOpen)
}
