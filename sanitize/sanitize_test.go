package sanitize

import (
	"testing"
)

func TestCleanRecallBlocks(t *testing.T) {
	s := New()

	in := "<recalled_memories>\nMemory 1 (Source: t1, Chunk: 0):\nold context\n</recalled_memories>\n\nWhat is the weather today?"
	got := s.Clean(in)
	want := "What is the weather today?"
	if got != want {
		t.Errorf("Clean() = %q, want %q", got, want)
	}
}

func TestCleanRuleTable(t *testing.T) {
	s := New()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "drop environment details",
			in:   "hello<environment_details>\ncwd: /tmp\n</environment_details>",
			want: "hello",
		},
		{
			name: "drop followup question block",
			in:   "before <ask_followup_question><question>which one?</question></ask_followup_question> after",
			want: "before  after",
		},
		{
			name: "drop completion block",
			in:   "<attempt_completion><result>done</result></attempt_completion>trailing",
			want: "trailing",
		},
		{
			name: "strip structural tags keep inner text",
			in:   "<task>fix the bug</task>",
			want: "fix the bug",
		},
		{
			name: "strip user_message tags",
			in:   "<user_message>please help</user_message>",
			want: "please help",
		},
		{
			name: "strip nested thinking tags",
			in:   "<thinking>the user wants X</thinking> so do X",
			want: "the user wants X so do X",
		},
		{
			name: "drop diff markup",
			in:   "apply this:\n------- SEARCH\nold line\n=======\nnew line\n+++++++ REPLACE\nthanks",
			want: "apply this:\n\nthanks",
		},
		{
			name: "residual unknown tags fail open",
			in:   "<custom_wrapper attr=\"1\">kept words</custom_wrapper>",
			want: "kept words",
		},
		{
			name: "self closing residual tag",
			in:   "a <br/> b",
			want: "a  b",
		},
		{
			name: "blank line collapse and trim",
			in:   "\n\nline one\n\n\n\n\nline two\n\n",
			want: "line one\n\nline two",
		},
		{
			name: "empty input",
			in:   "",
			want: "",
		},
		{
			name: "markup only reduces to empty",
			in:   "<attempt_completion><result>ok</result></attempt_completion>",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.Clean(tt.in); got != tt.want {
				t.Errorf("Clean(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestCleanIdempotent(t *testing.T) {
	s := New()

	inputs := []string{
		"plain text with no markup",
		"<recalled_memories>old</recalled_memories>\nquery",
		"<task>do the thing</task>\n\n\n<environment_details>noise</environment_details>",
		"mixed <unknown>tag</unknown> and ------- SEARCH\nx\n=======\ny\n+++++++ REPLACE end",
		"",
	}

	for _, in := range inputs {
		once := s.Clean(in)
		twice := s.Clean(once)
		if once != twice {
			t.Errorf("Clean not idempotent for %q: first %q, second %q", in, once, twice)
		}
	}
}

func TestContainsCompletionSignal(t *testing.T) {
	if !ContainsCompletionSignal("done. <attempt_completion><result>shipped</result></attempt_completion>") {
		t.Error("expected completion signal to be detected")
	}
	if ContainsCompletionSignal("just a normal answer") {
		t.Error("did not expect completion signal")
	}
}

func TestIsRecallBlock(t *testing.T) {
	if !IsRecallBlock("  \n<recalled_memories>\nstuff\n</recalled_memories>") {
		t.Error("expected leading-whitespace recall block to be detected")
	}
	if IsRecallBlock("text mentioning <recalled_memories> mid-sentence") {
		t.Error("marker not at start should not match")
	}
}
