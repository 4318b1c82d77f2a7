package core

// Role identifies the author of a transcript message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// BlockType identifies the kind of a content block.
type BlockType string

const (
	BlockText       BlockType = "text"
	BlockToolResult BlockType = "tool_result"
	BlockImage      BlockType = "image"
)

// ContentBlock is one element of a message's ordered content sequence.
// Only text and tool_result blocks contribute to derived text; other
// kinds are carried through untouched.
type ContentBlock struct {
	Type BlockType `json:"type"`

	// Text is set for text blocks.
	Text string `json:"text,omitempty"`

	// Content holds the nested blocks of a tool_result.
	Content []ContentBlock `json:"content,omitempty"`

	// MediaType and Data describe an image block. Data is base64-encoded.
	MediaType string `json:"media_type,omitempty"`
	Data      string `json:"data,omitempty"`
}

// Text creates a text content block.
func Text(s string) ContentBlock {
	return ContentBlock{Type: BlockText, Text: s}
}

// ToolResult creates a tool_result block wrapping the given nested blocks.
func ToolResult(blocks ...ContentBlock) ContentBlock {
	return ContentBlock{Type: BlockToolResult, Content: blocks}
}

// Image creates an image content block.
func Image(mediaType, data string) ContentBlock {
	return ContentBlock{Type: BlockImage, MediaType: mediaType, Data: data}
}

// Message is one turn of a conversation transcript.
//
// Hosts that represent plain-string content should wrap it in a single
// text block (see UserMessage/AssistantMessage); deriving text from a
// one-block message returns the identical string, so the two
// representations are interchangeable.
type Message struct {
	Role    Role           `json:"role"`
	Content []ContentBlock `json:"content"`

	// Timestamp is the turn time in Unix milliseconds; 0 means unset.
	Timestamp int64 `json:"ts,omitempty"`
}

// UserMessage creates a user message with a single text block.
func UserMessage(text string) Message {
	return Message{Role: RoleUser, Content: []ContentBlock{Text(text)}}
}

// AssistantMessage creates an assistant message with a single text block.
func AssistantMessage(text string) Message {
	return Message{Role: RoleAssistant, Content: []ContentBlock{Text(text)}}
}

// Text returns the message's derived plain text (see DeriveText).
func (m Message) Text() string {
	return DeriveText(m.Content)
}
