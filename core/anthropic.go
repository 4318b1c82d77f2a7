package core

import (
	"github.com/anthropics/anthropic-sdk-go"
)

// FromAnthropicMessage converts a Claude API response into an assistant
// transcript message. Tool-use blocks carry no recallable text and are
// dropped; hosts that need them keep their own copy of the response.
func FromAnthropicMessage(msg *anthropic.Message) Message {
	var blocks []ContentBlock
	for _, block := range msg.Content {
		if block.Type == "text" {
			blocks = append(blocks, Text(block.Text))
		}
	}
	return Message{Role: RoleAssistant, Content: blocks}
}

// FromAnthropicParam converts an outgoing message param (the shape hosts
// keep in their API conversation history) into a transcript message.
func FromAnthropicParam(p anthropic.MessageParam) Message {
	role := RoleUser
	if p.Role == anthropic.MessageParamRoleAssistant {
		role = RoleAssistant
	}

	var blocks []ContentBlock
	for _, blk := range p.Content {
		if t := blk.OfText; t != nil {
			blocks = append(blocks, Text(t.Text))
			continue
		}
		if tr := blk.OfToolResult; tr != nil {
			var nested []ContentBlock
			for _, c := range tr.Content {
				if ct := c.OfText; ct != nil {
					nested = append(nested, Text(ct.Text))
				}
			}
			blocks = append(blocks, ToolResult(nested...))
			continue
		}
		if blk.OfImage != nil {
			// Image payloads are not needed for text derivation.
			blocks = append(blocks, ContentBlock{Type: BlockImage})
		}
	}
	return Message{Role: role, Content: blocks}
}

// FromAnthropicHistory converts a full param history into transcript
// messages, preserving order.
func FromAnthropicHistory(params []anthropic.MessageParam) []Message {
	msgs := make([]Message, 0, len(params))
	for _, p := range params {
		msgs = append(msgs, FromAnthropicParam(p))
	}
	return msgs
}
