/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package gateway

import (
	"github.com/billhaggle/reqguard/schema"
)

// ChatMessage is a single message of a conversation.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the body of POST /api/v1/chat/completions.
type ChatRequest struct {
	// Model overrides gateway.model.
	Model    string        `json:"model,omitempty"`
	Messages []ChatMessage `json:"messages"`
}

// ChatReply is the structured answer the model is asked to produce.
type ChatReply struct {
	Message string   `json:"message"`
	Actions []string `json:"actions,omitempty"`
}

// ChatResponse is the body of a successful chat completion.
type ChatResponse struct {
	RequestID string    `json:"requestId"`
	Reply     ChatReply `json:"reply"`
}

// ChatReplySchema validates the object extracted from the upstream response.
var ChatReplySchema = schema.New(
	schema.Field{Name: "message", Type: schema.TypeString},
	schema.Field{Name: "actions", Type: schema.TypeArray, Items: schema.TypeString, Optional: true},
)

// chatReplyStrategies locate the reply in an OpenAI-compatible completion first,
// then accept upstreams that answer with the bare object.
var chatReplyStrategies = []schema.ExtractionStrategy{schema.ChatCompletionContent, schema.RootObject}

type upstreamResponseFormat struct {
	Type string `json:"type"`
}

type upstreamChatRequest struct {
	Model          string                 `json:"model,omitempty"`
	Messages       []ChatMessage          `json:"messages"`
	ResponseFormat upstreamResponseFormat `json:"response_format"`
}

func newUpstreamChatRequest(req ChatRequest, defaultModel string) upstreamChatRequest {
	model := req.Model
	if model == "" {
		model = defaultModel
	}
	return upstreamChatRequest{
		Model:          model,
		Messages:       req.Messages,
		ResponseFormat: upstreamResponseFormat{Type: "json_object"},
	}
}
