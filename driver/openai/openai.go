// Package openai adapts the OpenAI chat-completion chunk stream into the
// agentrelay stream-event vocabulary. Unlike the Anthropic wire format, chunk
// streams carry no explicit block boundaries, so the adapter synthesizes
// content_block_start/stop events around runs of text and tool-call deltas.
package openai

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/hupe1980/agentrelay/core"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Options configures the OpenAI driver.
type Options struct {
	Model        openai.ChatModel
	APIKey       string
	SystemPrompt string
}

// Driver wraps the OpenAI chat completions API behind the core.Driver interface.
type Driver struct {
	client *openai.Client
	opts   Options

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewDriver creates an OpenAI driver. A missing API key (option and
// environment) is a configuration error and fails here.
func NewDriver(optFns ...func(o *Options)) (*Driver, error) {
	opts := Options{Model: openai.ChatModelGPT4o}
	for _, fn := range optFns {
		fn(&opts)
	}

	apiKey := opts.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("openai driver: missing API key")
	}

	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &Driver{client: &client, opts: opts}, nil
}

// Send implements core.Driver by opening a chunk stream and normalizing it
// into the explicit block-boundary vocabulary.
func (d *Driver) Send(ctx context.Context, msg core.Message, history []core.Message) (<-chan core.StreamEvent, <-chan error) {
	evCh := make(chan core.StreamEvent, 32)
	errCh := make(chan error, 1)

	sendCtx, cancel := context.WithCancel(ctx)
	d.mu.Lock()
	d.cancel = cancel
	d.mu.Unlock()

	go func() {
		defer close(evCh)
		defer close(errCh)

		params := openai.ChatCompletionNewParams{
			Model:    d.opts.Model,
			Messages: d.buildMessages(append(append([]core.Message{}, history...), msg)),
		}

		stream := d.client.Chat.Completions.NewStreaming(sendCtx, params)
		norm := newNormalizer()
		emit := func(out core.StreamEvent) bool {
			select {
			case <-sendCtx.Done():
				return false
			case evCh <- out:
				return true
			}
		}

		for stream.Next() {
			chunk := stream.Current()
			for _, out := range norm.feed(chunk) {
				if !emit(out) {
					errCh <- sendCtx.Err()
					return
				}
			}
		}
		if err := stream.Err(); err != nil {
			errCh <- fmt.Errorf("openai stream error: %w", err)
			return
		}
		for _, out := range norm.finish() {
			if !emit(out) {
				errCh <- sendCtx.Err()
				return
			}
		}
	}()

	return evCh, errCh
}

// Abort implements core.Driver; cancels the in-flight streaming request.
func (d *Driver) Abort() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		d.cancel()
	}
}

// normalizer synthesizes block boundaries for the boundary-free chunk format.
// It tracks the currently open block and closes it whenever the content kind
// switches (text → tool call, tool call → tool call, anything → finish).
type normalizer struct {
	started   bool
	stopped   bool
	nextIndex int
	openIndex int // -1 when no block is open
	openTool  bool
	toolIndex map[int64]int // provider tool-call index → our block index
}

func newNormalizer() *normalizer {
	return &normalizer{openIndex: -1, toolIndex: make(map[int64]int)}
}

func (n *normalizer) feed(chunk openai.ChatCompletionChunk) []core.StreamEvent {
	var outs []core.StreamEvent
	if !n.started {
		n.started = true
		outs = append(outs, core.MessageStart{MessageID: chunk.ID, Model: chunk.Model})
	}
	if len(chunk.Choices) == 0 {
		return outs
	}
	choice := chunk.Choices[0]

	if choice.Delta.Content != "" {
		if n.openIndex < 0 || n.openTool {
			outs = append(outs, n.closeOpen()...)
			n.openIndex = n.nextIndex
			n.nextIndex++
			n.openTool = false
			outs = append(outs, core.ContentBlockStart{Index: n.openIndex, BlockType: core.BlockTypeText})
		}
		outs = append(outs, core.ContentBlockDelta{DeltaType: core.DeltaTypeText, Text: choice.Delta.Content})
	}

	for _, tc := range choice.Delta.ToolCalls {
		if _, ok := n.toolIndex[tc.Index]; !ok {
			outs = append(outs, n.closeOpen()...)
			n.toolIndex[tc.Index] = n.nextIndex
			n.openIndex = n.nextIndex
			n.nextIndex++
			n.openTool = true
			outs = append(outs, core.ContentBlockStart{
				Index:     n.toolIndex[tc.Index],
				BlockType: core.BlockTypeToolUse,
				ToolID:    tc.ID,
				ToolName:  tc.Function.Name,
			})
		}
		if tc.Function.Arguments != "" {
			outs = append(outs, core.ContentBlockDelta{DeltaType: core.DeltaTypeInputJSON, PartialJSON: tc.Function.Arguments})
		}
	}

	if choice.FinishReason != "" && !n.stopped {
		n.stopped = true
		outs = append(outs, n.closeOpen()...)
		outs = append(outs, core.MessageDelta{StopReason: mapFinishReason(choice.FinishReason)})
		outs = append(outs, core.MessageStop{})
	}
	return outs
}

// finish emits the terminating events if the provider never sent a finish
// reason (e.g. the stream ended early but cleanly).
func (n *normalizer) finish() []core.StreamEvent {
	if !n.started || n.stopped {
		return nil
	}
	n.stopped = true
	outs := n.closeOpen()
	outs = append(outs, core.MessageDelta{StopReason: core.StopReasonEndTurn})
	outs = append(outs, core.MessageStop{})
	return outs
}

func (n *normalizer) closeOpen() []core.StreamEvent {
	if n.openIndex < 0 {
		return nil
	}
	idx := n.openIndex
	n.openIndex = -1
	n.openTool = false
	return []core.StreamEvent{core.ContentBlockStop{Index: idx}}
}

func mapFinishReason(reason string) string {
	switch reason {
	case "tool_calls":
		return core.StopReasonToolUse
	case "length":
		return "max_tokens"
	case "content_filter":
		return "refusal"
	default:
		return core.StopReasonEndTurn
	}
}

// buildMessages converts conversation history to chat-completion params.
// Error roles never reach the provider.
func (d *Driver) buildMessages(history []core.Message) []openai.ChatCompletionMessageParamUnion {
	var messages []openai.ChatCompletionMessageParamUnion
	if d.opts.SystemPrompt != "" {
		messages = append(messages, openai.SystemMessage(d.opts.SystemPrompt))
	}
	for _, m := range history {
		switch m.Role {
		case core.RoleUser:
			if text := m.Text(); text != "" {
				messages = append(messages, openai.UserMessage(text))
			}
		case core.RoleAssistant:
			if text := m.Text(); text != "" {
				messages = append(messages, openai.AssistantMessage(text))
			}
		case core.RoleSystem:
			if text := m.Text(); text != "" {
				messages = append(messages, openai.SystemMessage(text))
			}
		case core.RoleTool:
			for _, p := range m.Content {
				if tr, ok := p.(core.ToolResultContent); ok {
					messages = append(messages, openai.ToolMessage(tr.Content, tr.ToolUseID))
				}
			}
		}
	}
	return messages
}
