// Package anthropic adapts the Anthropic Messages streaming API into the
// agentrelay stream-event vocabulary. The mapping is nearly 1:1 since the
// vocabulary mirrors the provider's wire shapes.
package anthropic

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/hupe1980/agentrelay/core"
)

// Options configures the Anthropic driver (model id, max tokens, temperature,
// API key, system prompt).
type Options struct {
	Model        anthropic.Model
	MaxTokens    int64
	Temperature  float64
	APIKey       string
	SystemPrompt string
}

// Driver wraps the Anthropic Messages API behind the core.Driver interface.
type Driver struct {
	client *anthropic.Client
	opts   Options

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewDriver creates an Anthropic driver. A missing API key (option and
// environment) is a configuration error and fails here, before any send can
// begin.
func NewDriver(optFns ...func(o *Options)) (*Driver, error) {
	opts := Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		MaxTokens:   4096,
		Temperature: 0.7,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	apiKey := opts.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic driver: missing API key")
	}

	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &Driver{client: &client, opts: opts}, nil
}

// NewDriverFromClient creates a driver from an existing client, e.g. one with
// custom transport options.
func NewDriverFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Driver {
	opts := Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		MaxTokens:   4096,
		Temperature: 0.7,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Driver{client: client, opts: opts}
}

// Send implements core.Driver by opening a Messages streaming request and
// translating each SSE event into a core.StreamEvent.
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

		params := anthropic.MessageNewParams{
			Model:       d.opts.Model,
			MaxTokens:   d.opts.MaxTokens,
			Temperature: anthropic.Float(d.opts.Temperature),
			Messages:    d.buildMessages(append(append([]core.Message{}, history...), msg)),
		}
		if d.opts.SystemPrompt != "" {
			params.System = []anthropic.TextBlockParam{{Text: d.opts.SystemPrompt}}
		}

		stream := d.client.Messages.NewStreaming(sendCtx, params)
		for stream.Next() {
			event := stream.Current()
			out, ok := translate(event)
			if !ok {
				continue
			}
			select {
			case <-sendCtx.Done():
				errCh <- sendCtx.Err()
				return
			case evCh <- out:
			}
		}
		if err := stream.Err(); err != nil {
			errCh <- fmt.Errorf("anthropic stream error: %w", err)
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

// translate maps one provider SSE event into the stream-event vocabulary.
// Unknown event kinds (ping, fine-grained deltas this runtime does not model)
// are skipped.
func translate(event anthropic.MessageStreamEventUnion) (core.StreamEvent, bool) {
	switch ev := event.AsAny().(type) {
	case anthropic.MessageStartEvent:
		return core.MessageStart{MessageID: ev.Message.ID, Model: string(ev.Message.Model)}, true

	case anthropic.ContentBlockStartEvent:
		switch blk := ev.ContentBlock.AsAny().(type) {
		case anthropic.ToolUseBlock:
			return core.ContentBlockStart{
				Index:     int(ev.Index),
				BlockType: core.BlockTypeToolUse,
				ToolID:    blk.ID,
				ToolName:  blk.Name,
			}, true
		default:
			return core.ContentBlockStart{Index: int(ev.Index), BlockType: core.BlockTypeText}, true
		}

	case anthropic.ContentBlockDeltaEvent:
		switch delta := ev.Delta.AsAny().(type) {
		case anthropic.TextDelta:
			return core.ContentBlockDelta{DeltaType: core.DeltaTypeText, Text: delta.Text}, true
		case anthropic.InputJSONDelta:
			return core.ContentBlockDelta{DeltaType: core.DeltaTypeInputJSON, PartialJSON: delta.PartialJSON}, true
		default:
			return nil, false
		}

	case anthropic.ContentBlockStopEvent:
		return core.ContentBlockStop{Index: int(ev.Index)}, true

	case anthropic.MessageDeltaEvent:
		return core.MessageDelta{
			StopReason:   string(ev.Delta.StopReason),
			StopSequence: ev.Delta.StopSequence,
		}, true

	case anthropic.MessageStopEvent:
		return core.MessageStop{}, true

	default:
		return nil, false
	}
}

// buildMessages converts conversation history to Anthropic message params.
// Error and system roles never reach the provider; tool results are embedded
// as user-side tool_result blocks per the Messages API convention.
func (d *Driver) buildMessages(history []core.Message) []anthropic.MessageParam {
	var messages []anthropic.MessageParam
	for _, m := range history {
		switch m.Role {
		case core.RoleUser:
			if text := m.Text(); text != "" {
				messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(text)))
			}
		case core.RoleAssistant:
			if content := buildAssistantContent(m); len(content) > 0 {
				messages = append(messages, anthropic.NewAssistantMessage(content...))
			}
		case core.RoleTool:
			if content := buildToolResultContent(m); len(content) > 0 {
				messages = append(messages, anthropic.NewUserMessage(content...))
			}
		}
	}
	return messages
}

func buildAssistantContent(m core.Message) []anthropic.ContentBlockParamUnion {
	var content []anthropic.ContentBlockParamUnion
	for _, p := range m.Content {
		switch part := p.(type) {
		case core.TextContent:
			if part.Text != "" {
				content = append(content, anthropic.NewTextBlock(part.Text))
			}
		case core.ToolUseContent:
			var input any = part.Input
			if part.Input == nil {
				input = part.RawInput
			}
			content = append(content, anthropic.NewToolUseBlock(part.ID, input, part.Name))
		}
	}
	return content
}

func buildToolResultContent(m core.Message) []anthropic.ContentBlockParamUnion {
	var content []anthropic.ContentBlockParamUnion
	for _, p := range m.Content {
		if tr, ok := p.(core.ToolResultContent); ok {
			content = append(content, anthropic.NewToolResultBlock(tr.ToolUseID, tr.Content, tr.IsError))
		}
	}
	return content
}
