package core

import (
	"errors"
	"testing"
)

func TestMessage_Constructors(t *testing.T) {
	user := NewUserMessage("a1", "hi")
	if user.Role != RoleUser || user.AgentID != "a1" || user.ID == "" || user.Timestamp.IsZero() {
		t.Fatalf("NewUserMessage did not initialize fields correctly: %+v", user)
	}
	if user.Text() != "hi" {
		t.Fatalf("expected text 'hi', got %q", user.Text())
	}

	errMsg := NewErrorMessage("a1", errors.New("boom"))
	if errMsg.Role != RoleError || errMsg.Text() != "boom" {
		t.Fatalf("NewErrorMessage malformed: %+v", errMsg)
	}

	tr := NewToolResultMessage("a1", ToolResult{ToolUseID: "tu-1", Content: "42", IsError: false})
	if tr.Role != RoleTool || len(tr.Content) != 1 {
		t.Fatalf("NewToolResultMessage malformed: %+v", tr)
	}
	trc, ok := tr.Content[0].(ToolResultContent)
	if !ok || trc.ToolUseID != "tu-1" || trc.Content != "42" {
		t.Fatalf("tool result content malformed: %+v", tr.Content[0])
	}
}

func TestMessage_ToolUses(t *testing.T) {
	msg := NewMessage("a1", RoleAssistant,
		TextContent{Text: "calling"},
		ToolUseContent{ID: "t1", Name: "search"},
		ToolUseContent{ID: "t2", Name: "fetch"},
	)
	uses := msg.ToolUses()
	if len(uses) != 2 || uses[0].ID != "t1" || uses[1].ID != "t2" {
		t.Fatalf("ToolUses extraction failed: %+v", uses)
	}
}

func TestContentParts_DiscriminatedUnion(t *testing.T) {
	parts := []ContentPart{
		TextContent{Text: "hello"},
		ToolUseContent{ID: "t", Name: "f"},
		ToolResultContent{ToolUseID: "t"},
	}
	for _, p := range parts {
		switch pt := p.(type) {
		case TextContent, ToolUseContent, ToolResultContent:
		default:
			t.Fatalf("unexpected part type: %T (%v)", pt, pt)
		}
	}
}

func TestStreamEvents_DiscriminatedUnion(t *testing.T) {
	events := []StreamEvent{
		MessageStart{MessageID: "m1", Model: "test"},
		ContentBlockStart{Index: 0, BlockType: BlockTypeText},
		ContentBlockDelta{DeltaType: DeltaTypeText, Text: "hi"},
		ContentBlockStop{Index: 0},
		MessageDelta{StopReason: StopReasonEndTurn},
		MessageStop{},
		ToolResult{ToolUseID: "t1"},
	}
	for _, ev := range events {
		switch et := ev.(type) {
		case MessageStart, ContentBlockStart, ContentBlockDelta, ContentBlockStop, MessageDelta, MessageStop, ToolResult:
		default:
			t.Fatalf("unexpected event type: %T (%v)", et, et)
		}
	}
}

func TestNewID_Uniqueness(t *testing.T) {
	if NewID() == NewID() {
		t.Error("expected unique IDs")
	}
}
