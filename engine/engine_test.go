package engine

import (
	"testing"

	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func processAll(e *Engine, agentID string, events []core.StreamEvent) []core.OutputEvent {
	var outs []core.OutputEvent
	for _, ev := range events {
		outs = append(outs, e.Process(agentID, ev)...)
	}
	return outs
}

func byCategory(outs []core.OutputEvent, cats ...core.Category) []core.OutputEvent {
	want := make(map[core.Category]bool, len(cats))
	for _, c := range cats {
		want[c] = true
	}
	var filtered []core.OutputEvent
	for _, out := range outs {
		if want[out.Category] {
			filtered = append(filtered, out)
		}
	}
	return filtered
}

func byType(outs []core.OutputEvent, typ core.OutputType) []core.OutputEvent {
	var filtered []core.OutputEvent
	for _, out := range outs {
		if out.Type == typ {
			filtered = append(filtered, out)
		}
	}
	return filtered
}

func TestEngine_TextMessageOutputSequence(t *testing.T) {
	e := New()

	events := testutil.NewScriptBuilder().
		Start("m1", "test-model").
		Text(0, "Hi", " there").
		Stop().
		Build()

	outs := processAll(e, "a1", events)

	got := byCategory(outs, core.CategoryStream, core.CategoryMessage)
	types := make([]core.OutputType, len(got))
	for i, out := range got {
		types[i] = out.Type
	}
	assert.Equal(t, []core.OutputType{
		core.OutputMessageStart,
		core.OutputTextDelta,
		core.OutputTextDelta,
		core.OutputTextBlockStop,
		core.OutputAssistantMessage,
		core.OutputMessageStop,
	}, types)

	assert.Equal(t, "Hi", got[1].Text)
	assert.Equal(t, " there", got[2].Text)

	msgs := byType(outs, core.OutputAssistantMessage)
	require.Len(t, msgs, 1)
	require.Len(t, msgs[0].Message.Content, 1)
	assert.Equal(t, core.TextContent{Text: "Hi there"}, msgs[0].Message.Content[0])
	assert.Equal(t, "m1", msgs[0].Message.ID)
}

func TestEngine_ContentPartsFollowBlockIndexOrder(t *testing.T) {
	e := New()

	// Blocks arrive with index 1 before index 0; the assembled message must
	// still order parts by block index.
	events := testutil.NewScriptBuilder().
		Start("m1", "test-model").
		Text(1, "second").
		Text(0, "first").
		Stop().
		Build()

	outs := processAll(e, "a1", events)
	msgs := byType(outs, core.OutputAssistantMessage)
	require.Len(t, msgs, 1)
	require.Len(t, msgs[0].Message.Content, 2)
	assert.Equal(t, core.TextContent{Text: "first"}, msgs[0].Message.Content[0])
	assert.Equal(t, core.TextContent{Text: "second"}, msgs[0].Message.Content[1])
}

func TestEngine_ToolInputAssembly(t *testing.T) {
	e := New()

	events := testutil.NewScriptBuilder().
		Start("m1", "test-model").
		ToolUse(0, "tu-1", "get_weather", `{"loca`, `tion":`, `"Berlin"}`).
		StopWith(core.StopReasonToolUse).
		Build()

	outs := processAll(e, "a1", events)
	msgs := byType(outs, core.OutputAssistantMessage)
	require.Len(t, msgs, 1)

	uses := msgs[0].Message.ToolUses()
	require.Len(t, uses, 1)
	assert.Equal(t, "tu-1", uses[0].ID)
	assert.Equal(t, "get_weather", uses[0].Name)
	assert.Empty(t, uses[0].ParseError)
	assert.Equal(t, map[string]any{"location": "Berlin"}, uses[0].Input)
	assert.Equal(t, `{"location":"Berlin"}`, uses[0].RawInput)
}

func TestEngine_ToolInputParseFailureStillEmitsMessage(t *testing.T) {
	e := New()

	events := testutil.NewScriptBuilder().
		Start("m1", "test-model").
		ToolUse(0, "tu-1", "get_weather", `{"location": "Ber`).
		StopWith(core.StopReasonToolUse).
		Build()

	outs := processAll(e, "a1", events)
	msgs := byType(outs, core.OutputAssistantMessage)
	require.Len(t, msgs, 1)

	uses := msgs[0].Message.ToolUses()
	require.Len(t, uses, 1)
	assert.NotEmpty(t, uses[0].ParseError)
	assert.Nil(t, uses[0].Input)
	assert.Equal(t, `{"location": "Ber`, uses[0].RawInput)
}

func TestEngine_DeltaWithNoOpenBlockIsDropped(t *testing.T) {
	e := New()

	outs := processAll(e, "a1", []core.StreamEvent{
		core.MessageStart{MessageID: "m1"},
		core.ContentBlockDelta{DeltaType: core.DeltaTypeText, Text: "orphan"},
		core.ContentBlockStart{Index: 0, BlockType: core.BlockTypeText},
		core.ContentBlockDelta{DeltaType: core.DeltaTypeText, Text: "kept"},
		core.ContentBlockStop{Index: 0},
		core.MessageStop{},
	})

	msgs := byType(outs, core.OutputAssistantMessage)
	require.Len(t, msgs, 1)
	require.Len(t, msgs[0].Message.Content, 1)
	assert.Equal(t, core.TextContent{Text: "kept"}, msgs[0].Message.Content[0])
}

func TestEngine_DuplicateBlockIndexLaterWins(t *testing.T) {
	e := New()

	outs := processAll(e, "a1", []core.StreamEvent{
		core.MessageStart{MessageID: "m1"},
		core.ContentBlockStart{Index: 0, BlockType: core.BlockTypeText},
		core.ContentBlockDelta{DeltaType: core.DeltaTypeText, Text: "discarded"},
		core.ContentBlockStop{Index: 0},
		core.ContentBlockStart{Index: 0, BlockType: core.BlockTypeText},
		core.ContentBlockDelta{DeltaType: core.DeltaTypeText, Text: "winner"},
		core.ContentBlockStop{Index: 0},
		core.MessageStop{},
	})

	msgs := byType(outs, core.OutputAssistantMessage)
	require.Len(t, msgs, 1)
	require.Len(t, msgs[0].Message.Content, 1)
	assert.Equal(t, core.TextContent{Text: "winner"}, msgs[0].Message.Content[0])
}

func TestEngine_StateTransitions(t *testing.T) {
	e := New()

	assert.Equal(t, core.StateIdle, e.State("a1"))

	outs := e.Process("a1", core.MessageStart{MessageID: "m1"})
	states := byType(outs, core.OutputStateChanged)
	require.Len(t, states, 1)
	assert.Equal(t, &core.StateChange{From: core.StateIdle, To: core.StateResponding}, states[0].State)

	outs = e.Process("a1", core.ContentBlockStart{Index: 0, BlockType: core.BlockTypeToolUse, ToolID: "tu-1", ToolName: "f"})
	states = byType(outs, core.OutputStateChanged)
	require.Len(t, states, 1)
	assert.Equal(t, &core.StateChange{From: core.StateResponding, To: core.StateToolExecuting}, states[0].State)

	outs = e.Process("a1", core.ContentBlockStop{Index: 0})
	states = byType(outs, core.OutputStateChanged)
	require.Len(t, states, 1)
	assert.Equal(t, &core.StateChange{From: core.StateToolExecuting, To: core.StateResponding}, states[0].State)

	outs = e.Process("a1", core.MessageStop{})
	states = byType(outs, core.OutputStateChanged)
	require.Len(t, states, 1)
	assert.Equal(t, &core.StateChange{From: core.StateResponding, To: core.StateIdle}, states[0].State)
}

func TestEngine_ConcurrentToolBlocksReturnOnLastClose(t *testing.T) {
	e := New()

	e.Process("a1", core.MessageStart{MessageID: "m1"})
	e.Process("a1", core.ContentBlockStart{Index: 0, BlockType: core.BlockTypeToolUse, ToolID: "tu-1"})
	// Open a second tool block without closing the first (malformed but
	// tolerated); the count only reaches zero after both close.
	e.Process("a1", core.ContentBlockStart{Index: 1, BlockType: core.BlockTypeToolUse, ToolID: "tu-2"})

	outs := e.Process("a1", core.ContentBlockStop{Index: 0})
	assert.Empty(t, byType(outs, core.OutputStateChanged))
	assert.Equal(t, core.StateToolExecuting, e.State("a1"))

	outs = e.Process("a1", core.ContentBlockStop{Index: 1})
	states := byType(outs, core.OutputStateChanged)
	require.Len(t, states, 1)
	assert.Equal(t, core.StateResponding, states[0].State.To)
}

func TestEngine_EventsWhileIdleAreIgnored(t *testing.T) {
	e := New()

	// Late-arriving events after an interrupt land in idle and must not
	// produce state transitions.
	outs := e.Process("a1", core.ContentBlockStart{Index: 0, BlockType: core.BlockTypeToolUse, ToolID: "tu-1"})
	assert.Empty(t, byType(outs, core.OutputStateChanged))
	outs = e.Process("a1", core.MessageStop{})
	assert.Empty(t, byType(outs, core.OutputStateChanged))
	assert.Equal(t, core.StateIdle, e.State("a1"))
}

func TestEngine_TurnLifecycle(t *testing.T) {
	e := New()

	outs := e.OpenTurn("a1", "t1")
	require.Len(t, outs, 1)
	assert.Equal(t, core.OutputTurnRequest, outs[0].Type)
	assert.Equal(t, "t1", outs[0].TurnID)

	events := testutil.NewScriptBuilder().
		Start("m1", "test-model").
		Text(0, "hello").
		Stop().
		Build()
	all := processAll(e, "a1", events)

	turns := byType(all, core.OutputTurnResponse)
	require.Len(t, turns, 1)
	assert.Equal(t, "t1", turns[0].Turn.TurnID)
	assert.Equal(t, core.StopReasonEndTurn, turns[0].Turn.StopReason)
	require.Len(t, turns[0].Turn.Messages, 1)
	assert.Equal(t, "hello", turns[0].Turn.Messages[0].Text())
}

func TestEngine_TurnStaysOpenAcrossToolRoundTrip(t *testing.T) {
	e := New()
	e.OpenTurn("a1", "t1")

	first := testutil.NewScriptBuilder().
		Start("m1", "test-model").
		ToolUse(0, "tu-1", "get_weather", `{}`).
		StopWith(core.StopReasonToolUse).
		Build()
	outs := processAll(e, "a1", first)
	assert.Empty(t, byType(outs, core.OutputTurnResponse), "turn must stay open on tool_use stop")

	second := testutil.NewScriptBuilder().
		ToolResult("tu-1", "sunny", false).
		Start("m2", "test-model").
		Text(0, "It is sunny.").
		Stop().
		Build()
	outs = processAll(e, "a1", second)

	turns := byType(outs, core.OutputTurnResponse)
	require.Len(t, turns, 1)
	// Both assistant messages and the tool result belong to the one turn.
	require.Len(t, turns[0].Turn.Messages, 3)
	assert.Equal(t, core.RoleAssistant, turns[0].Turn.Messages[0].Role)
	assert.Equal(t, core.RoleTool, turns[0].Turn.Messages[1].Role)
	assert.Equal(t, core.RoleAssistant, turns[0].Turn.Messages[2].Role)
}

func TestEngine_OpenTurnSupersedesStaleTurn(t *testing.T) {
	e := New()
	e.OpenTurn("a1", "t1")

	outs := e.OpenTurn("a1", "t2")
	require.Len(t, outs, 2)
	assert.Equal(t, core.OutputTurnResponse, outs[0].Type)
	assert.Equal(t, "t1", outs[0].Turn.TurnID)
	assert.Equal(t, StopReasonSuperseded, outs[0].Turn.StopReason)
	assert.Equal(t, core.OutputTurnRequest, outs[1].Type)
	assert.Equal(t, "t2", outs[1].TurnID)
}

func TestEngine_InterruptFlushesPartialMessage(t *testing.T) {
	e := New()
	e.OpenTurn("a1", "t1")

	e.Process("a1", core.MessageStart{MessageID: "m1"})
	e.Process("a1", core.ContentBlockStart{Index: 0, BlockType: core.BlockTypeText})
	e.Process("a1", core.ContentBlockDelta{DeltaType: core.DeltaTypeText, Text: "partial tex"})

	outs := e.Interrupt("a1")

	msgs := byType(outs, core.OutputAssistantMessage)
	require.Len(t, msgs, 1, "interrupt must flush the truncated message, not drop it")
	assert.Equal(t, "partial tex", msgs[0].Message.Text())

	states := byType(outs, core.OutputStateChanged)
	require.Len(t, states, 1)
	assert.Equal(t, core.StateIdle, states[0].State.To)

	turns := byType(outs, core.OutputTurnResponse)
	require.Len(t, turns, 1)
	assert.Equal(t, StopReasonInterrupted, turns[0].Turn.StopReason)
	require.Len(t, turns[0].Turn.Messages, 1)
	assert.Equal(t, "partial tex", turns[0].Turn.Messages[0].Text())
}

func TestEngine_FailClosesTurnWithErrorReason(t *testing.T) {
	e := New()
	e.OpenTurn("a1", "t1")
	e.Process("a1", core.MessageStart{MessageID: "m1"})

	outs := e.Fail("a1")

	states := byType(outs, core.OutputStateChanged)
	require.Len(t, states, 2)
	assert.Equal(t, core.StateErroring, states[0].State.To)
	assert.Equal(t, core.StateIdle, states[1].State.To)

	turns := byType(outs, core.OutputTurnResponse)
	require.Len(t, turns, 1)
	assert.Equal(t, StopReasonError, turns[0].Turn.StopReason)
	assert.Equal(t, core.StateIdle, e.State("a1"))
}

func TestEngine_DestroyIsIdempotent(t *testing.T) {
	e := New()
	e.Process("a1", core.MessageStart{MessageID: "m1"})
	require.True(t, e.HasState("a1"))

	e.Destroy("a1")
	assert.False(t, e.HasState("a1"))

	assert.NotPanics(t, func() { e.Destroy("a1") })
	assert.False(t, e.HasState("a1"))
}

func TestEngine_ProcessAfterDestroyStartsFresh(t *testing.T) {
	e := New()
	e.Process("a1", core.MessageStart{MessageID: "m1"})
	e.Process("a1", core.ContentBlockStart{Index: 0, BlockType: core.BlockTypeText})
	e.Destroy("a1")

	// Fail-open: an unknown agent id processes from a freshly initialized
	// state instead of crashing the host.
	outs := processAll(e, "a1", testutil.NewScriptBuilder().
		Start("m2", "test-model").
		Text(0, "fresh").
		Stop().
		Build())

	msgs := byType(outs, core.OutputAssistantMessage)
	require.Len(t, msgs, 1)
	assert.Equal(t, "fresh", msgs[0].Message.Text())
}

func TestEngine_AgentsAreIsolated(t *testing.T) {
	e := New()

	// Interleave two agents' streams event by event; neither may contaminate
	// the other's assembled message.
	a1 := testutil.NewScriptBuilder().Start("m1", "x").Text(0, "alpha").Stop().Build()
	a2 := testutil.NewScriptBuilder().Start("m2", "x").Text(0, "bravo").Stop().Build()

	var outs1, outs2 []core.OutputEvent
	for i := 0; i < len(a1) || i < len(a2); i++ {
		if i < len(a1) {
			outs1 = append(outs1, e.Process("a1", a1[i])...)
		}
		if i < len(a2) {
			outs2 = append(outs2, e.Process("a2", a2[i])...)
		}
	}

	msgs1 := byType(outs1, core.OutputAssistantMessage)
	msgs2 := byType(outs2, core.OutputAssistantMessage)
	require.Len(t, msgs1, 1)
	require.Len(t, msgs2, 1)
	assert.Equal(t, "alpha", msgs1[0].Message.Text())
	assert.Equal(t, "bravo", msgs2[0].Message.Text())
	assert.Equal(t, "a1", msgs1[0].Context.AgentID)
	assert.Equal(t, "a2", msgs2[0].Context.AgentID)
}

func TestEngine_ExactlyOneAssistantMessagePerWellFormedSequence(t *testing.T) {
	e := New()

	sequences := [][]core.StreamEvent{
		testutil.NewScriptBuilder().Start("m1", "x").Stop().Build(),
		testutil.NewScriptBuilder().Start("m2", "x").Text(0, "a").Stop().Build(),
		testutil.NewScriptBuilder().Start("m3", "x").Text(0, "a", "b", "c").Text(1, "d").Stop().Build(),
		testutil.NewScriptBuilder().Start("m4", "x").Text(0, "a").ToolUse(1, "tu", "f", `{"k":1}`).StopWith(core.StopReasonToolUse).Build(),
	}
	for i, events := range sequences {
		outs := processAll(e, "a1", events)
		assert.Len(t, byType(outs, core.OutputAssistantMessage), 1, "sequence %d", i)
	}
}
