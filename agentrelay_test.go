package agentrelay

import (
	"context"
	"testing"

	"github.com/hupe1980/agentrelay/agent"
	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/driver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRuntime_CreateAgentDefaults(t *testing.T) {
	r := New()
	defer r.Shutdown()

	inst, err := r.CreateAgent(AgentConfig{Driver: driver.NewScriptedDriver()})
	require.NoError(t, err)
	assert.NotEmpty(t, inst.ID())
	assert.NotEmpty(t, inst.SessionID())

	// The bound session exists and is associated with the agent.
	sess, err := r.Sessions().Get(inst.SessionID())
	require.NoError(t, err)
	assert.Equal(t, inst.ID(), sess.AgentID)
}

func TestRuntime_CreateAgentRejectsMissingDriverAndDuplicateID(t *testing.T) {
	r := New()
	defer r.Shutdown()

	_, err := r.CreateAgent(AgentConfig{})
	assert.Error(t, err)

	_, err = r.CreateAgent(AgentConfig{ID: "a1", Driver: driver.NewScriptedDriver()})
	require.NoError(t, err)
	_, err = r.CreateAgent(AgentConfig{ID: "a1", Driver: driver.NewScriptedDriver()})
	assert.Error(t, err)
}

func TestRuntime_SendThroughSharedBus(t *testing.T) {
	r := New()
	defer r.Shutdown()

	inst, err := r.CreateAgent(AgentConfig{Driver: driver.NewScriptedDriver(driver.EchoScript("m1", "Hello!"))})
	require.NoError(t, err)

	var texts []string
	_, err = r.Consumer().Subscribe(func(ev core.OutputEvent) {
		texts = append(texts, ev.Message.Text())
	}, core.OutputAssistantMessage)
	require.NoError(t, err)

	turn, err := inst.Send(context.Background(), "Hi")
	require.NoError(t, err)
	assert.Equal(t, core.StopReasonEndTurn, turn.StopReason)
	assert.Equal(t, []string{"Hello!"}, texts)

	// Output events carry the session binding in their context.
	sess, err := r.Sessions().Get(inst.SessionID())
	require.NoError(t, err)
	assert.Len(t, sess.GetMessages(), 2)
}

func TestRuntime_CreateAgentFromDefinition(t *testing.T) {
	r := New()
	defer r.Shutdown()

	def := core.NewDefinition("echo", "You echo.", "scripted")
	require.NoError(t, r.Definitions().Save(def))

	var gotPrompt string
	inst, err := r.CreateAgentFromDefinition(def.ID, func(d core.Definition) (core.Driver, error) {
		gotPrompt = d.SystemPrompt
		return driver.NewScriptedDriver(), nil
	})
	require.NoError(t, err)
	assert.Equal(t, "You echo.", gotPrompt)
	assert.NotNil(t, inst)

	_, err = r.CreateAgentFromDefinition("missing", func(core.Definition) (core.Driver, error) {
		return driver.NewScriptedDriver(), nil
	})
	assert.Error(t, err)
}

func TestRuntime_DestroyAgentIsIdempotent(t *testing.T) {
	r := New()
	defer r.Shutdown()

	inst, err := r.CreateAgent(AgentConfig{ID: "a1", Driver: driver.NewScriptedDriver()})
	require.NoError(t, err)

	r.DestroyAgent("a1")
	assert.Equal(t, agent.LifecycleDestroyed, inst.Lifecycle())
	_, ok := r.Agent("a1")
	assert.False(t, ok)

	r.DestroyAgent("a1")
	r.DestroyAgent("never-existed")
}

func TestRuntime_ShutdownDestroysAllAgents(t *testing.T) {
	r := New()

	a, err := r.CreateAgent(AgentConfig{Driver: driver.NewScriptedDriver()})
	require.NoError(t, err)
	b, err := r.CreateAgent(AgentConfig{Driver: driver.NewScriptedDriver()})
	require.NoError(t, err)
	assert.Len(t, r.Agents(), 2)

	r.Shutdown()
	assert.Empty(t, r.Agents())
	assert.Equal(t, agent.LifecycleDestroyed, a.Lifecycle())
	assert.Equal(t, agent.LifecycleDestroyed, b.Lifecycle())
}
