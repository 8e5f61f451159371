package driver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hupe1980/agentrelay/core"
)

func collect(t *testing.T, evCh <-chan core.StreamEvent, errCh <-chan error) ([]core.StreamEvent, error) {
	t.Helper()
	var events []core.StreamEvent
	for ev := range evCh {
		events = append(events, ev)
	}
	return events, <-errCh
}

func TestScriptedDriver_ReplaysScriptsInOrder(t *testing.T) {
	d := NewScriptedDriver(
		EchoScript("m1", "first"),
		EchoScript("m2", "second"),
	)

	msg := core.NewUserMessage("a1", "hi")
	for i, want := range []string{"first", "second"} {
		evCh, errCh := d.Send(context.Background(), msg, nil)
		events, err := collect(t, evCh, errCh)
		if err != nil {
			t.Fatalf("send %d: unexpected error: %v", i, err)
		}
		if len(events) != 6 {
			t.Fatalf("send %d: got %d events, want 6", i, len(events))
		}
		delta, ok := events[2].(core.ContentBlockDelta)
		if !ok || delta.Text != want {
			t.Errorf("send %d: got delta %+v, want text %q", i, events[2], want)
		}
	}
}

func TestScriptedDriver_EchoesWhenScriptsExhausted(t *testing.T) {
	d := NewScriptedDriver()

	evCh, errCh := d.Send(context.Background(), core.NewUserMessage("a1", "ping"), nil)
	events, err := collect(t, evCh, errCh)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	delta, ok := events[2].(core.ContentBlockDelta)
	if !ok {
		t.Fatalf("event 2 is %T, want ContentBlockDelta", events[2])
	}
	if want := "Scripted response to: ping"; delta.Text != want {
		t.Errorf("got %q, want %q", delta.Text, want)
	}
}

func TestScriptedDriver_FailWith(t *testing.T) {
	d := NewScriptedDriver()
	wantErr := errors.New("boom")
	d.FailWith(wantErr)

	evCh, errCh := d.Send(context.Background(), core.NewUserMessage("a1", "hi"), nil)
	events, err := collect(t, evCh, errCh)
	if len(events) != 0 {
		t.Errorf("got %d events, want none", len(events))
	}
	if !errors.Is(err, wantErr) {
		t.Errorf("got error %v, want %v", err, wantErr)
	}
}

func TestScriptedDriver_AbortCancelsInFlightSend(t *testing.T) {
	d := NewScriptedDriver(EchoScript("m1", "slow"))
	d.SetDelay(50 * time.Millisecond)

	evCh, errCh := d.Send(context.Background(), core.NewUserMessage("a1", "hi"), nil)
	d.Abort()

	events, err := collect(t, evCh, errCh)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("got error %v, want context.Canceled", err)
	}
	if len(events) == 6 {
		t.Error("abort did not truncate the event sequence")
	}
}
