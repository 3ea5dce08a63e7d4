package broker_test

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/semyonkozlov/teave-eventmanager/internal/broker"
	"github.com/semyonkozlov/teave-eventmanager/internal/event"
	"github.com/semyonkozlov/teave-eventmanager/internal/executor"
	"github.com/semyonkozlov/teave-eventmanager/internal/flow"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// The publisher is never started, so every scheduled publish fails; the
// point of this test is that the listener still schedules one task per
// transition under a distinct name, rather than colliding.
func TestListenerSchedulesOneTaskPerTransition(t *testing.T) {
	exec := executor.New(discardLogger())
	pub := broker.New(broker.Config{TopicPrefix: "teave/events"}, discardLogger())
	listener := broker.NewListener(pub, exec, discardLogger())

	e := &event.Event{ID: "ev1", State: event.StateCreated, Config: event.Config{Max: 5, Min: 1}}
	m := flow.NewMachine(listener)

	require := func(err error) {
		if err != nil {
			t.Fatalf("Fire() failed: %v", err)
		}
	}
	require(m.Fire(flow.TriggerStartPoll, e, flow.Options{}))
	require(m.Fire(flow.TriggerConfirm, e, flow.Options{UserID: "u1"}))
	require(m.Fire(flow.TriggerConfirm, e, flow.Options{UserID: "u2"}))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && len(exec.Tasks("ev1_pub")) > 0 {
		time.Sleep(5 * time.Millisecond)
	}
	assert.Empty(t, exec.Tasks("ev1_pub"), "all scheduled publishes should have run and been removed")
}
