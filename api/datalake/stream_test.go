package datalake

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ParkRevLake/api/constants"
)

func TestWriteEventFraming(t *testing.T) {
	rec := httptest.NewRecorder()
	writeEvent(rec, rec, RunEvent{Stage: "started", Message: "run started", Time: time.Unix(0, 0).UTC()})

	body := rec.Body.String()
	if !strings.HasPrefix(body, "data: ") {
		t.Fatalf("event body %q does not start with data field", body)
	}
	if !strings.HasSuffix(body, "\n\n") {
		t.Fatalf("event body %q is not terminated by a blank line", body)
	}
	if !strings.Contains(body, `"stage":"started"`) {
		t.Errorf("event body %q missing stage field", body)
	}
	if !rec.Flushed {
		t.Error("expected event to be flushed to the client")
	}
}

func TestEmitNilChannel(t *testing.T) {
	// A run without a streaming client emits into a nil channel.
	emit(nil, RunEvent{Stage: "started", Time: time.Now()})
}

func TestDrainEventsUnblocksProducer(t *testing.T) {
	events := make(chan RunEvent, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 50; i++ {
			events <- RunEvent{Stage: "progress", Time: time.Now()}
		}
		close(events)
	}()

	go drainEvents(events)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("producer still blocked after the drain started")
	}
}

func TestRunErrorMessage(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{ErrRunInProgress, constants.ErrRunInProgress},
		{ErrFileNotStaged, constants.ErrFileNotStaged},
		{ErrFileNotFound, constants.ErrFileNotFound},
		{ErrUnknownSource, constants.ErrUnknownSource},
	}
	for _, tt := range tests {
		if got := runErrorMessage(tt.err); got != tt.want {
			t.Errorf("runErrorMessage(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
	if got := runErrorMessage(errors.New("boom")); got == "" {
		t.Error("unmapped errors should still produce a message")
	}
}
