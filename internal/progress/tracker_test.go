package progress

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/chainguard-dev/clog"
	"github.com/stretchr/testify/assert"
)

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{Validating, "validating"},
		{GlobalCredentialsInstalled, "global credentials installed"},
		{SessionRemoved, "session removed"},
		{Succeeded, "succeeded"},
		{Failed, "failed"},
		{State(-1), "unknown"},
		{State(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.state.String())
		})
	}
}

func TestStateTerminal(t *testing.T) {
	for s := Validating; s <= Failed; s++ {
		assert.Equal(t, s == Succeeded || s == Failed, s.Terminal(), s.String())
	}
}

func TestRecorder(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")

	r := &Recorder{}
	_, ok := r.Last()
	assert.False(t, ok)

	r.Reached(ctx, Validating)
	r.Reached(ctx, ProviderSelected)
	r.Failed(ctx, ProviderSelected, boom)
	r.Reached(ctx, Failed)

	assert.Equal(t, []State{Validating, ProviderSelected, Failed}, r.States())
	assert.Len(t, r.Events(), 4)
	assert.Equal(t, boom, r.Events()[2].Err)

	last, ok := r.Last()
	assert.True(t, ok)
	assert.Equal(t, Failed, last)
}

func TestLogTracker(t *testing.T) {
	var buf bytes.Buffer
	logger := clog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	ctx := clog.WithLogger(context.Background(), logger)

	tr := NewLogTracker()
	tr.Reached(ctx, Validating)
	tr.Failed(ctx, SourceCloned, errors.New("clone exploded"))
	tr.Reached(ctx, Failed)

	out := buf.String()
	assert.Contains(t, out, `state=validating`)
	assert.Contains(t, out, "clone exploded")
	assert.Contains(t, out, "Mirror failed")
	assert.Contains(t, out, `state="source cloned"`)
}
