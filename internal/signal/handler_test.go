package signal

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandler_FirstSignalInterruptsWithoutCancel(t *testing.T) {
	h := NewHandler(context.Background())
	defer h.Stop()

	h.handleSignal()

	select {
	case <-h.Interrupted():
	default:
		t.Fatal("interrupted channel should be closed after first signal")
	}
	require.NoError(t, h.Context().Err(), "first signal must not cancel in-flight work")
}

func TestHandler_SecondSignalCancels(t *testing.T) {
	h := NewHandler(context.Background())
	defer h.Stop()

	h.handleSignal()
	h.handleSignal()

	assert.Equal(t, context.Canceled, h.Context().Err())
}

func TestHandler_FurtherSignalsAreHarmless(t *testing.T) {
	h := NewHandler(context.Background())
	defer h.Stop()

	assert.NotPanics(t, func() {
		for i := 0; i < 5; i++ {
			h.handleSignal()
		}
	})
}

func TestHandler_InitialState(t *testing.T) {
	h := NewHandler(context.Background())
	defer h.Stop()

	select {
	case <-h.Interrupted():
		t.Fatal("interrupted should not be closed initially")
	default:
	}
	require.NoError(t, h.Context().Err())
}

func TestHandler_StopIsIdempotent(t *testing.T) {
	h := NewHandler(context.Background())
	h.Stop()
	h.Stop()
	assert.Equal(t, context.Canceled, h.Context().Err())
}

func TestHandler_ParentCanceled(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	h := NewHandler(parent)
	defer h.Stop()

	cancel()
	<-h.Context().Done()
	assert.Equal(t, context.Canceled, h.Context().Err())
}
