// Package signal turns SIGINT/SIGTERM into a cooperative abort for running commands.
//
// The first signal closes Interrupted(); a running attempt notices it at its
// next checkpoint and routes to the safer state (abort before traffic moved,
// rollback after). A second signal cancels Context() outright.
//
// Import rules:
//   - CAN import: std lib only
//   - MUST NOT import: internal packages
package signal

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// Handler listens for interrupt signals for the lifetime of a command.
type Handler struct {
	ctx         context.Context //nolint:containedctx // handler owns the context lifecycle
	cancel      context.CancelFunc
	interrupted chan struct{}
	done        chan struct{}
	mu          sync.Mutex
	received    int
	stopOnce    sync.Once
	sigChan     chan os.Signal
}

// NewHandler creates a handler listening for SIGINT and SIGTERM.
//
//	h := signal.NewHandler(ctx)
//	defer h.Stop()
//	deps.Interrupt = h.Interrupted()
//	result, err := rollout.NewExecutor(cfg, deps).Run(h.Context(), req)
func NewHandler(parent context.Context) *Handler {
	ctx, cancel := context.WithCancel(parent)
	h := &Handler{
		ctx:         ctx,
		cancel:      cancel,
		interrupted: make(chan struct{}),
		done:        make(chan struct{}),
		sigChan:     make(chan os.Signal, 2),
	}

	signal.Notify(h.sigChan, syscall.SIGINT, syscall.SIGTERM)
	go h.listen()

	return h
}

// Context returns a context canceled on the second signal or on Stop.
func (h *Handler) Context() context.Context {
	return h.ctx
}

// Interrupted returns a channel closed on the first signal.
func (h *Handler) Interrupted() <-chan struct{} {
	return h.interrupted
}

// Stop releases signal resources and cancels the context.
func (h *Handler) Stop() {
	h.stopOnce.Do(func() {
		signal.Stop(h.sigChan)
		close(h.done)
		h.cancel()
	})
}

func (h *Handler) handleSignal() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.received++
	switch h.received {
	case 1:
		close(h.interrupted)
	case 2:
		h.cancel()
	}
}

func (h *Handler) listen() {
	for {
		select {
		case <-h.ctx.Done():
			return
		case <-h.done:
			return
		case <-h.sigChan:
			h.handleSignal()
		}
	}
}
