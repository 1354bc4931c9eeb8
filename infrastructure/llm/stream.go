package llm

import (
	"context"

	"github.com/arenalabs/go-arena/internal/ports"
)

// streamChunkBuffer sizes provider stream channels so producers are not
// lock-stepped with consumers.
const streamChunkBuffer = 16

// emitChunk delivers a chunk unless the context is already canceled.
// It returns false when the consumer is gone and the producer should
// stop.
func emitChunk(ctx context.Context, out chan<- ports.StreamChunk, chunk ports.StreamChunk) bool {
	select {
	case out <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}
