package bridge

import (
	"context"
	"sync"

	"github.com/teslashibe/go-medforce/pkg/audioio"
)

// AudioQueue is an unbounded FIFO of audio chunks waiting for playback.
// The receive task pushes without ever blocking; Drain empties it at turn
// boundaries.
type AudioQueue struct {
	mu     sync.Mutex
	chunks []audioio.AudioChunk
	ready  chan struct{}
}

// NewAudioQueue creates an empty queue.
func NewAudioQueue() *AudioQueue {
	return &AudioQueue{ready: make(chan struct{}, 1)}
}

// Push appends a chunk.
func (q *AudioQueue) Push(chunk audioio.AudioChunk) {
	q.mu.Lock()
	q.chunks = append(q.chunks, chunk)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// Pop removes the oldest chunk, blocking until one is available or ctx is done.
func (q *AudioQueue) Pop(ctx context.Context) (audioio.AudioChunk, error) {
	for {
		q.mu.Lock()
		if len(q.chunks) > 0 {
			chunk := q.chunks[0]
			q.chunks[0] = audioio.AudioChunk{}
			q.chunks = q.chunks[1:]
			q.mu.Unlock()
			return chunk, nil
		}
		q.mu.Unlock()

		select {
		case <-q.ready:
		case <-ctx.Done():
			return audioio.AudioChunk{}, ctx.Err()
		}
	}
}

// Drain discards every queued chunk and returns how many were dropped.
func (q *AudioQueue) Drain() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.chunks)
	q.chunks = nil
	return n
}

// Len returns the number of queued chunks.
func (q *AudioQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.chunks)
}
