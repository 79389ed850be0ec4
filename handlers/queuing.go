// Package handlers queuing.go holds frames a client's send buffer could not
// take yet. Each client's queue is bounded; a client that falls further
// behind than that is dropped by its room.
package handlers

import (
	"errors"
	"fmt"
	"sync"
)

var ErrQueueFull = errors.New("message queue full")

type MessageQueue struct {
	mu       sync.Mutex
	limit    int
	messages map[string][][]byte // map of connection key to message queue
}

// NewMessageQueue creates a queue holding at most limit frames per client.
// A limit of zero or less means unbounded.
func NewMessageQueue(limit int) *MessageQueue {
	return &MessageQueue{
		limit:    limit,
		messages: make(map[string][][]byte),
	}
}

func (mq *MessageQueue) Enqueue(clientID string, message []byte) error {
	mq.mu.Lock()
	defer mq.mu.Unlock()

	if mq.limit > 0 && len(mq.messages[clientID]) >= mq.limit {
		return fmt.Errorf("client %s: %w", clientID, ErrQueueFull)
	}
	mq.messages[clientID] = append(mq.messages[clientID], message)
	return nil
}

// Dequeue removes and returns every queued frame for clientID, oldest first.
func (mq *MessageQueue) Dequeue(clientID string) [][]byte {
	mq.mu.Lock()
	defer mq.mu.Unlock()

	messages := mq.messages[clientID]
	delete(mq.messages, clientID)
	return messages
}

func (mq *MessageQueue) QueueSize(clientID string) int {
	mq.mu.Lock()
	defer mq.mu.Unlock()

	return len(mq.messages[clientID])
}

func (mq *MessageQueue) ClearQueue(clientID string) {
	mq.mu.Lock()
	defer mq.mu.Unlock()

	delete(mq.messages, clientID)
}
