// Package question lets the model ask the user a structured questionnaire
// and block until the answer comes back over the control channel.
package question

import (
	"context"
	"sync"

	"github.com/loopkit/loopd/pkg/models"
)

// Broker routes submitted answers to the tool invocation waiting on them.
// Answers may arrive before the wait begins; they are cached by
// questionnaire id until collected. A questionnaire resolves at most once,
// duplicate submissions are ignored.
type Broker struct {
	mu       sync.Mutex
	pending  map[string]chan []models.Answer
	cached   map[string][]models.Answer
	resolved map[string]bool
}

// NewBroker creates an empty answer broker.
func NewBroker() *Broker {
	return &Broker{
		pending:  make(map[string]chan []models.Answer),
		cached:   make(map[string][]models.Answer),
		resolved: make(map[string]bool),
	}
}

// Submit resolves the questionnaire with the given answers. It reports
// whether the submission was accepted; duplicates for an already resolved
// questionnaire return false.
func (b *Broker) Submit(questionnaireID string, answers []models.Answer) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.resolved[questionnaireID] {
		return false
	}
	b.resolved[questionnaireID] = true

	if ch, ok := b.pending[questionnaireID]; ok {
		delete(b.pending, questionnaireID)
		ch <- answers
		return true
	}
	b.cached[questionnaireID] = answers
	return true
}

// Await blocks until the questionnaire is answered or ctx ends. An answer
// submitted before Await is returned immediately from the cache.
func (b *Broker) Await(ctx context.Context, questionnaireID string) ([]models.Answer, error) {
	b.mu.Lock()
	if answers, ok := b.cached[questionnaireID]; ok {
		delete(b.cached, questionnaireID)
		b.mu.Unlock()
		return answers, nil
	}
	ch := make(chan []models.Answer, 1)
	b.pending[questionnaireID] = ch
	b.mu.Unlock()

	select {
	case answers := <-ch:
		return answers, nil
	case <-ctx.Done():
		b.mu.Lock()
		delete(b.pending, questionnaireID)
		delete(b.resolved, questionnaireID)
		b.mu.Unlock()
		return nil, ctx.Err()
	}
}
