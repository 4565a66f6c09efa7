package usecase

import (
	"fmt"
	"sync"

	"github.com/kirillkom/paperwork-pipeline/internal/core/domain"
)

// InFlightGuard is a per-document advisory lock shared by the processing and
// categorization entry points. A second concurrent run for the same id is
// rejected instead of racing the first one.
type InFlightGuard struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

func NewInFlightGuard() *InFlightGuard {
	return &InFlightGuard{ids: make(map[string]struct{})}
}

func (g *InFlightGuard) Acquire(documentID string) (func(), error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, busy := g.ids[documentID]; busy {
		return nil, domain.WrapError(domain.ErrAlreadyInFlight, "acquire document", fmt.Errorf("document %s", documentID))
	}
	g.ids[documentID] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.ids, documentID)
			g.mu.Unlock()
		})
	}, nil
}

func (g *InFlightGuard) Busy(documentID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, busy := g.ids[documentID]
	return busy
}
