package location

import (
	"sync"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/armadaproject/mesoscoordinator/internal/common/util"
)

// ReloadNotifier calls registered listeners whenever the location configuration is reloaded.
type ReloadNotifier struct {
	mu        sync.Mutex
	listeners map[string]func()
}

func NewReloadNotifier() *ReloadNotifier {
	return &ReloadNotifier{listeners: map[string]func(){}}
}

// Add registers listener and returns the token to remove it with.
func (n *ReloadNotifier) Add(listener func()) string {
	token := util.NewULID()
	n.mu.Lock()
	defer n.mu.Unlock()
	n.listeners[token] = listener
	return token
}

func (n *ReloadNotifier) Remove(token string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	_, ok := n.listeners[token]
	delete(n.listeners, token)
	return ok
}

// Fire calls the listener registered under token, returning false if there is none.
func (n *ReloadNotifier) Fire(token string) bool {
	n.mu.Lock()
	listener, ok := n.listeners[token]
	n.mu.Unlock()
	if ok {
		listener()
	}
	return ok
}

// Reloaded calls every listener in the order they were added.
func (n *ReloadNotifier) Reloaded() {
	n.mu.Lock()
	tokens := maps.Keys(n.listeners)
	slices.Sort(tokens)
	listeners := make([]func(), 0, len(tokens))
	for _, token := range tokens {
		listeners = append(listeners, n.listeners[token])
	}
	n.mu.Unlock()

	for _, listener := range listeners {
		listener()
	}
}
