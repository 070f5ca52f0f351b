package backend

import (
	"fmt"
	"sync"

	"github.com/terrycain/s3-read-proxy/pkg/s"
)

// Factory builds the concrete backend for one resolved binding. The request
// pipeline supplies concrete factories for s.BackendKindS3/s.BackendKindAzure
// so this package stays free of a direct SDK dependency.
type Factory func(s.BackendBinding) (Backend, error)

// Registry caches one Backend instance per repository, so repeated requests
// reuse the same backend's HTTP client pool (§5: "HTTP client pools ... are
// shared; connection reuse is expected") instead of rebuilding a session per
// request. It is keyed on the same {account, repository} pair the repository
// resolver uses, not on the binding's contents, and entries are never
// evicted: a repository whose binding changes keeps being served by the
// backend built from its first binding until the proxy is restarted.
type Registry struct {
	factories map[s.BackendKind]Factory

	mu    sync.RWMutex
	cache map[s.RepositoryRef]Backend
}

// NewRegistry builds a Registry dispatching s.BackendKindS3 to s3Factory and
// s.BackendKindAzure to azureFactory.
func NewRegistry(s3Factory, azureFactory Factory) *Registry {
	return &Registry{
		factories: map[s.BackendKind]Factory{
			s.BackendKindS3:    s3Factory,
			s.BackendKindAzure: azureFactory,
		},
		cache: make(map[s.RepositoryRef]Backend),
	}
}

// Get returns the Backend for binding, building and caching it on first use.
func (reg *Registry) Get(binding s.BackendBinding) (Backend, error) {
	ref := s.RepositoryRef{AccountID: binding.AccountID, RepositoryID: binding.RepositoryID}

	reg.mu.RLock()
	b, ok := reg.cache[ref]
	reg.mu.RUnlock()
	if ok {
		return b, nil
	}

	factory, ok := reg.factories[binding.Kind]
	if !ok {
		return nil, fmt.Errorf("no backend factory registered for kind %v", binding.Kind)
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()
	// Re-check under the write lock in case another request built this
	// entry while we were waiting.
	if b, ok := reg.cache[ref]; ok {
		return b, nil
	}

	built, err := factory(binding)
	if err != nil {
		return nil, err
	}
	reg.cache[ref] = built
	return built, nil
}
