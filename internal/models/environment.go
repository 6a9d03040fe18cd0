package models

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// LivePort is the fixed port used when a tenant is reached without TLS.
const LivePort = 30845

// Environment is one reachable tenant: an API endpoint plus a bearer token.
// Migration runs use two of them, one per role.
type Environment struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Role       string   `json:"role"`   // "source" or "target"
	Domain     string   `json:"domain"` // hostname, no scheme
	Token      string   `json:"token,omitempty"`
	IsSSL      bool     `json:"is_ssl"`
	Insecure   bool     `json:"insecure"` // skip TLS verification
	Datamodels []string `json:"datamodels,omitempty"`
}

// BaseURL returns the API root for this environment.
func (e *Environment) BaseURL() string {
	domain := strings.TrimSuffix(e.Domain, "/")
	if !e.IsSSL {
		return fmt.Sprintf("http://%s:%d", domain, LivePort)
	}
	return "https://" + domain
}

// MaskedToken hides the credential for display.
func (e *Environment) MaskedToken() string {
	if e.Token == "" {
		return ""
	}
	return "••••••••"
}

// Redacted returns a copy safe to serialize to API clients.
func (e *Environment) Redacted() Environment {
	c := *e
	c.Token = e.MaskedToken()
	return c
}

// EnvironmentStore is an in-memory thread-safe store for environments.
type EnvironmentStore struct {
	mu   sync.RWMutex
	envs map[string]*Environment
}

// NewEnvironmentStore creates an empty environment store.
func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{envs: make(map[string]*Environment)}
}

// Create adds a new environment, assigning it a UUID.
func (s *EnvironmentStore) Create(e *Environment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e.ID = uuid.New().String()
	s.envs[e.ID] = e
}

// Get returns an environment by ID, or nil if not found.
func (s *EnvironmentStore) Get(id string) *Environment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.envs[id]
}

// List returns all environments.
func (s *EnvironmentStore) List() []*Environment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*Environment, 0, len(s.envs))
	for _, e := range s.envs {
		result = append(result, e)
	}
	return result
}

// Update replaces an existing environment's settings. An empty token keeps
// the stored one so clients can edit without re-entering secrets.
func (s *EnvironmentStore) Update(e *Environment) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.envs[e.ID]
	if !ok {
		return false
	}
	if e.Token == "" {
		e.Token = old.Token
	}
	s.envs[e.ID] = e
	return true
}

// Delete removes an environment by ID.
func (s *EnvironmentStore) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.envs[id]; !ok {
		return false
	}
	delete(s.envs, id)
	return true
}
