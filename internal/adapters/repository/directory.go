package repository

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/forgemint/forgemint/internal/domain/model"
)

// MemUserDirectory implements UserDirectory with a mutex-guarded map.
// Identity management is external to the pipeline; this directory only
// answers lookups for identities it was seeded with.
type MemUserDirectory struct {
	mu         sync.RWMutex
	byID       map[string]model.User
	byUsername map[string]string
}

// NewMemUserDirectory creates a directory seeded with the given users.
// Users without an id are assigned one.
func NewMemUserDirectory(seed ...model.User) *MemUserDirectory {
	d := &MemUserDirectory{
		byID:       make(map[string]model.User),
		byUsername: make(map[string]string),
	}
	for _, u := range seed {
		if u.ID == "" {
			u.ID = uuid.NewString()
		}
		d.byID[u.ID] = u
		d.byUsername[strings.ToLower(u.Username)] = u.ID
	}
	return d
}

// Add registers a user mapping.
func (d *MemUserDirectory) Add(u model.User) model.User {
	d.mu.Lock()
	defer d.mu.Unlock()

	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	d.byID[u.ID] = u
	d.byUsername[strings.ToLower(u.Username)] = u.ID
	return u
}

func (d *MemUserDirectory) FindByUsername(_ context.Context, username string) (model.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	id, ok := d.byUsername[strings.ToLower(username)]
	if !ok {
		return model.User{}, ErrNotFound
	}
	return d.byID[id], nil
}

func (d *MemUserDirectory) Get(_ context.Context, id string) (model.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	u, ok := d.byID[id]
	if !ok {
		return model.User{}, ErrNotFound
	}
	return u, nil
}

// MemRepoDirectory implements RepoDirectory with a mutex-guarded map.
type MemRepoDirectory struct {
	mu         sync.RWMutex
	byID       map[string]model.Repository
	byExternal map[string]string
}

// NewMemRepoDirectory creates an empty repository directory.
func NewMemRepoDirectory() *MemRepoDirectory {
	return &MemRepoDirectory{
		byID:       make(map[string]model.Repository),
		byExternal: make(map[string]string),
	}
}

// FindOrCreate returns the repository for ref's external id, creating it
// on first sight.
func (d *MemRepoDirectory) FindOrCreate(_ context.Context, ref model.Repository) (model.Repository, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if id, ok := d.byExternal[ref.ExternalID]; ok {
		return d.byID[id], nil
	}

	ref.ID = uuid.NewString()
	d.byID[ref.ID] = ref
	d.byExternal[ref.ExternalID] = ref.ID
	return ref, nil
}

func (d *MemRepoDirectory) Get(_ context.Context, id string) (model.Repository, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	r, ok := d.byID[id]
	if !ok {
		return model.Repository{}, ErrNotFound
	}
	return r, nil
}
