package keyring

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// ErrUnknownAccount is returned when signing for an address that was never
// derived.
var ErrUnknownAccount = errors.New("account not derived by keyring")

// Permissions is the wallet state that must survive restarts: which accounts
// the user authorized and which chain was selected.
type Permissions struct {
	Accounts []common.Address `json:"accounts"`
	ChainID  uint64           `json:"chain_id"`
}

// PermissionStore is an interface for persisting wallet permissions.
type PermissionStore interface {
	// GetPermissions returns the stored permissions, or an empty value.
	GetPermissions() (*Permissions, error)

	// SetPermissions replaces the stored permissions.
	SetPermissions(p *Permissions) error
}

// FilePermissionStore implements PermissionStore using a JSON file.
type FilePermissionStore struct {
	filePath string
	perms    Permissions
	mu       sync.RWMutex
}

// NewFilePermissionStore creates a new file-based permission store.
func NewFilePermissionStore(filePath string) (*FilePermissionStore, error) {
	store := &FilePermissionStore{
		filePath: filePath,
	}

	// Load existing state if file exists
	if err := store.load(); err != nil {
		// If file doesn't exist, that's OK - we'll create it on first save
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load permissions: %w",
				err)
		}
	}

	return store, nil
}

// GetPermissions returns a copy of the stored permissions.
func (s *FilePermissionStore) GetPermissions() (*Permissions, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return copyPermissions(&s.perms), nil
}

// SetPermissions replaces the stored permissions and persists them.
func (s *FilePermissionStore) SetPermissions(p *Permissions) error {
	s.mu.Lock()
	s.perms = *copyPermissions(p)
	s.mu.Unlock()

	// Persist to file
	return s.save()
}

// load loads permissions from file.
func (s *FilePermissionStore) load() error {
	data, err := os.ReadFile(s.filePath)
	if err != nil {
		return err
	}

	var perms Permissions
	if err := json.Unmarshal(data, &perms); err != nil {
		return fmt.Errorf("failed to unmarshal permissions: %w", err)
	}
	s.perms = perms

	return nil
}

// save saves permissions to file.
func (s *FilePermissionStore) save() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := json.MarshalIndent(s.perms, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal permissions: %w", err)
	}

	if err := os.WriteFile(s.filePath, data, 0600); err != nil {
		return fmt.Errorf("failed to write permissions: %w", err)
	}

	return nil
}

// MemoryPermissionStore implements PermissionStore using in-memory storage.
type MemoryPermissionStore struct {
	perms Permissions
	mu    sync.RWMutex
}

// NewMemoryPermissionStore creates a new in-memory permission store.
func NewMemoryPermissionStore() *MemoryPermissionStore {
	return &MemoryPermissionStore{}
}

// GetPermissions returns a copy of the stored permissions.
func (s *MemoryPermissionStore) GetPermissions() (*Permissions, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return copyPermissions(&s.perms), nil
}

// SetPermissions replaces the stored permissions.
func (s *MemoryPermissionStore) SetPermissions(p *Permissions) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.perms = *copyPermissions(p)
	return nil
}

func copyPermissions(p *Permissions) *Permissions {
	return &Permissions{
		Accounts: append([]common.Address(nil), p.Accounts...),
		ChainID:  p.ChainID,
	}
}
