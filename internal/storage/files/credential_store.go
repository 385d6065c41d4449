package files

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/usagedash/internal/interfaces"
	"github.com/ternarybob/usagedash/internal/models"
)

const cookiesFileName = "cookies.json"

// CredentialStore reads cookie exports from <root>/account-N/cookies.json
type CredentialStore struct {
	root   string
	logger arbor.ILogger
}

// NewCredentialStore creates a store rooted at the sessions directory
func NewCredentialStore(root string, logger arbor.ILogger) *CredentialStore {
	return &CredentialStore{root: root, logger: logger}
}

// SessionDir returns the directory holding one account's session files
func (s *CredentialStore) SessionDir(accountIndex int) string {
	return filepath.Join(s.root, fmt.Sprintf("account-%d", accountIndex))
}

func (s *CredentialStore) cookiesPath(accountIndex int) string {
	return filepath.Join(s.SessionDir(accountIndex), cookiesFileName)
}

// Load returns the stored cookies. A missing file yields an error wrapping
// interfaces.ErrNoSession whose message says whether the session directory exists.
func (s *CredentialStore) Load(accountIndex int) (models.SessionCredential, error) {
	path := s.cookiesPath(accountIndex)

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if info, statErr := os.Stat(s.SessionDir(accountIndex)); statErr == nil && info.IsDir() {
				return nil, fmt.Errorf("%w: session exists but has no %s, re-run login for account %d",
					interfaces.ErrNoSession, cookiesFileName, accountIndex)
			}
			return nil, fmt.Errorf("%w: no session found, run login for account %d",
				interfaces.ErrNoSession, accountIndex)
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var cred models.SessionCredential
	if err := json.Unmarshal(data, &cred); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	s.logger.Debug().
		Int("account", accountIndex).
		Int("cookies", len(cred)).
		Msg("Loaded session credential")

	return cred, nil
}

// Save overwrites the account's cookies file atomically
func (s *CredentialStore) Save(accountIndex int, cred models.SessionCredential) error {
	if cred == nil {
		cred = models.SessionCredential{}
	}
	data, err := json.MarshalIndent(cred, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal credential: %w", err)
	}
	if err := writeFileAtomic(s.cookiesPath(accountIndex), data, 0600); err != nil {
		return fmt.Errorf("failed to save credential for account %d: %w", accountIndex, err)
	}
	return nil
}

var _ interfaces.CredentialStore = (*CredentialStore)(nil)
