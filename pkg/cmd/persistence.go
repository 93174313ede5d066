package cmd

import (
	"fmt"
	"strings"

	"github.com/forgeops/automaton/pkg/persistence"
	"github.com/forgeops/automaton/pkg/persistence/file"
)

var supportedPersistenceProviders = []string{"file"}

// NewPersistence builds a persistence backend from a database URL. Only the
// file provider exists today; unknown schemes fall back to it.
func NewPersistence(databaseURL string) (persistence.Persistence, error) {
	provider := parsePersistenceProvider(databaseURL)

	switch provider {
	default:
		store, err := file.NewPersistence(databaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to create file persistence: %w", err)
		}

		return store, nil
	}
}

func parsePersistenceProvider(databaseURL string) string {
	provider, _, _ := strings.Cut(databaseURL, "://")

	for _, supported := range supportedPersistenceProviders {
		if provider == supported {
			return provider
		}
	}

	return "file"
}
