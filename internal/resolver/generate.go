package resolver

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ModelListing is the shape of OpenRouter's GET /api/v1/models response.
type ModelListing struct {
	Data []ModelEntry `json:"data"`
}

type ModelEntry struct {
	ID            string `json:"id"`
	CanonicalSlug string `json:"canonical_slug,omitempty"`
	Name          string `json:"name,omitempty"`
}

// GenerateAliases builds an alias table from an upstream model listing.
// Each model is keyed by its full id, its canonical slug and its short name
// (the part after the provider prefix). Short names claimed by more than one
// model are dropped rather than mapped arbitrarily.
func GenerateAliases(entries []ModelEntry) map[string]string {
	aliases := make(map[string]string, len(entries)*2)
	ambiguous := map[string]bool{}

	for _, entry := range entries {
		if entry.ID == "" {
			continue
		}

		aliases[entry.ID] = entry.ID

		if entry.CanonicalSlug != "" && entry.CanonicalSlug != entry.ID {
			aliases[entry.CanonicalSlug] = entry.ID
		}

		short := shortName(entry.ID)
		if short == "" || short == entry.ID {
			continue
		}

		if existing, ok := aliases[short]; ok && existing != entry.ID {
			ambiguous[short] = true
			continue
		}

		aliases[short] = entry.ID
	}

	for short := range ambiguous {
		delete(aliases, short)
	}

	return aliases
}

// WriteAliasFile persists a generated alias table for the server to load at
// startup.
func WriteAliasFile(path string, aliases map[string]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create alias dir: %w", err)
	}

	data, err := json.MarshalIndent(aliases, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal aliases: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write alias file: %w", err)
	}

	return nil
}

func shortName(id string) string {
	if idx := strings.LastIndex(id, "/"); idx >= 0 && idx < len(id)-1 {
		return id[idx+1:]
	}

	return id
}
