// Package resolver maps client-requested model identifiers to upstream
// OpenRouter model identifiers through a layered override chain.
package resolver

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/anthropic-openrouter-proxy/proxy/internal/config"
)

// DefaultModel is used when a request carries no model at all.
const DefaultModel = "anthropic/claude-sonnet-4"

// passThrough marks built-in entries whose requested id is already a valid
// upstream id and must be forwarded unchanged.
const passThrough = "passthrough"

// builtinAliases covers legacy Anthropic model names that predate the
// generated alias table. Lowest-priority resolver source.
var builtinAliases = map[string]string{
	"claude-3-opus-20240229":     "anthropic/claude-3-opus",
	"claude-3-sonnet-20240229":   "anthropic/claude-3-sonnet",
	"claude-3-haiku-20240307":    "anthropic/claude-3-haiku",
	"claude-3-5-sonnet-20240620": "anthropic/claude-3.5-sonnet",
	"claude-3-5-sonnet-20241022": "anthropic/claude-3.5-sonnet",
	"claude-3-5-haiku-20241022":  "anthropic/claude-3.5-haiku",
	"claude-3-7-sonnet-20250219": "anthropic/claude-3.7-sonnet",
	"claude-sonnet-4-20250514":   "anthropic/claude-sonnet-4",
	"claude-opus-4-20250514":     "anthropic/claude-opus-4",
	"claude-opus-4-1-20250805":   "anthropic/claude-opus-4.1",

	"haiku":  "anthropic/claude-3.5-haiku",
	"sonnet": "anthropic/claude-sonnet-4",
	"opus":   "anthropic/claude-opus-4.1",

	"anthropic/claude-3-opus":     passThrough,
	"anthropic/claude-3.5-sonnet": passThrough,
	"anthropic/claude-3.5-haiku":  passThrough,
	"anthropic/claude-3.7-sonnet": passThrough,
	"anthropic/claude-sonnet-4":   passThrough,
	"anthropic/claude-opus-4":     passThrough,
	"anthropic/claude-opus-4.1":   passThrough,
}

// Resolver holds the alias table loaded once at startup. It is read-only
// after construction and safe for concurrent use.
type Resolver struct {
	aliases map[string]string
}

func New(aliases map[string]string) *Resolver {
	if aliases == nil {
		aliases = map[string]string{}
	}

	return &Resolver{aliases: aliases}
}

// Resolve maps a requested model id to an upstream id. Sources are consulted
// in order, first match wins; an id unknown to every source is returned
// unchanged so unknown models are never an error here.
func (r *Resolver) Resolve(requested string, cfg *config.Config) string {
	if cfg.ForceModel != "" {
		return cfg.ForceModel
	}

	if mapped, ok := cfg.ModelMap[requested]; ok && mapped != "" {
		return mapped
	}

	if mapped, ok := r.aliases[requested]; ok && mapped != "" {
		return mapped
	}

	if mapped, ok := builtinAliases[requested]; ok {
		if mapped == passThrough {
			return requested
		}

		return mapped
	}

	return requested
}

// ResolveRequest resolves a model id and then applies the per-request header
// override and the global primary override, in that order of increasing
// priority. Both represent operator intent and beat the resolved id.
func (r *Resolver) ResolveRequest(requested, headerOverride string, cfg *config.Config) string {
	resolved := r.Resolve(requested, cfg)

	if headerOverride != "" {
		resolved = headerOverride
	}

	if cfg.PrimaryModel != "" {
		resolved = cfg.PrimaryModel
	}

	return resolved
}

// LoadAliasFile reads a generated alias table from disk. A missing file
// yields an empty table, not an error.
func LoadAliasFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}

		return nil, fmt.Errorf("read alias file: %w", err)
	}

	var aliases map[string]string
	if err := json.Unmarshal(data, &aliases); err != nil {
		return nil, fmt.Errorf("unmarshal alias file: %w", err)
	}

	return aliases, nil
}
