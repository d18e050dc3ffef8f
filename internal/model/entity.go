// Package model defines the tracked entities and run-ledger types shared
// across the collector.
package model

import (
	"os"
	"strings"
	"unicode"

	"github.com/rotisserie/eris"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

// MaxBatchSize is the maximum number of search terms the query service
// accepts in a single call.
const MaxBatchSize = 5

// Entity is a tracked subject of interest: a canonical name plus the
// alias search terms submitted to the query service. Entities come from
// static configuration and are immutable during a run.
type Entity struct {
	Name        string   `json:"name" yaml:"name" mapstructure:"name"`
	Aliases     []string `json:"aliases" yaml:"aliases" mapstructure:"aliases"`
	FoldAccents bool     `json:"fold_accents,omitempty" yaml:"fold_accents,omitempty" mapstructure:"fold_accents"`
}

// SearchTerms returns the alias list submitted to the service. With
// FoldAccents set, unaccented variants are appended after the originals
// so spikes on either spelling are captured. Duplicates are removed
// preserving first-seen order.
func (e Entity) SearchTerms() []string {
	terms := make([]string, 0, len(e.Aliases)*2)
	seen := make(map[string]struct{}, len(e.Aliases)*2)

	add := func(t string) {
		t = strings.TrimSpace(t)
		if t == "" {
			return
		}
		key := strings.ToLower(t)
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		terms = append(terms, t)
	}

	for _, a := range e.Aliases {
		add(a)
	}
	if e.FoldAccents {
		for _, a := range e.Aliases {
			add(FoldAccents(a))
		}
	}
	return terms
}

// Batches chunks the entity's search terms into groups of at most
// MaxBatchSize, in order. Derivation is deterministic: the same entity
// always yields the same batches.
func (e Entity) Batches() [][]string {
	terms := e.SearchTerms()
	var batches [][]string
	for i := 0; i < len(terms); i += MaxBatchSize {
		end := i + MaxBatchSize
		if end > len(terms) {
			end = len(terms)
		}
		batches = append(batches, terms[i:end])
	}
	return batches
}

var accentStripper = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// FoldAccents strips combining diacritical marks ("José" -> "Jose").
// Returns the input unchanged if the transform fails.
func FoldAccents(s string) string {
	out, _, err := transform.String(accentStripper, s)
	if err != nil {
		return s
	}
	return out
}

// EntityNames returns the canonical names in configuration order.
func EntityNames(entities []Entity) []string {
	names := make([]string, len(entities))
	for i, e := range entities {
		names[i] = e.Name
	}
	return names
}

// ValidateEntities checks that the configured entity set is usable:
// non-empty, unique canonical names, at least one alias each.
func ValidateEntities(entities []Entity) error {
	if len(entities) == 0 {
		return eris.New("model: no entities configured")
	}
	seen := make(map[string]struct{}, len(entities))
	for _, e := range entities {
		if strings.TrimSpace(e.Name) == "" {
			return eris.New("model: entity with empty name")
		}
		if _, dup := seen[e.Name]; dup {
			return eris.Errorf("model: duplicate entity %q", e.Name)
		}
		seen[e.Name] = struct{}{}
		if len(e.SearchTerms()) == 0 {
			return eris.Errorf("model: entity %q has no aliases", e.Name)
		}
	}
	return nil
}

// entitiesFile is the shape of a standalone entities YAML file.
type entitiesFile struct {
	Entities []Entity `yaml:"entities"`
}

// LoadEntitiesFile reads entity definitions from a standalone YAML file,
// overriding the entity list embedded in the main config.
func LoadEntitiesFile(path string) ([]Entity, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "model: read entities file %s", path)
	}
	var f entitiesFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, eris.Wrapf(err, "model: parse entities file %s", path)
	}
	if err := ValidateEntities(f.Entities); err != nil {
		return nil, err
	}
	return f.Entities, nil
}
