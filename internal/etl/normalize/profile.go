package normalize

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ayurfhir/ayurfhir/internal/domain/terminology"
)

//go:embed profiles.yaml
var defaultProfiles []byte

// Profile describes how one source extract maps onto canonical terms.
type Profile struct {
	CodeColumn        string `yaml:"code_column"`
	TermColumn        string `yaml:"term_column"`
	ExpandSynonyms    bool   `yaml:"expand_synonyms"`
	StripMarkers      bool   `yaml:"strip_markers"`
	TrimLeadingDashes bool   `yaml:"trim_leading_dashes"`
}

// Profiles holds one profile per ingestible code system.
type Profiles map[terminology.CodeSystem]Profile

// DefaultProfiles returns the embedded column mappings.
func DefaultProfiles() Profiles {
	p, err := parseProfiles(defaultProfiles)
	if err != nil {
		panic(fmt.Sprintf("embedded profiles: %v", err))
	}
	return p
}

// LoadProfiles returns the defaults overlaid with the profiles in path.
// An empty path yields the defaults unchanged.
func LoadProfiles(path string) (Profiles, error) {
	profiles := DefaultProfiles()
	if path == "" {
		return profiles, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profiles: %w", err)
	}
	override, err := parseProfiles(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	for cs, p := range override {
		profiles[cs] = p
	}
	return profiles, nil
}

// For returns the profile for system.
func (p Profiles) For(system terminology.CodeSystem) (Profile, error) {
	prof, ok := p[system]
	if !ok {
		return Profile{}, fmt.Errorf("no column profile for %s", system)
	}
	return prof, nil
}

func parseProfiles(data []byte) (Profiles, error) {
	var raw map[string]Profile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	out := make(Profiles, len(raw))
	for name, p := range raw {
		cs, err := terminology.ParseIngestSystem(name)
		if err != nil {
			return nil, err
		}
		if p.CodeColumn == "" || p.TermColumn == "" {
			return nil, fmt.Errorf("profile %s: code_column and term_column are required", name)
		}
		out[cs] = p
	}
	return out, nil
}
