package terminology

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ayurfhir/ayurfhir/internal/platform/fhir"
)

var (
	// ErrNotFound is returned when no term matches a lookup.
	ErrNotFound = errors.New("term not found")
	// ErrUnknownSystem is returned for a code system name outside the supported set.
	ErrUnknownSystem = errors.New("unknown code system")
)

// CodeSystem names one terminology partition in the term store.
type CodeSystem string

const (
	Ayurveda CodeSystem = "ayurveda"
	Siddha   CodeSystem = "siddha"
	Unani    CodeSystem = "unani"
	ICD11    CodeSystem = "icd11"
	LOINC    CodeSystem = "loinc"
	SNOMED   CodeSystem = "snomed"

	// Namaste selects all three NAMASTE variants at once. It is valid for
	// reads only; ingestion always targets a single variant.
	Namaste CodeSystem = "namaste"
)

// Canonical system URIs.
const (
	SystemAyurveda = "http://nph.gov.in/namaste/ayurveda"
	SystemSiddha   = "http://nph.gov.in/namaste/siddha"
	SystemUnani    = "http://nph.gov.in/namaste/unani"
	SystemNamaste  = "http://nph.gov.in/namaste"
	SystemICD11    = "http://id.who.int/icd/release/11/mms"
	SystemLOINC    = "http://loinc.org"
	SystemSNOMED   = "http://snomed.info/sct"
)

// ICD11Version is the MMS release the ICD-11 extract and search calls use.
const ICD11Version = "2025-01"

// IngestSystems lists the partitions that can be loaded and cleared.
var IngestSystems = []CodeSystem{Ayurveda, Siddha, Unani, ICD11, LOINC, SNOMED}

type systemInfo struct {
	uri   string
	name  string
	table string
}

var systems = map[CodeSystem]systemInfo{
	Ayurveda: {SystemAyurveda, "NAMASTE Ayurveda", "namaste_terms"},
	Siddha:   {SystemSiddha, "NAMASTE Siddha", "namaste_terms"},
	Unani:    {SystemUnani, "NAMASTE Unani", "namaste_terms"},
	Namaste:  {SystemNamaste, "NAMASTE", "namaste_terms"},
	ICD11:    {SystemICD11, "ICD-11 MMS", "icd11_terms"},
	LOINC:    {SystemLOINC, "LOINC", "loinc_terms"},
	SNOMED:   {SystemSNOMED, "SNOMED CT", "snomed_terms"},
}

var aliases = map[string]CodeSystem{
	"namaste_ayurveda": Ayurveda,
	"namaste_siddha":   Siddha,
	"namaste_unani":    Unani,
	"icd":              ICD11,
	"icd-11":           ICD11,
	"icd11mms":         ICD11,
	"sct":              SNOMED,
	"snomedct":         SNOMED,
}

// ParseCodeSystem accepts a short name, a known alias or a canonical URI.
func ParseCodeSystem(s string) (CodeSystem, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	if _, ok := systems[CodeSystem(key)]; ok {
		return CodeSystem(key), nil
	}
	if cs, ok := aliases[key]; ok {
		return cs, nil
	}
	for cs, info := range systems {
		if strings.TrimRight(strings.TrimSpace(s), "/") == info.uri {
			return cs, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownSystem, s)
}

// ParseIngestSystem is ParseCodeSystem restricted to concrete partitions.
func ParseIngestSystem(s string) (CodeSystem, error) {
	cs, err := ParseCodeSystem(s)
	if err != nil {
		return "", err
	}
	if cs == Namaste {
		return "", fmt.Errorf("%w: %q names a family, pick ayurveda, siddha or unani", ErrUnknownSystem, s)
	}
	return cs, nil
}

// IsNamaste reports whether cs lives in the namaste_terms table.
func (cs CodeSystem) IsNamaste() bool {
	return cs == Ayurveda || cs == Siddha || cs == Unani || cs == Namaste
}

func (cs CodeSystem) URI() string   { return systems[cs].uri }
func (cs CodeSystem) Name() string  { return systems[cs].name }
func (cs CodeSystem) table() string { return systems[cs].table }

// Version reports the release a system's terms were loaded from, when known.
func (cs CodeSystem) Version() string {
	if cs == ICD11 {
		return ICD11Version
	}
	return ""
}

// Term is one (code, display) row of a code system. Codes are unique only
// together with their system, and a NAMASTE code may carry several rows,
// one per synonym.
type Term struct {
	ID     int64      `json:"id"`
	Code   string     `json:"code"`
	Term   string     `json:"term"`
	System CodeSystem `json:"system"`
}

// Coding renders the term as a FHIR Coding in its own system.
func (t *Term) Coding() fhir.Coding {
	return fhir.Coding{System: t.System.URI(), Code: t.Code, Display: t.Term}
}

// Key identifies a term by its natural key.
type Key struct {
	Code   string
	System CodeSystem
}

func (k Key) String() string { return k.Code + "|" + string(k.System) }
