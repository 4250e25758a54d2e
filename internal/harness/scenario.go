package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/globalchange/internal/repo"
)

// Scenario defines a job run against a scripted repository, plus the
// assertions its results must satisfy.
type Scenario struct {
	// Name uniquely identifies this scenario. It names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Documents seed the repository, each at version 1.
	Documents []SeedDocument `yaml:"documents"`

	// Rules are the repository's validation rules.
	Rules []Rule `yaml:"rules,omitempty"`

	// Job is a job file body without repository or output sections.
	Job map[string]any `yaml:"job"`

	// Assertions validate the run's outcomes and the final repository state.
	Assertions []Assertion `yaml:"assertions"`
}

// SeedDocument is a document present before the run.
type SeedDocument struct {
	ID      string `yaml:"id"`
	Type    string `yaml:"type"`
	Content string `yaml:"content"`

	// LockedBy locks the document for another operator before the run.
	LockedBy string `yaml:"locked_by,omitempty"`
}

// Rule makes the repository report a validation message for content
// containing a fragment.
type Rule struct {
	Contains string `yaml:"contains"`

	// Severity is error, warning or info.
	Severity string `yaml:"severity"`
	Message  string `yaml:"message"`

	// DocType restricts the rule to one document type.
	DocType string `yaml:"doc_type,omitempty"`
}

// Assertion validates one aspect of a run.
type Assertion struct {
	// Type specifies the assertion type:
	// - "outcome": check a document's recorded status (and stage, message)
	// - "summary": check run counts
	// - "content": check a document's latest content
	// - "versions": check a document's version count
	// - "locked": check who holds a document's lock
	// - "diff": check the recorded diff contains a fragment
	// - "fatal": check the run aborted
	Type string `yaml:"type"`

	// ID is the document (used by all types but summary and fatal).
	ID string `yaml:"id,omitempty"`

	// Status and Stage are the expected outcome (used by outcome).
	Status string `yaml:"status,omitempty"`
	Stage  string `yaml:"stage,omitempty"`

	// Message is an expected substring (used by outcome, diff and fatal).
	Message string `yaml:"message,omitempty"`

	// Counts are expected summary counts (used by summary).
	// Subset match - only specified counts are validated.
	Counts map[string]int `yaml:"counts,omitempty"`

	// Content is the expected latest content (used by content).
	Content *string `yaml:"content,omitempty"`

	// Count is the expected number of versions (used by versions).
	Count int `yaml:"count,omitempty"`

	// By is the expected lock holder, "" for unlocked (used by locked).
	By string `yaml:"by,omitempty"`
}

// Assertion type constants.
const (
	AssertOutcome  = "outcome"
	AssertSummary  = "summary"
	AssertContent  = "content"
	AssertVersions = "versions"
	AssertLocked   = "locked"
	AssertDiff     = "diff"
	AssertFatal    = "fatal"
)

// summaryCounts are the count names a summary assertion may use.
var summaryCounts = map[string]bool{
	"selected": true, "processed": true, "changed": true, "would_change": true,
	"unchanged": true, "skipped": true, "failed": true, "untouched": true,
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Parse YAML with strict field validation (catches typos like "assertion:" vs "assertions:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if len(s.Job) == 0 {
		return fmt.Errorf("job is required")
	}
	for _, key := range []string{"repository", "output"} {
		if _, ok := s.Job[key]; ok {
			return fmt.Errorf("job: %s is supplied by the harness", key)
		}
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	seen := make(map[string]bool, len(s.Documents))
	for i, d := range s.Documents {
		if d.ID == "" {
			return fmt.Errorf("documents[%d]: id is required", i)
		}
		if seen[d.ID] {
			return fmt.Errorf("documents[%d]: duplicate id %q", i, d.ID)
		}
		seen[d.ID] = true
	}

	for i, r := range s.Rules {
		if r.Contains == "" {
			return fmt.Errorf("rules[%d]: contains is required", i)
		}
		switch repo.Severity(r.Severity) {
		case repo.SeverityError, repo.SeverityWarning, repo.SeverityInfo:
		default:
			return fmt.Errorf("rules[%d]: unknown severity %q", i, r.Severity)
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertOutcome:
		if a.ID == "" || a.Status == "" {
			return fmt.Errorf("assertions[%d]: id and status are required for outcome", index)
		}
	case AssertSummary:
		if len(a.Counts) == 0 {
			return fmt.Errorf("assertions[%d]: counts are required for summary", index)
		}
		for name := range a.Counts {
			if !summaryCounts[name] {
				return fmt.Errorf("assertions[%d]: unknown count %q", index, name)
			}
		}
	case AssertContent:
		if a.ID == "" || a.Content == nil {
			return fmt.Errorf("assertions[%d]: id and content are required for content", index)
		}
	case AssertVersions:
		if a.ID == "" || a.Count < 1 {
			return fmt.Errorf("assertions[%d]: id and a positive count are required for versions", index)
		}
	case AssertLocked:
		if a.ID == "" {
			return fmt.Errorf("assertions[%d]: id is required for locked", index)
		}
	case AssertDiff:
		if a.ID == "" || a.Message == "" {
			return fmt.Errorf("assertions[%d]: id and message are required for diff", index)
		}
	case AssertFatal:
		if a.Message == "" {
			return fmt.Errorf("assertions[%d]: message is required for fatal", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
