package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	cueyaml "cuelang.org/go/encoding/yaml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaCUE string

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid job file")

// DefaultPasswordEnv names the variable holding the repository password
// when the job file does not name one.
const DefaultPasswordEnv = "GLOBALCHANGE_PASSWORD"

// Job is a decoded job file.
type Job struct {
	Description string `yaml:"description"`
	Mode        string `yaml:"mode"`
	Cap         int    `yaml:"cap"`
	Compare     string `yaml:"compare"`

	// RequireValidation defaults to true.
	RequireValidation *bool `yaml:"require_validation"`
	Publishable       bool  `yaml:"publishable"`
	ForceUnlock       bool  `yaml:"force_unlock"`

	Pace       Pace       `yaml:"pace"`
	Repository Repository `yaml:"repository"`
	Select     Select     `yaml:"select"`
	Transform  []Step     `yaml:"transform"`
	Output     Output     `yaml:"output"`

	// dir is the directory relative paths are resolved against.
	dir string
}

// Pace configures pauses between batches of documents.
type Pace struct {
	Every    int      `yaml:"every"`
	Interval Duration `yaml:"interval"`
}

// Repository locates the document repository service.
type Repository struct {
	URL         string   `yaml:"url"`
	Operator    string   `yaml:"operator"`
	PasswordEnv string   `yaml:"password_env"`
	Timeout     Duration `yaml:"timeout"`
	RateLimit   float64  `yaml:"rate_limit"`
	Burst       int      `yaml:"burst"`
}

// Select names exactly one selection source.
type Select struct {
	IDs       []string   `yaml:"ids"`
	File      string     `yaml:"file"`
	SQL       *SQLSelect `yaml:"sql"`
	FailedRun string     `yaml:"failed_run"`
}

// SQLSelect is a single-column ID query.
type SQLSelect struct {
	Driver string   `yaml:"driver"`
	DSN    string   `yaml:"dsn"`
	DSNEnv string   `yaml:"dsn_env"`
	Query  string   `yaml:"query"`
	Args   []string `yaml:"args"`
}

// Step is one transform in the chain. Exactly one of Replace, Lookup and
// Marker is set.
type Step struct {
	DocTypes []string     `yaml:"doc_types"`
	Replace  *ReplaceStep `yaml:"replace"`
	Lookup   *LookupStep  `yaml:"lookup"`
	Marker   *MarkerStep  `yaml:"marker"`
}

// ReplaceStep is a regular expression rewrite.
type ReplaceStep struct {
	Pattern string `yaml:"pattern"`
	With    string `yaml:"with"`
}

// LookupStep is a find/replace table, from a spreadsheet or inline.
type LookupStep struct {
	File  string     `yaml:"file"`
	Sheet string     `yaml:"sheet"`
	Pairs []PairStep `yaml:"pairs"`
}

// PairStep is one inline lookup entry.
type PairStep struct {
	Find    string `yaml:"find"`
	Replace string `yaml:"replace"`
}

// MarkerStep appends text to the listed documents (all when empty).
type MarkerStep struct {
	Text string   `yaml:"text"`
	IDs  []string `yaml:"ids"`
}

// Output locates the run's audit trail.
type Output struct {
	DB      string `yaml:"db"`
	Log     string `yaml:"log"`
	DiffDir string `yaml:"diff_dir"`
}

// Duration decodes Go duration strings such as "250ms" or "1m30s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = Duration(v)
	return nil
}

// Load reads and validates a job file.
func Load(path string) (*Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read job file: %w", err)
	}
	j, err := Parse(path, data)
	if err != nil {
		return nil, err
	}
	j.dir = filepath.Dir(path)
	return j, nil
}

// Parse validates and decodes job file content. name is used in error
// messages. Relative paths resolve against the working directory.
func Parse(name string, data []byte) (*Job, error) {
	if err := validateSchema(name, data); err != nil {
		return nil, err
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var j Job
	if err := dec.Decode(&j); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalid, name, err)
	}
	j.applyDefaults()
	return &j, nil
}

// validateSchema unifies the document with #Job and requires a concrete,
// error-free result.
func validateSchema(name string, data []byte) error {
	cctx := cuecontext.New()
	schema := cctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile job schema: %w", err)
	}

	file, err := cueyaml.Extract(name, data)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalid, formatCUEError(err))
	}
	doc := cctx.BuildFile(file)
	if err := doc.Err(); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalid, formatCUEError(err))
	}

	unified := schema.LookupPath(cue.ParsePath("#Job")).Unify(doc)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalid, formatCUEError(err))
	}
	return nil
}

func formatCUEError(err error) string {
	return strings.TrimSpace(cueerrors.Details(err, nil))
}

func (j *Job) applyDefaults() {
	if j.Mode == "" {
		j.Mode = "rehearsal"
	}
	if j.RequireValidation == nil {
		v := true
		j.RequireValidation = &v
	}
	if j.Repository.PasswordEnv == "" {
		j.Repository.PasswordEnv = DefaultPasswordEnv
	}
	if j.Repository.Burst == 0 {
		j.Repository.Burst = 1
	}
}

// Path resolves p against the job file's directory. Absolute and empty
// paths are returned unchanged.
func (j *Job) Path(p string) string {
	if p == "" || filepath.IsAbs(p) || j.dir == "" {
		return p
	}
	return filepath.Join(j.dir, p)
}

// LoadEnv loads .env files into the process environment. Missing files
// are ignored; variables already set are not overridden.
func LoadEnv(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("load env file %s: %w", p, err)
		}
	}
	return nil
}
