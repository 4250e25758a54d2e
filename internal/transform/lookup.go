package transform

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/roach88/globalchange/internal/job"
	"github.com/roach88/globalchange/internal/repo"
)

var _ job.Transformer = (*Lookup)(nil)

// Pair is one find/replace entry of a lookup table.
type Pair struct {
	Find    string
	Replace string
}

// Lookup replaces literal strings from a table loaded once at construction.
// At each position the earliest table entry that matches wins; replacements
// do not overlap and are not rescanned.
type Lookup struct {
	pairs    []Pair
	replacer *strings.Replacer
	scope
}

// NewLookup builds a Lookup from pairs. Entries with an empty Find are rejected.
func NewLookup(pairs []Pair, opts ...Option) (*Lookup, error) {
	if len(pairs) == 0 {
		return nil, errors.New("lookup table is empty")
	}
	args := make([]string, 0, len(pairs)*2)
	for i, p := range pairs {
		if p.Find == "" {
			return nil, fmt.Errorf("lookup entry %d: empty find value", i+1)
		}
		args = append(args, p.Find, p.Replace)
	}
	return &Lookup{
		pairs:    pairs,
		replacer: strings.NewReplacer(args...),
		scope:    newScope(opts),
	}, nil
}

// Pairs returns a copy of the table.
func (l *Lookup) Pairs() []Pair {
	out := make([]Pair, len(l.pairs))
	copy(out, l.pairs)
	return out
}

// Transform implements job.Transformer.
func (l *Lookup) Transform(_ context.Context, _ job.Env, doc repo.Document) (string, error) {
	if err := l.check(doc); err != nil {
		return "", err
	}
	return l.replacer.Replace(doc.Content), nil
}

// Spreadsheet layout for lookup tables.
const (
	colFind    = 0 // Column A
	colReplace = 1 // Column B

	headerFind = "find"
)

// ReadPairs reads a lookup table from an .xlsx workbook. sheet "" means the
// first sheet. Column A holds the find value and column B the replacement;
// an optional header row starting with "find" is skipped, as are rows with
// an empty column A.
func ReadPairs(r io.Reader, sheet string) ([]Pair, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}

	var pairs []Pair
	for i, row := range rows {
		find := cell(row, colFind)
		if i == 0 && strings.EqualFold(strings.TrimSpace(find), headerFind) {
			continue
		}
		if find == "" {
			continue
		}
		pairs = append(pairs, Pair{Find: find, Replace: cell(row, colReplace)})
	}
	return pairs, nil
}

// LoadLookup reads a lookup table from an .xlsx file and builds a Lookup.
func LoadLookup(path, sheet string, opts ...Option) (*Lookup, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open lookup table: %w", err)
	}
	defer fh.Close()

	pairs, err := ReadPairs(fh, sheet)
	if err != nil {
		return nil, fmt.Errorf("lookup table %s: %w", path, err)
	}
	return NewLookup(pairs, opts...)
}

func cell(row []string, col int) string {
	if col < len(row) {
		return row[col]
	}
	return ""
}
