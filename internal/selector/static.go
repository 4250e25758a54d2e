package selector

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/roach88/globalchange/internal/job"
	"github.com/roach88/globalchange/internal/repo"
)

var (
	_ job.Selector = Static(nil)
	_ job.Selector = (*File)(nil)
)

// Static selects a fixed list of IDs.
type Static []repo.DocID

// Select implements job.Selector.
func (s Static) Select(context.Context) ([]repo.DocID, error) {
	out := make([]repo.DocID, len(s))
	copy(out, s)
	return out, nil
}

// File selects the IDs listed in a text file, one per line.
// Blank lines and lines starting with '#' are ignored.
type File struct {
	Path string
}

// NewFile creates a File selector.
func NewFile(path string) *File {
	return &File{Path: path}
}

// Select implements job.Selector. The file is read on every call.
func (f *File) Select(context.Context) ([]repo.DocID, error) {
	fh, err := os.Open(f.Path)
	if err != nil {
		return nil, fmt.Errorf("open id file: %w", err)
	}
	defer fh.Close()

	ids, err := ParseIDs(fh)
	if err != nil {
		return nil, fmt.Errorf("read id file %s: %w", f.Path, err)
	}
	return ids, nil
}

// ParseIDs reads one ID per line from r.
func ParseIDs(r io.Reader) ([]repo.DocID, error) {
	var ids []repo.DocID
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		if strings.ContainsAny(text, " \t") {
			return nil, fmt.Errorf("line %d: id %q contains whitespace", line, text)
		}
		ids = append(ids, repo.DocID(text))
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}
