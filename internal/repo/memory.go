package repo

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// ValidateFunc checks content for a document type.
type ValidateFunc func(docType, content string) []Message

// Version is one saved revision held by Memory.
type Version struct {
	Number      int
	Content     string
	Publishable bool
	Comment     string
	Operator    string
}

type memDoc struct {
	docType  string
	lockedBy string
	versions []Version
}

func (d *memDoc) latest() Version {
	return d.versions[len(d.versions)-1]
}

// Memory is an in-process versioned document repository.
//
// Thread-safety: all methods are safe for concurrent use.
type Memory struct {
	mu        sync.Mutex
	docs      map[DocID]*memDoc
	users     map[string]string // operator -> password
	sessions  map[string]string // token -> operator
	validator ValidateFunc
}

// MemoryOption configures a Memory repository.
type MemoryOption func(*Memory)

// WithValidator installs the validation rules used by Validate.
func WithValidator(fn ValidateFunc) MemoryOption {
	return func(m *Memory) {
		m.validator = fn
	}
}

// WithUser registers an operator that may log in.
func WithUser(operator, password string) MemoryOption {
	return func(m *Memory) {
		m.users[operator] = password
	}
}

// NewMemory creates an empty repository.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		docs:     make(map[DocID]*memDoc),
		users:    make(map[string]string),
		sessions: make(map[string]string),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Put seeds a document with an initial version 1.
// Replaces any existing document with the same ID.
func (m *Memory) Put(id DocID, docType, content string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[id] = &memDoc{
		docType:  docType,
		versions: []Version{{Number: 1, Content: content}},
	}
}

// Lock marks a document as locked by operator, as if checked out elsewhere.
func (m *Memory) Lock(id DocID, operator string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	if !ok {
		return fmt.Errorf("lock %s: %w", id, ErrNotFound)
	}
	d.lockedBy = operator
	return nil
}

// LockedBy returns the operator currently holding the lock ("" if none).
func (m *Memory) LockedBy(id DocID) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.docs[id]; ok {
		return d.lockedBy
	}
	return ""
}

// Content returns the latest content of a document.
func (m *Memory) Content(id DocID) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	if !ok {
		return "", false
	}
	return d.latest().Content, true
}

// Versions returns a copy of a document's version history, oldest first.
func (m *Memory) Versions(id DocID) []Version {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	if !ok {
		return nil
	}
	out := make([]Version, len(d.versions))
	copy(out, d.versions)
	return out
}

// IDs returns all document IDs in sorted order.
func (m *Memory) IDs() []DocID {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]DocID, 0, len(m.docs))
	for id := range m.docs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Login implements Client. When no users are registered any operator is accepted.
func (m *Memory) Login(_ context.Context, creds Credentials) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if creds.Operator == "" {
		return Session{}, fmt.Errorf("login: %w: empty operator", ErrUnauthorized)
	}
	if len(m.users) > 0 {
		pw, ok := m.users[creds.Operator]
		if !ok || pw != creds.Password {
			return Session{}, fmt.Errorf("login %s: %w", creds.Operator, ErrUnauthorized)
		}
	}
	token := uuid.NewString()
	m.sessions[token] = creds.Operator
	return Session{Operator: creds.Operator, Token: token}, nil
}

// operator resolves the session. Sessions without a token are trusted as-is
// so tests can construct them directly.
func (m *Memory) operator(sess Session) (string, error) {
	if sess.Token == "" {
		if sess.Operator == "" {
			return "", ErrUnauthorized
		}
		return sess.Operator, nil
	}
	op, ok := m.sessions[sess.Token]
	if !ok {
		return "", ErrUnauthorized
	}
	return op, nil
}

// Checkout implements Client.
func (m *Memory) Checkout(_ context.Context, sess Session, id DocID, force bool) (Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	op, err := m.operator(sess)
	if err != nil {
		return Document{}, fmt.Errorf("checkout %s: %w", id, err)
	}
	d, ok := m.docs[id]
	if !ok {
		return Document{}, fmt.Errorf("checkout %s: %w", id, ErrNotFound)
	}
	if d.lockedBy != "" && d.lockedBy != op && !force {
		return Document{}, &LockHeldError{ID: id, Holder: d.lockedBy}
	}
	d.lockedBy = op
	v := d.latest()
	return Document{
		ID:       id,
		Content:  v.Content,
		DocType:  d.docType,
		Version:  v.Number,
		LockedBy: op,
	}, nil
}

// Validate implements Client.
func (m *Memory) Validate(_ context.Context, sess Session, docType, content string) ([]Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.operator(sess); err != nil {
		return nil, fmt.Errorf("validate: %w", err)
	}
	if m.validator == nil {
		return nil, nil
	}
	return m.validator(docType, content), nil
}

// Save implements Client. The caller must hold the lock.
func (m *Memory) Save(_ context.Context, sess Session, id DocID, content string, opts SaveOptions) (SaveResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	op, err := m.operator(sess)
	if err != nil {
		return SaveResult{}, fmt.Errorf("save %s: %w", id, err)
	}
	d, ok := m.docs[id]
	if !ok {
		return SaveResult{}, fmt.Errorf("save %s: %w", id, ErrNotFound)
	}
	if d.lockedBy != op {
		return SaveResult{}, fmt.Errorf("save %s: %w", id, ErrNotLocked)
	}

	v := Version{
		Content:     content,
		Publishable: opts.Publishable,
		Comment:     opts.Comment,
		Operator:    op,
	}
	if opts.Version {
		v.Number = d.latest().Number + 1
		d.versions = append(d.versions, v)
	} else {
		v.Number = d.latest().Number
		d.versions[len(d.versions)-1] = v
	}
	if opts.Unlock {
		d.lockedBy = ""
	}

	var warnings []Message
	if m.validator != nil {
		warnings = Filter(m.validator(d.docType, content), SeverityWarning)
	}
	return SaveResult{Version: v.Number, Warnings: warnings}, nil
}

// Unlock implements Client. Unlocking an unlocked or foreign-locked document is a no-op.
func (m *Memory) Unlock(_ context.Context, sess Session, id DocID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	op, err := m.operator(sess)
	if err != nil {
		return fmt.Errorf("unlock %s: %w", id, err)
	}
	if d, ok := m.docs[id]; ok && d.lockedBy == op {
		d.lockedBy = ""
	}
	return nil
}
