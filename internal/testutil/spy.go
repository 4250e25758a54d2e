package testutil

import (
	"context"
	"sync"

	"github.com/roach88/globalchange/internal/repo"
)

// Call is one recorded repository call.
type Call struct {
	Method string
	ID     repo.DocID
	Force  bool
	Opts   repo.SaveOptions
}

// Fault injects a failure into a repository method for one document.
// An empty ID matches every document.
type Fault struct {
	Method string
	ID     repo.DocID
	Err    error
	Panic  any
}

// SpyClient wraps a repo.Client, records every call in order, and injects
// configured faults before delegating.
//
// Thread-safety: safe for concurrent use.
type SpyClient struct {
	next repo.Client

	mu     sync.Mutex
	calls  []Call
	faults []Fault
}

// NewSpyClient wraps next.
func NewSpyClient(next repo.Client) *SpyClient {
	return &SpyClient{next: next}
}

// Inject adds a fault. Faults stay active for the life of the spy.
func (s *SpyClient) Inject(f Fault) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults = append(s.faults, f)
}

// Calls returns a copy of all recorded calls.
func (s *SpyClient) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// Count returns the number of calls to method, optionally for one document.
// An empty id counts calls for every document.
func (s *SpyClient) Count(method string, id repo.DocID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c.Method == method && (id == "" || c.ID == id) {
			n++
		}
	}
	return n
}

// IDs returns the documents passed to method, in call order.
func (s *SpyClient) IDs(method string) []repo.DocID {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []repo.DocID
	for _, c := range s.calls {
		if c.Method == method {
			out = append(out, c.ID)
		}
	}
	return out
}

func (s *SpyClient) record(c Call) error {
	s.mu.Lock()
	s.calls = append(s.calls, c)
	var hit *Fault
	for i := range s.faults {
		f := s.faults[i]
		if f.Method == c.Method && (f.ID == "" || f.ID == c.ID) {
			hit = &f
			break
		}
	}
	s.mu.Unlock()

	if hit == nil {
		return nil
	}
	if hit.Panic != nil {
		panic(hit.Panic)
	}
	return hit.Err
}

// Login implements repo.Client.
func (s *SpyClient) Login(ctx context.Context, creds repo.Credentials) (repo.Session, error) {
	if err := s.record(Call{Method: "Login"}); err != nil {
		return repo.Session{}, err
	}
	return s.next.Login(ctx, creds)
}

// Checkout implements repo.Client.
func (s *SpyClient) Checkout(ctx context.Context, sess repo.Session, id repo.DocID, force bool) (repo.Document, error) {
	if err := s.record(Call{Method: "Checkout", ID: id, Force: force}); err != nil {
		return repo.Document{}, err
	}
	return s.next.Checkout(ctx, sess, id, force)
}

// Validate implements repo.Client. The call carries no document ID.
func (s *SpyClient) Validate(ctx context.Context, sess repo.Session, docType, content string) ([]repo.Message, error) {
	if err := s.record(Call{Method: "Validate"}); err != nil {
		return nil, err
	}
	return s.next.Validate(ctx, sess, docType, content)
}

// Save implements repo.Client.
func (s *SpyClient) Save(ctx context.Context, sess repo.Session, id repo.DocID, content string, opts repo.SaveOptions) (repo.SaveResult, error) {
	if err := s.record(Call{Method: "Save", ID: id, Opts: opts}); err != nil {
		return repo.SaveResult{}, err
	}
	return s.next.Save(ctx, sess, id, content, opts)
}

// Unlock implements repo.Client.
func (s *SpyClient) Unlock(ctx context.Context, sess repo.Session, id repo.DocID) error {
	if err := s.record(Call{Method: "Unlock", ID: id}); err != nil {
		return err
	}
	return s.next.Unlock(ctx, sess, id)
}
