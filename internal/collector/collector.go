// Package collector adapts external data providers to the pipeline's
// collection interface. A Collector opens one Session per stage; the
// Session discovers candidate companies and collects one raw observation
// per candidate.
package collector

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/fusion-cli/internal/model"
	"github.com/sells-group/fusion-cli/internal/normalize"
	"github.com/sells-group/fusion-cli/internal/resilience"
)

// ErrNoData marks a candidate the source knows nothing about. The
// controller skips it without counting a failure.
var ErrNoData = eris.New("no data for candidate")

// Collector produces sessions for one source.
type Collector interface {
	Source() model.Source
	// Open acquires the stage's exclusive resources. The caller must Close
	// the session on every exit path.
	Open(ctx context.Context) (Session, error)
}

// Session is one stage's view of a source.
type Session interface {
	Search(ctx context.Context, criteria *model.Criteria) ([]Candidate, error)
	Collect(ctx context.Context, c Candidate, h Hints) (model.SourceRecord, error)
	Close() error
}

// Candidate is a company a session may collect.
type Candidate struct {
	Name    string
	CNPJ    string
	Domain  string
	URL     string
	Snippet string
	// Key is an opaque per-source reference, e.g. a fixture row index.
	Key string
}

// Hints carry identity values the caller already knows for a candidate.
type Hints struct {
	CNPJ   string
	Domain string
	Name   string
}

// HintsFor returns the criteria's identity values for the requested company
// whose normalized name matches the candidate, merged with what the
// candidate itself carries.
func HintsFor(criteria *model.Criteria, c Candidate) Hints {
	h := Hints{CNPJ: c.CNPJ, Domain: c.Domain, Name: c.Name}
	if criteria == nil {
		return h
	}
	want := normalize.Name(c.Name)
	for _, ref := range criteria.Companies {
		if normalize.Name(ref.Name) != want {
			continue
		}
		if h.CNPJ == "" {
			h.CNPJ = ref.CNPJ
		}
		if h.Domain == "" {
			h.Domain = ref.Domain
		}
		break
	}
	return h
}

// SourceError reports a failed source operation. It matches both
// model.ErrSourceUnavailable and the underlying cause with errors.Is.
type SourceError struct {
	Source model.Source
	Op     string
	Err    error
}

func (e *SourceError) Error() string {
	return "collector " + string(e.Source) + ": " + e.Op + ": " + e.Err.Error()
}

func (e *SourceError) Unwrap() []error {
	return []error{model.ErrSourceUnavailable, e.Err}
}

// Unavailable wraps err as a SourceError. A nil err stays nil.
func Unavailable(src model.Source, op string, err error) error {
	if err == nil {
		return nil
	}
	var se *SourceError
	if errors.As(err, &se) {
		return err
	}
	return &SourceError{Source: src, Op: op, Err: err}
}

// Options bound every network call a session makes.
type Options struct {
	CallTimeout   time.Duration
	Retry         resilience.Policy
	MaxCandidates int
}

// DefaultOptions returns a 30 second call timeout, the default retry policy
// and at most 20 discovered candidates per stage.
func DefaultOptions() Options {
	return Options{
		CallTimeout:   30 * time.Second,
		Retry:         resilience.DefaultPolicy(),
		MaxCandidates: 20,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.CallTimeout <= 0 {
		o.CallTimeout = d.CallTimeout
	}
	if o.Retry.MaxAttempts <= 0 {
		o.Retry = d.Retry
	}
	if o.MaxCandidates <= 0 {
		o.MaxCandidates = d.MaxCandidates
	}
	return o
}

// call runs fn under a per-attempt timeout and retries transient failures.
func call[T any](ctx context.Context, o Options, src model.Source, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	p := o.Retry
	if p.OnRetry == nil {
		p.OnRetry = resilience.RetryLogger(string(src), op)
	}
	return resilience.DoVal(ctx, p, func(ctx context.Context) (T, error) {
		ctx, cancel := context.WithTimeout(ctx, o.CallTimeout)
		defer cancel()
		return fn(ctx)
	})
}

// record builds a SourceRecord, dropping blank values.
func record(src model.Source, h Hints, fields map[string]string) model.SourceRecord {
	out := model.SourceRecord{Source: src, Fields: make(map[string]string, len(fields))}
	for k, v := range fields {
		if v = strings.TrimSpace(v); v != "" {
			out.Fields[k] = v
		}
	}
	out.CNPJ = h.CNPJ
	out.Domain = h.Domain
	out.Name = h.Name
	return out
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
