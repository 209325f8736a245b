package pipeline

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/fusion-cli/internal/collector"
	"github.com/sells-group/fusion-cli/internal/model"
	"github.com/sells-group/fusion-cli/internal/store"
)

// --- Fake collector ---

// fakeCollector returns one candidate per canned record. Each hook is
// optional.
type fakeCollector struct {
	source    model.Source
	records   []model.SourceRecord
	openErr   error
	searchErr error
	// collectErr maps a candidate name to the error Collect returns for it.
	collectErr map[string]error
	// block makes Search wait for ctx to end.
	block bool
	delay time.Duration

	opened atomic.Int32
	closed atomic.Int32

	// concurrency tracking shared across collectors
	active    *atomic.Int32
	maxActive *atomic.Int32

	mu    sync.Mutex
	hints []collector.Hints
}

func (f *fakeCollector) Source() model.Source { return f.source }

func (f *fakeCollector) Open(ctx context.Context) (collector.Session, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	f.opened.Add(1)
	if f.active != nil {
		n := f.active.Add(1)
		for {
			cur := f.maxActive.Load()
			if n <= cur || f.maxActive.CompareAndSwap(cur, n) {
				break
			}
		}
	}
	return &fakeSession{c: f}, nil
}

type fakeSession struct {
	c *fakeCollector
}

func (s *fakeSession) Search(ctx context.Context, _ *model.Criteria) ([]collector.Candidate, error) {
	if s.c.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if s.c.delay > 0 {
		select {
		case <-time.After(s.c.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.c.searchErr != nil {
		return nil, s.c.searchErr
	}
	out := make([]collector.Candidate, len(s.c.records))
	for i, r := range s.c.records {
		out[i] = collector.Candidate{
			Name: r.Lookup("name", "nome", "razao_social"),
			CNPJ: r.CNPJ,
			Key:  string(rune('a' + i)),
		}
	}
	return out, nil
}

func (s *fakeSession) Collect(_ context.Context, c collector.Candidate, h collector.Hints) (model.SourceRecord, error) {
	s.c.mu.Lock()
	s.c.hints = append(s.c.hints, h)
	s.c.mu.Unlock()

	if err := s.c.collectErr[c.Name]; err != nil {
		return model.SourceRecord{}, err
	}
	return s.c.records[int(c.Key[0]-'a')], nil
}

func (s *fakeSession) Close() error {
	s.c.closed.Add(1)
	if s.c.active != nil {
		s.c.active.Add(-1)
	}
	return nil
}

func rec(src model.Source, fields map[string]string) model.SourceRecord {
	return model.SourceRecord{Source: src, Fields: fields}
}

// --- Scorer mock ---

type mockScorer struct {
	mock.Mock
}

func (m *mockScorer) Score(r model.UnifiedRecord) model.QualityScore {
	args := m.Called(r)
	return args.Get(0).(model.QualityScore)
}

func (m *mockScorer) HasMandatory(r model.UnifiedRecord) bool {
	args := m.Called(r)
	return args.Bool(0)
}

func (m *mockScorer) MissingFields(r model.UnifiedRecord) []model.Field {
	args := m.Called(r)
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]model.Field)
}

// --- Sink ---

type fakeSink struct {
	location string
	err      error

	got    []model.UnifiedRecord
	output model.Output
}

func (s *fakeSink) Export(_ context.Context, records []model.UnifiedRecord, out model.Output) (string, error) {
	s.got = records
	s.output = out
	if s.err != nil {
		return "", s.err
	}
	return s.location, nil
}

var errBoom = eris.New("boom")

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "pipeline.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() }) //nolint:errcheck
	require.NoError(t, s.Migrate(context.Background()))
	return s
}
