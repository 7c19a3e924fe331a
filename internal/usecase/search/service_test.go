package search

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/seqsearch/internal/domain"
	domid "github.com/kailas-cloud/seqsearch/internal/domain/identity"
	domjob "github.com/kailas-cloud/seqsearch/internal/domain/job"
	"github.com/kailas-cloud/seqsearch/internal/metrics"
	jobrepo "github.com/kailas-cloud/seqsearch/internal/repository/job"
	"github.com/kailas-cloud/seqsearch/internal/transport/blast"
)

const protein50 = "MKTAYIAKQRQISFVKSHFSRQLEERLGLIEVQAPILSRVGDGTQDNLSG"

func TestMain(m *testing.M) {
	metrics.RegisterSearchMetrics()
	os.Exit(m.Run())
}

// --- Mocks ---

// fixtureAligner copies an XML fixture to the requested report path.
type fixtureAligner struct {
	fixture string
	err     error
	calls   atomic.Int32
	// seen records the progress of the job at the moment the aligner ran.
	store    JobStore
	progress atomic.Int32
	query    atomic.Value
}

func (a *fixtureAligner) Run(_ context.Context, s blast.Search) error {
	a.calls.Add(1)
	if q, err := os.ReadFile(s.QueryPath); err == nil {
		a.query.Store(string(q))
	}
	if a.store != nil {
		for _, j := range a.store.List() {
			a.progress.Store(int32(j.Progress))
		}
	}
	if a.err != nil {
		return a.err
	}
	src, err := os.Open(a.fixture)
	if err != nil {
		return err
	}
	defer src.Close()
	dst, err := os.Create(s.OutPath)
	if err != nil {
		return err
	}
	defer dst.Close()
	_, err = io.Copy(dst, src)
	return err
}

// blockingAligner holds every call until release is closed or ctx ends.
type blockingAligner struct {
	release chan struct{}
	running atomic.Int32
	peak    atomic.Int32
	fixture string
}

func (a *blockingAligner) Run(ctx context.Context, s blast.Search) error {
	n := a.running.Add(1)
	defer a.running.Add(-1)
	for {
		p := a.peak.Load()
		if n <= p || a.peak.CompareAndSwap(p, n) {
			break
		}
	}
	select {
	case <-a.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	data, err := os.ReadFile(a.fixture)
	if err != nil {
		return err
	}
	return os.WriteFile(s.OutPath, data, 0o600)
}

type mockIdentity struct {
	loaded  bool
	records map[string]domid.Record
}

func (m *mockIdentity) Loaded() bool { return m.loaded }

func (m *mockIdentity) ExtractAccession(header string) string {
	return domid.ExtractAccession(header)
}

func (m *mockIdentity) Resolve(acc string) domid.Record {
	if r, ok := m.records[acc]; ok {
		return r
	}
	return domid.Unknown(acc)
}

type mockIndex struct{ err error }

func (m *mockIndex) Check(_ context.Context) error { return m.err }

// --- Helpers ---

func newStore(t *testing.T) *jobrepo.Store {
	t.Helper()
	s, err := jobrepo.New(100, nil, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func newService(t *testing.T, store JobStore, aligner Aligner, ident Identity, mutate func(*Config)) (*Service, string) {
	t.Helper()
	tmp := t.TempDir()
	cfg := Config{
		MaxConcurrent: 2,
		JobTimeout:    5 * time.Second,
		Limits:        domjob.Limits{MinLength: 10, MaxLength: 10000},
		DBPath:        "/data/blastdb/sprot",
		TmpDir:        tmp,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	svc := New(cfg, store, aligner, ident, &mockIndex{}, zap.NewNop())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = svc.Shutdown(ctx)
	})
	return svc, tmp
}

func waitTerminal(t *testing.T, svc *Service, id string) domjob.Job {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		j, ok := svc.Status(id)
		if !ok {
			t.Fatalf("job %s disappeared", id)
		}
		if j.Status.Terminal() {
			return j
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s did not finish", id)
	return domjob.Job{}
}

func assertEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("expected temp files to be removed, found %d entries", len(entries))
	}
}

var sprotIdentity = &mockIdentity{
	loaded: true,
	records: map[string]domid.Record{
		"P0A7B8": {ID: "1001", Accession: "P0A7B8", GeneName: "hslV", ProteinName: "ATP-dependent protease subunit HslV"},
		"Q9Y6K1": {ID: "1002", Accession: "Q9Y6K1", GeneName: "DNMT3A", ProteinName: "DNA (cytosine-5)-methyltransferase 3A"},
	},
}

// --- Tests ---

func TestSubmit_EndToEndBlastp(t *testing.T) {
	store := newStore(t)
	aligner := &fixtureAligner{fixture: "testdata/blastp.xml", store: store}
	svc, tmp := newService(t, store, aligner, sprotIdentity, nil)

	id, err := svc.Submit(context.Background(), domjob.Request{Sequence: protein50, Algorithm: "blastp"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	j := waitTerminal(t, svc, id)
	if j.Status != domjob.StatusCompleted {
		t.Fatalf("expected completed, got %s: %s", j.Status, j.Error)
	}
	if j.Progress != domjob.ProgressDone {
		t.Errorf("expected progress 100, got %d", j.Progress)
	}
	if aligner.progress.Load() != domjob.ProgressStaged {
		t.Errorf("expected staged progress while aligning, got %d", aligner.progress.Load())
	}
	if q, _ := aligner.query.Load().(string); !strings.HasPrefix(q, ">query_"+id+"\n") || !strings.Contains(q, protein50) {
		t.Errorf("unexpected query file: %q", q)
	}

	res := j.Result
	if res == nil {
		t.Fatal("expected result")
	}
	if res.TotalHits != 4 || len(res.Hits) != 4 {
		t.Fatalf("expected 4 hits, got %d", len(res.Hits))
	}
	wantOrder := []float64{1.5e-50, 1e-10, 1e-5, 1}
	for i, h := range res.Hits {
		if h.EValue != wantOrder[i] {
			t.Errorf("hit %d: expected e-value %g, got %g", i, wantOrder[i], h.EValue)
		}
		if h.Identity < 0 || h.Identity > 100 || h.Positives < 0 || h.Positives > 100 {
			t.Errorf("hit %d: percentages out of range: %v / %v", i, h.Identity, h.Positives)
		}
	}

	top := res.Hits[0]
	if top.Accession != "Q9Y6K1" || top.GeneName != "DNMT3A" || top.RecordID != "1002" {
		t.Errorf("unexpected top hit identity: %+v", top)
	}
	if top.Identity != 96 || top.Positives != 98 || top.AlignLength != 50 {
		t.Errorf("expected best HSP stats, got identity=%v positives=%v len=%d", top.Identity, top.Positives, top.AlignLength)
	}

	unmapped := res.Hits[1]
	if unmapped.Accession != "A0A024RBG1" || unmapped.GeneName != domid.UnknownGene {
		t.Errorf("expected unknown record for unmapped accession, got %+v", unmapped)
	}
	if res.Hits[3].Accession != "HSN0042" {
		t.Errorf("expected HSN accession, got %q", res.Hits[3].Accession)
	}

	if res.QueryLength != 50 || res.DatabaseSize != 570420 || res.Stats.Program != "blastp" {
		t.Errorf("unexpected result header: %+v", res)
	}
	assertEmptyDir(t, tmp)
}

func TestSubmit_FallbackParserWhenIdentityUnavailable(t *testing.T) {
	store := newStore(t)
	svc, _ := newService(t, store, &fixtureAligner{fixture: "testdata/blastp.xml"}, &mockIdentity{}, nil)

	id, err := svc.Submit(context.Background(), domjob.Request{Sequence: protein50, Algorithm: "blastp"})
	if err != nil {
		t.Fatal(err)
	}
	j := waitTerminal(t, svc, id)
	if j.Status != domjob.StatusCompleted {
		t.Fatalf("expected completed, got %s: %s", j.Status, j.Error)
	}

	byAcc := map[string]int{}
	for i, h := range j.Result.Hits {
		byAcc[h.Accession] = i
	}
	hslv := j.Result.Hits[byAcc["P0A7B8"]]
	if hslv.GeneName != "hslV" || hslv.ProteinName != "ATP-dependent protease subunit HslV" {
		t.Errorf("expected names parsed from header, got %+v", hslv)
	}
	nudt := j.Result.Hits[byAcc["A0A024RBG1"]]
	if nudt.GeneName != "NUDT4B" || nudt.ProteinName == domid.UnknownProtein {
		t.Errorf("expected names parsed from gnl header, got %+v", nudt)
	}
}

func TestSubmit_NilIdentityUsesFallback(t *testing.T) {
	svc, _ := newService(t, newStore(t), &fixtureAligner{fixture: "testdata/blastp.xml"}, nil, nil)

	id, err := svc.Submit(context.Background(), domjob.Request{Sequence: protein50, Algorithm: "blastp"})
	if err != nil {
		t.Fatal(err)
	}
	if j := waitTerminal(t, svc, id); j.Status != domjob.StatusCompleted || j.Result.Hits[0].GeneName != "DNMT3A" {
		t.Fatalf("unexpected job: %s %+v", j.Status, j.Result)
	}
}

func TestSubmit_EmptyResult(t *testing.T) {
	svc, _ := newService(t, newStore(t), &fixtureAligner{fixture: "testdata/nohits.xml"}, sprotIdentity, nil)

	id, err := svc.Submit(context.Background(), domjob.Request{Sequence: protein50, Algorithm: "blastp"})
	if err != nil {
		t.Fatal(err)
	}
	j := waitTerminal(t, svc, id)
	if j.Status != domjob.StatusCompleted {
		t.Fatalf("expected completed, got %s: %s", j.Status, j.Error)
	}
	if j.Result.TotalHits != 0 || j.Result.Hits == nil || len(j.Result.Hits) != 0 {
		t.Errorf("expected empty non-nil hits, got %+v", j.Result.Hits)
	}
}

func TestSubmit_AlignerFailure(t *testing.T) {
	aligner := &fixtureAligner{err: &blast.ExecError{
		Tool: "blastp", Reason: blast.ReasonExit, ExitCode: 2,
		Stderr: "BLAST Database error: No alias or index file found",
	}}
	svc, tmp := newService(t, newStore(t), aligner, sprotIdentity, nil)

	id, err := svc.Submit(context.Background(), domjob.Request{Sequence: protein50, Algorithm: "blastp"})
	if err != nil {
		t.Fatal(err)
	}
	j := waitTerminal(t, svc, id)
	if j.Status != domjob.StatusFailed {
		t.Fatalf("expected failed, got %s", j.Status)
	}
	if !strings.Contains(j.Error, "No alias or index file found") {
		t.Errorf("expected stderr in error, got %q", j.Error)
	}
	if j.Result != nil {
		t.Error("failed job must not carry a result")
	}
	assertEmptyDir(t, tmp)
}

func TestSubmit_MalformedReport(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.xml")
	if err := os.WriteFile(bad, []byte("<html>502</html>"), 0o600); err != nil {
		t.Fatal(err)
	}
	svc, _ := newService(t, newStore(t), &fixtureAligner{fixture: bad}, sprotIdentity, nil)

	id, err := svc.Submit(context.Background(), domjob.Request{Sequence: protein50, Algorithm: "blastp"})
	if err != nil {
		t.Fatal(err)
	}
	j := waitTerminal(t, svc, id)
	if j.Status != domjob.StatusFailed || !strings.Contains(j.Error, domain.ErrParse.Error()) {
		t.Fatalf("expected parse failure, got %s: %q", j.Status, j.Error)
	}
}

func TestSubmit_ValidationCreatesNoJob(t *testing.T) {
	store := newStore(t)
	aligner := &fixtureAligner{fixture: "testdata/blastp.xml"}
	svc, _ := newService(t, store, aligner, sprotIdentity, nil)

	cases := []domjob.Request{
		{Sequence: "", Algorithm: "blastp"},
		{Sequence: protein50, Algorithm: "psiblast"},
		{Sequence: "MKT", Algorithm: "blastp"},
		{Sequence: protein50, Algorithm: "blastn"},
	}
	for _, req := range cases {
		if _, err := svc.Submit(context.Background(), req); !errors.Is(err, domain.ErrValidation) {
			t.Errorf("expected validation error for %+v, got %v", req, err)
		}
	}
	if n := len(store.List()); n != 0 {
		t.Errorf("expected no jobs, got %d", n)
	}
	if aligner.calls.Load() != 0 {
		t.Error("aligner must not run for rejected requests")
	}
}

func TestSubmit_IndexNotReady(t *testing.T) {
	store := newStore(t)
	svc := New(Config{TmpDir: t.TempDir()}, store, &fixtureAligner{}, nil,
		&mockIndex{err: domain.ErrIndexNotReady}, zap.NewNop())

	_, err := svc.Submit(context.Background(), domjob.Request{Sequence: protein50, Algorithm: "blastp"})
	if !errors.Is(err, domain.ErrIndexNotReady) {
		t.Fatalf("expected ErrIndexNotReady, got %v", err)
	}
	if len(store.List()) != 0 {
		t.Error("expected no job")
	}
}

func TestSubmit_BoundedConcurrency(t *testing.T) {
	aligner := &blockingAligner{release: make(chan struct{}), fixture: "testdata/nohits.xml"}
	svc, _ := newService(t, newStore(t), aligner, sprotIdentity, func(c *Config) { c.MaxConcurrent = 2 })

	ids := make([]string, 6)
	for i := range ids {
		id, err := svc.Submit(context.Background(), domjob.Request{Sequence: protein50, Algorithm: "blastp"})
		if err != nil {
			t.Fatal(err)
		}
		ids[i] = id
	}

	deadline := time.Now().Add(5 * time.Second)
	for aligner.running.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(50 * time.Millisecond)

	pending := 0
	for _, id := range ids {
		if j, _ := svc.Status(id); j.Status == domjob.StatusPending {
			pending++
		}
	}
	if pending != 4 {
		t.Errorf("expected 4 queued jobs, got %d", pending)
	}

	close(aligner.release)
	for _, id := range ids {
		if j := waitTerminal(t, svc, id); j.Status != domjob.StatusCompleted {
			t.Errorf("job %s: %s %s", id, j.Status, j.Error)
		}
	}
	if peak := aligner.peak.Load(); peak > 2 {
		t.Errorf("expected at most 2 concurrent aligners, saw %d", peak)
	}
}

func TestSubmit_JobDeadline(t *testing.T) {
	aligner := &blockingAligner{release: make(chan struct{})}
	svc, _ := newService(t, newStore(t), aligner, nil, func(c *Config) { c.JobTimeout = 50 * time.Millisecond })

	id, err := svc.Submit(context.Background(), domjob.Request{Sequence: protein50, Algorithm: "blastp"})
	if err != nil {
		t.Fatal(err)
	}
	j := waitTerminal(t, svc, id)
	if j.Status != domjob.StatusFailed || !strings.Contains(j.Error, "deadline") {
		t.Fatalf("expected deadline failure, got %s: %q", j.Status, j.Error)
	}
}

func TestShutdown_DrainsAndRejects(t *testing.T) {
	aligner := &blockingAligner{release: make(chan struct{}), fixture: "testdata/nohits.xml"}
	svc, _ := newService(t, newStore(t), aligner, nil, nil)

	id, err := svc.Submit(context.Background(), domjob.Request{Sequence: protein50, Algorithm: "blastp"})
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	var shutdownErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		shutdownErr = svc.Shutdown(ctx)
	}()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := svc.Submit(context.Background(), domjob.Request{Sequence: protein50, Algorithm: "blastp"}); errors.Is(err, domain.ErrShuttingDown) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	close(aligner.release)
	wg.Wait()
	if shutdownErr != nil {
		t.Fatalf("unexpected shutdown error: %v", shutdownErr)
	}
	if j, _ := svc.Status(id); j.Status != domjob.StatusCompleted {
		t.Errorf("in-flight job should complete, got %s", j.Status)
	}
	if _, err := svc.Submit(context.Background(), domjob.Request{Sequence: protein50, Algorithm: "blastp"}); !errors.Is(err, domain.ErrShuttingDown) {
		t.Errorf("expected ErrShuttingDown, got %v", err)
	}
}

func TestShutdown_TimeoutKillsRunningJobs(t *testing.T) {
	aligner := &blockingAligner{release: make(chan struct{})}
	svc, _ := newService(t, newStore(t), aligner, nil, func(c *Config) { c.JobTimeout = 0 })

	id, err := svc.Submit(context.Background(), domjob.Request{Sequence: protein50, Algorithm: "blastp"})
	if err != nil {
		t.Fatal(err)
	}
	for aligner.running.Load() == 0 {
		time.Sleep(5 * time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := svc.Shutdown(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
	if j, _ := svc.Status(id); j.Status != domjob.StatusFailed {
		t.Errorf("expected killed job to fail, got %s", j.Status)
	}
}

func TestList(t *testing.T) {
	svc, _ := newService(t, newStore(t), &fixtureAligner{fixture: "testdata/nohits.xml"}, nil, nil)
	for i := 0; i < 3; i++ {
		id, err := svc.Submit(context.Background(), domjob.Request{Sequence: protein50, Algorithm: "blastp"})
		if err != nil {
			t.Fatal(err)
		}
		waitTerminal(t, svc, id)
	}

	jobs, stats := svc.List()
	if len(jobs) != 3 || stats.Total != 3 || stats.ByStatus[domjob.StatusCompleted] != 3 {
		t.Errorf("unexpected listing: %d jobs, stats %+v", len(jobs), stats)
	}
}

// TestSubmit_WithRealRunner drives the pipeline through blast.Runner and a
// fake blastp executable.
func TestSubmit_WithRealRunner(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("fake tools are shell scripts")
	}
	bin := t.TempDir()
	fixture, err := filepath.Abs("testdata/blastp.xml")
	if err != nil {
		t.Fatal(err)
	}
	script := fmt.Sprintf(`#!/bin/sh
out=""
while [ $# -gt 0 ]; do
  if [ "$1" = "-out" ]; then out="$2"; fi
  shift
done
cp %q "$out"
`, fixture)
	if err := os.WriteFile(filepath.Join(bin, "blastp"), []byte(script), 0o755); err != nil { //nolint:gosec // test executable
		t.Fatal(err)
	}

	runner := blast.NewRunner(blast.Config{BinDir: bin, Timeout: 5 * time.Second, MaxOutput: 1 << 20})
	svc, tmp := newService(t, newStore(t), runner, sprotIdentity, nil)

	id, err := svc.Submit(context.Background(), domjob.Request{Sequence: ">q\n" + protein50, Algorithm: "blastp"})
	if err != nil {
		t.Fatal(err)
	}
	j := waitTerminal(t, svc, id)
	if j.Status != domjob.StatusCompleted || j.Result.TotalHits != 4 {
		t.Fatalf("unexpected job: %s %q", j.Status, j.Error)
	}
	assertEmptyDir(t, tmp)
}
