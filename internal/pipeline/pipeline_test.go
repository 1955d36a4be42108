package pipeline

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"palmreader/internal/adapter/repo"
	"palmreader/internal/canonical"
	"palmreader/internal/domain"
	"palmreader/internal/providers/completion"
)

var testNow = time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

var testRetention = domain.Retention{
	Palm:       24 * time.Hour,
	Numerology: 30 * 24 * time.Hour,
	Astrology:  24 * time.Hour,
	NoConsent:  time.Hour,
}

type memBlobs struct {
	mu      sync.Mutex
	data    map[string][]byte
	deleted []string
}

func newMemBlobs() *memBlobs { return &memBlobs{data: map[string][]byte{}} }

func (b *memBlobs) Write(ctx context.Context, key string, data []byte) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data[key] = data
	return key, nil
}

func (b *memBlobs) Read(ctx context.Context, key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.data[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return data, nil
}

func (b *memBlobs) Delete(ctx context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.data, key)
	b.deleted = append(b.deleted, key)
	return nil
}

func (b *memBlobs) has(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.data[key]
	return ok
}

type fixture struct {
	repo  *repo.JobRepositoryMemory
	blobs *memBlobs
	calls int
	reqs  []completion.Request
}

func newFixture() *fixture {
	return &fixture{repo: repo.NewMemoryJobRepository(), blobs: newMemBlobs()}
}

func (f *fixture) pipeline(t *testing.T, cfg Config, reply func(ctx context.Context, req completion.Request) (string, error)) *Pipeline {
	t.Helper()
	if cfg.Retention == (domain.Retention{}) {
		cfg.Retention = testRetention
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-test"
	}
	p, err := New(Options{
		Config: cfg,
		Repo:   f.repo,
		Blobs:  f.blobs,
		Completer: completion.CompleterFunc(func(ctx context.Context, req completion.Request) (string, error) {
			f.calls++
			f.reqs = append(f.reqs, req)
			return reply(ctx, req)
		}),
		Engine: canonical.New(canonical.WithJitter(canonical.NoJitter)),
		Now:    func() time.Time { return testNow },
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func (f *fixture) palmJob(t *testing.T, id string, consent bool) *domain.Job {
	t.Helper()
	key := "uploads/" + id + ".png"
	if _, err := f.blobs.Write(context.Background(), key, []byte{0x89, 'P', 'N', 'G'}); err != nil {
		t.Fatalf("write blob: %v", err)
	}
	return f.create(t, &domain.Job{
		ID:             id,
		Kind:           domain.KindPalm,
		Input:          domain.InputAttributes{ImageKey: key, ImageMIME: "image/png"},
		ConsentToStore: consent,
	})
}

func (f *fixture) create(t *testing.T, job *domain.Job) *domain.Job {
	t.Helper()
	job.CreatedAt = testNow.Add(-time.Minute)
	job.ExpiresAt = job.CreatedAt.Add(testRetention.For(job.Kind))
	if err := f.repo.Create(context.Background(), job); err != nil {
		t.Fatalf("create job: %v", err)
	}
	return job
}

func (f *fixture) get(t *testing.T, id string) *domain.Job {
	t.Helper()
	job, err := f.repo.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("GetByID(%s): %v", id, err)
	}
	return job
}

func quotaReply(ctx context.Context, req completion.Request) (string, error) {
	return "", domain.NewFailure(domain.ErrQuotaExhausted, "", errors.New("insufficient_quota: check your plan"))
}

func assertDone(t *testing.T, job *domain.Job) {
	t.Helper()
	if job.Status != domain.JobStatusDone {
		t.Fatalf("status = %s (error %q), want DONE", job.Status, job.ErrorMessage)
	}
	if job.Result == nil || job.ErrorMessage != "" {
		t.Fatalf("done job must carry only a result: result=%v error=%q", job.Result != nil, job.ErrorMessage)
	}
}

func assertFailed(t *testing.T, job *domain.Job) {
	t.Helper()
	if job.Status != domain.JobStatusFailed {
		t.Fatalf("status = %s, want FAILED", job.Status)
	}
	if job.Result != nil || job.ErrorMessage == "" {
		t.Fatalf("failed job must carry only a message: result=%v error=%q", job.Result != nil, job.ErrorMessage)
	}
}

func TestQuotaExhaustionFallsBackToMock(t *testing.T) {
	f := newFixture()
	job := f.palmJob(t, "job-quota", false)
	p := f.pipeline(t, Config{MockFallbackEnabled: true}, quotaReply)

	if err := p.Execute(context.Background(), job.ID); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	got := f.get(t, job.ID)
	assertDone(t, got)
	if got.Result.ModelVersion != MockModelVersion {
		t.Fatalf("ModelVersion = %q, want %q", got.Result.ModelVersion, MockModelVersion)
	}
	if !strings.Contains(got.RawModelOutput, "palm_lines") {
		t.Fatalf("raw output should hold the fallback payload, got %q", got.RawModelOutput)
	}
	if len(got.Result.Lines) != 4 || len(got.Result.Predictions) < 4 {
		t.Fatalf("fallback result incomplete: %+v", got.Result)
	}
	if f.calls != 1 {
		t.Fatalf("completer calls = %d, want 1", f.calls)
	}
}

func TestQuotaWithoutFallbackFails(t *testing.T) {
	f := newFixture()
	job := f.palmJob(t, "job-no-fallback", true)
	p := f.pipeline(t, Config{MockFallbackEnabled: false}, quotaReply)

	if err := p.Execute(context.Background(), job.ID); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	got := f.get(t, job.ID)
	assertFailed(t, got)
	if strings.Contains(got.ErrorMessage, "insufficient_quota") {
		t.Fatalf("provider text leaked into message: %q", got.ErrorMessage)
	}
}

func TestModelPathRecordsVersionAndRequest(t *testing.T) {
	f := newFixture()
	job := f.palmJob(t, "job-model", true)
	raw := "Here you go:\n```json\n{\"palm_lines\": {\"fate_line\": {\"strength\": \"Absent\"}}}\n```"
	p := f.pipeline(t, Config{MockFallbackEnabled: true}, func(ctx context.Context, req completion.Request) (string, error) {
		return raw, nil
	})

	if err := p.Execute(context.Background(), job.ID); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	got := f.get(t, job.ID)
	assertDone(t, got)
	if got.Result.ModelVersion != "2.0/gpt-test" {
		t.Fatalf("ModelVersion = %q", got.Result.ModelVersion)
	}
	if got.RawModelOutput != raw {
		t.Fatalf("RawModelOutput = %q", got.RawModelOutput)
	}
	fate := got.Result.Lines[domain.LineFate]
	if fate.Quality != domain.QualityAbsent || fate.Score != 0 {
		t.Fatalf("fateLine = %+v, want absent with score 0", fate)
	}

	req := f.reqs[0]
	if req.Temperature != palmTemperature || req.MaxTokens != defaultMaxTokens || !req.JSONMode {
		t.Fatalf("unexpected call settings: %+v", req)
	}
	if !strings.HasPrefix(req.ImageDataURL, "data:image/png;base64,") {
		t.Fatalf("ImageDataURL = %q", req.ImageDataURL)
	}
	if req.Model != "gpt-test" {
		t.Fatalf("Model = %q", req.Model)
	}
}

func TestSecondExecuteOnDoneJobIsNoop(t *testing.T) {
	f := newFixture()
	job := f.palmJob(t, "job-twice", false)
	p := f.pipeline(t, Config{MockFallbackEnabled: true}, quotaReply)

	if err := p.Execute(context.Background(), job.ID); err != nil {
		t.Fatalf("first Execute: %v", err)
	}
	first := f.get(t, job.ID)

	p.now = func() time.Time { return testNow.Add(time.Hour) }
	if err := p.Execute(context.Background(), job.ID); err != nil {
		t.Fatalf("second Execute: %v", err)
	}
	second := f.get(t, job.ID)
	if f.calls != 1 {
		t.Fatalf("completer calls = %d, want 1", f.calls)
	}
	if !second.ExpiresAt.Equal(first.ExpiresAt) {
		t.Fatalf("ExpiresAt changed: %s -> %s", first.ExpiresAt, second.ExpiresAt)
	}
	if !reflect.DeepEqual(first.Result, second.Result) {
		t.Fatal("result changed on second execution")
	}
}

func TestConsentControlsExpiry(t *testing.T) {
	f := newFixture()
	p := f.pipeline(t, Config{ForceMock: true}, quotaReply)

	withConsent := f.palmJob(t, "job-consent", true)
	without := f.palmJob(t, "job-no-consent", false)
	for _, id := range []string{withConsent.ID, without.ID} {
		if err := p.Execute(context.Background(), id); err != nil {
			t.Fatalf("Execute(%s): %v", id, err)
		}
	}

	kept := f.get(t, withConsent.ID)
	if !kept.ExpiresAt.Equal(withConsent.ExpiresAt) {
		t.Fatalf("consented expiry = %s, want creation default %s", kept.ExpiresAt, withConsent.ExpiresAt)
	}
	short := f.get(t, without.ID)
	want := testNow.Add(testRetention.NoConsent)
	if !short.ExpiresAt.Equal(want) {
		t.Fatalf("no-consent expiry = %s, want %s", short.ExpiresAt, want)
	}
	if !short.ExpiresAt.Before(kept.ExpiresAt) {
		t.Fatal("no-consent expiry must be shorter than the default")
	}
}

func TestStageFailuresAreTerminal(t *testing.T) {
	cases := []struct {
		name    string
		reply   func(ctx context.Context, req completion.Request) (string, error)
		message string
	}{
		{
			name: "model rejected",
			reply: func(ctx context.Context, req completion.Request) (string, error) {
				return `{"error": "not a palm"}`, nil
			},
			message: "could not be analyzed",
		},
		{
			name: "unparseable",
			reply: func(ctx context.Context, req completion.Request) (string, error) {
				return "the stars are silent today", nil
			},
			message: "could not be interpreted",
		},
		{
			name: "refusal",
			reply: func(ctx context.Context, req completion.Request) (string, error) {
				return "I'm sorry, this is not a palm.", nil
			},
			message: "unable to analyze",
		},
		{
			name: "rate limited",
			reply: func(ctx context.Context, req completion.Request) (string, error) {
				return "", domain.NewFailure(domain.ErrRateLimited, "", errors.New("try again in 2s"))
			},
			message: "busy",
		},
		{
			name: "transport",
			reply: func(ctx context.Context, req completion.Request) (string, error) {
				return "", domain.NewFailure(domain.ErrTransport, "", errors.New("dial tcp: connection refused"))
			},
			message: "failed unexpectedly",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture()
			job := f.palmJob(t, "job-"+strings.ReplaceAll(tc.name, " ", "-"), true)
			p := f.pipeline(t, Config{MockFallbackEnabled: true}, tc.reply)
			if err := p.Execute(context.Background(), job.ID); err != nil {
				t.Fatalf("Execute: %v", err)
			}
			got := f.get(t, job.ID)
			assertFailed(t, got)
			if !strings.Contains(got.ErrorMessage, tc.message) {
				t.Fatalf("ErrorMessage = %q, want it to mention %q", got.ErrorMessage, tc.message)
			}
			if got.Input.ImageKey != "" || f.blobs.has(job.Input.ImageKey) {
				t.Fatal("image must be removed on failure")
			}
		})
	}
}

func TestPanicForcesFailedAndCleansUp(t *testing.T) {
	f := newFixture()
	job := f.palmJob(t, "job-panic", true)
	p := f.pipeline(t, Config{}, func(ctx context.Context, req completion.Request) (string, error) {
		panic("provider exploded")
	})

	if err := p.Execute(context.Background(), job.ID); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	got := f.get(t, job.ID)
	assertFailed(t, got)
	if strings.Contains(got.ErrorMessage, "exploded") {
		t.Fatalf("panic text leaked into message: %q", got.ErrorMessage)
	}
	if got.Input.ImageKey != "" {
		t.Fatalf("ImageKey = %q, want cleared", got.Input.ImageKey)
	}
	if f.blobs.has(job.Input.ImageKey) {
		t.Fatal("blob still present after panic")
	}
}

func TestErrorMessageIsTruncated(t *testing.T) {
	f := newFixture()
	job := f.palmJob(t, "job-long", true)
	long := strings.Repeat("é", MaxErrorMessage+500)
	p := f.pipeline(t, Config{}, func(ctx context.Context, req completion.Request) (string, error) {
		return "", domain.NewFailure(domain.ErrTransport, long, nil)
	})

	if err := p.Execute(context.Background(), job.ID); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	got := f.get(t, job.ID)
	assertFailed(t, got)
	if n := utf8.RuneCountInString(got.ErrorMessage); n != MaxErrorMessage {
		t.Fatalf("message length = %d runes, want %d", n, MaxErrorMessage)
	}
	if !utf8.ValidString(got.ErrorMessage) {
		t.Fatal("truncated message is not valid UTF-8")
	}
}

func TestForceMockSkipsCompleter(t *testing.T) {
	f := newFixture()
	job := f.create(t, &domain.Job{
		ID:    "job-numerology",
		Kind:  domain.KindNumerology,
		Input: domain.InputAttributes{FullName: "Ada Lovelace", BirthDate: "1815-12-10"},
	})
	p := f.pipeline(t, Config{ForceMock: true}, quotaReply)

	if err := p.Execute(context.Background(), job.ID); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	got := f.get(t, job.ID)
	assertDone(t, got)
	if f.calls != 0 {
		t.Fatalf("completer calls = %d, want 0", f.calls)
	}
	if got.Result.Numerology == nil || got.Result.Numerology.LifePath == 0 {
		t.Fatalf("numerology profile missing: %+v", got.Result.Numerology)
	}
	if got.Result.ModelVersion != MockModelVersion {
		t.Fatalf("ModelVersion = %q", got.Result.ModelVersion)
	}
}

// brokenWrites fails every terminal write, as a lost database connection would.
type brokenWrites struct {
	*repo.JobRepositoryMemory
}

func (brokenWrites) Complete(ctx context.Context, jobID string, c domain.Completion) error {
	return errors.New("connection reset")
}

func (brokenWrites) Fail(ctx context.Context, jobID string, message string, at time.Time) error {
	return errors.New("connection reset")
}

func TestUnrecordedOutcomeLeavesJobForStaleSweep(t *testing.T) {
	f := newFixture()
	job := f.create(t, &domain.Job{
		ID:    "job-lost-write",
		Kind:  domain.KindNumerology,
		Input: domain.InputAttributes{FullName: "Ada Lovelace", BirthDate: "1815-12-10"},
	})
	p, err := New(Options{
		Config:    Config{ForceMock: true, Retention: testRetention, Model: "gpt-test"},
		Repo:      brokenWrites{f.repo},
		Completer: completion.CompleterFunc(quotaReply),
		Blobs:     f.blobs,
		Engine:    canonical.New(canonical.WithJitter(canonical.NoJitter)),
		Now:       func() time.Time { return testNow },
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := p.Execute(context.Background(), job.ID); err == nil {
		t.Fatal("Execute should report the unrecorded outcome")
	}
	if got := f.get(t, job.ID); got.Status != domain.JobStatusProcessing {
		t.Fatalf("status = %s, want PROCESSING", got.Status)
	}

	ids, err := f.repo.FailStale(context.Background(), testNow.Add(time.Minute), "took too long", testNow.Add(time.Hour), 10)
	if err != nil {
		t.Fatalf("FailStale: %v", err)
	}
	if len(ids) != 1 || ids[0] != job.ID {
		t.Fatalf("stale ids = %v", ids)
	}
	assertFailed(t, f.get(t, job.ID))
}

func TestFallbackIsDeterministicPerJob(t *testing.T) {
	run := func() *domain.Result {
		f := newFixture()
		job := f.create(t, &domain.Job{
			ID:    "job-astro",
			Kind:  domain.KindAstrology,
			Input: domain.InputAttributes{FullName: "Grace Hopper", BirthDate: "1906-12-09", BirthTime: "08:15"},
		})
		p, err := New(Options{
			Config:    Config{Model: "gpt-test", Retention: testRetention, ForceMock: true},
			Repo:      f.repo,
			Completer: completion.CompleterFunc(quotaReply),
			Now:       func() time.Time { return testNow },
		})
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		if err := p.Execute(context.Background(), job.ID); err != nil {
			t.Fatalf("Execute: %v", err)
		}
		return f.get(t, job.ID).Result
	}
	first, second := run(), run()
	if !reflect.DeepEqual(first, second) {
		t.Fatal("fallback readings for the same job id differ")
	}
	if first.Chart == nil || first.Chart.SunSign != "Sagittarius" {
		t.Fatalf("chart = %+v, want Sagittarius sun", first.Chart)
	}
}

func TestInvalidBirthDateFails(t *testing.T) {
	f := newFixture()
	job := f.create(t, &domain.Job{
		ID:    "job-bad-date",
		Kind:  domain.KindAstrology,
		Input: domain.InputAttributes{FullName: "Someone", BirthDate: "10/12/1990"},
	})
	p := f.pipeline(t, Config{MockFallbackEnabled: true}, quotaReply)

	if err := p.Execute(context.Background(), job.ID); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	got := f.get(t, job.ID)
	assertFailed(t, got)
	if !strings.Contains(got.ErrorMessage, "birth date") {
		t.Fatalf("ErrorMessage = %q", got.ErrorMessage)
	}
	if f.calls != 0 {
		t.Fatalf("completer calls = %d, want 0", f.calls)
	}
}

func TestAPIKeyIsPassedThroughContext(t *testing.T) {
	f := newFixture()
	job := f.create(t, &domain.Job{
		ID:    "job-key",
		Kind:  domain.KindNumerology,
		Input: domain.InputAttributes{FullName: "Ada Lovelace", BirthDate: "1815-12-10"},
	})
	var seen string
	p, err := New(Options{
		Config: Config{Model: "gpt-test", Retention: testRetention},
		Repo:   f.repo,
		Completer: completion.CompleterFunc(func(ctx context.Context, req completion.Request) (string, error) {
			seen = completion.APIKeyFromContext(ctx)
			if !strings.Contains(req.Prompt, "Ada Lovelace") || req.Temperature != defaultTemperature {
				t.Errorf("unexpected request: %+v", req)
			}
			return `{"core_numbers": {"life_path": {"number": 5}}}`, nil
		}),
		APIKey: func(ctx context.Context) (string, error) { return "sk-stored", nil },
		Now:    func() time.Time { return testNow },
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := p.Execute(context.Background(), job.ID); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if seen != "sk-stored" {
		t.Fatalf("api key in context = %q", seen)
	}
	assertDone(t, f.get(t, job.ID))
}

func TestExecuteUnknownJobIsNoop(t *testing.T) {
	f := newFixture()
	p := f.pipeline(t, Config{}, quotaReply)
	if err := p.Execute(context.Background(), "missing"); err != nil {
		t.Fatalf("Execute on unknown job: %v", err)
	}
}

func TestTruncateMessageIsRuneSafe(t *testing.T) {
	t.Parallel()
	if got := truncateMessage("héllo", 2); got != "hé" {
		t.Fatalf("truncateMessage = %q", got)
	}
	if got := truncateMessage("short", 10); got != "short" {
		t.Fatalf("truncateMessage = %q", got)
	}
}
