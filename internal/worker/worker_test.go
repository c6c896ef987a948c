package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/kehsibha/walter/internal/ingest"
	"github.com/kehsibha/walter/internal/models"
	"github.com/kehsibha/walter/internal/services"
)

// ---------------------------------------------------------------------------
// In-memory fakes
// ---------------------------------------------------------------------------

type progressRecord struct {
	Step     string
	Progress int
}

type fakeStore struct {
	mu          sync.Mutex
	jobs        map[uuid.UUID]*models.Job
	events      []models.JobEvent
	progress    []progressRecord
	prefs       map[uuid.UUID][]models.Preference
	articles    []models.Article
	summaries   int
	videos      []models.Video
	userContent int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		jobs:  make(map[uuid.UUID]*models.Job),
		prefs: make(map[uuid.UUID][]models.Preference),
	}
}

func (f *fakeStore) addJob(owner uuid.UUID) *models.Job {
	f.mu.Lock()
	defer f.mu.Unlock()
	job := &models.Job{ID: uuid.New(), Owner: owner, Status: models.JobStatusQueued, CreatedAt: time.Now()}
	f.jobs[job.ID] = job
	return job
}

func (f *fakeStore) FindOldestQueuedJob(ctx context.Context) (*models.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var oldest *models.Job
	for _, j := range f.jobs {
		if j.Status != models.JobStatusQueued {
			continue
		}
		if oldest == nil || j.CreatedAt.Before(oldest.CreatedAt) {
			oldest = j
		}
	}
	return oldest, nil
}

func (f *fakeStore) ClaimJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok || job.Status != models.JobStatusQueued {
		return nil, nil
	}
	now := time.Now()
	job.Status = models.JobStatusRunning
	job.StartedAt = &now
	copied := *job
	return &copied, nil
}

func (f *fakeStore) UpdateJobProgress(ctx context.Context, id uuid.UUID, step string, progress int, payload models.JSONB) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	job := f.jobs[id]
	job.Step = &step
	job.Progress = progress
	job.Payload = payload
	f.progress = append(f.progress, progressRecord{Step: step, Progress: progress})
	return nil
}

func (f *fakeStore) AppendJobEvent(ctx context.Context, jobID uuid.UUID, kind models.EventKind, message string, items []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, models.JobEvent{
		ID: int64(len(f.events) + 1), JobID: jobID, Kind: kind, Message: message, Items: items, CreatedAt: time.Now(),
	})
	return nil
}

func (f *fakeStore) FinalizeJob(ctx context.Context, id uuid.UUID, status models.JobStatus, errMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	job := f.jobs[id]
	job.Status = status
	job.Progress = 100
	now := time.Now()
	job.FinishedAt = &now
	if errMsg != "" {
		job.Error = &errMsg
	}
	return nil
}

func (f *fakeStore) GetPreferences(ctx context.Context, owner uuid.UUID) ([]models.Preference, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.prefs[owner], nil
}

func (f *fakeStore) RecentArticles(ctx context.Context, limit int) ([]models.Article, error) {
	return f.articles, nil
}

func (f *fakeStore) InsertSummary(ctx context.Context, summary *models.NewsSummary) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.summaries++
	return uuid.New(), nil
}

func (f *fakeStore) InsertVideo(ctx context.Context, video *models.Video) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v := *video
	v.ID = uuid.New()
	f.videos = append(f.videos, v)
	return v.ID, nil
}

func (f *fakeStore) InsertUserContent(ctx context.Context, owner, videoID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.userContent++
	return nil
}

type fakeIngester struct{ calls int }

func (f *fakeIngester) Run(ctx context.Context) (*ingest.Result, error) {
	f.calls++
	return &ingest.Result{InsertedOrUpdated: 4, SampleHeadlines: []string{"Rates hold", "Chips rally"}}, nil
}

type fakeSearcher struct{ calls int }

func (f *fakeSearcher) SearchNews(ctx context.Context, topic string, days, numResults int) ([]services.ExaSource, error) {
	f.calls++
	return []services.ExaSource{
		{Title: "Search hit for " + topic, URL: "https://news.example/" + topic, Text: "body"},
	}, nil
}

type fakeSummarizer struct{}

func (f *fakeSummarizer) GenerateNewsSummary(ctx context.Context, pkg *models.ResearchPackage) (*models.NewsSummary, error) {
	return &models.NewsSummary{
		Headline: "Headline: " + pkg.Topic,
		Lede:     "Lede",
		KeyFacts: []string{"fact"},
		Sources:  []models.SummarySource{{Title: "t", URL: "https://x/1"}},
	}, nil
}

func (f *fakeSummarizer) GenerateVideoScript(ctx context.Context, summary *models.NewsSummary) (*models.VideoScript, error) {
	return &models.VideoScript{
		DurationSecondsTarget: 25,
		Voiceover:             "A short narration about the day's news.",
		Scenes: []models.Scene{
			{Seconds: 5, Description: "opening"},
			{Seconds: 5, Description: "middle"},
			{Seconds: 5, Description: "close"},
		},
	}, nil
}

type fakeClipProducer struct {
	sceneCalls  int
	anchorCalls int
}

func (f *fakeClipProducer) GenerateSceneClips(ctx context.Context, script *models.VideoScript) ([]models.Clip, error) {
	f.sceneCalls++
	clips := make([]models.Clip, len(script.Scenes))
	for i := range script.Scenes {
		clips[i] = models.Clip{Index: i, URL: fmt.Sprintf("https://clips.example/scene-%d.mp4", i)}
	}
	return clips, nil
}

func (f *fakeClipProducer) GenerateAnchorClips(ctx context.Context, voiceover string) ([]models.Clip, error) {
	f.anchorCalls++
	return []models.Clip{
		{Index: 0, URL: "https://clips.example/chunk-0.mp4"},
		{Index: 1, URL: "https://clips.example/chunk-1.mp4"},
	}, nil
}

type fakeSpeech struct{ calls int }

func (f *fakeSpeech) Synthesize(ctx context.Context, text string) (*services.SpeechResult, error) {
	f.calls++
	return &services.SpeechResult{Audio: []byte("mp3-bytes"), Format: "mp3"}, nil
}

type fakeAssembler struct {
	lastOpts services.AssembleOptions
	lastURLs []string
	err      error
}

func (f *fakeAssembler) Assemble(ctx context.Context, clipURLs []string, opts services.AssembleOptions) (*services.AssembledMedia, error) {
	f.lastOpts = opts
	f.lastURLs = clipURLs
	if f.err != nil {
		return nil, f.err
	}
	return &services.AssembledMedia{Video: []byte("mp4"), Thumbnail: []byte("png"), DurationSeconds: 24}, nil
}

type fakeUploader struct{ err error }

func (f *fakeUploader) Upload(ctx context.Context, bucket, path string, data []byte, contentType string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "https://storage.example/" + bucket + "/" + path, nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

type fixture struct {
	store     *fakeStore
	ingester  *fakeIngester
	searcher  *fakeSearcher
	clips     *fakeClipProducer
	speech    *fakeSpeech
	assembler *fakeAssembler
	uploader  *fakeUploader
	worker    *Worker
}

func newFixture(mode models.PipelineMode) *fixture {
	f := &fixture{
		store:     newFakeStore(),
		ingester:  &fakeIngester{},
		searcher:  &fakeSearcher{},
		clips:     &fakeClipProducer{},
		speech:    &fakeSpeech{},
		assembler: &fakeAssembler{},
		uploader:  &fakeUploader{},
	}
	f.worker = New(
		f.store, nil, f.ingester, f.searcher, &fakeSummarizer{}, f.clips, f.speech,
		f.assembler, f.uploader,
		services.NewRedactor([]string{"supersecretkey"}),
		Options{Mode: mode, MaxTopics: 5, VideoBucket: "videos", ThumbnailBucket: "thumbnails"},
	)
	return f
}

func seedOwner(store *fakeStore) uuid.UUID {
	owner := uuid.New()
	store.prefs[owner] = []models.Preference{
		{Topic: "AI policy", Priority: 9},
		{Topic: "Local housing", Priority: 5},
	}
	return owner
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestClaimExclusivity(t *testing.T) {
	store := newFakeStore()
	job := store.addJob(uuid.New())

	const n = 32
	var wg sync.WaitGroup
	winners := make(chan *models.Job, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			claimed, err := store.ClaimJob(context.Background(), job.ID)
			if err != nil {
				t.Errorf("claim error: %v", err)
				return
			}
			if claimed != nil {
				winners <- claimed
			}
		}()
	}
	wg.Wait()
	close(winners)

	var count int
	for range winners {
		count++
	}
	if count != 1 {
		t.Fatalf("expected exactly one claim winner, got %d", count)
	}
}

func TestSceneModeJobSucceeds(t *testing.T) {
	f := newFixture(models.ModeScene)
	owner := seedOwner(f.store)
	job := f.store.addJob(owner)

	claimed, _ := f.store.ClaimJob(context.Background(), job.ID)
	f.worker.process(context.Background(), claimed)

	got := f.store.jobs[job.ID]
	if got.Status != models.JobStatusSucceeded {
		t.Fatalf("expected succeeded, got %s (error: %v)", got.Status, got.Error)
	}
	if got.Progress != 100 {
		t.Errorf("final progress = %d", got.Progress)
	}
	if f.store.userContent != 2 {
		t.Errorf("expected one content row per topic, got %d", f.store.userContent)
	}
	if f.speech.calls != 2 {
		t.Errorf("scene mode should synthesize one voiceover per topic, got %d", f.speech.calls)
	}
	if len(f.assembler.lastOpts.Voiceover) == 0 {
		t.Errorf("scene mode should hand a separate voiceover to assembly")
	}
	if len(f.assembler.lastURLs) != 3 {
		t.Errorf("expected 3 scene clip URLs, got %v", f.assembler.lastURLs)
	}

	last := f.store.events[len(f.store.events)-1]
	if last.Kind != models.EventDone {
		t.Errorf("last event should be done, got %s", last.Kind)
	}
}

func TestAnchorModeSkipsVoiceStage(t *testing.T) {
	f := newFixture(models.ModeAnchor)
	owner := seedOwner(f.store)
	job := f.store.addJob(owner)

	claimed, _ := f.store.ClaimJob(context.Background(), job.ID)
	f.worker.process(context.Background(), claimed)

	got := f.store.jobs[job.ID]
	if got.Status != models.JobStatusSucceeded {
		t.Fatalf("expected succeeded, got %s (error: %v)", got.Status, got.Error)
	}
	if f.speech.calls != 0 {
		t.Errorf("anchor mode must not synthesize a separate voiceover")
	}
	if f.clips.anchorCalls != 2 || f.clips.sceneCalls != 0 {
		t.Errorf("anchor mode should use anchor clips only (anchor=%d scene=%d)", f.clips.anchorCalls, f.clips.sceneCalls)
	}
	if len(f.assembler.lastOpts.Voiceover) != 0 {
		t.Errorf("anchor mode should not pass a separate audio track to assembly")
	}
	for _, e := range f.store.events {
		if e.Kind == models.EventVoice {
			t.Errorf("anchor mode should emit no voice events, got %q", e.Message)
		}
	}
}

func TestProgressMonotonicity(t *testing.T) {
	f := newFixture(models.ModeScene)
	owner := seedOwner(f.store)
	job := f.store.addJob(owner)

	claimed, _ := f.store.ClaimJob(context.Background(), job.ID)
	f.worker.process(context.Background(), claimed)

	prev := -1
	for i, rec := range f.store.progress {
		if rec.Progress < prev {
			t.Fatalf("progress regressed at update %d: %d -> %d (step %s)", i, prev, rec.Progress, rec.Step)
		}
		prev = rec.Progress
	}
	if prev > 100 {
		t.Errorf("progress exceeded 100: %d", prev)
	}
}

func TestProgressMonotonicityManyTopics(t *testing.T) {
	for _, n := range []int{3, 4, 5} {
		f := newFixture(models.ModeScene)
		owner := uuid.New()
		prefs := make([]models.Preference, n)
		for i := range prefs {
			cat := fmt.Sprintf("category-%d", i)
			prefs[i] = models.Preference{Topic: fmt.Sprintf("Topic %d", i), Category: &cat, Priority: 9 - i}
		}
		f.store.prefs[owner] = prefs
		job := f.store.addJob(owner)

		claimed, _ := f.store.ClaimJob(context.Background(), job.ID)
		f.worker.process(context.Background(), claimed)

		if got := f.store.jobs[job.ID].Status; got != models.JobStatusSucceeded {
			t.Fatalf("%d topics: expected succeeded, got %s", n, got)
		}
		prev := -1
		for i, rec := range f.store.progress {
			if rec.Progress < prev {
				t.Fatalf("%d topics: progress regressed at update %d: %d -> %d (step %s)", n, i, prev, rec.Progress, rec.Step)
			}
			if rec.Progress > 100 {
				t.Fatalf("%d topics: progress exceeded 100 at step %s: %d", n, rec.Step, rec.Progress)
			}
			prev = rec.Progress
		}
	}
}

func TestZeroPreferencesFailsBeforeExternalCalls(t *testing.T) {
	f := newFixture(models.ModeScene)
	job := f.store.addJob(uuid.New()) // owner with no preferences

	claimed, _ := f.store.ClaimJob(context.Background(), job.ID)
	f.worker.process(context.Background(), claimed)

	got := f.store.jobs[job.ID]
	if got.Status != models.JobStatusFailed {
		t.Fatalf("expected failed, got %s", got.Status)
	}
	if got.Error == nil || !strings.Contains(*got.Error, "preferences") {
		t.Errorf("error should mention missing preferences, got %v", got.Error)
	}
	if f.ingester.calls != 0 || f.searcher.calls != 0 {
		t.Errorf("no external call should happen before the precondition check (ingest=%d search=%d)", f.ingester.calls, f.searcher.calls)
	}

	last := f.store.events[len(f.store.events)-1]
	if last.Kind != models.EventError {
		t.Errorf("last event should be error, got %s", last.Kind)
	}
}

func TestAssemblyFailureFreezesStepAndFailsJob(t *testing.T) {
	f := newFixture(models.ModeScene)
	f.assembler.err = errors.New("clip download failed: 3 of 3")
	owner := seedOwner(f.store)
	job := f.store.addJob(owner)

	claimed, _ := f.store.ClaimJob(context.Background(), job.ID)
	f.worker.process(context.Background(), claimed)

	got := f.store.jobs[job.ID]
	if got.Status != models.JobStatusFailed {
		t.Fatalf("expected failed, got %s", got.Status)
	}
	if got.Step == nil || !strings.HasPrefix(*got.Step, "assemble:") {
		t.Errorf("step should be frozen at assemble:<topic>, got %v", got.Step)
	}
	if f.store.userContent != 0 {
		t.Errorf("no content row should exist after a failed assembly")
	}
}

func TestErrorsAreRedacted(t *testing.T) {
	f := newFixture(models.ModeScene)
	f.uploader.err = errors.New("upload rejected: Authorization: Bearer supersecretkey")
	owner := seedOwner(f.store)
	job := f.store.addJob(owner)

	claimed, _ := f.store.ClaimJob(context.Background(), job.ID)
	f.worker.process(context.Background(), claimed)

	got := f.store.jobs[job.ID]
	if got.Status != models.JobStatusFailed {
		t.Fatalf("expected failed, got %s", got.Status)
	}
	if got.Error == nil {
		t.Fatal("error message missing")
	}
	if strings.Contains(*got.Error, "supersecretkey") {
		t.Errorf("secret leaked into job error: %q", *got.Error)
	}
	if !strings.Contains(*got.Error, "[REDACTED]") {
		t.Errorf("redaction marker missing: %q", *got.Error)
	}
	for _, e := range f.store.events {
		if strings.Contains(e.Message, "supersecretkey") {
			t.Errorf("secret leaked into event: %q", e.Message)
		}
	}
}

func TestLostClaimIsSkipped(t *testing.T) {
	store := newFakeStore()
	job := store.addJob(uuid.New())

	first, err := store.ClaimJob(context.Background(), job.ID)
	if err != nil || first == nil {
		t.Fatalf("first claim should win: %v %v", first, err)
	}
	second, err := store.ClaimJob(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("second claim errored: %v", err)
	}
	if second != nil {
		t.Fatal("second claim should observe no job")
	}
}

func TestEventSamplesAreBounded(t *testing.T) {
	f := newFixture(models.ModeScene)
	owner := seedOwner(f.store)
	job := f.store.addJob(owner)

	claimed, _ := f.store.ClaimJob(context.Background(), job.ID)
	f.worker.process(context.Background(), claimed)

	for _, e := range f.store.events {
		if len(e.Items) > 10 {
			t.Errorf("event %q carries %d items; samples must stay bounded", e.Message, len(e.Items))
		}
	}
}
