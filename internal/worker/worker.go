package worker

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/kehsibha/walter/internal/ingest"
	"github.com/kehsibha/walter/internal/models"
	"github.com/kehsibha/walter/internal/queue"
	"github.com/kehsibha/walter/internal/research"
	"github.com/kehsibha/walter/internal/services"
	"github.com/kehsibha/walter/internal/topics"
)

// Store is the persistence surface the worker drives. *db.DB implements it;
// tests substitute an in-memory fake.
type Store interface {
	FindOldestQueuedJob(ctx context.Context) (*models.Job, error)
	ClaimJob(ctx context.Context, id uuid.UUID) (*models.Job, error)
	UpdateJobProgress(ctx context.Context, id uuid.UUID, step string, progress int, payload models.JSONB) error
	AppendJobEvent(ctx context.Context, jobID uuid.UUID, kind models.EventKind, message string, items []string) error
	FinalizeJob(ctx context.Context, id uuid.UUID, status models.JobStatus, errMsg string) error
	GetPreferences(ctx context.Context, owner uuid.UUID) ([]models.Preference, error)
	RecentArticles(ctx context.Context, limit int) ([]models.Article, error)
	InsertSummary(ctx context.Context, summary *models.NewsSummary) (uuid.UUID, error)
	InsertVideo(ctx context.Context, video *models.Video) (uuid.UUID, error)
	InsertUserContent(ctx context.Context, owner, videoID uuid.UUID) error
}

// Ingester refreshes the local article pool before topic work begins.
type Ingester interface {
	Run(ctx context.Context) (*ingest.Result, error)
}

// Summarizer produces the structured summary and the video script.
type Summarizer interface {
	GenerateNewsSummary(ctx context.Context, pkg *models.ResearchPackage) (*models.NewsSummary, error)
	GenerateVideoScript(ctx context.Context, summary *models.NewsSummary) (*models.VideoScript, error)
}

// ClipProducer renders video clips for either operating mode.
type ClipProducer interface {
	GenerateSceneClips(ctx context.Context, script *models.VideoScript) ([]models.Clip, error)
	GenerateAnchorClips(ctx context.Context, voiceover string) ([]models.Clip, error)
}

// Assembler stitches clips into the final video and thumbnail.
type Assembler interface {
	Assemble(ctx context.Context, clipURLs []string, opts services.AssembleOptions) (*services.AssembledMedia, error)
}

// Uploader persists a finished asset and returns its public URL.
type Uploader interface {
	Upload(ctx context.Context, bucket, path string, data []byte, contentType string) (string, error)
}

// Options carries the worker's tuning knobs from configuration.
type Options struct {
	Mode            models.PipelineMode
	MaxTopics       int
	ExaDays         int
	ExaNumResults   int
	MaxRSSArticles  int
	PollInterval    time.Duration
	VideoBucket     string
	ThumbnailBucket string
}

// Worker claims queued jobs one at a time and runs the full generation
// pipeline for each. All stage failures are fatal to the job, never to the
// loop.
type Worker struct {
	store      Store
	queue      *queue.Queue // optional wake-up nudge; nil means pure polling
	ingester   Ingester
	searcher   research.Searcher
	summarizer Summarizer
	uploader   Uploader
	assembler  Assembler
	strategy   clipStrategy
	redactor   *services.Redactor
	opts       Options
}

func New(
	store Store,
	q *queue.Queue,
	ingester Ingester,
	searcher research.Searcher,
	summarizer Summarizer,
	clips ClipProducer,
	speech services.SpeechService,
	assembler Assembler,
	uploader Uploader,
	redactor *services.Redactor,
	opts Options,
) *Worker {
	if opts.MaxTopics <= 0 {
		opts.MaxTopics = 5
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}

	var strategy clipStrategy
	if opts.Mode == models.ModeAnchor {
		strategy = &anchorStrategy{clips: clips}
	} else {
		strategy = &sceneStrategy{clips: clips, speech: speech}
	}

	return &Worker{
		store:      store,
		queue:      q,
		ingester:   ingester,
		searcher:   searcher,
		summarizer: summarizer,
		uploader:   uploader,
		assembler:  assembler,
		strategy:   strategy,
		redactor:   redactor,
		opts:       opts,
	}
}

// Start polls for queued jobs until ctx is cancelled. Store errors are logged
// and retried after a bounded backoff; they never stop the loop.
func (w *Worker) Start(ctx context.Context) {
	log.Printf("[Worker] Started (mode=%s, maxTopics=%d, poll=%v)", w.opts.Mode, w.opts.MaxTopics, w.opts.PollInterval)

	for {
		select {
		case <-ctx.Done():
			log.Println("[Worker] Shutting down")
			return
		default:
		}

		job, err := w.store.FindOldestQueuedJob(ctx)
		if err != nil {
			log.Printf("[Worker] Failed to poll jobs: %v", err)
			w.sleep(ctx)
			continue
		}
		if job == nil {
			w.idleWait(ctx)
			continue
		}

		claimed, err := w.store.ClaimJob(ctx, job.ID)
		if err != nil {
			log.Printf("[Worker] Failed to claim job %s: %v", job.ID, err)
			w.sleep(ctx)
			continue
		}
		if claimed == nil {
			// Another worker won the claim; find the next job.
			continue
		}

		w.process(ctx, claimed)
	}
}

// idleWait blocks until a new-job nudge arrives or the poll interval elapses.
func (w *Worker) idleWait(ctx context.Context) {
	if w.queue != nil {
		if _, err := w.queue.Wait(ctx, w.opts.PollInterval); err == nil {
			return
		}
	}
	w.sleep(ctx)
}

func (w *Worker) sleep(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(w.opts.PollInterval):
	}
}

// process runs one claimed job to a terminal state. The pipeline error is
// caught exactly here: recorded on the job (redacted) plus an error event,
// then the loop moves on.
func (w *Worker) process(ctx context.Context, job *models.Job) {
	log.Printf("[Worker] Processing job %s (owner=%s)", job.ID, job.Owner)

	if err := w.runJob(ctx, job); err != nil {
		msg := w.redactor.RedactError(err)
		log.Printf("[Worker] Job %s failed: %s", job.ID, msg)
		if ferr := w.store.FinalizeJob(ctx, job.ID, models.JobStatusFailed, msg); ferr != nil {
			log.Printf("[Worker] Failed to record job failure: %v", ferr)
		}
		if eerr := w.store.AppendJobEvent(ctx, job.ID, models.EventError, msg, nil); eerr != nil {
			log.Printf("[Worker] Failed to append error event: %v", eerr)
		}
		return
	}

	if err := w.store.FinalizeJob(ctx, job.ID, models.JobStatusSucceeded, ""); err != nil {
		log.Printf("[Worker] Failed to record job success: %v", err)
		return
	}
	if err := w.store.AppendJobEvent(ctx, job.ID, models.EventDone, "Job succeeded", nil); err != nil {
		log.Printf("[Worker] Failed to append done event: %v", err)
	}
	log.Printf("[Worker] Job %s succeeded", job.ID)
}

// runJob executes the fixed pipeline: ingest → topic-select → per-topic
// stages. The first error aborts the whole job.
func (w *Worker) runJob(ctx context.Context, job *models.Job) error {
	u := &updater{store: w.store, jobID: job.ID}

	// Precondition: the owner must have preferences before any external call
	// is made. An empty onboarding is a job failure, not an empty video.
	prefs, err := w.store.GetPreferences(ctx, job.Owner)
	if err != nil {
		return fmt.Errorf("failed to load preferences: %w", err)
	}
	if len(prefs) == 0 {
		return fmt.Errorf("no preferences found for owner; complete onboarding first")
	}

	if err := u.update(ctx, "ingest", 3, models.EventIngest, "Starting RSS ingest…", nil); err != nil {
		return err
	}
	ingestRes, err := w.ingester.Run(ctx)
	if err != nil {
		return fmt.Errorf("ingest failed: %w", err)
	}
	if err := u.update(ctx, "ingest", 6, models.EventIngest,
		fmt.Sprintf("Ingested %d items (%d feed errors)", ingestRes.InsertedOrUpdated, len(ingestRes.Errors)),
		headSlice(ingestRes.SampleHeadlines, 10)); err != nil {
		return err
	}

	if err := u.update(ctx, "topics", 10, models.EventTopics, "Selecting top topics…", nil); err != nil {
		return err
	}
	picked := topics.PickTop(prefs, w.opts.MaxTopics)
	names := make([]string, len(picked))
	for i, p := range picked {
		names[i] = p.Topic
	}
	if err := u.update(ctx, "topics", 12, models.EventTopics, "Top topics chosen", names); err != nil {
		return err
	}

	for i, pref := range picked {
		// Each topic owns an equal slice of the 12–90 progress band.
		lo := 12 + (i*78)/len(picked)
		hi := 12 + ((i+1)*78)/len(picked)
		if err := w.runTopic(ctx, u, job, pref.Topic, band{base: lo, span: hi - lo}); err != nil {
			return err
		}
	}

	return nil
}

// band is one topic's slice of the overall progress range. Sub-stage offsets
// are expressed on a 78-point scale and mapped into the slice, so progress
// starts above the topic-selection value and stays monotonic regardless of
// how many topics run.
type band struct{ base, span int }

func (b band) at(offset int) int { return b.base + offset*b.span/78 }

// runTopic runs research through upload for one topic. All progress values
// stay within the topic's band.
func (w *Worker) runTopic(ctx context.Context, u *updater, job *models.Job, topic string, b band) error {
	if err := u.update(ctx, "research:"+topic, b.at(5), models.EventResearch, "Gathering sources for: "+topic, nil); err != nil {
		return err
	}
	pkg, err := research.Build(ctx, w.searcher, w.store, topic, research.Options{
		ExaDays:        w.opts.ExaDays,
		ExaNumResults:  w.opts.ExaNumResults,
		MaxRSSArticles: w.opts.MaxRSSArticles,
	})
	if err != nil {
		return err
	}
	titles := make([]string, 0, 6)
	for _, s := range headSources(pkg.Sources, 6) {
		titles = append(titles, s.Title)
	}
	if err := u.update(ctx, "research:"+topic, b.at(9), models.EventResearch,
		fmt.Sprintf("Collected %d sources", len(pkg.Sources)), titles); err != nil {
		return err
	}

	if err := u.update(ctx, "summarize:"+topic, b.at(12), models.EventSummarize, "Writing Axios summary: "+topic, nil); err != nil {
		return err
	}
	summary, err := w.summarizer.GenerateNewsSummary(ctx, pkg)
	if err != nil {
		return err
	}
	if err := u.update(ctx, "summarize:"+topic, b.at(14), models.EventSummarize, "Summary drafted: "+summary.Headline, nil); err != nil {
		return err
	}

	summaryID, err := w.store.InsertSummary(ctx, summary)
	if err != nil {
		return err
	}

	if err := u.update(ctx, "script:"+topic, b.at(20), models.EventScript, "Writing video script: "+topic, nil); err != nil {
		return err
	}
	script, err := w.summarizer.GenerateVideoScript(ctx, summary)
	if err != nil {
		return err
	}
	if err := u.update(ctx, "script:"+topic, b.at(22), models.EventScript,
		fmt.Sprintf("Script ready (%d scenes)", len(script.Scenes)), nil); err != nil {
		return err
	}

	clips, voiceover, err := w.strategy.produceClips(ctx, u, topic, b, script)
	if err != nil {
		return err
	}

	if err := u.update(ctx, "assemble:"+topic, b.at(62), models.EventAssemble, "Assembling final video (ffmpeg)…", nil); err != nil {
		return err
	}
	clipURLs := make([]string, len(clips))
	for i, c := range clips {
		clipURLs[i] = c.URL
	}
	assembleOpts := services.AssembleOptions{OverlayText: summary.Headline}
	if voiceover != nil {
		assembleOpts.Voiceover = voiceover.Audio
		assembleOpts.VoiceoverFormat = voiceover.Format
	}
	media, err := w.assembler.Assemble(ctx, clipURLs, assembleOpts)
	if err != nil {
		return err
	}
	if err := u.update(ctx, "assemble:"+topic, b.at(70), models.EventAssemble,
		fmt.Sprintf("Assembled MP4 (%d MB)", len(media.Video)/1024/1024), nil); err != nil {
		return err
	}

	if err := u.update(ctx, "upload:"+topic, b.at(74), models.EventUpload, "Uploading assets to storage…", nil); err != nil {
		return err
	}
	videoPath := fmt.Sprintf("%s/%s/%s.mp4", job.Owner, job.ID, summaryID)
	thumbPath := fmt.Sprintf("%s/%s/%s.png", job.Owner, job.ID, summaryID)
	videoURL, err := w.uploader.Upload(ctx, w.opts.VideoBucket, videoPath, media.Video, "video/mp4")
	if err != nil {
		return err
	}
	thumbnailURL, err := w.uploader.Upload(ctx, w.opts.ThumbnailBucket, thumbPath, media.Thumbnail, "image/png")
	if err != nil {
		return err
	}
	if err := u.update(ctx, "upload:"+topic, b.at(78), models.EventUpload, "Uploaded", []string{videoURL, thumbnailURL}); err != nil {
		return err
	}

	duration := media.DurationSeconds
	if duration == 0 {
		duration = script.DurationSecondsTarget
	}
	videoID, err := w.store.InsertVideo(ctx, &models.Video{
		SummaryID:    summaryID,
		VideoURL:     videoURL,
		ThumbnailURL: thumbnailURL,
		Duration:     duration,
		Script:       script.Voiceover,
	})
	if err != nil {
		return err
	}
	return w.store.InsertUserContent(ctx, job.Owner, videoID)
}

// updater records a stage transition: event first, then the job row with a
// payload snapshot of the last message. Either write failing aborts the job.
type updater struct {
	store Store
	jobID uuid.UUID
}

func (u *updater) update(ctx context.Context, step string, progress int, kind models.EventKind, message string, items []string) error {
	if err := u.store.AppendJobEvent(ctx, u.jobID, kind, message, items); err != nil {
		return fmt.Errorf("failed to log job event: %w", err)
	}
	payload := models.JSONB{
		"last": map[string]interface{}{
			"kind":    string(kind),
			"message": message,
			"items":   items,
		},
	}
	if err := u.store.UpdateJobProgress(ctx, u.jobID, step, progress, payload); err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}
	return nil
}

func headSlice(s []string, n int) []string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

func headSources(s []models.ResearchSource, n int) []models.ResearchSource {
	if len(s) > n {
		return s[:n]
	}
	return s
}
