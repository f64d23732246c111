package worker

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"otonote/internal/asr"
	"otonote/internal/ingestion"
	"otonote/internal/metrics"
	"otonote/internal/models"
	"otonote/internal/storage"
)

// minSegmentDuration is the shortest diarization segment worth transcribing.
const minSegmentDuration = 0.1

// staleSweepInterval is how often the running-lease sweep runs.
const staleSweepInterval = 10 * time.Minute

// Transcoder normalizes audio to the canonical waveform and extracts
// sub-ranges of it.
type Transcoder interface {
	ToCanonical(ctx context.Context, inputPath, outputPath string) error
	Slice(ctx context.Context, inputPath, outputPath string, start, duration float64) error
}

// Worker claims queued transcription jobs and drives them to a terminal
// state, one at a time. Cross-process coordination happens only through the
// job store's claim; everything else (work dir, model cache) is private.
type Worker struct {
	repo        *storage.JobRepository
	transcriber asr.Transcriber
	diarizer    asr.Diarizer
	transcoder  Transcoder
	resolver    *ingestion.Resolver
	workBase    string
	interval    time.Duration
	lease       time.Duration

	stop chan struct{}
	wg   sync.WaitGroup
}

// Options configures a Worker.
type Options struct {
	Transcriber  asr.Transcriber
	Diarizer     asr.Diarizer
	Transcoder   Transcoder // nil = ffmpeg
	Resolver     *ingestion.Resolver
	WorkBase     string        // base directory for per-job temp dirs ("" = system temp)
	PollInterval time.Duration // wait between polls when the queue is empty
	RunningLease time.Duration // running jobs older than this are requeued
}

// NewWorker creates a worker. It does not start polling.
func NewWorker(repo *storage.JobRepository, opts Options) *Worker {
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	if opts.RunningLease <= 0 {
		opts.RunningLease = 2 * time.Hour
	}
	if opts.Resolver == nil {
		opts.Resolver = ingestion.NewResolver()
	}
	if opts.Transcoder == nil {
		opts.Transcoder = asr.FFmpeg{}
	}
	return &Worker{
		repo:        repo,
		transcriber: opts.Transcriber,
		diarizer:    opts.Diarizer,
		transcoder:  opts.Transcoder,
		resolver:    opts.Resolver,
		workBase:    opts.WorkBase,
		interval:    opts.PollInterval,
		lease:       opts.RunningLease,
		stop:        make(chan struct{}),
	}
}

// Start begins processing jobs in a background goroutine.
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
	log.Println("Worker started")
}

// Stop waits for the current job to finish and stops the worker.
func (w *Worker) Stop() {
	close(w.stop)
	w.wg.Wait()
	log.Println("Worker stopped")
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	w.requeueStale(ctx)
	lastSweep := time.Now()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		case <-ticker.C:
			if time.Since(lastSweep) >= staleSweepInterval {
				w.requeueStale(ctx)
				lastSweep = time.Now()
			}
			// キューが空になるまで連続処理
			for w.processNextJob(ctx) {
				select {
				case <-ctx.Done():
					return
				case <-w.stop:
					return
				default:
				}
			}
		}
	}
}

// requeueStale flips jobs stuck in running back to queued once their lease
// has expired (worker crash recovery).
func (w *Worker) requeueStale(ctx context.Context) {
	n, err := w.repo.RequeueStale(ctx, w.lease)
	if err != nil {
		log.Printf("Error requeueing stale jobs: %v", err)
		return
	}
	if n > 0 {
		log.Printf("Requeued %d stale running job(s)", n)
	}
}

// processNextJob claims and processes one job. Returns false when the queue
// was empty or the claim was lost to another worker.
func (w *Worker) processNextJob(ctx context.Context) bool {
	job, err := w.repo.ClaimNext(ctx)
	if err != nil {
		log.Printf("Error claiming next job: %v", err)
		return false
	}
	if job == nil {
		return false
	}

	log.Printf("Processing job %d (model=%s diarize=%v)", job.ID, job.ModelName, job.Diarize)
	w.processJob(ctx, job)
	return true
}

// processJob drives one claimed job to done or error. Every failure inside
// the pipeline, including panics, becomes the job's terminal error; nothing
// escapes to the poll loop.
func (w *Worker) processJob(ctx context.Context, job *models.TranscriptionJob) {
	start := time.Now()

	workDir, err := os.MkdirTemp(w.workBase, fmt.Sprintf("job_%d_", job.ID))
	if err != nil {
		w.finishError(ctx, job, fmt.Errorf("workdir: %w", err))
		return
	}
	// 成否に関わらず作業ディレクトリを削除
	defer os.RemoveAll(workDir)

	defer func() {
		if r := recover(); r != nil {
			w.finishError(ctx, job, fmt.Errorf("panic: %v", r))
		}
		metrics.ObserveJobDuration(time.Since(start).Seconds())
	}()

	text, err := w.runPipeline(ctx, job, workDir)
	if err != nil {
		w.finishError(ctx, job, err)
		return
	}

	if err := w.repo.FinishOK(ctx, job.ID, text); err != nil {
		log.Printf("Error completing job %d: %v", job.ID, err)
		return
	}
	metrics.IncJob(models.JobStatusDone)
	log.Printf("Job %d finished in %s", job.ID, time.Since(start).Round(time.Second))
}

func (w *Worker) finishError(ctx context.Context, job *models.TranscriptionJob, jobErr error) {
	log.Printf("Job %d failed: %v", job.ID, jobErr)
	if err := w.repo.FinishError(ctx, job.ID, jobErr.Error()); err != nil {
		log.Printf("Error marking job %d as failed: %v", job.ID, err)
		return
	}
	metrics.IncJob(models.JobStatusError)
}

// runPipeline executes resolve -> transcode -> (diarize -> merge ->
// per-segment transcribe | whole-file transcribe) and returns the assembled
// transcript. Errors are prefixed with the failing stage so error_message
// alone is enough to diagnose.
func (w *Worker) runPipeline(ctx context.Context, job *models.TranscriptionJob, workDir string) (string, error) {
	inputPath, err := w.resolver.Resolve(ctx, job.InputRef, workDir)
	if err != nil {
		return "", fmt.Errorf("resolve input: %w", err)
	}

	wavPath := filepath.Join(workDir, "audio_16k.wav")
	if err := w.transcoder.ToCanonical(ctx, inputPath, wavPath); err != nil {
		return "", fmt.Errorf("transcode: %w", err)
	}

	if !job.Diarize {
		text, err := w.transcriber.Transcribe(ctx, wavPath, job.ModelName, job.Language)
		if err != nil {
			return "", fmt.Errorf("transcribe: %w", err)
		}
		return strings.TrimSpace(text), nil
	}

	segments, err := w.diarizer.Diarize(ctx, wavPath)
	if err != nil {
		return "", fmt.Errorf("diarize: %w", err)
	}
	segments = asr.MergeSegments(segments, asr.DefaultMergeGap, asr.DefaultMergeMinDur)

	var lines []string
	total := len(segments)
	if total == 0 {
		total = 1
	}

	for i, seg := range segments {
		idx := i + 1
		duration := seg.End - seg.Start
		if duration < minSegmentDuration {
			continue
		}

		chunkPath := filepath.Join(workDir, fmt.Sprintf("seg_%03d.wav", idx))
		if err := w.transcoder.Slice(ctx, wavPath, chunkPath, seg.Start, duration); err != nil {
			return "", fmt.Errorf("transcode segment %d: %w", idx, err)
		}

		text, err := w.transcriber.Transcribe(ctx, chunkPath, job.ModelName, job.Language)
		if err != nil {
			return "", fmt.Errorf("transcribe segment %d: %w", idx, err)
		}
		if text = strings.TrimSpace(text); text != "" {
			lines = append(lines, fmt.Sprintf("[%s]: %s", seg.Speaker, text))
			metrics.IncSegment()
		}

		// 進捗更新（UIの進捗バー用）。失敗しても処理は続ける
		if err := w.repo.UpdateProgress(ctx, job.ID, idx*100/total); err != nil {
			log.Printf("Error updating progress for job %d: %v", job.ID, err)
		}
	}

	return strings.Join(lines, "\n"), nil
}
