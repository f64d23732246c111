package worker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"otonote/internal/asr"
	"otonote/internal/models"
	"otonote/internal/storage"
)

type fakeTranscoder struct {
	convertErr error
	sliceErr   error
	slices     int
}

func (f *fakeTranscoder) ToCanonical(_ context.Context, _, outputPath string) error {
	if f.convertErr != nil {
		return f.convertErr
	}
	return os.WriteFile(outputPath, []byte("wav"), 0644)
}

func (f *fakeTranscoder) Slice(_ context.Context, _, outputPath string, _, _ float64) error {
	if f.sliceErr != nil {
		return f.sliceErr
	}
	f.slices++
	return os.WriteFile(outputPath, []byte("slice"), 0644)
}

type fakeTranscriber struct {
	replies []string // returned in call order; last one repeats
	err     error
	panics  bool
	calls   int
}

func (f *fakeTranscriber) Transcribe(_ context.Context, _, _, _ string) (string, error) {
	if f.panics {
		panic("inference blew up")
	}
	if f.err != nil {
		return "", f.err
	}
	f.calls++
	if len(f.replies) == 0 {
		return "", nil
	}
	i := f.calls - 1
	if i >= len(f.replies) {
		i = len(f.replies) - 1
	}
	return f.replies[i], nil
}

type fakeDiarizer struct {
	segments []asr.DiarizationSegment
	err      error
	calls    int
}

func (f *fakeDiarizer) Diarize(_ context.Context, _ string) ([]asr.DiarizationSegment, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.segments, nil
}

type fixture struct {
	repo     *storage.JobRepository
	worker   *Worker
	workBase string
}

func newFixture(t *testing.T, tc *fakeTranscoder, tr *fakeTranscriber, d *fakeDiarizer) *fixture {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	repo := storage.NewJobRepository(db)
	workBase := t.TempDir()
	w := NewWorker(repo, Options{
		Transcriber: tr,
		Diarizer:    d,
		Transcoder:  tc,
		WorkBase:    workBase,
	})
	return &fixture{repo: repo, worker: w, workBase: workBase}
}

// enqueue creates a job whose input reference is a real local file.
func (f *fixture) enqueue(t *testing.T, diarize bool) *models.TranscriptionJob {
	t.Helper()
	input := filepath.Join(t.TempDir(), "input.mp3")
	if err := os.WriteFile(input, []byte("mp3"), 0644); err != nil {
		t.Fatal(err)
	}
	job := &models.TranscriptionJob{ModelName: "small", Language: "auto", InputRef: input, Diarize: diarize}
	if err := f.repo.Create(context.Background(), job); err != nil {
		t.Fatal(err)
	}
	return job
}

func (f *fixture) claimAndProcess(t *testing.T) *models.TranscriptionJob {
	t.Helper()
	ctx := context.Background()
	job, err := f.repo.ClaimNext(ctx)
	if err != nil || job == nil {
		t.Fatalf("ClaimNext failed: job=%v err=%v", job, err)
	}
	f.worker.processJob(ctx, job)

	got, err := f.repo.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatal(err)
	}
	return got
}

func (f *fixture) assertCleanedUp(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(f.workBase)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("work dirs left behind after terminal state: %v", entries)
	}
}

func TestProcessJob_NoDiarize(t *testing.T) {
	tr := &fakeTranscriber{replies: []string{"  hello world \n"}}
	d := &fakeDiarizer{}
	f := newFixture(t, &fakeTranscoder{}, tr, d)
	f.enqueue(t, false)

	got := f.claimAndProcess(t)

	if got.Status != models.JobStatusDone {
		t.Fatalf("status = %q (%s), want done", got.Status, got.ErrorMessage)
	}
	if got.OutputText != "hello world" {
		t.Errorf("output_text = %q, want whole-file transcription trimmed", got.OutputText)
	}
	if got.Progress != 100 {
		t.Errorf("progress = %d, want 100", got.Progress)
	}
	if d.calls != 0 {
		t.Errorf("diarizer invoked %d times on a diarize=false job", d.calls)
	}
	if tr.calls != 1 {
		t.Errorf("transcriber invoked %d times, want 1", tr.calls)
	}
	f.assertCleanedUp(t)
}

func TestProcessJob_Diarize(t *testing.T) {
	// 生セグメントは結合されて2つになる:
	// {A,0,1}+{A,1.2,2} -> {A,0,2}, {B,2.5,4.5}
	d := &fakeDiarizer{segments: []asr.DiarizationSegment{
		{Speaker: "SPEAKER_00", Start: 0, End: 1},
		{Speaker: "SPEAKER_00", Start: 1.2, End: 2},
		{Speaker: "SPEAKER_01", Start: 2.5, End: 4.5},
	}}
	tr := &fakeTranscriber{replies: []string{" first utterance ", "second utterance"}}
	tc := &fakeTranscoder{}
	f := newFixture(t, tc, tr, d)
	f.enqueue(t, true)

	got := f.claimAndProcess(t)

	if got.Status != models.JobStatusDone {
		t.Fatalf("status = %q (%s), want done", got.Status, got.ErrorMessage)
	}
	want := "[SPEAKER_00]: first utterance\n[SPEAKER_01]: second utterance"
	if got.OutputText != want {
		t.Errorf("output_text = %q, want %q", got.OutputText, want)
	}
	if got.Progress != 100 {
		t.Errorf("progress = %d, want 100", got.Progress)
	}
	if tc.slices != 2 {
		t.Errorf("sliced %d segments, want 2 merged segments", tc.slices)
	}
	f.assertCleanedUp(t)
}

func TestProcessJob_SkipsTinyAndSilentSegments(t *testing.T) {
	// 先頭の極短セグメントは書き起こさない。無音（空文字）は行にしない
	d := &fakeDiarizer{segments: []asr.DiarizationSegment{
		{Speaker: "SPEAKER_00", Start: 0, End: 0.05},
		{Speaker: "SPEAKER_01", Start: 2, End: 4},
		{Speaker: "SPEAKER_00", Start: 6, End: 8},
	}}
	tr := &fakeTranscriber{replies: []string{"kept", "   "}}
	f := newFixture(t, &fakeTranscoder{}, tr, d)
	f.enqueue(t, true)

	got := f.claimAndProcess(t)

	if got.Status != models.JobStatusDone {
		t.Fatalf("status = %q (%s), want done", got.Status, got.ErrorMessage)
	}
	if got.OutputText != "[SPEAKER_01]: kept" {
		t.Errorf("output_text = %q", got.OutputText)
	}
	if tr.calls != 2 {
		t.Errorf("transcriber invoked %d times, want 2 (tiny segment skipped)", tr.calls)
	}
}

func TestProcessJob_TranscodeFailure(t *testing.T) {
	tc := &fakeTranscoder{convertErr: errors.New("ffmpeg exited with 1\nstderr:\nunknown codec")}
	f := newFixture(t, tc, &fakeTranscriber{}, &fakeDiarizer{})
	f.enqueue(t, false)

	got := f.claimAndProcess(t)

	if got.Status != models.JobStatusError {
		t.Fatalf("status = %q, want error", got.Status)
	}
	if !strings.Contains(got.ErrorMessage, "transcode:") {
		t.Errorf("error_message = %q, want stage prefix", got.ErrorMessage)
	}
	if !strings.Contains(got.ErrorMessage, "unknown codec") {
		t.Errorf("error_message = %q, want underlying diagnostic preserved", got.ErrorMessage)
	}
	if got.OutputText != "" {
		t.Errorf("output_text = %q on failed job", got.OutputText)
	}
	f.assertCleanedUp(t)
}

func TestProcessJob_ResolveFailure(t *testing.T) {
	f := newFixture(t, &fakeTranscoder{}, &fakeTranscriber{}, &fakeDiarizer{})
	job := &models.TranscriptionJob{InputRef: "/nonexistent/audio.mp3"}
	if err := f.repo.Create(context.Background(), job); err != nil {
		t.Fatal(err)
	}

	got := f.claimAndProcess(t)

	if got.Status != models.JobStatusError {
		t.Fatalf("status = %q, want error", got.Status)
	}
	if !strings.Contains(got.ErrorMessage, "resolve input:") {
		t.Errorf("error_message = %q", got.ErrorMessage)
	}
	f.assertCleanedUp(t)
}

func TestProcessJob_DiarizeFailure(t *testing.T) {
	d := &fakeDiarizer{err: asr.ErrMissingToken}
	f := newFixture(t, &fakeTranscoder{}, &fakeTranscriber{}, d)
	f.enqueue(t, true)

	got := f.claimAndProcess(t)

	if got.Status != models.JobStatusError {
		t.Fatalf("status = %q, want error", got.Status)
	}
	if !strings.Contains(got.ErrorMessage, "HF_TOKEN") {
		t.Errorf("error_message = %q, want named missing-token condition", got.ErrorMessage)
	}
}

func TestProcessJob_PanicBecomesJobError(t *testing.T) {
	tr := &fakeTranscriber{panics: true}
	f := newFixture(t, &fakeTranscoder{}, tr, &fakeDiarizer{})
	f.enqueue(t, false)

	got := f.claimAndProcess(t)

	if got.Status != models.JobStatusError {
		t.Fatalf("status = %q, want error", got.Status)
	}
	if !strings.Contains(got.ErrorMessage, "panic") {
		t.Errorf("error_message = %q, want panic description", got.ErrorMessage)
	}
	f.assertCleanedUp(t)
}

func TestProcessJob_EmptyDiarizationSucceeds(t *testing.T) {
	f := newFixture(t, &fakeTranscoder{}, &fakeTranscriber{}, &fakeDiarizer{})
	f.enqueue(t, true)

	got := f.claimAndProcess(t)

	if got.Status != models.JobStatusDone {
		t.Fatalf("status = %q (%s), want done", got.Status, got.ErrorMessage)
	}
	if got.OutputText != "" {
		t.Errorf("output_text = %q, want empty", got.OutputText)
	}
	if got.Progress != 100 {
		t.Errorf("progress = %d, want 100", got.Progress)
	}
}
