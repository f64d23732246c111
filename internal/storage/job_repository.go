package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"otonote/internal/models"
)

// ErrNotFound はジョブが存在しない場合のエラー
var ErrNotFound = errors.New("job not found")

const jobColumns = `id, status, progress, model_name, language, diarize, input_ref,
	original_filename, output_text, error_message, created_at, started_at, finished_at`

// JobRepository はジョブのデータアクセス層
type JobRepository struct {
	db *DB
}

// NewJobRepository は新しいJobRepositoryを作成
func NewJobRepository(db *DB) *JobRepository {
	return &JobRepository{db: db}
}

// Create は新しいジョブをqueued状態で作成し、採番されたIDをセットする
func (r *JobRepository) Create(ctx context.Context, job *models.TranscriptionJob) error {
	if job.Status == "" {
		job.Status = models.JobStatusQueued
	}
	if job.Language == "" {
		job.Language = "auto"
	}
	job.CreatedAt = time.Now().UTC()

	const q = `
INSERT INTO jobs (status, progress, model_name, language, diarize, input_ref,
                  original_filename, output_text, error_message, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, '', '', ?)`

	res, err := r.db.ExecContext(ctx, q,
		job.Status, job.Progress, job.ModelName, job.Language, job.Diarize,
		job.InputRef, job.OriginalFilename, job.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get job id: %w", err)
	}
	job.ID = id
	return nil
}

// GetByID はIDでジョブを取得
func (r *JobRepository) GetByID(ctx context.Context, id int64) (*models.TranscriptionJob, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return job, nil
}

// ClaimNext claims the oldest queued job and transitions it to running.
//
// The claim is the only cross-process coordination point: the candidate is
// selected by creation time, then flipped queued -> running with a conditional
// UPDATE inside one transaction. If another worker got there first the UPDATE
// matches zero rows and the claim is abandoned (nil, nil) so the caller can
// poll again.
func (r *JobRepository) ClaimNext(ctx context.Context) (*models.TranscriptionJob, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin claim tx: %w", err)
	}
	defer tx.Rollback()

	// 1) queuedのジョブを古い順に1件選ぶ（同時刻はID順）
	var id int64
	err = tx.QueryRowContext(ctx, `
SELECT id FROM jobs WHERE status = ? ORDER BY created_at, id LIMIT 1`,
		models.JobStatusQueued).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select queued job: %w", err)
	}

	// 2) ステータスを再確認しながら running に更新（二重処理防止）
	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx, `
UPDATE jobs
SET status = ?, started_at = ?, progress = 0, error_message = ''
WHERE id = ? AND status = ?`,
		models.JobStatusRunning, now, id, models.JobStatusQueued)
	if err != nil {
		return nil, fmt.Errorf("failed to claim job %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		// 別のワーカーが先に取得した
		return nil, nil
	}

	row := tx.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit claim: %w", err)
	}
	return job, nil
}

// UpdateProgress はジョブの進捗だけを更新（1ジョブ中に何度も呼ばれる）
func (r *JobRepository) UpdateProgress(ctx context.Context, id int64, progress int) error {
	_, err := r.db.ExecContext(ctx, `UPDATE jobs SET progress = ? WHERE id = ?`, progress, id)
	if err != nil {
		return fmt.Errorf("failed to update progress: %w", err)
	}
	return nil
}

// FinishOK はジョブを完了状態にして結果テキストを保存する
func (r *JobRepository) FinishOK(ctx context.Context, id int64, text string) error {
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
UPDATE jobs
SET status = ?, progress = 100, output_text = ?, error_message = '', finished_at = ?
WHERE id = ?`,
		models.JobStatusDone, text, now, id)
	if err != nil {
		return fmt.Errorf("failed to finish job %d: %w", id, err)
	}
	return nil
}

// FinishError はジョブを失敗状態にして原因を保存する
func (r *JobRepository) FinishError(ctx context.Context, id int64, message string) error {
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
UPDATE jobs
SET status = ?, error_message = ?, finished_at = ?
WHERE id = ?`,
		models.JobStatusError, message, now, id)
	if err != nil {
		return fmt.Errorf("failed to mark job %d as error: %w", id, err)
	}
	return nil
}

// ListRecent は最近のジョブ一覧を取得
func (r *JobRepository) ListRecent(ctx context.Context, limit int) ([]models.TranscriptionJob, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM jobs ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectJobs(rows)
}

// ListByStatus はステータスでジョブ一覧を取得
func (r *JobRepository) ListByStatus(ctx context.Context, status string, limit int) ([]models.TranscriptionJob, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE status = ? ORDER BY created_at DESC, id DESC LIMIT ?`,
		status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectJobs(rows)
}

// CountByStatus はステータスごとのジョブ数を取得
func (r *JobRepository) CountByStatus(ctx context.Context) (map[string]int64, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// Delete はジョブを削除
func (r *JobRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// RequeueStale requeues jobs stuck in running longer than the lease.
//
// A worker crash mid-job leaves the row in running forever; there is no
// heartbeat, so recovery is time-based. Returns the number of requeued jobs.
func (r *JobRepository) RequeueStale(ctx context.Context, lease time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-lease)
	res, err := r.db.ExecContext(ctx, `
UPDATE jobs
SET status = ?, progress = 0, started_at = NULL
WHERE status = ? AND started_at IS NOT NULL AND started_at < ?`,
		models.JobStatusQueued, models.JobStatusRunning, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to requeue stale jobs: %w", err)
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*models.TranscriptionJob, error) {
	var job models.TranscriptionJob
	var started, finished sql.NullTime
	err := row.Scan(
		&job.ID, &job.Status, &job.Progress, &job.ModelName, &job.Language,
		&job.Diarize, &job.InputRef, &job.OriginalFilename, &job.OutputText,
		&job.ErrorMessage, &job.CreatedAt, &started, &finished)
	if err != nil {
		return nil, err
	}
	if started.Valid {
		t := started.Time
		job.StartedAt = &t
	}
	if finished.Valid {
		t := finished.Time
		job.FinishedAt = &t
	}
	return &job, nil
}

func collectJobs(rows *sql.Rows) ([]models.TranscriptionJob, error) {
	var jobs []models.TranscriptionJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}
