package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"otonote/internal/asr"
	"otonote/internal/ingestion"
	"otonote/internal/models"
	"otonote/internal/storage"

	"github.com/labstack/echo/v4"
)

// JobHandler はジョブAPIのハンドラー
type JobHandler struct {
	repo  *storage.JobRepository
	store *ingestion.Store
}

// NewJobHandler は新しいJobHandlerを作成
func NewJobHandler(repo *storage.JobRepository, store *ingestion.Store) *JobHandler {
	return &JobHandler{repo: repo, store: store}
}

// Register はジョブAPIのルートを登録
func (h *JobHandler) Register(g *echo.Group) {
	g.POST("/jobs", h.Create)
	g.GET("/jobs", h.List)
	g.GET("/jobs/stats", h.Stats)
	g.GET("/jobs/:id", h.Get)
	g.GET("/jobs/:id/download", h.Download)
	g.DELETE("/jobs/:id", h.Delete)
}

// Create はジョブをqueued状態で登録する。
// 音声はmultipartの file か、input_ref（ローカルパス/URL）のどちらかで渡す。
func (h *JobHandler) Create(c echo.Context) error {
	ctx := c.Request().Context()

	job := &models.TranscriptionJob{
		ModelName: c.FormValue("model_name"),
		Language:  c.FormValue("language"),
	}
	if v := c.FormValue("diarize"); v != "" {
		diarize, err := strconv.ParseBool(v)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "diarize must be a boolean"})
		}
		job.Diarize = diarize
	}

	if file, err := c.FormFile("file"); err == nil {
		if !asr.IsSupportedFormat(file.Filename) {
			return c.JSON(http.StatusBadRequest, map[string]string{
				"error": fmt.Sprintf("unsupported audio format: %s", file.Filename),
			})
		}
		src, err := file.Open()
		if err != nil {
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
		}
		defer src.Close()

		ref, err := h.store.SaveUpload(file.Filename, src)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
		}
		job.InputRef = ref
		job.OriginalFilename = file.Filename
	} else if ref := c.FormValue("input_ref"); ref != "" {
		job.InputRef = ref
	} else {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "either file or input_ref is required"})
	}

	if err := h.repo.Create(ctx, job); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusCreated, job)
}

// List はジョブ一覧を取得
func (h *JobHandler) List(c echo.Context) error {
	ctx := c.Request().Context()
	status := c.QueryParam("status")

	limit := 50
	if l := c.QueryParam("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil {
			limit = parsed
		}
	}

	var jobs []models.TranscriptionJob
	var err error
	if status != "" {
		jobs, err = h.repo.ListByStatus(ctx, status, limit)
	} else {
		jobs, err = h.repo.ListRecent(ctx, limit)
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, jobs)
}

// Get はジョブを取得
func (h *JobHandler) Get(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := parseID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid job id"})
	}

	job, err := h.repo.GetByID(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "job not found"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, job)
}

// Download は完了したジョブの文字起こし結果をテキストとして返す。
// done以外のジョブは404扱い。
func (h *JobHandler) Download(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := parseID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid job id"})
	}

	job, err := h.repo.GetByID(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "job not found"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	if job.Status != models.JobStatusDone {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "transcript not ready"})
	}

	filename := fmt.Sprintf("transcript_job_%d.txt", job.ID)
	c.Response().Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf("attachment; filename=%q", filename))
	return c.Blob(http.StatusOK, "text/plain; charset=utf-8", []byte(job.OutputText))
}

// Delete はジョブと保存済みの入力ファイルを削除
func (h *JobHandler) Delete(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := parseID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid job id"})
	}

	job, err := h.repo.GetByID(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "job not found"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	if err := h.repo.Delete(ctx, id); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	// 紐づくアップロードファイルも消す
	if err := h.store.Remove(job.InputRef); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.NoContent(http.StatusNoContent)
}

// Stats はステータスごとのジョブ数を取得
func (h *JobHandler) Stats(c echo.Context) error {
	ctx := c.Request().Context()
	counts, err := h.repo.CountByStatus(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, counts)
}

func parseID(c echo.Context) (int64, error) {
	return strconv.ParseInt(c.Param("id"), 10, 64)
}
