package controllers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/datallboy/datascan/internal/app"
	"github.com/datallboy/datascan/internal/domain"
	"github.com/labstack/echo/v5"
	"github.com/segmentio/ksuid"
)

type DatasetsController struct {
	App *app.Context
}

type ingestRequest struct {
	URL         string `json:"url"`
	Name        string `json:"name"`
	TeamID      string `json:"team_id"`
	OwnerUserID string `json:"owner_user_id"`
}

type ingestResponse struct {
	DatasetID string `json:"dataset_id"`
	Status    string `json:"status"`
}

// Ingest accepts a source URL and registers a dataset for background
// processing. The response returns immediately; progress is visible
// through the dataset's status and meta.stage.
func (ctrl *DatasetsController) Ingest(c *echo.Context) error {
	var req ingestRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	req.URL = strings.TrimSpace(req.URL)
	if req.URL == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "url is required"})
	}
	if !strings.HasPrefix(req.URL, "http://") && !strings.HasPrefix(req.URL, "https://") {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "url must be http or https"})
	}

	name := req.Name
	if name == "" {
		name = req.URL
	}

	ds := &domain.Dataset{
		DatasetID:          ksuid.New().String(),
		Name:               name,
		SourceURL:          req.URL,
		OriginalRequestURL: req.URL,
		TeamID:             req.TeamID,
		OwnerUserID:        req.OwnerUserID,
		Status:             domain.StatusProcessing,
		CreatedAt:          time.Now().UTC(),
		Meta:               domain.DatasetMeta{Stage: domain.StageEnqueued},
	}

	if err := ctrl.App.Store.CreateDataset(c.Request().Context(), ds); err != nil {
		ctrl.App.Logger.Error("api: failed to create dataset: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to create dataset"})
	}

	if err := ctrl.App.Pipeline.Enqueue(ds.DatasetID, ds.SourceURL); err != nil {
		if errors.Is(err, domain.ErrPipelineDisabled) {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "ingestion pipeline is disabled"})
		}
		ctrl.App.Logger.Error("api: failed to enqueue dataset %s: %v", ds.DatasetID, err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to enqueue dataset"})
	}

	return c.JSON(http.StatusAccepted, ingestResponse{DatasetID: ds.DatasetID, Status: string(ds.Status)})
}

// List returns the most recent datasets, newest first.
func (ctrl *DatasetsController) List(c *echo.Context) error {
	limit := queryInt(c, "limit", 50, 500)

	datasets, err := ctrl.App.Store.ListDatasets(c.Request().Context(), limit)
	if err != nil {
		ctrl.App.Logger.Error("api: failed to list datasets: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to list datasets"})
	}

	return c.JSON(http.StatusOK, map[string]any{"datasets": datasets})
}

// Get returns one dataset with its summary and meta.
func (ctrl *DatasetsController) Get(c *echo.Context) error {
	ds, err := ctrl.App.Store.GetDataset(c.Request().Context(), c.Param("id"))
	if err != nil {
		ctrl.App.Logger.Error("api: failed to get dataset: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to get dataset"})
	}
	if ds == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "dataset not found"})
	}

	return c.JSON(http.StatusOK, ds)
}

// Files returns the per-file index of a dataset, ordered by relpath.
func (ctrl *DatasetsController) Files(c *echo.Context) error {
	id := c.Param("id")

	ds, err := ctrl.App.Store.GetDataset(c.Request().Context(), id)
	if err != nil {
		ctrl.App.Logger.Error("api: failed to get dataset: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to get dataset"})
	}
	if ds == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "dataset not found"})
	}

	limit := queryInt(c, "limit", 1000, 10000)

	files, err := ctrl.App.Store.ListDatasetFiles(c.Request().Context(), id, limit)
	if err != nil {
		ctrl.App.Logger.Error("api: failed to list files for dataset %s: %v", id, err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to list files"})
	}

	total, err := ctrl.App.Store.CountDatasetFiles(c.Request().Context(), id)
	if err != nil {
		ctrl.App.Logger.Error("api: failed to count files for dataset %s: %v", id, err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to count files"})
	}

	return c.JSON(http.StatusOK, map[string]any{"total": total, "files": files})
}

func queryInt(c *echo.Context, name string, def, max int) int {
	raw := c.QueryParam(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return def
	}
	if n > max {
		return max
	}
	return n
}
