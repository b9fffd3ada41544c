package handler

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/patient-progress-api/internal/service"
	appErrors "github.com/noah-isme/patient-progress-api/pkg/errors"
	"github.com/noah-isme/patient-progress-api/pkg/jobs"
	"github.com/noah-isme/patient-progress-api/pkg/response"
)

type jobQueue interface {
	Submit(jobType string, payload interface{}) (jobs.Status, error)
	Status(id string) (jobs.Status, bool)
}

// DatasetHandler queues dataset refreshes and reports their progress.
type DatasetHandler struct {
	queue  jobQueue
	logger *zap.Logger
}

// NewDatasetHandler constructs a DatasetHandler.
func NewDatasetHandler(queue jobQueue, logger *zap.Logger) *DatasetHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DatasetHandler{queue: queue, logger: logger}
}

// Refresh godoc
// @Summary Reload the dataset from its source
// @Tags Dataset
// @Produce json
// @Success 202 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /dataset/refresh [post]
func (h *DatasetHandler) Refresh(c *gin.Context) {
	status, err := h.queue.Submit(service.JobDatasetRefresh, nil)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrDatasetUnavailable.Code, appErrors.ErrDatasetUnavailable.Status, "refresh could not be queued"))
		return
	}
	h.logger.Info("dataset refresh requested", zap.String("actor", actorID(c)), zap.String("job_id", status.ID))
	response.Accepted(c, status)
}

// Job godoc
// @Summary Refresh job status
// @Tags Dataset
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /dataset/jobs/{id} [get]
func (h *DatasetHandler) Job(c *gin.Context) {
	id := c.Param("id")
	status, ok := h.queue.Status(id)
	if !ok {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("job %s not found", id)))
		return
	}
	response.OK(c, status)
}
