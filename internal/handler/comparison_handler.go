package handler

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/patient-progress-api/internal/dto"
	"github.com/noah-isme/patient-progress-api/internal/models"
	appErrors "github.com/noah-isme/patient-progress-api/pkg/errors"
	"github.com/noah-isme/patient-progress-api/pkg/response"
)

type comparisonService interface {
	Compare(ctx context.Context, req dto.CompareRequest) (*models.DiffReport, error)
}

type exportService interface {
	Export(ctx context.Context, req dto.ExportRequest) (*dto.ExportResponse, error)
	Open(token string) (*os.File, string, error)
}

// ComparisonHandler serves comparisons and their exports.
type ComparisonHandler struct {
	comparisons comparisonService
	exports     exportService
	logger      *zap.Logger
}

// NewComparisonHandler constructs a ComparisonHandler.
func NewComparisonHandler(comparisons comparisonService, exports exportService, logger *zap.Logger) *ComparisonHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ComparisonHandler{comparisons: comparisons, exports: exports, logger: logger}
}

// Compare godoc
// @Summary Compare two assessment periods
// @Description Per-item deltas and classifications, in vocabulary order
// @Tags Comparisons
// @Produce json
// @Param id path string true "Patient ID"
// @Param baseline query string true "Baseline period"
// @Param followUp query string true "Follow-up period"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /patients/{id}/comparison [get]
func (h *ComparisonHandler) Compare(c *gin.Context) {
	var req dto.CompareRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query parameters"))
		return
	}
	req.PatientID = c.Param("id")

	report, err := h.comparisons.Compare(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, report)
}

// Export godoc
// @Summary Export a comparison
// @Tags Comparisons
// @Accept json
// @Produce json
// @Param payload body dto.ExportRequest true "Comparison and format"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /comparisons/exports [post]
func (h *ComparisonHandler) Export(c *gin.Context) {
	var req dto.ExportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid export payload"))
		return
	}
	res, err := h.exports.Export(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.logger.Info("export issued", zap.String("actor", actorID(c)), zap.String("file", res.FileName))
	response.Created(c, res)
}

// Download godoc
// @Summary Download an exported comparison
// @Tags Comparisons
// @Produce octet-stream
// @Param token path string true "Signed export token"
// @Success 200 {file} file
// @Failure 410 {object} response.Envelope
// @Router /exports/{token} [get]
func (h *ComparisonHandler) Download(c *gin.Context) {
	file, name, err := h.exports.Open(c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read export"))
		return
	}
	contentType := "text/csv; charset=utf-8"
	if filepath.Ext(name) == ".pdf" {
		contentType = "application/pdf"
	}
	c.Header("Cache-Control", "no-store")
	c.DataFromReader(http.StatusOK, info.Size(), contentType, file, map[string]string{
		"Content-Disposition": fmt.Sprintf("attachment; filename=%q", name),
	})
}
