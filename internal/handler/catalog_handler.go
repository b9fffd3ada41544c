package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/patient-progress-api/internal/catalog"
	"github.com/noah-isme/patient-progress-api/internal/dto"
	appErrors "github.com/noah-isme/patient-progress-api/pkg/errors"
	"github.com/noah-isme/patient-progress-api/pkg/response"
)

type classifier interface {
	Catalog() *catalog.Catalog
	Classify(delta int) dto.ClassificationResponse
}

// CatalogHandler exposes the vocabulary and classification table.
type CatalogHandler struct {
	classifier classifier
}

// NewCatalogHandler constructs a CatalogHandler.
func NewCatalogHandler(c classifier) *CatalogHandler {
	return &CatalogHandler{classifier: c}
}

// Catalog godoc
// @Summary Active catalog
// @Tags Catalog
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /catalog [get]
func (h *CatalogHandler) Catalog(c *gin.Context) {
	response.OK(c, h.classifier.Catalog())
}

// Classify godoc
// @Summary Classify a single delta
// @Tags Catalog
// @Produce json
// @Param delta path int true "Signed integer delta"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /classify/{delta} [get]
func (h *CatalogHandler) Classify(c *gin.Context) {
	delta, err := parseInt(c.Param("delta"))
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "delta must be an integer"))
		return
	}
	response.OK(c, h.classifier.Classify(delta))
}
