package verification

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Handler handles HTTP requests for verification operations
type Handler struct {
	service *Service
	logger  *zap.Logger
}

// NewHandler creates a new verification handler
func NewHandler(service *Service, logger *zap.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// RegisterRoutes registers verification routes
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	verifications := router.Group("/verifications")
	{
		verifications.POST("", h.submitVerification)
		verifications.GET("/credits/:creditId", h.getVerificationStatus)
		verifications.GET("/:id", h.getVerification)
		verifications.GET("/:id/export", h.exportVerification)

		verifications.POST("/:id/evidence", h.attachEvidence)
		verifications.POST("/:id/evidence/process", h.processEvidence)
		verifications.POST("/:id/run", h.runVerification)

		verifications.POST("/:id/review", h.review(h.service.StartReview))
		verifications.POST("/:id/approve", h.review(h.service.Approve))
		verifications.POST("/:id/reject", h.review(h.service.Reject))
		verifications.POST("/:id/revoke", h.review(h.service.Revoke))
		verifications.POST("/:id/cancel", h.review(h.service.Cancel))
	}

	methodologies := router.Group("/methodologies")
	{
		methodologies.POST("", h.registerMethodology)
		methodologies.GET("", h.listMethodologies)
		methodologies.PUT("/:id/active", h.setMethodologyActive)
	}
}

// respondError maps service errors to HTTP statuses
func (h *Handler) respondError(c *gin.Context, message string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrCreditNotFound),
		errors.Is(err, ErrMethodologyNotFound),
		errors.Is(err, ErrVerificationNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ErrMethodologyInactive),
		errors.Is(err, ErrDuplicateVerification),
		errors.Is(err, ErrInvalidTransition),
		errors.Is(err, ErrNotVerifiable):
		status = http.StatusConflict
	case errors.Is(err, ErrInvalidMethodology),
		errors.Is(err, ErrInvalidEvidence),
		errors.Is(err, ErrInvalidRequest):
		status = http.StatusBadRequest
	}

	if status == http.StatusInternalServerError {
		h.logger.Error(message, zap.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func (h *Handler) pathID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid %s", name)})
		return uuid.Nil, false
	}
	return id, true
}

// =====================================================
// Verification Endpoints
// =====================================================

// submitVerification handles POST /api/v1/verifications
func (h *Handler) submitVerification(c *gin.Context) {
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.service.SubmitVerification(c.Request.Context(), &req)
	if err != nil {
		h.respondError(c, "Failed to submit verification", err)
		return
	}

	c.JSON(http.StatusCreated, result)
}

// getVerificationStatus handles GET /api/v1/verifications/credits/:creditId
func (h *Handler) getVerificationStatus(c *gin.Context) {
	creditID, ok := h.pathID(c, "creditId")
	if !ok {
		return
	}

	status, err := h.service.GetVerificationStatus(c.Request.Context(), creditID)
	if err != nil {
		h.respondError(c, "Failed to get verification status", err)
		return
	}

	c.JSON(http.StatusOK, status)
}

// getVerification handles GET /api/v1/verifications/:id
func (h *Handler) getVerification(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	result, err := h.service.GetVerification(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, "Failed to get verification", err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// exportVerification handles GET /api/v1/verifications/:id/export?format=csv|xlsx
func (h *Handler) exportVerification(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	format, err := ParseExportFormat(c.Query("format"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var buf bytes.Buffer
	if err := h.service.ExportVerification(c.Request.Context(), id, format, &buf); err != nil {
		h.respondError(c, "Failed to export verification", err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=verification-%s.%s", id, format))
	c.Data(http.StatusOK, format.ContentType(), buf.Bytes())
}

// attachEvidence handles POST /api/v1/verifications/:id/evidence
func (h *Handler) attachEvidence(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	var req AttachEvidenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	file, err := h.service.AttachEvidence(c.Request.Context(), id, &req)
	if err != nil {
		h.respondError(c, "Failed to attach evidence", err)
		return
	}

	c.JSON(http.StatusCreated, file)
}

// decodeContents reads the optional base64 contents of a process or run request
func decodeContents(c *gin.Context) (map[uuid.UUID][]byte, error) {
	var req ProcessEvidenceRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}

	contents := make(map[uuid.UUID][]byte, len(req.Contents))
	for key, encoded := range req.Contents {
		evidenceID, err := uuid.Parse(key)
		if err != nil {
			return nil, fmt.Errorf("invalid evidence ID %q", key)
		}
		data, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("contents of %s are not valid base64", key)
		}
		contents[evidenceID] = data
	}
	return contents, nil
}

// processEvidence handles POST /api/v1/verifications/:id/evidence/process
func (h *Handler) processEvidence(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	contents, err := decodeContents(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.service.ProcessEvidence(c.Request.Context(), id, contents)
	if err != nil {
		h.respondError(c, "Failed to process evidence", err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// runVerification handles POST /api/v1/verifications/:id/run
func (h *Handler) runVerification(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	contents, err := decodeContents(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.service.RunVerification(c.Request.Context(), id, contents)
	if err != nil {
		h.respondError(c, "Failed to run verification", err)
		return
	}

	c.JSON(http.StatusOK, result)
}

type reviewAction func(ctx context.Context, id uuid.UUID, req *ReviewRequest) (*VerificationResult, error)

// review handles the POST /api/v1/verifications/:id/{review,approve,reject,revoke,cancel} actions
func (h *Handler) review(action reviewAction) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := h.pathID(c, "id")
		if !ok {
			return
		}

		var req ReviewRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		result, err := action(c.Request.Context(), id, &req)
		if err != nil {
			h.respondError(c, "Failed to update verification status", err)
			return
		}

		c.JSON(http.StatusOK, result)
	}
}

// =====================================================
// Methodology Endpoints
// =====================================================

// registerMethodology handles POST /api/v1/methodologies
func (h *Handler) registerMethodology(c *gin.Context) {
	var req RegisterMethodologyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	method, err := h.service.RegisterMethodology(c.Request.Context(), &req)
	if err != nil {
		h.respondError(c, "Failed to register methodology", err)
		return
	}

	c.JSON(http.StatusCreated, method)
}

// listMethodologies handles GET /api/v1/methodologies
func (h *Handler) listMethodologies(c *gin.Context) {
	methods, err := h.service.ListMethodologies(c.Request.Context())
	if err != nil {
		h.respondError(c, "Failed to list methodologies", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"methodologies": methods})
}

// setMethodologyActive handles PUT /api/v1/methodologies/:id/active
func (h *Handler) setMethodologyActive(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	var req SetActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	method, err := h.service.SetMethodologyActive(c.Request.Context(), id, *req.Active)
	if err != nil {
		h.respondError(c, "Failed to update methodology", err)
		return
	}

	c.JSON(http.StatusOK, method)
}
