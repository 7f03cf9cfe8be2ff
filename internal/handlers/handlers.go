package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/example/id-verify/internal/auth"
	"github.com/example/id-verify/internal/capture"
	"github.com/example/id-verify/internal/logging"
	"github.com/example/id-verify/internal/session"
	"github.com/example/id-verify/internal/usecase"
)

// MaxUploadSize bounds each uploaded image, mirroring the OCR service's own
// limit.
const MaxUploadSize = 16 << 20

var allowedImageTypes = map[string]bool{
	"image/jpeg":      true,
	"image/png":       true,
	"application/pdf": true,
}

// RegisterRoutes wires the HTTP handlers to the Gin router. The routes are
// request/response glue only; all pipeline decisions live in the usecase.
func RegisterRoutes(router *gin.Engine, pipeline *usecase.Pipeline, authMiddleware gin.HandlerFunc) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api/verification")

	api.POST("/sessions", func(c *gin.Context) {
		flow, ok := session.ParseFlow(c.PostForm("flow"))
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "flow must be registration or login"})
			return
		}

		front, ok := readImage(c, "front")
		if !ok {
			return
		}
		var back capture.Image
		if flow == session.FlowRegistration {
			if back, ok = readImage(c, "back"); !ok {
				return
			}
		}

		s, err := pipeline.StartSession(flow, front, back)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"session_id": s.ID, "phase": s.Phase})
	})

	api.POST("/sessions/:id/selfie", func(c *gin.Context) {
		selfie, ok := readImage(c, "selfie")
		if !ok {
			return
		}
		s, err := pipeline.CaptureSelfie(c.Param("id"), selfie)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"session_id": s.ID, "phase": s.Phase})
	})

	api.POST("/sessions/:id/retake", func(c *gin.Context) {
		s, err := pipeline.RetakeSelfie(c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"session_id": s.ID, "phase": s.Phase})
	})

	api.POST("/sessions/:id/confirm", func(c *gin.Context) {
		outcome, err := pipeline.ConfirmIdentity(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		response := gin.H{"phase": outcome.Phase, "completed": outcome.Completed}
		if outcome.Record != nil {
			response["record"] = outcome.Record
			response["missing_fields"] = outcome.MissingFields
		}
		c.JSON(http.StatusOK, response)
	})

	api.PUT("/sessions/:id/review", func(c *gin.Context) {
		var body struct {
			Fields map[string]string `json:"fields"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid review payload"})
			return
		}
		rec, err := pipeline.SaveReview(c.Param("id"), body.Fields)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"record": rec})
	})

	api.POST("/sessions/:id/submit", func(c *gin.Context) {
		var body struct {
			Email       string `json:"email"`
			PhoneNumber string `json:"phone_number"`
			Password    string `json:"password"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid submit payload"})
			return
		}
		creds := usecase.Credentials{
			Email:       body.Email,
			PhoneNumber: body.PhoneNumber,
			Password:    body.Password,
		}
		if err := pipeline.Submit(c.Request.Context(), c.Param("id"), creds); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"phase": session.PhaseCompleted})
	})

	api.DELETE("/sessions/:id", func(c *gin.Context) {
		pipeline.Abandon(c.Param("id"))
		c.Status(http.StatusNoContent)
	})

	api.GET("/metrics", authMiddleware, func(c *gin.Context) {
		summary, err := pipeline.GetMetricsSummary(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to aggregate metrics"})
			return
		}
		response := gin.H{"metrics": summary}
		if operator, ok := auth.OperatorID(c.Request.Context()); ok {
			response["requested_by"] = operator
		}
		c.JSON(http.StatusOK, response)
	})
}

// readImage pulls one multipart image out of the request, enforcing size and
// content-type limits. On failure it writes the response itself.
func readImage(c *gin.Context, field string) (capture.Image, bool) {
	file, err := c.FormFile(field)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": field + " image is required"})
		return capture.Image{}, false
	}
	if file.Size > MaxUploadSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": field + " image exceeds upload limit"})
		return capture.Image{}, false
	}
	contentType := file.Header.Get("Content-Type")
	if !allowedImageTypes[contentType] {
		c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": "unsupported image type " + contentType})
		return capture.Image{}, false
	}

	src, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unable to open " + field + " image"})
		return capture.Image{}, false
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read " + field + " image"})
		return capture.Image{}, false
	}
	return capture.Image{Data: data, MIME: contentType}, true
}

// respondError maps pipeline errors onto HTTP statuses.
func respondError(c *gin.Context, err error) {
	var missingErr *session.MissingFieldsError
	switch {
	case errors.Is(err, session.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, session.ErrInvalidPhase):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, session.ErrCaptureUnavailable):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, session.ErrFaceMismatch):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error": "face verification failed, please retake your selfie",
			"phase": session.PhaseAwaitingSelfie,
		})
	case errors.As(err, &missingErr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":          err.Error(),
			"missing_fields": missingErr.Labels,
		})
	case errors.Is(err, session.ErrContractViolation):
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		var opErr *logging.OperationError
		if errors.As(err, &opErr) {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "retryable": true})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
