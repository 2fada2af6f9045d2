package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Aidin1998/amlwatch/common/apiutil"
	"github.com/Aidin1998/amlwatch/internal/compliance/aml"
	"github.com/Aidin1998/amlwatch/internal/compliance/aml/reporting"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AMLService is the set of AML operations exposed over HTTP
type AMLService interface {
	ScanUser(ctx context.Context, userID string) (*aml.ScanSummary, error)
	GetUserRiskScore(ctx context.Context, userID string) (int, error)
	FindAll(ctx context.Context, filter aml.ActivityFilter) ([]*aml.SuspiciousActivity, error)
	GetActivity(ctx context.Context, id string) (*aml.SuspiciousActivity, error)
	UpdateStatus(ctx context.Context, activityID, status, reviewerID string, notes *string) (*aml.SuspiciousActivity, error)
	GenerateSar(ctx context.Context, activityID string) (*aml.SarReport, error)
	AutoFile(ctx context.Context, threshold int) (*reporting.AutoFileResult, error)
}

// Handler serves the AML compliance endpoints
type Handler struct {
	svc               AMLService
	autoFileThreshold int
	logger            *zap.Logger
}

// NewHandler creates a handler. autoFileThreshold is used when an auto-file
// request does not name one.
func NewHandler(svc AMLService, autoFileThreshold int, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, autoFileThreshold: autoFileThreshold, logger: logger.Named("aml.api")}
}

// RegisterRoutes mounts the AML routes under rg
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	apiutil.UseJSONFieldNames()

	g := rg.Group("/compliance/aml")
	g.Use(apiutil.RFC7807ErrorMiddleware())
	{
		users := g.Group("/users/:userID")
		users.POST("/scan", h.ScanUser)
		users.GET("/risk-score", h.GetUserRiskScore)

		activities := g.Group("/activities")
		activities.GET("", h.ListActivities)
		activities.GET("/:id", h.GetActivity)
		activities.PATCH("/:id/status", h.UpdateStatus)
		activities.POST("/:id/sar", h.GenerateSar)

		g.POST("/sars/auto-file", h.AutoFile)
	}
}

// ListActivitiesQuery filters GET /activities. Times are RFC 3339.
type ListActivitiesQuery struct {
	Status       string    `form:"status"`
	UserID       string    `form:"user_id" binding:"omitempty,max=64"`
	Reason       string    `form:"reason"`
	From         time.Time `form:"from"`
	To           time.Time `form:"to"`
	MinRiskScore int       `form:"min_risk_score" binding:"omitempty,min=0,max=100"`
	Limit        int       `form:"limit" binding:"omitempty,min=1,max=1000"`
}

// UpdateStatusRequest is the body of PATCH /activities/:id/status
type UpdateStatusRequest struct {
	Status     string  `json:"status" binding:"required"`
	ReviewerID string  `json:"reviewer_id" binding:"required,max=64"`
	Notes      *string `json:"notes"`
}

// AutoFileRequest is the optional body of POST /sars/auto-file
type AutoFileRequest struct {
	Threshold *int `json:"threshold" binding:"omitempty,min=0,max=100"`
}

// AutoFileResponse reports one auto-file sweep
type AutoFileResponse struct {
	Threshold int              `json:"threshold"`
	Eligible  int              `json:"eligible"`
	Filed     int              `json:"filed"`
	Failed    int              `json:"failed"`
	Reports   []*aml.SarReport `json:"reports"`
}

func (h *Handler) ScanUser(c *gin.Context) {
	summary, err := h.svc.ScanUser(c.Request.Context(), c.Param("userID"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *Handler) GetUserRiskScore(c *gin.Context) {
	userID := c.Param("userID")
	score, err := h.svc.GetUserRiskScore(c.Request.Context(), userID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user_id": userID, "risk_score": score})
}

func (h *Handler) ListActivities(c *gin.Context) {
	var q ListActivitiesQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		_ = c.Error(err).SetType(gin.ErrorTypeBind)
		return
	}

	filter, err := q.filter()
	if err != nil {
		h.fail(c, err)
		return
	}

	activities, err := h.svc.FindAll(c.Request.Context(), filter)
	if err != nil {
		h.fail(c, err)
		return
	}
	if activities == nil {
		activities = []*aml.SuspiciousActivity{}
	}
	c.JSON(http.StatusOK, gin.H{"activities": activities, "count": len(activities)})
}

func (q ListActivitiesQuery) filter() (aml.ActivityFilter, error) {
	f := aml.ActivityFilter{
		UserID:       q.UserID,
		From:         q.From,
		To:           q.To,
		MinRiskScore: q.MinRiskScore,
		Limit:        q.Limit,
	}
	if q.Status != "" {
		st, err := aml.ParseActivityStatus(q.Status)
		if err != nil {
			return f, fmt.Errorf("%w: unknown status filter %q", aml.ErrInvalidArgument, q.Status)
		}
		f.Status = st
	}
	if q.Reason != "" {
		r, err := aml.ParseActivityReason(q.Reason)
		if err != nil {
			return f, err
		}
		f.Reason = r
	}
	if !f.From.IsZero() && !f.To.IsZero() && f.To.Before(f.From) {
		return f, fmt.Errorf("%w: to must not be before from", aml.ErrInvalidArgument)
	}
	return f, nil
}

func (h *Handler) GetActivity(c *gin.Context) {
	a, err := h.svc.GetActivity(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

func (h *Handler) UpdateStatus(c *gin.Context) {
	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(err).SetType(gin.ErrorTypeBind)
		return
	}

	a, err := h.svc.UpdateStatus(c.Request.Context(), c.Param("id"), req.Status, req.ReviewerID, req.Notes)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

func (h *Handler) GenerateSar(c *gin.Context) {
	report, err := h.svc.GenerateSar(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, report)
}

func (h *Handler) AutoFile(c *gin.Context) {
	var req AutoFileRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			_ = c.Error(err).SetType(gin.ErrorTypeBind)
			return
		}
	}
	threshold := h.autoFileThreshold
	if req.Threshold != nil {
		threshold = *req.Threshold
	}

	res, err := h.svc.AutoFile(c.Request.Context(), threshold)
	if err != nil {
		h.fail(c, err)
		return
	}

	reports := res.Reports
	if reports == nil {
		reports = []*aml.SarReport{}
	}
	c.JSON(http.StatusOK, AutoFileResponse{
		Threshold: threshold,
		Eligible:  res.Eligible,
		Filed:     len(res.Reports),
		Failed:    res.Failed,
		Reports:   reports,
	})
}

// fail hands err to the problem middleware. Client errors are not logged.
func (h *Handler) fail(c *gin.Context, err error) {
	if !errors.Is(err, aml.ErrNotFound) && !errors.Is(err, aml.ErrInvalidState) && !errors.Is(err, aml.ErrInvalidArgument) {
		h.logger.Error("aml request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
	}
	_ = c.Error(err)
}
