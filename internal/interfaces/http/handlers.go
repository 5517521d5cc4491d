package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/admissions-workflow/internal/application/port"
	"github.com/garyjia/admissions-workflow/internal/application/service"
	"github.com/garyjia/admissions-workflow/internal/domain/workflow"
)

// Identity headers set by the authenticating proxy in front of the service
const (
	HeaderActorID    = "X-Actor-ID"
	HeaderActorRoles = "X-Actor-Roles"
)

// Error codes returned in Response.Code
const (
	CodeBadRequest        = "BAD_REQUEST"
	CodeValidationFailed  = "VALIDATION_FAILED"
	CodeNotFound          = "NOT_FOUND"
	CodePermissionDenied  = "PERMISSION_DENIED"
	CodeIllegalTransition = "ILLEGAL_TRANSITION"
	CodeAlreadyTerminal   = "ALREADY_TERMINAL"
	CodeConditionNotMet   = "CONDITION_NOT_MET"
	CodeConflict          = "CONFLICT"
	CodeWorkflowInactive  = "WORKFLOW_INACTIVE"
	CodeInternal          = "INTERNAL"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Handlers contains all HTTP request handlers
type Handlers struct {
	workflowService service.WorkflowService
	health          HealthChecker
	logger          Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(workflowService service.WorkflowService, health HealthChecker, logger Logger) *Handlers {
	return &Handlers{
		workflowService: workflowService,
		health:          health,
		logger:          logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Code    string      `json:"code,omitempty"`
	Details interface{} `json:"details,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

// ValidationDetails lists everything wrong with a workflow submission
type ValidationDetails struct {
	Errors   []workflow.ValidationError `json:"errors"`
	Warnings []workflow.ValidationError `json:"warnings,omitempty"`
}

// TransitionDetails explains a rejected transition
type TransitionDetails struct {
	CurrentStageID     string   `json:"current_stage_id,omitempty"`
	TransitionID       string   `json:"transition_id,omitempty"`
	FailedConditions   []string `json:"failed_conditions,omitempty"`
	MissingPermissions []string `json:"missing_permissions,omitempty"`
}

// ConflictDetails names the ids behind a conflict
type ConflictDetails struct {
	StageIDs      []string `json:"stage_ids,omitempty"`
	TransitionIDs []string `json:"transition_ids,omitempty"`
}

// StartApplicationRequest is the body of POST /api/applications
type StartApplicationRequest struct {
	WorkflowID    string `json:"workflow_id" binding:"required"`
	ApplicantID   string `json:"applicant_id" binding:"required"`
	ApplicationID string `json:"application_id"`
}

// TransitionRequest is the body of POST /api/applications/:id/transitions
type TransitionRequest struct {
	TransitionID string `json:"transition_id" binding:"required"`
}

// FactsRequest is the body of PUT /api/applications/:id/facts
type FactsRequest struct {
	Facts workflow.Facts `json:"facts" binding:"required"`
}

// ListWorkflowsRequest represents query parameters for listing workflows
type ListWorkflowsRequest struct {
	Active string `form:"active"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   "1.0.0",
	}

	if h.health != nil {
		if err := h.health(c.Request.Context()); err != nil {
			h.logger.Error("Health check failed", "error", err)
			response.Status = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, Response{
				Success: false,
				Data:    response,
				Error:   err.Error(),
			})
			return
		}
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    response,
	})
}

// DefineWorkflow handles POST /api/workflows
func (h *Handlers) DefineWorkflow(c *gin.Context) {
	var sub workflow.Submission
	if !h.bindJSON(c, &sub) {
		return
	}

	result, err := h.workflowService.DefineWorkflow(c.Request.Context(), sub)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Data: result})
}

// ListWorkflows handles GET /api/workflows
func (h *Handlers) ListWorkflows(c *gin.Context) {
	var req ListWorkflowsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.badRequest(c, "invalid query parameters")
		return
	}

	activeOnly := false
	if req.Active != "" {
		v, err := strconv.ParseBool(req.Active)
		if err != nil {
			h.badRequest(c, "active must be a boolean")
			return
		}
		activeOnly = v
	}

	defs, err := h.workflowService.ListWorkflows(c.Request.Context(), activeOnly)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if defs == nil {
		defs = []*workflow.Definition{}
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: defs})
}

// GetWorkflow handles GET /api/workflows/:id
func (h *Handlers) GetWorkflow(c *gin.Context) {
	def, err := h.workflowService.GetWorkflow(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: def})
}

// UpdateWorkflow handles PUT /api/workflows/:id
func (h *Handlers) UpdateWorkflow(c *gin.Context) {
	var sub workflow.Submission
	if !h.bindJSON(c, &sub) {
		return
	}

	result, err := h.workflowService.UpdateWorkflow(c.Request.Context(), c.Param("id"), sub)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: result})
}

// DeactivateWorkflow handles POST /api/workflows/:id/deactivate
func (h *Handlers) DeactivateWorkflow(c *gin.Context) {
	def, err := h.workflowService.DeactivateWorkflow(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: def})
}

// StartApplication handles POST /api/applications
func (h *Handlers) StartApplication(c *gin.Context) {
	var req StartApplicationRequest
	if !h.bindJSON(c, &req) {
		return
	}

	app, err := h.workflowService.StartApplication(c.Request.Context(), service.StartRequest{
		WorkflowID:    req.WorkflowID,
		ApplicantID:   req.ApplicantID,
		ApplicationID: req.ApplicationID,
		Caller:        identityFrom(c),
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Data: app})
}

// GetApplication handles GET /api/applications/:id
func (h *Handlers) GetApplication(c *gin.Context) {
	app, err := h.workflowService.GetApplication(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: app})
}

// GetNextSteps handles GET /api/applications/:id/next-steps
func (h *Handlers) GetNextSteps(c *gin.Context) {
	steps, err := h.workflowService.GetLegalNextSteps(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: steps})
}

// AdvanceApplication handles POST /api/applications/:id/transitions
func (h *Handlers) AdvanceApplication(c *gin.Context) {
	var req TransitionRequest
	if !h.bindJSON(c, &req) {
		return
	}

	entry, err := h.workflowService.AdvanceApplication(c.Request.Context(), service.AdvanceRequest{
		ApplicationID: c.Param("id"),
		TransitionID:  req.TransitionID,
		Caller:        identityFrom(c),
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: entry})
}

// TickAutomatic handles POST /api/applications/:id/tick
func (h *Handlers) TickAutomatic(c *gin.Context) {
	result, err := h.workflowService.TickAutomatic(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: result})
}

// SetFacts handles PUT /api/applications/:id/facts
func (h *Handlers) SetFacts(c *gin.Context) {
	var req FactsRequest
	if !h.bindJSON(c, &req) {
		return
	}

	facts, err := h.workflowService.SetFacts(c.Request.Context(), c.Param("id"), req.Facts)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: facts})
}

// GetHistory handles GET /api/applications/:id/history
func (h *Handlers) GetHistory(c *gin.Context) {
	history, err := h.workflowService.GetHistory(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	if history == nil {
		history = workflow.History{}
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: history})
}

// ExportHistory handles GET /api/applications/:id/history.xlsx
func (h *Handlers) ExportHistory(c *gin.Context) {
	id := c.Param("id")

	var buf bytes.Buffer
	if err := h.workflowService.ExportHistory(c.Request.Context(), id, &buf); err != nil {
		h.writeError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s-history.xlsx"`, id))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

// identityFrom reads the caller identity from the request headers
func identityFrom(c *gin.Context) port.Identity {
	id := port.Identity{ActorID: strings.TrimSpace(c.GetHeader(HeaderActorID))}
	for _, role := range strings.Split(c.GetHeader(HeaderActorRoles), ",") {
		if role = strings.TrimSpace(role); role != "" {
			id.Roles = append(id.Roles, role)
		}
	}
	return id
}

func (h *Handlers) bindJSON(c *gin.Context, obj interface{}) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		h.logger.Error("Invalid request body", "path", c.FullPath(), "error", err)
		h.badRequest(c, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func (h *Handlers) badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, Response{
		Success: false,
		Error:   msg,
		Code:    CodeBadRequest,
	})
}

// writeError maps service errors to a status code and typed error body
func (h *Handlers) writeError(c *gin.Context, err error) {
	status, resp := errorResponse(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed", "path", c.FullPath(), "error", err)
	}
	c.JSON(status, resp)
}

func errorResponse(err error) (int, Response) {
	resp := Response{Success: false, Error: err.Error()}

	var vErr *workflow.ValidationFailedError
	if errors.As(err, &vErr) {
		resp.Code = CodeValidationFailed
		resp.Details = ValidationDetails{Errors: vErr.Errors, Warnings: vErr.Warnings}
		return http.StatusUnprocessableEntity, resp
	}

	var tErr *workflow.TransitionError
	if errors.As(err, &tErr) {
		resp.Details = TransitionDetails{
			CurrentStageID:     tErr.CurrentStageID,
			TransitionID:       tErr.TransitionID,
			FailedConditions:   tErr.FailedConditions,
			MissingPermissions: tErr.MissingPerms,
		}
	}

	var cErr *workflow.ConflictError
	if errors.As(err, &cErr) {
		resp.Details = ConflictDetails{StageIDs: cErr.StageIDs, TransitionIDs: cErr.TransitionIDs}
	}

	switch {
	case errors.Is(err, workflow.ErrNotFound):
		resp.Code = CodeNotFound
		return http.StatusNotFound, resp
	case errors.Is(err, workflow.ErrPermissionDenied):
		resp.Code = CodePermissionDenied
		return http.StatusForbidden, resp
	case errors.Is(err, workflow.ErrAlreadyTerminal):
		resp.Code = CodeAlreadyTerminal
		return http.StatusConflict, resp
	case errors.Is(err, workflow.ErrIllegalTransition):
		resp.Code = CodeIllegalTransition
		return http.StatusConflict, resp
	case errors.Is(err, workflow.ErrConditionNotMet):
		resp.Code = CodeConditionNotMet
		return http.StatusConflict, resp
	case errors.Is(err, workflow.ErrInactiveWorkflow):
		resp.Code = CodeWorkflowInactive
		return http.StatusConflict, resp
	case errors.Is(err, workflow.ErrConflict):
		resp.Code = CodeConflict
		return http.StatusConflict, resp
	case errors.Is(err, context.DeadlineExceeded):
		resp.Code = CodeInternal
		return http.StatusGatewayTimeout, resp
	default:
		resp.Code = CodeInternal
		resp.Error = "internal error"
		return http.StatusInternalServerError, resp
	}
}
