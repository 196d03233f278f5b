package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/agentstation/codescope"
)

// EvaluateRequest is the body of POST /evaluate.
type EvaluateRequest struct {
	Code string `json:"code" binding:"required"`
}

// EvaluateResponse is the body of a successful POST /evaluate.
type EvaluateResponse struct {
	RunID string `json:"run_id"`
	// Results holds each review rendered with its heading, in task order.
	Results     []string                  `json:"results"`
	Reviews     []string                  `json:"reviews"`
	FinalReport string                    `json:"final_report"`
	Analyses    []codescope.LabeledResult `json:"analyses"`
	Unavailable []string                  `json:"unavailable,omitempty"`
}

// ErrorResponse is the body of a failed request.
type ErrorResponse struct {
	Error string `json:"error"`
	Stage string `json:"stage,omitempty"`
	Label string `json:"label,omitempty"`
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "Active", "model": s.opts.Model})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleEvaluate(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.opts.MaxInputBytes)

	var req EvaluateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.metrics.observe("rejected", 0)
			c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{Error: "request body too large"})
			return
		}
		s.metrics.observe("rejected", 0)
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "request body must be a JSON object with a non-empty code field"})
		return
	}

	start := time.Now()
	report, err := s.runner.Run(c.Request.Context(), req.Code)
	if err != nil {
		status, body := errorResponse(err)
		outcome := body.Stage
		if outcome == "" {
			outcome = "error"
		}
		s.metrics.observe(outcome, time.Since(start))
		s.opts.Logger.ErrorContext(c.Request.Context(), "evaluation failed",
			"stage", body.Stage,
			"label", body.Label,
			"error", err)
		c.JSON(status, body)
		return
	}
	s.metrics.observe("success", time.Since(start))

	reviews := report.Reviews()
	c.JSON(http.StatusOK, EvaluateResponse{
		RunID:       report.RunID,
		Results:     reviews,
		Reviews:     reviews,
		FinalReport: report.Output,
		Analyses:    report.Results,
		Unavailable: report.Unavailable,
	})
}

// errorResponse maps a run error to a status and a body that carries no
// prompt text.
func errorResponse(err error) (int, ErrorResponse) {
	var we *codescope.WorkflowError
	if !errors.As(err, &we) {
		return http.StatusInternalServerError, ErrorResponse{Error: "internal error"}
	}

	body := ErrorResponse{
		Error: we.Error(),
		Stage: string(we.Stage),
		Label: we.Label,
	}
	if we.Stage == codescope.StageDispatch {
		if errors.Is(err, codescope.ErrEmptyInput) {
			body.Error = "code must not be empty"
			return http.StatusBadRequest, body
		}
		return http.StatusServiceUnavailable, body
	}

	var se *codescope.ServiceError
	if errors.As(err, &se) && se.Kind == codescope.KindTimeout {
		return http.StatusGatewayTimeout, body
	}
	return http.StatusBadGateway, body
}
