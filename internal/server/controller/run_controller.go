package controller

import (
	"net/http"

	"execbox/internal/sandbox"
	"execbox/internal/sandbox/result"
	"execbox/internal/sandbox/submission"
	"execbox/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// defaultMaxBodyBytes leaves room for base64 overhead on a full-size submission.
const defaultMaxBodyBytes = 1 << 20

// RunController handles run HTTP endpoints.
type RunController struct {
	service      sandbox.Service
	maxBodyBytes int64
}

// NewRunController creates a new RunController. maxBodyBytes <= 0 selects the default.
func NewRunController(service sandbox.Service, maxBodyBytes int64) *RunController {
	if maxBodyBytes <= 0 {
		maxBodyBytes = defaultMaxBodyBytes
	}
	return &RunController{service: service, maxBodyBytes: maxBodyBytes}
}

// Run executes one submission. The request context is the pipeline context,
// so a client disconnect cancels the in-flight program.
func (h *RunController) Run(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBodyBytes)
	var req RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}
	enc, err := submission.ParseEncoding(req.Encoding)
	if err != nil {
		response.Error(c, err)
		return
	}

	rep, err := h.service.Run(c.Request.Context(), sandbox.Request{
		Profile: req.Profile,
		Submission: submission.Submission{
			Code:     req.Code,
			Encoding: enc,
			Stdin:    []byte(req.Stdin),
		},
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Outcome(c, rep.Code, RunResponse{Report: rep, Text: rep.Text()})
}

// RunRequest defines the run payload.
type RunRequest struct {
	Profile  string `json:"profile"`
	Code     string `json:"code" binding:"required"`
	Encoding string `json:"encoding"`
	Stdin    string `json:"stdin"`
}

// RunResponse is the report plus its one-line rendering.
type RunResponse struct {
	result.Report
	Text string `json:"text"`
}
