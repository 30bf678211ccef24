package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"finsight/internal/models"
	"finsight/internal/render"
	"finsight/internal/service/analyzer"
	"finsight/internal/service/intake"
	"finsight/internal/worker"
)

// multipart framing allowance on top of the file limit
const formOverhead = 1 << 20

const busyMessage = "server is busy, please retry"

type Pipeline interface {
	Process(ctx context.Context, name string, r io.Reader, progress analyzer.ProgressFunc) *analyzer.Outcome
}

type ReportStore interface {
	Lookup(ctx context.Context, id string) (string, bool)
}

type Runner interface {
	Run(ctx context.Context, fn func(context.Context)) error
}

// Handler wires HTTP routes to the analysis pipeline.
type Handler struct {
	pipeline  Pipeline
	reports   ReportStore
	workers   Runner
	renderer  *render.Renderer
	maxUpload int64
	logger    *zap.Logger
}

// NewHandler constructs a Handler instance.
func NewHandler(pipeline Pipeline, reports ReportStore, workers Runner, renderer *render.Renderer, maxUpload int64, logger *zap.Logger) *Handler {
	if renderer == nil {
		renderer = render.New()
	}
	if maxUpload <= 0 {
		maxUpload = intake.DefaultMaxBytes
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		pipeline:  pipeline,
		reports:   reports,
		workers:   workers,
		renderer:  renderer,
		maxUpload: maxUpload,
		logger:    logger,
	}
}

// RegisterRoutes attaches all HTTP routes to the router. gatherer backs /metrics.
func (h *Handler) RegisterRoutes(router *gin.Engine, gatherer prometheus.Gatherer) {
	router.SetHTMLTemplate(pageTemplate)
	router.GET("/", h.index)
	router.POST("/analyze", h.analyzeForm)
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	api := router.Group("/api")
	api.POST("/analyze", h.analyzeJSON)
	api.POST("/analyze/stream", h.analyzeStream)
	api.GET("/reports/:id/download", h.downloadReport)
}

type uploadError struct {
	status  int
	message string
}

// openUpload returns the single "file" part of a multipart request.
func (h *Handler) openUpload(c *gin.Context) (multipart.File, *multipart.FileHeader, *uploadError) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload+formOverhead)
	header, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, nil, &uploadError{http.StatusRequestEntityTooLarge, intake.ErrTooLarge.Error()}
		}
		return nil, nil, &uploadError{http.StatusBadRequest, "file is required"}
	}
	if header.Size > h.maxUpload {
		return nil, nil, &uploadError{http.StatusRequestEntityTooLarge, intake.ErrTooLarge.Error()}
	}
	f, err := header.Open()
	if err != nil {
		return nil, nil, &uploadError{http.StatusBadRequest, "open file failed"}
	}
	return f, header, nil
}

// run executes the pipeline on the worker pool.
func (h *Handler) run(c *gin.Context, f multipart.File, name string, progress analyzer.ProgressFunc) (*analyzer.Outcome, *uploadError) {
	var out *analyzer.Outcome
	err := h.workers.Run(c.Request.Context(), func(ctx context.Context) {
		out = h.pipeline.Process(ctx, name, f, progress)
	})
	if err != nil {
		if errors.Is(err, worker.ErrDispatcherBusy) {
			return nil, &uploadError{http.StatusTooManyRequests, busyMessage}
		}
		h.logger.Warn("pipeline not run", zap.Error(err))
		return nil, &uploadError{http.StatusServiceUnavailable, err.Error()}
	}
	return out, nil
}

func outcomeStatus(out *analyzer.Outcome) int {
	switch out.Status {
	case analyzer.StatusReady:
		return http.StatusOK
	case analyzer.StatusRejected:
		switch {
		case errors.Is(out.Err, intake.ErrTooLarge):
			return http.StatusRequestEntityTooLarge
		case errors.Is(out.Err, intake.ErrUnsupportedType), errors.Is(out.Err, intake.ErrEmpty):
			return http.StatusBadRequest
		default:
			return http.StatusInternalServerError
		}
	case analyzer.StatusExtractFailed:
		return http.StatusUnprocessableEntity
	case analyzer.StatusAnalyzeFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func downloadURL(id string) string {
	return fmt.Sprintf("/api/reports/%s/download", id)
}

func (h *Handler) outcomePayload(out *analyzer.Outcome) gin.H {
	payload := gin.H{
		"status":  out.Status,
		"message": out.Message,
		"stages":  out.Stages,
	}
	if out.Report != nil {
		payload["report_id"] = out.Report.ID
		payload["markdown"] = out.Report.Markdown
		payload["html"] = string(h.renderer.HTML(out.Report.Markdown))
		payload["cached"] = out.Report.Cached
		payload["download_url"] = downloadURL(out.Report.ID)
	}
	return payload
}

func (h *Handler) analyzeJSON(c *gin.Context) {
	f, header, upErr := h.openUpload(c)
	if upErr != nil {
		c.JSON(upErr.status, gin.H{"error": upErr.message})
		return
	}
	defer f.Close()

	out, upErr := h.run(c, f, header.Filename, nil)
	if upErr != nil {
		c.JSON(upErr.status, gin.H{"error": upErr.message})
		return
	}
	c.JSON(outcomeStatus(out), h.outcomePayload(out))
}

func (h *Handler) analyzeStream(c *gin.Context) {
	f, header, upErr := h.openUpload(c)
	if upErr != nil {
		c.JSON(upErr.status, gin.H{"error": upErr.message})
		return
	}
	defer f.Close()

	// SSE Request construction
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming not supported"})
		return
	}
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	sendEvent := func(event string, payload interface{}) error {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(c.Writer, "event: %s\n", event); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(c.Writer, "data: %s\n\n", data); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	out, upErr := h.run(c, f, header.Filename, func(p analyzer.Progress) {
		if err := sendEvent("status", p); err != nil {
			h.logger.Debug("sse write failed", zap.Error(err))
		}
	})
	if upErr != nil {
		_ = sendEvent("error", gin.H{"message": upErr.message, "code": upErr.status})
		return
	}
	payload := h.outcomePayload(out)
	if out.Status == analyzer.StatusReady {
		if err := sendEvent("report", payload); err != nil {
			return
		}
	} else {
		payload["code"] = outcomeStatus(out)
		if err := sendEvent("error", payload); err != nil {
			return
		}
	}
	_ = sendEvent("done", gin.H{"status": out.Status})
}

func (h *Handler) downloadReport(c *gin.Context) {
	body, ok := h.reports.Lookup(c.Request.Context(), c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "report not found"})
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", models.ReportFileName))
	c.Data(http.StatusOK, "text/markdown; charset=utf-8", []byte(body))
}
