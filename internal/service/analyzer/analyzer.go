// Package analyzer runs one statement through upload, extraction and analysis and
// always removes the transient file afterwards.
package analyzer

import (
	"context"
	"errors"
	"io"
	"time"

	"go.uber.org/zap"

	"finsight/internal/metrics"
	"finsight/internal/models"
	"finsight/internal/service/extract"
	"finsight/internal/service/intake"
)

type Status string

const (
	StatusReady         Status = "ready"
	StatusRejected      Status = "rejected"
	StatusExtractFailed Status = "extract_failed"
	StatusAnalyzeFailed Status = "analyze_failed"
)

type Stage string

const (
	StageUploading  Stage = "uploading"
	StageExtracting Stage = "extracting"
	StageAnalyzing  Stage = "analyzing"
	StageDone       Stage = "done"
)

const (
	MessageExtracted   = "File Uploaded And Text Extracted Successfully..."
	MessageNoText      = "Could not extract text. Try using an OCR tool on your statement first."
	MessageReportReady = "Report Generated! Optimize Your Spendings and Savings..."
	MessageStoreFailed = "Could not store the uploaded file. Please retry."
)

// Progress is one entry of the status trail shown while a statement is processed.
type Progress struct {
	Stage   Stage  `json:"stage"`
	Percent int    `json:"percent"`
	Message string `json:"message"`
}

type ProgressFunc func(Progress)

// Outcome is the result of one pipeline run. Err keeps the underlying cause for
// logging and status mapping; Message is what the user sees.
type Outcome struct {
	Status  Status         `json:"status"`
	Message string         `json:"message"`
	Report  *models.Report `json:"report,omitempty"`
	Stages  []Progress     `json:"stages"`
	Err     error          `json:"-"`
}

type UploadStore interface {
	Save(name string, r io.Reader) (*models.Upload, error)
	Release(upload *models.Upload) error
}

type TextExtractor interface {
	Extract(ctx context.Context, path string) (string, error)
}

type ReportGenerator interface {
	Analyze(ctx context.Context, text string) models.Report
}

type Service struct {
	store     UploadStore
	extractor TextExtractor
	generator ReportGenerator
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

func NewService(store UploadStore, extractor TextExtractor, generator ReportGenerator, logger *zap.Logger, m *metrics.Metrics) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:     store,
		extractor: extractor,
		generator: generator,
		logger:    logger,
		metrics:   m,
	}
}

// Process stores r under name, extracts its text and asks the generator for a report.
// progress may be nil.
func (s *Service) Process(ctx context.Context, name string, r io.Reader, progress ProgressFunc) *Outcome {
	out := &Outcome{}
	report := func(stage Stage, percent int, message string) {
		p := Progress{Stage: stage, Percent: percent, Message: message}
		out.Stages = append(out.Stages, p)
		if progress != nil {
			progress(p)
		}
	}
	defer func() {
		s.metrics.Outcome(string(out.Status))
	}()

	report(StageUploading, 0, "Uploading statement...")
	start := time.Now()
	upload, err := s.store.Save(name, r)
	s.metrics.ObserveStage(string(StageUploading), start)
	if err != nil {
		out.Status, out.Message, out.Err = StatusRejected, rejectionMessage(err), err
		if out.Message == MessageStoreFailed {
			s.logger.Error("store upload", zap.String("file", name), zap.Error(err))
		} else {
			s.logger.Info("upload rejected", zap.String("file", name), zap.Error(err))
		}
		return out
	}
	log := s.logger.With(zap.String("upload_id", upload.ID), zap.String("file", upload.FileName))
	defer func() {
		if err := s.store.Release(upload); err != nil {
			log.Warn("release transient file", zap.Error(err))
		}
	}()

	report(StageExtracting, 10, "Extracting text from PDF...")
	start = time.Now()
	text, err := s.extractor.Extract(ctx, upload.StoredPath)
	s.metrics.ObserveStage(string(StageExtracting), start)
	if err == nil && text == "" {
		err = extract.ErrNoText
	}
	if err != nil {
		log.Warn("text extraction failed", zap.Error(err))
		out.Status, out.Message, out.Err = StatusExtractFailed, MessageNoText, err
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			out.Message = err.Error()
		}
		return out
	}
	log.Info("text extracted", zap.Int("chars", len(text)), zap.Int64("bytes", upload.Size))

	report(StageAnalyzing, 50, "AI is analyzing your financial data...")
	start = time.Now()
	result := s.generator.Analyze(ctx, text)
	s.metrics.ObserveStage(string(StageAnalyzing), start)
	out.Report = &result
	if result.Failed {
		log.Warn("analysis failed", zap.String("report_id", result.ID))
		out.Status, out.Message = StatusAnalyzeFailed, result.Markdown
		return out
	}

	report(StageDone, 100, MessageReportReady)
	log.Info("report ready", zap.String("report_id", result.ID), zap.Bool("cached", result.Cached))
	out.Status, out.Message = StatusReady, MessageReportReady
	return out
}

// rejectionMessage keeps filesystem details of unexpected intake errors out of the
// user-facing message.
func rejectionMessage(err error) string {
	for _, known := range []error{intake.ErrUnsupportedType, intake.ErrTooLarge, intake.ErrEmpty} {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return MessageStoreFailed
}
