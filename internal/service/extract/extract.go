// Package extract pulls the embedded text layer out of statement PDFs.
package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino-ext/components/document/loader/file"
	"github.com/cloudwego/eino/components/document"
	"github.com/cloudwego/eino/components/document/parser"
	"go.uber.org/zap"
)

var (
	// ErrExtraction covers unreadable, corrupt or unsupported PDFs.
	ErrExtraction = errors.New("pdf extraction failed")
	// ErrNoText means the PDF parsed but has no text layer (e.g. a scan).
	ErrNoText = errors.New("no extractable text")
)

// Extractor loads a PDF from disk through the eino file loader.
type Extractor struct {
	loader *file.FileLoader
	logger *zap.Logger
}

// New builds an extractor whose loader routes .pdf (and anything else) to PDFParser.
func New(ctx context.Context, logger *zap.Logger) (*Extractor, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	pdfParser := &PDFParser{}
	extParser, err := parser.NewExtParser(ctx, &parser.ExtParserConfig{
		Parsers:        map[string]parser.Parser{".pdf": pdfParser},
		FallbackParser: pdfParser,
	})
	if err != nil {
		return nil, fmt.Errorf("init pdf parser: %w", err)
	}
	loader, err := file.NewFileLoader(ctx, &file.FileLoaderConfig{
		Parser: extParser,
	})
	if err != nil {
		return nil, fmt.Errorf("init file loader: %w", err)
	}
	return &Extractor{loader: loader, logger: logger}, nil
}

// Extract returns the page texts of the PDF at path joined by newlines. On failure
// the text is empty and the error is ErrExtraction or ErrNoText.
func (e *Extractor) Extract(ctx context.Context, path string) (string, error) {
	docs, err := e.loader.Load(ctx, document.Source{URI: path})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", err
		}
		if !errors.Is(err, ErrExtraction) {
			err = fmt.Errorf("%w: %v", ErrExtraction, err)
		}
		e.logger.Warn("extract text", zap.String("path", path), zap.Error(err))
		return "", err
	}

	var builder strings.Builder
	for _, doc := range docs {
		content := strings.TrimSpace(doc.Content)
		if content == "" {
			continue
		}
		if builder.Len() > 0 {
			builder.WriteString("\n")
		}
		builder.WriteString(content)
	}
	text := strings.TrimSpace(builder.String())
	if text == "" {
		e.logger.Info("pdf has no text layer", zap.String("path", path))
		return "", ErrNoText
	}
	e.logger.Debug("extracted text", zap.Int("pages", len(docs)), zap.Int("chars", len(text)))
	return text, nil
}
