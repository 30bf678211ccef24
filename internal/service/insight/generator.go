package insight

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"finsight/internal/metrics"
	"finsight/internal/models"
)

// DefaultArchiveCapacity bounds the reports kept for download.
const DefaultArchiveCapacity = 1024

// ErrorMarker prefixes every report body that carries an error instead of analysis.
const ErrorMarker = "⚠️"

var (
	// ErrNoResponse is reported when the model answers with empty content.
	ErrNoResponse = errors.New("AI did not return a response")
	ErrEmptyInput = errors.New("statement text is empty")
)

// ChatModel is the part of an eino chat model the generator needs.
type ChatModel interface {
	Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error)
}

// Generator turns statement text into a markdown report with one model call per
// distinct text.
type Generator struct {
	model    ChatModel
	template prompt.ChatTemplate
	cache    Cache
	reports  Cache
	flight   singleflight.Group
	timeout  time.Duration
	logger   *zap.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

type Option func(*Generator)

func WithCache(c Cache) Option {
	return func(g *Generator) { g.cache = c }
}

// WithArchive replaces the store that keeps handed-out reports for download.
func WithArchive(c Cache) Option {
	return func(g *Generator) { g.reports = c }
}

// WithTimeout bounds each model call; zero leaves the caller's context untouched.
func WithTimeout(d time.Duration) Option {
	return func(g *Generator) { g.timeout = d }
}

func WithLogger(l *zap.Logger) Option {
	return func(g *Generator) { g.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Generator) { g.metrics = m }
}

func NewGenerator(m ChatModel, opts ...Option) (*Generator, error) {
	if m == nil {
		return nil, errors.New("chat model is required")
	}
	g := &Generator{
		model:    m,
		template: newReportTemplate(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.cache == nil {
		g.cache = NewMemoryCache()
	}
	if g.reports == nil {
		g.reports = NewMemoryCache(WithCapacity(DefaultArchiveCapacity))
	}
	if g.logger == nil {
		g.logger = zap.NewNop()
	}
	return g, nil
}

// Key derives the memo key for text.
func Key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Analyze returns the report for text. Errors never escape: a failed call yields a
// report whose Markdown starts with ErrorMarker and which is not memoized.
func (g *Generator) Analyze(ctx context.Context, text string) models.Report {
	key := Key(text)
	if strings.TrimSpace(text) == "" {
		return g.failure(key, ErrEmptyInput)
	}

	if cached, ok := g.cache.Get(ctx, key); ok {
		g.metrics.Memo(true)
		g.logger.Debug("insight memo hit", zap.String("report_id", key))
		return g.archive(models.Report{ID: key, Markdown: cached, Cached: true, GeneratedAt: g.now()})
	}
	g.metrics.Memo(false)

	// the flight is shared by every caller on this key, so one caller leaving must not
	// cancel it; each caller stops waiting on its own ctx instead
	flightCtx := context.WithoutCancel(ctx)
	ch := g.flight.DoChan(key, func() (any, error) {
		// a caller that missed the cache just before the previous flight stored its result
		if cached, ok := g.cache.Get(flightCtx, key); ok {
			return cached, nil
		}
		markdown, err := g.generate(flightCtx, text)
		if err != nil {
			return nil, err
		}
		g.cache.Set(flightCtx, key, markdown)
		return markdown, nil
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return g.failure(key, ctx.Err())
	}
	if res.Err != nil {
		g.logger.Warn("insight generation failed", zap.String("report_id", key), zap.Error(res.Err))
		return g.archive(g.failure(key, res.Err))
	}
	if res.Shared {
		g.logger.Debug("insight shared in-flight result", zap.String("report_id", key))
	}
	return g.archive(models.Report{ID: key, Markdown: res.Val.(string), GeneratedAt: g.now()})
}

// Lookup returns the body of a report handed out by Analyze, failed ones included.
// Reports are served from the download archive, so memo eviction or expiry does not
// take away a report that was already shown.
func (g *Generator) Lookup(ctx context.Context, id string) (string, bool) {
	if id == "" {
		return "", false
	}
	if body, ok := g.reports.Get(ctx, id); ok {
		return body, true
	}
	return g.cache.Get(ctx, id)
}

func (g *Generator) archive(r models.Report) models.Report {
	g.reports.Set(context.Background(), r.ID, r.Markdown)
	return r
}

func (g *Generator) generate(ctx context.Context, text string) (string, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	messages, err := g.template.Format(ctx, map[string]any{statementVar: text})
	if err != nil {
		return "", fmt.Errorf("format prompt: %w", err)
	}

	start := time.Now()
	resp, err := g.model.Generate(ctx, messages)
	g.metrics.ObserveStage("generate", start)
	if err != nil {
		return "", err
	}
	if resp == nil {
		return "", ErrNoResponse
	}
	content := strings.TrimSpace(resp.Content)
	if content == "" {
		return "", ErrNoResponse
	}
	return content, nil
}

func (g *Generator) failure(key string, err error) models.Report {
	body := fmt.Sprintf("%s Error while analyzing data: %v", ErrorMarker, err)
	if errors.Is(err, ErrNoResponse) {
		body = ErrorMarker + " AI did not return a response."
	}
	return models.Report{ID: key, Markdown: body, Failed: true, GeneratedAt: g.now()}
}
