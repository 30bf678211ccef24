package analyzer

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finsight/internal/metrics"
	"finsight/internal/models"
	"finsight/internal/service/extract"
	"finsight/internal/service/insight"
	"finsight/internal/service/intake"
	"finsight/internal/testutil"
)

type countingModel struct {
	calls atomic.Int32
	reply string
	err   error
}

func (m *countingModel) Generate(_ context.Context, _ []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	m.calls.Add(1)
	if m.err != nil {
		return nil, m.err
	}
	return schema.AssistantMessage(m.reply, nil), nil
}

type failingStore struct{}

func (failingStore) Save(string, io.Reader) (*models.Upload, error) {
	return nil, errors.New("create transient file: open /tmp/finsight/abc.pdf: no space left on device")
}

func (failingStore) Release(*models.Upload) error { return nil }

type fixture struct {
	svc   *Service
	store *intake.Store
	model *countingModel
}

func newFixture(t *testing.T, m *countingModel) *fixture {
	t.Helper()
	ctx := context.Background()
	store, err := intake.NewStore(filepath.Join(t.TempDir(), "uploads"), intake.DefaultMaxBytes, nil)
	require.NoError(t, err)
	ex, err := extract.New(ctx, nil)
	require.NoError(t, err)
	gen, err := insight.NewGenerator(m)
	require.NoError(t, err)
	return &fixture{
		svc:   NewService(store, ex, gen, nil, metrics.New(nil)),
		store: store,
		model: m,
	}
}

func (f *fixture) assertNoTransientFiles(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(f.store.Dir())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestProcessSuccess(t *testing.T) {
	f := newFixture(t, &countingModel{reply: "# Financial Insights Summary"})
	pdf := testutil.BuildPDF("01/04/2025 SALARY CREDIT 85000")

	var seen []Stage
	out := f.svc.Process(context.Background(), "statement.pdf", bytes.NewReader(pdf), func(p Progress) {
		seen = append(seen, p.Stage)
	})

	require.Equal(t, StatusReady, out.Status, out.Message)
	require.NotNil(t, out.Report)
	assert.Equal(t, "# Financial Insights Summary", out.Report.Markdown)
	assert.Equal(t, MessageReportReady, out.Message)
	assert.Equal(t, []Stage{StageUploading, StageExtracting, StageAnalyzing, StageDone}, seen)
	assert.Equal(t, 100, out.Stages[len(out.Stages)-1].Percent)
	f.assertNoTransientFiles(t)
}

func TestProcessSameStatementCallsModelOnce(t *testing.T) {
	f := newFixture(t, &countingModel{reply: "report"})
	pdf := testutil.BuildPDF("05/04/2025 UPI-SWIGGY 450")

	first := f.svc.Process(context.Background(), "a.pdf", bytes.NewReader(pdf), nil)
	second := f.svc.Process(context.Background(), "b.pdf", bytes.NewReader(pdf), nil)

	require.Equal(t, StatusReady, first.Status)
	require.Equal(t, StatusReady, second.Status)
	assert.True(t, second.Report.Cached)
	assert.Equal(t, first.Report.ID, second.Report.ID)
	assert.Equal(t, int32(1), f.model.calls.Load())
}

func TestProcessImageOnlyPDFSkipsModel(t *testing.T) {
	f := newFixture(t, &countingModel{reply: "report"})

	out := f.svc.Process(context.Background(), "scan.pdf", bytes.NewReader(testutil.BuildPDF("")), nil)
	assert.Equal(t, StatusExtractFailed, out.Status)
	assert.Equal(t, MessageNoText, out.Message)
	assert.ErrorIs(t, out.Err, extract.ErrNoText)
	assert.Nil(t, out.Report)
	assert.Equal(t, int32(0), f.model.calls.Load())
	f.assertNoTransientFiles(t)
}

func TestProcessCorruptPDF(t *testing.T) {
	f := newFixture(t, &countingModel{reply: "report"})

	out := f.svc.Process(context.Background(), "broken.pdf", strings.NewReader("%PDF-1.4 garbage"), nil)
	assert.Equal(t, StatusExtractFailed, out.Status)
	assert.Equal(t, int32(0), f.model.calls.Load())
	f.assertNoTransientFiles(t)
}

func TestProcessModelError(t *testing.T) {
	f := newFixture(t, &countingModel{err: errors.New("service unavailable")})

	out := f.svc.Process(context.Background(), "statement.pdf", bytes.NewReader(testutil.BuildPDF("RENT 20000")), nil)
	assert.Equal(t, StatusAnalyzeFailed, out.Status)
	require.NotNil(t, out.Report)
	assert.True(t, out.Report.Failed)
	assert.True(t, strings.HasPrefix(out.Report.Markdown, insight.ErrorMarker))
	assert.Equal(t, out.Report.Markdown, out.Message)
	f.assertNoTransientFiles(t)
}

func TestProcessRejectsNonPDF(t *testing.T) {
	f := newFixture(t, &countingModel{reply: "report"})

	out := f.svc.Process(context.Background(), "notes.txt", strings.NewReader("hello"), nil)
	assert.Equal(t, StatusRejected, out.Status)
	assert.ErrorIs(t, out.Err, intake.ErrUnsupportedType)
	assert.Equal(t, intake.ErrUnsupportedType.Error(), out.Message)
	assert.Len(t, out.Stages, 1)
	f.assertNoTransientFiles(t)
}

func TestProcessHidesStoreErrorDetail(t *testing.T) {
	m := &countingModel{reply: "report"}
	gen, err := insight.NewGenerator(m)
	require.NoError(t, err)
	ex, err := extract.New(context.Background(), nil)
	require.NoError(t, err)
	svc := NewService(failingStore{}, ex, gen, nil, nil)

	out := svc.Process(context.Background(), "statement.pdf", strings.NewReader("%PDF-1.4"), nil)
	assert.Equal(t, StatusRejected, out.Status)
	assert.Equal(t, MessageStoreFailed, out.Message)
	assert.NotContains(t, out.Message, "/tmp")
	assert.Error(t, out.Err)
	assert.Equal(t, int32(0), m.calls.Load())
}
