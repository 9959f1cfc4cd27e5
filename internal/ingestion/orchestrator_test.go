package ingestion

import (
	"context"
	"errors"
	"fmt"
	"testing"

	accountdomain "github.com/atolldev/billscan/internal/account/domain"
	accountsvc "github.com/atolldev/billscan/internal/account/service"
	alertdomain "github.com/atolldev/billscan/internal/alert/domain"
	alertsvc "github.com/atolldev/billscan/internal/alert/service"
	billdomain "github.com/atolldev/billscan/internal/bill/domain"
	billsvc "github.com/atolldev/billscan/internal/bill/service"
	chargedomain "github.com/atolldev/billscan/internal/charge/domain"
	chargesvc "github.com/atolldev/billscan/internal/charge/service"
	"github.com/atolldev/billscan/internal/config"
	"github.com/atolldev/billscan/internal/providers/extractor"
	"github.com/atolldev/billscan/internal/providers/filestore"
	"github.com/atolldev/billscan/internal/providers/rasterizer"
	"github.com/atolldev/billscan/internal/providers/slack"
	"github.com/atolldev/billscan/internal/ratelimit"
	numberdomain "github.com/atolldev/billscan/internal/servicenumber/domain"
	numbersvc "github.com/atolldev/billscan/internal/servicenumber/service"
	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type mockRasterizer struct{ mock.Mock }

func (m *mockRasterizer) PageCount(ctx context.Context, path string) (int, error) {
	args := m.Called(ctx, path)
	return args.Int(0), args.Error(1)
}

func (m *mockRasterizer) RenderPages(ctx context.Context, path string, opts rasterizer.RenderOptions) ([][]byte, error) {
	args := m.Called(ctx, path, opts)
	if pages := args.Get(0); pages != nil {
		return pages.([][]byte), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockExtractor struct{ mock.Mock }

func (m *mockExtractor) QuickExtract(ctx context.Context, image extractor.Image) (extractor.QuickResult, error) {
	args := m.Called(ctx, image)
	return args.Get(0).(extractor.QuickResult), args.Error(1)
}

func (m *mockExtractor) FullExtract(ctx context.Context, images []extractor.Image) (extractor.Result, error) {
	args := m.Called(ctx, images)
	return args.Get(0).(extractor.Result), args.Error(1)
}

type testPipeline struct {
	orch    *Orchestrator
	db      *gorm.DB
	raster  *mockRasterizer
	extract *mockExtractor
}

func newTestPipeline(t *testing.T) *testPipeline {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&accountdomain.ServiceAccount{},
		&billdomain.Bill{},
		&billdomain.LineItem{},
		&numberdomain.ServiceNumber{},
		&chargedomain.MonthlyCharge{},
		&alertdomain.Alert{},
		&IngestionJob{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	logger := zap.NewNop()
	cfg := config.Config{
		UploadDir:         t.TempDir(),
		DefaultProvider:   "Dhiraagu",
		AlertThresholdPct: 20,
	}

	files, err := filestore.NewDiskStore(cfg, logger)
	require.NoError(t, err)

	raster := &mockRasterizer{}
	extract := &mockExtractor{}

	orch := NewOrchestrator(OrchestratorParam{
		DB:      db,
		Log:     logger,
		GenID:   node,
		Files:   files,
		Raster:  raster,
		Extract: extract,
		Limiter: ratelimit.NewUploadLimiter(config.Config{}),
		Metrics: nil,

		Accounts: accountsvc.NewService(accountsvc.ServiceParam{DB: db, Log: logger, GenID: node, Cfg: cfg}),
		Bills:    billsvc.NewService(billsvc.ServiceParam{DB: db, Log: logger, GenID: node}),
		Numbers:  numbersvc.NewService(numbersvc.ServiceParam{DB: db, Log: logger, GenID: node}),
		Charges:  chargesvc.NewService(chargesvc.ServiceParam{DB: db, Log: logger, GenID: node}),
		Alerts: alertsvc.NewService(alertsvc.ServiceParam{
			DB: db, Log: logger, GenID: node, Cfg: cfg,
			Slack: slack.NewProvider(config.Config{}, logger),
		}),
	})
	return &testPipeline{orch: orch, db: db, raster: raster, extract: extract}
}

func fullExtraction(invoice string) extractor.Result {
	return extractor.Result{
		AccountNumber:      "BA12345678",
		InvoiceNumber:      invoice,
		BillingPeriodStart: "2025-03-01",
		BillingPeriodEnd:   "2025-03-31",
		BillDate:           "2025-04-01",
		CurrentCharges:     300,
		TotalDue:           300,
		Confidence:         90,
		LineItems: []extractor.LineItemResult{
			{ServiceNumber: "7771001", PackageName: "Fibre 30M", SubscriptionCharge: 100, TotalCharge: 100},
			{ServiceNumber: "7771002", SubscriptionCharge: 200, TotalCharge: 200},
		},
	}
}

// Stubs the whole scan chain: the quick scan sees the invoice, the full scan
// returns the complete extraction.
func (p *testPipeline) stubScans(invoice string) {
	page := []byte("png-bytes")
	p.raster.On("RenderPages", mock.Anything, mock.Anything,
		rasterizer.RenderOptions{DPI: quickScanDPI, FirstPage: 1, LastPage: 1}).
		Return([][]byte{page}, nil)
	p.raster.On("RenderPages", mock.Anything, mock.Anything,
		rasterizer.RenderOptions{DPI: fullScanDPI}).
		Return([][]byte{page, page}, nil)
	p.extract.On("QuickExtract", mock.Anything, mock.Anything).
		Return(extractor.QuickResult{InvoiceNumber: invoice, AccountNumber: "BA12345678", Confidence: 80}, nil)
	p.extract.On("FullExtract", mock.Anything, mock.Anything).
		Return(fullExtraction(invoice), nil)
}

func TestIngestHappyPath(t *testing.T) {
	p := newTestPipeline(t)
	p.stubScans("B1-000400")
	ctx := context.Background()

	result, err := p.orch.Ingest(ctx, "march.pdf", []byte("march bill bytes"), IngestOptions{})
	require.NoError(t, err)
	assert.Equal(t, JobStatusCompleted, result.Status)
	require.NotNil(t, result.Bill)
	assert.Equal(t, "B1-000400", result.Bill.InvoiceNumber)
	assert.True(t, result.AccountCreated)
	assert.ElementsMatch(t, []string{"7771001", "7771002"}, result.NewNumbers)
	assert.Equal(t, 2, result.ChargesRecorded)
	assert.Zero(t, result.AlertsCreated, "no previous bill, nothing to compare against")
	assert.Empty(t, result.Warnings)

	job, err := p.orch.GetJob(ctx, result.JobID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusCompleted, job.Status)
	assert.Equal(t, StageDone, job.Stage)
	require.NotNil(t, job.BillID)
	assert.Equal(t, result.Bill.ID, *job.BillID)
	assert.NotNil(t, job.FinishedAt)
}

func TestIngestSecondUploadIsDuplicate(t *testing.T) {
	p := newTestPipeline(t)
	p.stubScans("B1-000401")
	ctx := context.Background()

	first, err := p.orch.Ingest(ctx, "march.pdf", []byte("march bill bytes"), IngestOptions{})
	require.NoError(t, err)
	require.Equal(t, JobStatusCompleted, first.Status)

	second, err := p.orch.Ingest(ctx, "march-again.pdf", []byte("march bill bytes"), IngestOptions{})
	require.NoError(t, err)
	assert.Equal(t, JobStatusDuplicate, second.Status)
	require.NotNil(t, second.Duplicate)
	assert.Equal(t, billdomain.DuplicateInvoiceNumber, second.Duplicate.Reason)
	require.NotNil(t, second.Duplicate.Existing)
	assert.Equal(t, first.Bill.ID, second.Duplicate.Existing.ID)

	// Only the first run produced a bill.
	var count int64
	require.NoError(t, p.db.Model(&billdomain.Bill{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	job, err := p.orch.GetJob(ctx, second.JobID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusDuplicate, job.Status)
	require.NotNil(t, job.ErrorKind)
	assert.Equal(t, KindDuplicate, *job.ErrorKind)
}

func TestIngestAlertsOnIncrease(t *testing.T) {
	p := newTestPipeline(t)
	ctx := context.Background()
	page := []byte("png-bytes")
	p.raster.On("RenderPages", mock.Anything, mock.Anything, mock.Anything).Return([][]byte{page}, nil)

	february := fullExtraction("B1-000402")
	february.BillingPeriodStart = "2025-02-01"
	february.BillingPeriodEnd = "2025-02-28"
	february.BillDate = "2025-03-01"
	february.CurrentCharges = 200
	february.TotalDue = 200
	february.LineItems = []extractor.LineItemResult{{ServiceNumber: "7771001", TotalCharge: 200}}

	p.extract.On("QuickExtract", mock.Anything, mock.Anything).
		Return(extractor.QuickResult{}, errors.New("model unavailable")) // falls through, pre-scan stays blind
	p.extract.On("FullExtract", mock.Anything, mock.Anything).Return(february, nil).Once()
	p.extract.On("FullExtract", mock.Anything, mock.Anything).Return(fullExtraction("B1-000403"), nil).Once()

	_, err := p.orch.Ingest(ctx, "feb.pdf", []byte("february bill bytes"), IngestOptions{})
	require.NoError(t, err)

	// March is 300 against February's 200: a 50% jump plus a new number.
	result, err := p.orch.Ingest(ctx, "mar.pdf", []byte("march bill bytes"), IngestOptions{})
	require.NoError(t, err)
	assert.Equal(t, JobStatusCompleted, result.Status)
	assert.Equal(t, []string{"7771002"}, result.NewNumbers)
	assert.Equal(t, 2, result.AlertsCreated)

	var alerts []alertdomain.Alert
	require.NoError(t, p.db.Order("alert_type").Find(&alerts).Error)
	require.Len(t, alerts, 2)
	assert.Equal(t, alertdomain.TypeHighCharge, alerts[0].AlertType)
	assert.Equal(t, alertdomain.SeverityCritical, alerts[0].Severity)
	assert.Equal(t, alertdomain.TypeNewLineItem, alerts[1].AlertType)
}

func TestIngestSkipDuplicateCheckProcessesAnyway(t *testing.T) {
	p := newTestPipeline(t)
	ctx := context.Background()
	page := []byte("png-bytes")
	p.raster.On("RenderPages", mock.Anything, mock.Anything, mock.Anything).Return([][]byte{page}, nil)
	p.extract.On("QuickExtract", mock.Anything, mock.Anything).
		Return(extractor.QuickResult{}, errors.New("model unavailable"))
	p.extract.On("FullExtract", mock.Anything, mock.Anything).Return(fullExtraction("B1-000405"), nil).Once()
	p.extract.On("FullExtract", mock.Anything, mock.Anything).Return(fullExtraction("B1-000406"), nil).Once()

	first, err := p.orch.Ingest(ctx, "march.pdf", []byte("march bill bytes"), IngestOptions{})
	require.NoError(t, err)
	require.Equal(t, JobStatusCompleted, first.Status)

	// Same bytes would halt on the file hash match, and the identical billing
	// period would halt the second phase. The confirmed override sails past
	// both.
	second, err := p.orch.Ingest(ctx, "march-confirmed.pdf", []byte("march bill bytes"),
		IngestOptions{SkipDuplicateCheck: true})
	require.NoError(t, err)
	assert.Equal(t, JobStatusCompleted, second.Status)
	assert.Nil(t, second.Duplicate)
	require.NotNil(t, second.Bill)
	assert.Equal(t, "B1-000406", second.Bill.InvoiceNumber)

	var count int64
	require.NoError(t, p.db.Model(&billdomain.Bill{}).Count(&count).Error)
	assert.Equal(t, int64(2), count)
}

func TestIngestCancelledMidPipeline(t *testing.T) {
	p := newTestPipeline(t)
	ctx := context.Background()
	page := []byte("png-bytes")
	p.raster.On("RenderPages", mock.Anything, mock.Anything, mock.Anything).Return([][]byte{page}, nil)
	p.extract.On("QuickExtract", mock.Anything, mock.Anything).
		Return(extractor.QuickResult{}, errors.New("model unavailable"))
	p.extract.On("FullExtract", mock.Anything, mock.Anything).
		Return(extractor.Result{}, fmt.Errorf("extraction aborted: %w", context.Canceled))

	result, err := p.orch.Ingest(ctx, "march.pdf", []byte("march bill bytes"), IngestOptions{})
	require.Error(t, err)
	assert.Equal(t, JobStatusCancelled, result.Status)

	var perr *PipelineError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, KindCancelled, perr.Kind)

	// Cancelled is a terminal state of its own, not a failure, and nothing
	// was persisted.
	job, jobErr := p.orch.GetJob(ctx, result.JobID)
	require.NoError(t, jobErr)
	assert.Equal(t, JobStatusCancelled, job.Status)
	require.NotNil(t, job.ErrorKind)
	assert.Equal(t, KindCancelled, *job.ErrorKind)
	assert.NotNil(t, job.FinishedAt)

	var count int64
	require.NoError(t, p.db.Model(&billdomain.Bill{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestIngestClassifiesRenderFailure(t *testing.T) {
	p := newTestPipeline(t)
	ctx := context.Background()

	p.extract.On("QuickExtract", mock.Anything, mock.Anything).
		Return(extractor.QuickResult{}, errors.New("model unavailable"))
	p.raster.On("RenderPages", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("not a renderable document"))

	result, err := p.orch.Ingest(ctx, "broken.pdf", []byte("corrupt bytes"), IngestOptions{})
	require.Error(t, err)
	assert.Equal(t, JobStatusFailed, result.Status)

	var perr *PipelineError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, KindValidation, perr.Kind)
	assert.Equal(t, StageRendering, perr.Stage)

	job, err := p.orch.GetJob(ctx, result.JobID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusFailed, job.Status)
	assert.Equal(t, StageRendering, job.Stage)
	require.NotNil(t, job.ErrorKind)
	assert.Equal(t, KindValidation, *job.ErrorKind)
}

func TestIngestClassifiesExtractionFailures(t *testing.T) {
	cases := []struct {
		name string
		err  error
		kind string
	}{
		{"validation", &extractor.ValidationError{Field: "totalDue", Message: "must be a number"}, KindValidation},
		{"external service", errors.New("anthropic: 529 overloaded"), KindExternalService},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := newTestPipeline(t)
			page := []byte("png-bytes")
			p.raster.On("RenderPages", mock.Anything, mock.Anything, mock.Anything).Return([][]byte{page}, nil)
			p.extract.On("QuickExtract", mock.Anything, mock.Anything).
				Return(extractor.QuickResult{}, errors.New("model unavailable"))
			p.extract.On("FullExtract", mock.Anything, mock.Anything).Return(extractor.Result{}, tc.err)

			result, err := p.orch.Ingest(context.Background(), "bill.pdf", []byte("bill bytes"), IngestOptions{})
			require.Error(t, err)

			var perr *PipelineError
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, tc.kind, perr.Kind)
			assert.Equal(t, StageExtracting, perr.Stage)

			job, jobErr := p.orch.GetJob(context.Background(), result.JobID)
			require.NoError(t, jobErr)
			assert.Equal(t, JobStatusFailed, job.Status)
		})
	}
}

func TestPreScanFindsDuplicateByHash(t *testing.T) {
	p := newTestPipeline(t)
	p.stubScans("B1-000404")
	ctx := context.Background()

	first, err := p.orch.Ingest(ctx, "march.pdf", []byte("march bill bytes"), IngestOptions{})
	require.NoError(t, err)
	require.Equal(t, JobStatusCompleted, first.Status)

	result, err := p.orch.PreScan(ctx, []byte("march bill bytes"))
	require.NoError(t, err)
	require.NotNil(t, result.Duplicate)
	assert.True(t, result.Duplicate.IsDuplicate)
}

func TestGetJobUnknownID(t *testing.T) {
	p := newTestPipeline(t)

	_, err := p.orch.GetJob(context.Background(), "no-such-job")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}
