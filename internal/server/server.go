package server

import (
	"context"
	"net/http"
	"time"

	"github.com/atolldev/billscan/internal/account"
	accountdomain "github.com/atolldev/billscan/internal/account/domain"
	"github.com/atolldev/billscan/internal/alert"
	alertdomain "github.com/atolldev/billscan/internal/alert/domain"
	"github.com/atolldev/billscan/internal/bill"
	billdomain "github.com/atolldev/billscan/internal/bill/domain"
	"github.com/atolldev/billscan/internal/charge"
	chargedomain "github.com/atolldev/billscan/internal/charge/domain"
	"github.com/atolldev/billscan/internal/config"
	"github.com/atolldev/billscan/internal/ingestion"
	"github.com/atolldev/billscan/internal/observability"
	"github.com/atolldev/billscan/internal/providers"
	"github.com/atolldev/billscan/internal/ratelimit"
	"github.com/atolldev/billscan/internal/report"
	"github.com/atolldev/billscan/internal/servicenumber"
	numberdomain "github.com/atolldev/billscan/internal/servicenumber/domain"
	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	observability.Module,
	providers.Module,
	ratelimit.Module,
	account.Module,
	bill.Module,
	servicenumber.Module,
	charge.Module,
	alert.Module,
	ingestion.Module,
	report.Module,
	fx.Provide(NewEngine),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(cfg config.Config, log *zap.Logger, httpMetrics *observability.HTTPMetrics) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(log))
	r.Use(observability.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

type Server struct {
	engine *gin.Engine
	cfg    config.Config
	db     *gorm.DB
	log    *zap.Logger
	genID  *snowflake.Node

	accountSvc   accountdomain.Service
	billSvc      billdomain.Service
	numberSvc    numberdomain.Service
	chargeSvc    chargedomain.Service
	alertSvc     alertdomain.Service
	reportSvc    *report.Service
	orchestrator *ingestion.Orchestrator
	limiter      *ratelimit.UploadLimiter
}

type ServerParams struct {
	fx.In

	Gin   *gin.Engine
	Cfg   config.Config
	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node

	AccountSvc   accountdomain.Service
	BillSvc      billdomain.Service
	NumberSvc    numberdomain.Service
	ChargeSvc    chargedomain.Service
	AlertSvc     alertdomain.Service
	ReportSvc    *report.Service
	Orchestrator *ingestion.Orchestrator
	Limiter      *ratelimit.UploadLimiter
}

func NewServer(p ServerParams) *Server {
	s := &Server{
		engine: p.Gin,
		cfg:    p.Cfg,
		db:     p.DB,
		log:    p.Log.Named("server"),
		genID:  p.GenID,

		accountSvc:   p.AccountSvc,
		billSvc:      p.BillSvc,
		numberSvc:    p.NumberSvc,
		chargeSvc:    p.ChargeSvc,
		alertSvc:     p.AlertSvc,
		reportSvc:    p.ReportSvc,
		orchestrator: p.Orchestrator,
		limiter:      p.Limiter,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	api := s.engine.Group("/api/v1")

	bills := api.Group("/bills")
	bills.POST("/upload", s.UploadRateLimit(), s.UploadBill)
	bills.POST("/pre-scan", s.UploadRateLimit(), s.PreScanBill)
	bills.GET("", s.ListBills)
	bills.GET("/review", s.ListBillsRequiringReview)
	bills.GET("/recent", s.ListRecentBills)
	bills.GET("/:id", s.GetBill)
	bills.GET("/:id/line-items", s.ListBillLineItems)
	bills.GET("/:id/comparison", s.CompareBill)
	bills.POST("/:id/verify", s.VerifyBill)
	bills.POST("/:id/link", s.LinkBill)
	bills.DELETE("/:id", s.DeleteBill)

	jobs := api.Group("/jobs")
	jobs.GET("", s.ListJobs)
	jobs.GET("/:id", s.GetJob)

	accounts := api.Group("/accounts")
	accounts.GET("", s.ListAccounts)
	accounts.POST("", s.CreateAccount)
	accounts.GET("/recent", s.ListRecentAccounts)
	accounts.GET("/:id", s.GetAccount)
	accounts.PATCH("/:id", s.UpdateAccount)
	accounts.DELETE("/:id", s.DeleteAccount)
	accounts.GET("/:id/monthly-totals", s.AccountMonthlyTotals)
	accounts.GET("/:id/report", s.AccountMonthlyReport)

	numbers := api.Group("/service-numbers")
	numbers.GET("", s.ListServiceNumbers)
	numbers.GET("/recent", s.ListRecentServiceNumbers)
	numbers.GET("/:id", s.GetServiceNumber)
	numbers.GET("/:id/history", s.ServiceNumberHistory)
	numbers.GET("/:id/totals", s.ServiceNumberTotals)
	numbers.POST("/:id/activate", s.ActivateServiceNumber)
	numbers.POST("/:id/deactivate", s.DeactivateServiceNumber)
	numbers.PATCH("/:id/notes", s.UpdateServiceNumberNotes)

	alerts := api.Group("/alerts")
	alerts.GET("", s.ListAlerts)
	alerts.GET("/:id", s.GetAlert)
	alerts.POST("/:id/acknowledge", s.AcknowledgeAlert)
	alerts.POST("/:id/resolve", s.ResolveAlert)
	alerts.POST("/:id/dismiss", s.DismissAlert)

	api.GET("/stats", s.DashboardStats)
}

func run(lc fx.Lifecycle, cfg config.Config, log *zap.Logger, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("http server starting", zap.String("addr", cfg.ListenAddr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}
