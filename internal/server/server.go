package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/freya/internal/audit"
	auditdomain "github.com/smallbiznis/freya/internal/audit/domain"
	"github.com/smallbiznis/freya/internal/authorization"
	"github.com/smallbiznis/freya/internal/config"
	"github.com/smallbiznis/freya/internal/dispute"
	disputedomain "github.com/smallbiznis/freya/internal/dispute/domain"
	"github.com/smallbiznis/freya/internal/escrow"
	escrowdomain "github.com/smallbiznis/freya/internal/escrow/domain"
	"github.com/smallbiznis/freya/internal/events"
	"github.com/smallbiznis/freya/internal/fee"
	feedomain "github.com/smallbiznis/freya/internal/fee/domain"
	"github.com/smallbiznis/freya/internal/invoice"
	invoicedomain "github.com/smallbiznis/freya/internal/invoice/domain"
	"github.com/smallbiznis/freya/internal/ledger"
	"github.com/smallbiznis/freya/internal/observability"
	obsmiddleware "github.com/smallbiznis/freya/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/freya/internal/observability/metrics"
	obstracing "github.com/smallbiznis/freya/internal/observability/tracing"
	"github.com/smallbiznis/freya/internal/ratelimit"
	"github.com/smallbiznis/freya/internal/receipt"
	receiptdomain "github.com/smallbiznis/freya/internal/receipt/domain"
	"github.com/smallbiznis/freya/internal/store"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	audit.Module,
	authorization.Module,
	events.Module,
	ledger.Module,
	fee.Module,
	escrow.Module,
	dispute.Module,
	receipt.Module,
	invoice.Module,
	ratelimit.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	if httpMetrics != nil {
		r.Use(httpMetrics.GinMiddleware())
	}
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
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

type Params struct {
	fx.In

	Engine   *gin.Engine
	Log      *zap.Logger
	Config   *config.LedgerConfigHolder
	Store    store.Store
	Invoices invoicedomain.Service
	Vault    escrowdomain.Vault
	Disputes disputedomain.Resolver
	Receipts receiptdomain.Issuer
	Fees     feedomain.Distributor
	Authz    authorization.Service
	Audit    auditdomain.Service
	Hub      *events.Hub

	Limiter *ratelimit.MutationLimiter `optional:"true"`
}

type Server struct {
	engine   *gin.Engine
	log      *zap.Logger
	cfg      *config.LedgerConfigHolder
	store    store.Reader
	invoices invoicedomain.Service
	vault    escrowdomain.Vault
	disputes disputedomain.Resolver
	receipts receiptdomain.Issuer
	fees     feedomain.Distributor
	authz    authorization.Service
	audit    auditdomain.Service
	hub      *events.Hub
	limiter  *ratelimit.MutationLimiter
}

func NewServer(p Params) *Server {
	s := &Server{
		engine:   p.Engine,
		log:      p.Log.Named("http.server"),
		cfg:      p.Config,
		store:    p.Store,
		invoices: p.Invoices,
		vault:    p.Vault,
		disputes: p.Disputes,
		receipts: p.Receipts,
		fees:     p.Fees,
		authz:    p.Authz,
		audit:    p.Audit,
		hub:      p.Hub,
		limiter:  p.Limiter,
	}
	s.RegisterRoutes()
	return s
}

func (s *Server) RegisterRoutes() {
	api := s.engine.Group("/v1")

	invoices := api.Group("/invoices")
	invoices.POST("", s.RequireCaller(), s.RateLimit("create_invoice"), s.CreateInvoice)
	invoices.GET("/next-id", s.NextInvoiceID)
	invoices.GET("/:id", s.GetInvoice)
	invoices.POST("/:id/pay", s.RequireCaller(), s.RateLimit("pay_invoice"), s.PayInvoice)
	invoices.POST("/:id/dispute", s.RequireCaller(), s.RateLimit("dispute_invoice"), s.DisputeInvoice)
	invoices.GET("/:id/dispute", s.GetDispute)
	invoices.GET("/:id/escrow", s.GetEscrow)
	invoices.POST("/:id/escrow/release", s.RequireCaller(), s.RateLimit("release_escrow"), s.ReleaseEscrow)

	admin := api.Group("/admin", s.RequireCaller())
	admin.POST("/invoices/:id/resolve", s.RateLimit("resolve_dispute"), s.ResolveDispute)
	admin.PUT("/fee-recipient", s.RateLimit("set_fee_recipient"), s.SetFeeRecipient)
	admin.GET("/fee-recipient", s.GetFeeRecipient)
	admin.POST("/resolvers", s.RateLimit("grant_resolver"), s.GrantResolver)
	admin.GET("/audit-logs", s.ListAuditLogs)

	accounts := api.Group("/accounts/:address")
	accounts.GET("/invoices", s.ListIssuerInvoices)
	accounts.GET("/client-invoices", s.ListClientInvoices)
	accounts.GET("/receipts", s.ListReceipts)
	accounts.GET("/balance", s.GetBalance)

	receipts := api.Group("/receipts/:tokenId")
	receipts.GET("", s.GetReceipt)
	receipts.GET("/metadata", s.GetReceiptMetadata)
	receipts.GET("/document", s.GetReceiptDocument)

	api.GET("/events", s.ListEvents)
	api.GET("/events/stream", s.StreamEvents)
}
