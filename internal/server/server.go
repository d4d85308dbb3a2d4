package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/entrada-events/entrada/internal/audit"
	auditdomain "github.com/entrada-events/entrada/internal/audit/domain"
	"github.com/entrada-events/entrada/internal/certificate"
	certdomain "github.com/entrada-events/entrada/internal/certificate/domain"
	"github.com/entrada-events/entrada/internal/config"
	"github.com/entrada-events/entrada/internal/event"
	eventdomain "github.com/entrada-events/entrada/internal/event/domain"
	"github.com/entrada-events/entrada/internal/observability"
	obsmiddleware "github.com/entrada-events/entrada/internal/observability/logger"
	obsmetrics "github.com/entrada-events/entrada/internal/observability/metrics"
	obstracing "github.com/entrada-events/entrada/internal/observability/tracing"
	"github.com/entrada-events/entrada/internal/payment"
	paymentdomain "github.com/entrada-events/entrada/internal/payment/domain"
	"github.com/entrada-events/entrada/internal/providers/email"
	"github.com/entrada-events/entrada/internal/providers/jpg"
	"github.com/entrada-events/entrada/internal/providers/pdf"
	"github.com/entrada-events/entrada/internal/ratelimit"
	"github.com/entrada-events/entrada/internal/registration"
	regdomain "github.com/entrada-events/entrada/internal/registration/domain"
	"github.com/entrada-events/entrada/internal/ticket"
	ticketdomain "github.com/entrada-events/entrada/internal/ticket/domain"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	audit.Module,
	event.Module,
	registration.Module,
	ticket.Module,
	certificate.Module,
	payment.Module,
	email.Module,
	pdf.Module,
	jpg.Module,
	ratelimit.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
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

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
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

type Server struct {
	engine          *gin.Engine
	cfg             config.Config
	db              *gorm.DB
	log             *zap.Logger
	genID           *snowflake.Node
	eventSvc        eventdomain.Service
	registrationSvc regdomain.Service
	ticketSvc       ticketdomain.Service
	certificateSvc  certdomain.Service
	paymentSvc      paymentdomain.Service
	auditSvc        auditdomain.Service
	bucket          *ratelimit.TokenBucket
	obsMetrics      *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	DB              *gorm.DB
	Log             *zap.Logger
	GenID           *snowflake.Node
	EventSvc        eventdomain.Service
	RegistrationSvc regdomain.Service
	TicketSvc       ticketdomain.Service
	CertificateSvc  certdomain.Service
	PaymentSvc      paymentdomain.Service
	AuditSvc        auditdomain.Service
	Bucket          *ratelimit.TokenBucket `optional:"true"`
	ObsMetrics      *obsmetrics.Metrics    `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		db:              p.DB,
		log:             p.Log,
		genID:           p.GenID,
		eventSvc:        p.EventSvc,
		registrationSvc: p.RegistrationSvc,
		ticketSvc:       p.TicketSvc,
		certificateSvc:  p.CertificateSvc,
		paymentSvc:      p.PaymentSvc,
		auditSvc:        p.AuditSvc,
		bucket:          p.Bucket,
		obsMetrics:      p.ObsMetrics,
	}

	svc.registerRoutes()
	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerRoutes() {
	v1 := s.engine.Group("/v1")

	// -------- Payments --------
	payments := v1.Group("/payments")
	payments.POST("/orders", s.limit("payment_orders", 1, 10), s.CreatePaymentOrder)
	payments.POST("/verify", s.limit("payment_verify", 1, 10), s.VerifyPayment)

	v1.POST("/webhooks/payments/razorpay", s.HandlePaymentWebhook)

	// -------- Events --------
	v1.POST("/events", s.CreateEvent)
	v1.GET("/events", s.ListEvents)
	v1.GET("/events/:id", s.GetEvent)
	v1.GET("/events/:id/certificate-templates", s.ListCertificateTemplates)

	// -------- Tickets --------
	tickets := v1.Group("/tickets")
	tickets.POST("/checkin", s.CheckInTicket)
	tickets.GET("/:id", s.GetTicket)
	tickets.POST("/:id/cancel", s.CancelTicket)
	tickets.POST("/:id/transfer", s.TransferTicket)

	// -------- Certificates --------
	certificates := v1.Group("/certificates")
	certificates.POST("", s.RenderCertificate)
	certificates.GET("/:id", s.GetCertificate)
	certificates.GET("/:id/download", s.DownloadCertificate)
	certificates.POST("/:id/email", s.EmailCertificate)

	v1.POST("/certificate-templates", s.CreateCertificateTemplate)
	v1.GET("/certificate-templates/:id", s.GetCertificateTemplate)

	// -------- Audit --------
	v1.GET("/audit-logs", s.ListAuditLogs)
}

func (s *Server) limit(name string, rate float64, burst int) gin.HandlerFunc {
	return ratelimit.GinMiddleware(s.bucket, ratelimit.Limit{
		Name:  name,
		Rate:  rate,
		Burst: burst,
	}, s.log, s.obsMetrics)
}
