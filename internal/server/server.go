package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/staybook/internal/adminaction"
	admindomain "github.com/smallbiznis/staybook/internal/adminaction/domain"
	"github.com/smallbiznis/staybook/internal/auth"
	"github.com/smallbiznis/staybook/internal/authorization"
	"github.com/smallbiznis/staybook/internal/availability"
	availabilitydomain "github.com/smallbiznis/staybook/internal/availability/domain"
	"github.com/smallbiznis/staybook/internal/booking"
	bookingdomain "github.com/smallbiznis/staybook/internal/booking/domain"
	"github.com/smallbiznis/staybook/internal/config"
	"github.com/smallbiznis/staybook/internal/lock"
	"github.com/smallbiznis/staybook/internal/notification"
	"github.com/smallbiznis/staybook/internal/observability"
	obsmiddleware "github.com/smallbiznis/staybook/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/staybook/internal/observability/metrics"
	obstracing "github.com/smallbiznis/staybook/internal/observability/tracing"
	"github.com/smallbiznis/staybook/internal/payment"
	paymentdomain "github.com/smallbiznis/staybook/internal/payment/domain"
	"github.com/smallbiznis/staybook/internal/providers"
	"github.com/smallbiznis/staybook/internal/reconciliation"
	reconciliationdomain "github.com/smallbiznis/staybook/internal/reconciliation/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	auth.Module,
	authorization.Module,
	lock.Module,
	providers.Module,
	notification.Module,
	payment.Module,
	reconciliation.Module,
	availability.Module,
	booking.Module,
	adminaction.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics, log *zap.Logger) *gin.Engine {
	registerValidators()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Base:            log,
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

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics, log *zap.Logger) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}
	return NewEngine(obsCfg, httpMetrics, log)
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
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", srv.Addr))
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
	log             *zap.Logger
	tokens          *auth.TokenVerifier
	authzSvc        authorization.Service
	availabilitySvc availabilitydomain.Service
	bookingSvc      bookingdomain.Service
	reconcileSvc    reconciliationdomain.Service
	paymentSvc      paymentdomain.Service
	adminSvc        admindomain.Service
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	Log             *zap.Logger
	Tokens          *auth.TokenVerifier
	AuthzSvc        authorization.Service
	AvailabilitySvc availabilitydomain.Service
	BookingSvc      bookingdomain.Service
	ReconcileSvc    reconciliationdomain.Service
	PaymentSvc      paymentdomain.Service
	AdminSvc        admindomain.Service
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		log:             p.Log.Named("http.server"),
		tokens:          p.Tokens,
		authzSvc:        p.AuthzSvc,
		availabilitySvc: p.AvailabilitySvc,
		bookingSvc:      p.BookingSvc,
		reconcileSvc:    p.ReconcileSvc,
		paymentSvc:      p.PaymentSvc,
		adminSvc:        p.AdminSvc,
	}

	svc.registerAPIRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	// -------- Payments --------
	api.POST("/payments/verify", s.VerifyPayment)
	api.POST("/payments/webhooks/:provider", s.HandlePaymentWebhook)

	// -------- Bookings --------
	api.POST("/bookings/check-availability", s.CheckAvailability)
	api.POST("/bookings", s.AuthRequired(), s.authorizeAction(authorization.ObjectBooking, authorization.ActionBookingCreate), s.CreateBooking)
	api.GET("/bookings/:id", s.AuthRequired(), s.GetBooking)

	// -------- Admin --------
	// Per-action authorization happens in the processor, which knows the action.
	admin := api.Group("/admin", s.AuthRequired())
	admin.POST("/bookings", s.AdminBookingAction)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
