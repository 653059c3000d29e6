package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/kasira/internal/apikey"
	apikeydomain "github.com/smallbiznis/kasira/internal/apikey/domain"
	"github.com/smallbiznis/kasira/internal/authorization"
	"github.com/smallbiznis/kasira/internal/config"
	"github.com/smallbiznis/kasira/internal/customer"
	customerdomain "github.com/smallbiznis/kasira/internal/customer/domain"
	"github.com/smallbiznis/kasira/internal/grn"
	grndomain "github.com/smallbiznis/kasira/internal/grn/domain"
	"github.com/smallbiznis/kasira/internal/identifier"
	"github.com/smallbiznis/kasira/internal/invoice"
	invoicedomain "github.com/smallbiznis/kasira/internal/invoice/domain"
	"github.com/smallbiznis/kasira/internal/observability"
	obsmiddleware "github.com/smallbiznis/kasira/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/kasira/internal/observability/metrics"
	obstracing "github.com/smallbiznis/kasira/internal/observability/tracing"
	"github.com/smallbiznis/kasira/internal/payment"
	paymentdomain "github.com/smallbiznis/kasira/internal/payment/domain"
	"github.com/smallbiznis/kasira/internal/product"
	productdomain "github.com/smallbiznis/kasira/internal/product/domain"
	"github.com/smallbiznis/kasira/internal/providers"
	"github.com/smallbiznis/kasira/internal/ratelimit"
	"github.com/smallbiznis/kasira/internal/reminder"
	reminderdomain "github.com/smallbiznis/kasira/internal/reminder/domain"
	"github.com/smallbiznis/kasira/internal/shop"
	shopdomain "github.com/smallbiznis/kasira/internal/shop/domain"
	"github.com/smallbiznis/kasira/internal/supplier"
	supplierdomain "github.com/smallbiznis/kasira/internal/supplier/domain"
	"github.com/smallbiznis/kasira/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	identifier.Module,
	authorization.Module,
	apikey.Module,
	shop.Module,
	product.Module,
	customer.Module,
	supplier.Module,
	grn.Module,
	invoice.Module,
	payment.Module,
	reminder.Module,
	providers.Module,
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

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("http server listening", zap.String("addr", srv.Addr))
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
	engine               *gin.Engine
	cfg                  config.Config
	gateway              *db.Gateway
	genID                *snowflake.Node
	log                  *zap.Logger
	apiKeySvc            apikeydomain.Service
	authzSvc             authorization.Service
	shopSvc              shopdomain.Service
	productSvc           productdomain.Service
	customerSvc          customerdomain.Service
	supplierSvc          supplierdomain.Service
	grnSvc               grndomain.Service
	invoiceSvc           invoicedomain.Service
	paymentSvc           paymentdomain.Service
	reminderSvc          reminderdomain.Service
	publicInvoiceLimiter *ratelimit.PublicInvoiceLimiter
	writeLimiter         *ratelimit.WriteLimiter
	obsMetrics           *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin                  *gin.Engine
	Cfg                  config.Config
	Gateway              *db.Gateway
	GenID                *snowflake.Node
	Log                  *zap.Logger
	APIKeySvc            apikeydomain.Service
	AuthzSvc             authorization.Service
	ShopSvc              shopdomain.Service
	ProductSvc           productdomain.Service
	CustomerSvc          customerdomain.Service
	SupplierSvc          supplierdomain.Service
	GRNSvc               grndomain.Service
	InvoiceSvc           invoicedomain.Service
	PaymentSvc           paymentdomain.Service
	ReminderSvc          reminderdomain.Service
	PublicInvoiceLimiter *ratelimit.PublicInvoiceLimiter
	WriteLimiter         *ratelimit.WriteLimiter
	ObsMetrics           *obsmetrics.Metrics `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:               p.Gin,
		cfg:                  p.Cfg,
		gateway:              p.Gateway,
		genID:                p.GenID,
		log:                  p.Log,
		apiKeySvc:            p.APIKeySvc,
		authzSvc:             p.AuthzSvc,
		shopSvc:              p.ShopSvc,
		productSvc:           p.ProductSvc,
		customerSvc:          p.CustomerSvc,
		supplierSvc:          p.SupplierSvc,
		grnSvc:               p.GRNSvc,
		invoiceSvc:           p.InvoiceSvc,
		paymentSvc:           p.PaymentSvc,
		reminderSvc:          p.ReminderSvc,
		publicInvoiceLimiter: p.PublicInvoiceLimiter,
		writeLimiter:         p.WriteLimiter,
		obsMetrics:           p.ObsMetrics,
	}

	svc.registerHealthRoutes()
	svc.registerPublicRoutes()
	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerHealthRoutes() {
	s.engine.GET("/healthz", s.Healthz)
}

func (s *Server) registerPublicRoutes() {
	public := s.engine.Group("/p")
	public.GET("/invoices/:token", s.PublicInvoicePDF)
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api", s.APIKeyRequired(), s.WriteRateLimit())

	api.GET("/shop", s.authorize("shop", "view"), s.GetShop)
	api.PUT("/shop", s.authorize("shop", "update"), s.UpdateShop)

	products := api.Group("/products")
	{
		products.GET("", s.authorize("product", "view"), s.ListProducts)
		products.POST("", s.authorize("product", "create"), s.CreateProduct)
		products.GET("/:id", s.authorize("product", "view"), s.GetProductByID)
		products.PUT("/:id", s.authorize("product", "update"), s.UpdateProduct)
		products.POST("/:id/archive", s.authorize("product", "archive"), s.ArchiveProduct)
		products.POST("/:id/stock-adjustments", s.authorize("product", "adjust_stock"), s.AdjustStock)
		products.GET("/:id/movements", s.authorize("product", "view"), s.ListStockMovements)
	}

	customers := api.Group("/customers")
	{
		customers.GET("", s.authorize("customer", "view"), s.ListCustomers)
		customers.POST("", s.authorize("customer", "create"), s.CreateCustomer)
		customers.GET("/:id", s.authorize("customer", "view"), s.GetCustomerByID)
		customers.PUT("/:id", s.authorize("customer", "update"), s.UpdateCustomer)
		customers.GET("/:id/outstanding", s.authorize("customer", "view"), s.GetCustomerOutstanding)
	}

	suppliers := api.Group("/suppliers")
	{
		suppliers.GET("", s.authorize("supplier", "view"), s.ListSuppliers)
		suppliers.POST("", s.authorize("supplier", "create"), s.CreateSupplier)
		suppliers.GET("/:id", s.authorize("supplier", "view"), s.GetSupplierByID)
		suppliers.PUT("/:id", s.authorize("supplier", "update"), s.UpdateSupplier)
	}

	grns := api.Group("/grns")
	{
		grns.GET("", s.authorize("grn", "view"), s.ListGRNs)
		grns.POST("", s.authorize("grn", "create"), s.CreateGRN)
		grns.GET("/:id", s.authorize("grn", "view"), s.GetGRNByID)
		grns.POST("/:id/receive", s.authorize("grn", "receive"), s.ReceiveGRN)
	}

	invoices := api.Group("/invoices")
	{
		invoices.GET("", s.authorize("invoice", "view"), s.ListInvoices)
		invoices.POST("", s.authorize("invoice", "create"), s.CreateInvoice)
		invoices.GET("/:id", s.authorize("invoice", "view"), s.GetInvoiceByID)
		invoices.POST("/:id/void", s.authorize("invoice", "void"), s.VoidInvoice)
		invoices.POST("/:id/send", s.authorize("invoice", "send"), s.SendInvoice)
		invoices.GET("/:id/pdf", s.authorize("invoice", "view"), s.InvoicePDF)
		invoices.GET("/:id/reminders", s.authorize("reminder", "view"), s.ListInvoiceReminders)
	}

	payments := api.Group("/payments")
	{
		payments.GET("", s.authorize("payment", "view"), s.ListPayments)
		payments.POST("", s.authorize("payment", "record"), s.RecordPayment)
		payments.GET("/:id", s.authorize("payment", "view"), s.GetPaymentByID)
		payments.GET("/:id/receipt", s.authorize("payment", "view"), s.PaymentReceipt)
	}

	apiKeys := api.Group("/api-keys")
	{
		apiKeys.GET("", s.authorize("api_key", "view"), s.ListAPIKeys)
		apiKeys.POST("", s.authorize("api_key", "create"), s.CreateAPIKey)
		apiKeys.POST("/:keyId/rotate", s.authorize("api_key", "rotate"), s.RotateAPIKey)
		apiKeys.DELETE("/:keyId", s.authorize("api_key", "revoke"), s.RevokeAPIKey)
	}
}
