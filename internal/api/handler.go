package api

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"marketplace-backoffice/internal/apperr"
	"marketplace-backoffice/internal/models"
	"marketplace-backoffice/internal/service"
	"marketplace-backoffice/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Pinger reports whether a backing dependency is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// Services groups the business services behind the routes
type Services struct {
	Users      *service.UserService
	Roles      *service.RoleService
	Products   *service.ProductService
	Sales      *service.SaleService
	Deliveries *service.DeliveryService
	Addresses  *service.AddressService
	States     *service.StateService
}

// Handler contains HTTP handlers
type Handler struct {
	svc    Services
	gate   *Gate
	db     Pinger
	logger *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(svc Services, gate *Gate, db Pinger) *Handler {
	registerValidators()
	return &Handler{
		svc:    svc,
		gate:   gate,
		db:     db,
		logger: util.GetLogger(),
	}
}

var validatorsOnce sync.Once

func registerValidators() {
	validatorsOnce.Do(func() {
		if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
			_ = v.RegisterValidation("cep", func(fl validator.FieldLevel) bool {
				_, err := service.NormalizeCep(fl.Field().String())
				return err == nil
			})
		}
	})
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(requestLogger(h.logger))

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	read := h.gate.RequireAny(models.PermissionRead)
	write := h.gate.RequireAny(models.PermissionWrite)
	update := h.gate.RequireAny(models.PermissionUpdate)
	remove := h.gate.RequireAny(models.PermissionDelete)
	owner := h.gate.RequireOwnerRole()

	v1 := router.Group("/api/v1")
	{
		v1.POST("/sessions", h.createSession)

		v1.POST("/users", write, h.createUser)
		v1.GET("/users", read, h.listUsers)
		v1.DELETE("/users/:user_id", remove, h.deleteUser)
		v1.POST("/users/:user_id/roles", owner, h.assignRoles)

		v1.GET("/roles", owner, h.listRoles)
		v1.POST("/roles", owner, h.createRole)
		v1.POST("/roles/:role_id/permissions", owner, h.addPermissions)
		v1.POST("/permissions", owner, h.createPermission)

		v1.GET("/products", read, h.searchProducts)
		v1.GET("/products/:product_id", read, h.getProduct)
		v1.POST("/products", write, h.createProduct)
		v1.PUT("/products/:product_id", update, h.replaceProduct)
		v1.PATCH("/products/:product_id", update, h.patchProduct)
		v1.DELETE("/products/:product_id", remove, h.deleteProduct)

		v1.POST("/users/:user_id/sales", write, h.createSale)
		v1.GET("/users/:user_id/buys", read, h.listBuys)
		v1.GET("/sales", read, h.listSales)
		v1.GET("/sales/:sale_id", read, h.getSale)
		v1.PATCH("/sales/:sale_id/products/:product_id", update, h.updateLineItem)
		v1.POST("/sales/:sale_id/deliveries", write, h.scheduleDelivery)
		v1.GET("/sales/:sale_id/delivery", read, h.getDelivery)

		v1.GET("/addresses", read, h.searchAddresses)
		v1.PATCH("/addresses/:address_id", update, h.patchAddress)
		v1.DELETE("/addresses/:address_id", remove, h.deleteAddress)

		v1.GET("/states", read, h.listStates)
		v1.GET("/states/:state_id", read, h.getState)
		v1.GET("/states/:state_id/cities", read, h.listCities)
		v1.POST("/states/:state_id/cities/:city_id/addresses", write, h.createAddress)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck reports ready once the database answers
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if h.db != nil {
		if err := h.db.Ping(ctx); err != nil {
			h.logger.Warn("readiness check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unavailable",
				"time":   time.Now().Unix(),
			})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// pathID parses a positive integer path parameter, answering 400 otherwise
func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		writeError(c, apperr.InvalidInput("invalid %s", name))
		return 0, false
	}
	return id, true
}

// queryInt64 parses an optional integer query parameter
func queryInt64(c *gin.Context, name string) (*int64, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, apperr.InvalidInput("%s must be an integer", name)
	}
	return &v, nil
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}

// requestLogger writes one structured line per request
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if caller := callerFrom(c); caller != nil {
			fields = append(fields, zap.Int64("caller_id", caller.ID))
		}

		if c.Writer.Status() >= http.StatusInternalServerError {
			logger.Error("request", fields...)
			return
		}
		logger.Info("request", fields...)
	}
}
