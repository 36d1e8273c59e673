package router

import (
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"fasset-backend/internal/config"
	"fasset-backend/internal/handlers"
	"fasset-backend/internal/metrics"
	"fasset-backend/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Handlers bundles every HTTP handler the router wires up
type Handlers struct {
	Auth        *handlers.AuthHandler
	AdminAuth   *handlers.AdminAuthHandler
	Agent       *handlers.AgentHandler
	Minting     *handlers.MintingHandler
	Redemption  *handlers.RedemptionHandler
	Challenge   *handlers.ChallengeHandler
	Liquidation *handlers.LiquidationHandler
	System      *handlers.SystemHandler
	Admin       *handlers.AdminHandler
	Price       *handlers.PriceHandler
	Event       *handlers.EventHandler
	WebSocket   *handlers.WebSocketHandler
}

// corsMiddleware CORS middleware
// Priority: Environment Variable > YAML Config > Default (*)
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")

		var allowedOrigins []string
		var allowCredentials bool = true
		var maxAge int = 3600

		envOrigins := os.Getenv("CORS_ALLOWED_ORIGINS")
		if envOrigins != "" {
			origins := strings.Split(envOrigins, ",")
			allowedOrigins = make([]string, 0, len(origins))
			for _, o := range origins {
				trimmed := strings.TrimSpace(o)
				if trimmed != "" {
					allowedOrigins = append(allowedOrigins, trimmed)
				}
			}
		} else if config.AppConfig != nil && len(config.AppConfig.CORS.AllowedOrigins) > 0 {
			allowedOrigins = config.AppConfig.CORS.AllowedOrigins
			allowCredentials = config.AppConfig.CORS.AllowCredentials
			if config.AppConfig.CORS.MaxAge > 0 {
				maxAge = config.AppConfig.CORS.MaxAge
			}
		} else {
			allowedOrigins = []string{"*"}
		}

		originAllowed := func() bool {
			if len(allowedOrigins) == 1 && allowedOrigins[0] == "*" {
				return true
			}
			for _, allowedOrigin := range allowedOrigins {
				if strings.TrimSpace(allowedOrigin) == origin {
					return true
				}
			}
			return false
		}

		if len(allowedOrigins) == 1 && allowedOrigins[0] == "*" {
			c.Header("Access-Control-Allow-Origin", "*")
		} else if origin != "" {
			if originAllowed() {
				c.Header("Access-Control-Allow-Origin", origin)
			} else {
				logrus.WithFields(logrus.Fields{
					"request_origin":  origin,
					"allowed_origins": allowedOrigins,
					"path":            c.Request.URL.Path,
					"method":          c.Request.Method,
					"remote_addr":     c.ClientIP(),
				}).Warn("🚫 CORS: Request blocked - Origin not in whitelist")
			}
		}

		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, Cache-Control, Accept")
		if allowCredentials {
			c.Header("Access-Control-Allow-Credentials", "true")
		}
		c.Header("Access-Control-Expose-Headers", "Content-Length, Content-Type")
		c.Header("Access-Control-Max-Age", strconv.Itoa(maxAge))

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// metricsMiddleware records request durations per route
func metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			path,
			strconv.Itoa(c.Writer.Status()),
		).Observe(time.Since(start).Seconds())
	}
}

// SetupRouter builds the gin engine with all API routes
func SetupRouter(h *Handlers) *gin.Engine {
	r := gin.Default()

	r.Use(corsMiddleware())
	r.Use(metricsMiddleware())

	logger := logrus.New()
	var allowedIPs []string
	if config.AppConfig != nil && len(config.AppConfig.Admin.AllowedIPs) > 0 {
		allowedIPs = config.AppConfig.Admin.AllowedIPs
		logger.WithFields(logrus.Fields{
			"allowed_ips": allowedIPs,
			"count":       len(allowedIPs),
		}).Info("Admin API IP whitelist configured")
	} else {
		logger.Info("No admin.allowedIPs configured, using localhost-only mode")
	}

	localhostOnly := middleware.NewLocalhostOnly(logger, allowedIPs)
	authMiddleware := middleware.NewAuthMiddleware(logger)
	adminAuthMiddleware := middleware.NewAdminAuthMiddleware(logger)

	// ============ Health ============
	r.GET("/ping", handlers.PingHandler)
	r.GET("/health", handlers.HealthCheckHandler)

	// ============ Prometheus Metrics ============
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	{
		// ============ Authentication ============
		auth := api.Group("/auth")
		{
			auth.GET("/nonce", h.Auth.GenerateNonceHandler)
			auth.POST("/login", h.Auth.AuthenticateHandler)
		}

		// ============ Agents ============
		agents := api.Group("/agents")
		{
			agents.GET("", h.Agent.ListAgentsHandler)
			agents.GET("/:vault", h.Agent.GetAgentHandler)
			agents.GET("/:vault/tickets", h.Agent.AgentTicketsHandler)
		}

		agentOps := api.Group("/agents")
		agentOps.Use(authMiddleware.RequireAuth())
		{
			agentOps.POST("", h.Agent.CreateAgentHandler)
			agentOps.POST("/:vault/collateral", h.Agent.DepositCollateralHandler)
			agentOps.POST("/:vault/available", h.Agent.SetAvailableHandler)
			agentOps.POST("/:vault/min-collateral-ratio", h.Agent.SetMinCollateralRatioHandler)
			agentOps.POST("/:vault/withdrawal/announce", h.Agent.AnnounceWithdrawalHandler)
			agentOps.POST("/:vault/withdrawal/execute", h.Agent.ExecuteWithdrawalHandler)
			agentOps.POST("/:vault/underlying-withdrawal/announce", h.Agent.AnnounceUnderlyingWithdrawalHandler)
			agentOps.POST("/:vault/underlying-withdrawal/confirm", h.Agent.ConfirmUnderlyingWithdrawalHandler)
			agentOps.POST("/:vault/underlying-withdrawal/cancel", h.Agent.CancelUnderlyingWithdrawalHandler)
			agentOps.POST("/:vault/topup/confirm", h.Agent.ConfirmTopupHandler)
			agentOps.POST("/:vault/destroy/announce", h.Agent.AnnounceDestroyHandler)
			agentOps.POST("/:vault/destroy", h.Agent.DestroyAgentHandler)
			agentOps.POST("/:vault/self-close", h.Agent.SelfCloseHandler)
			agentOps.POST("/:vault/convert-dust", h.Agent.ConvertDustHandler)
		}

		// ============ Minting ============
		minting := api.Group("/minting")
		{
			// Proof submissions are self-authorizing, no JWT required
			minting.POST("/execute", h.Minting.ExecuteMintingHandler)
			minting.POST("/reserve", authMiddleware.RequireAuth(), h.Minting.ReserveCollateralHandler)
			minting.POST("/default", authMiddleware.RequireAuth(), h.Minting.MintingPaymentDefaultHandler)
		}
		reservations := api.Group("/reservations")
		{
			reservations.GET("", h.Minting.ListReservationsHandler)
			reservations.GET("/:id", h.Minting.GetReservationHandler)
		}

		// ============ Redemption ============
		redemptions := api.Group("/redemptions")
		{
			redemptions.GET("", h.Redemption.ListRedemptionsHandler)
			redemptions.GET("/:id", h.Redemption.GetRedemptionHandler)
			redemptions.POST("", authMiddleware.RequireAuth(), h.Redemption.RedeemHandler)
			redemptions.POST("/report", authMiddleware.RequireAuth(), h.Redemption.ReportRedemptionHandler)
			redemptions.POST("/confirm", authMiddleware.RequireAuth(), h.Redemption.ConfirmRedemptionHandler)
			redemptions.POST("/default", authMiddleware.RequireAuth(), h.Redemption.RedemptionTimeoutHandler)
			redemptions.POST("/blocked", authMiddleware.RequireAuth(), h.Redemption.RedemptionBlockedHandler)
		}
		api.GET("/queue", h.Redemption.QueueHandler)

		// ============ Challenges ============
		challenges := api.Group("/challenges")
		{
			challenges.GET("", h.Challenge.ListChallengesHandler)
			challenges.POST("/illegal-payment", authMiddleware.RequireAuth(), h.Challenge.IllegalPaymentChallengeHandler)
			challenges.POST("/double-payment", authMiddleware.RequireAuth(), h.Challenge.DoublePaymentChallengeHandler)
			challenges.POST("/free-balance-negative", authMiddleware.RequireAuth(), h.Challenge.FreeBalanceNegativeChallengeHandler)
		}

		// ============ Liquidation ============
		liquidations := api.Group("/liquidations")
		{
			liquidations.GET("", h.Liquidation.ListLiquidationsHandler)
			liquidations.POST("", authMiddleware.RequireAuth(), h.Liquidation.LiquidateHandler)
			liquidations.POST("/:vault/start", authMiddleware.RequireAuth(), h.Liquidation.StartLiquidationHandler)
			liquidations.POST("/:vault/end", authMiddleware.RequireAuth(), h.Liquidation.EndLiquidationHandler)
		}

		// ============ System ============
		system := api.Group("/system")
		{
			system.GET("/settings", h.System.GetSettingsHandler)
			system.GET("/status", h.System.GetSystemStatusHandler)
			system.GET("/underlying-block", h.System.GetUnderlyingBlockHandler)
			// Anyone with a valid block height proof may advance the view
			system.POST("/underlying-block", h.System.UpdateUnderlyingBlockHandler)
		}

		// ============ Prices and Events ============
		prices := api.Group("/prices")
		{
			prices.GET("", h.Price.GetPricesHandler)
			prices.GET("/:symbol/history", h.Price.GetPriceHistoryHandler)
		}
		api.GET("/events", h.Event.ListEventsHandler)

		// ============ WebSocket ============
		api.GET("/ws", h.WebSocket.SubscribeHandler)
		api.GET("/ws/status", h.WebSocket.StatusHandler)

		// ============ Admin (IP whitelist + TOTP-gated JWT) ============
		admin := api.Group("/admin")
		admin.Use(localhostOnly.Restrict())
		{
			admin.POST("/login", h.AdminAuth.AdminLoginHandler)
			admin.POST("/totp-secret", h.AdminAuth.GenerateTOTPSecretHandler)

			protected := admin.Group("")
			protected.Use(adminAuthMiddleware.RequireAdminAuth())
			{
				protected.POST("/minting/pause", h.Admin.PauseMintingHandler)
				protected.POST("/minting/resume", h.Admin.ResumeMintingHandler)
				protected.POST("/settings/reload", h.Admin.ReloadSettingsHandler)
				protected.POST("/payments/prune", h.Admin.PrunePaymentRecordsHandler)
			}
		}
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"message":    "Endpoint not found",
			"path":       c.Request.URL.Path,
			"suggestion": "Check documentation for available /api endpoints",
		})
	})

	return r
}
