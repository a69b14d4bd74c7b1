package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/ecocomply/compliance_backend/config"
	"github.com/ecocomply/compliance_backend/jobs"
	"github.com/ecocomply/compliance_backend/middlewares"
	"github.com/ecocomply/compliance_backend/models"
	"github.com/ecocomply/compliance_backend/models/reports"
	"github.com/ecocomply/compliance_backend/utils"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
)

const defaultPort = "8080"

var tracer = otel.Tracer("compliance-backend")

// Define a struct to represent the rate limiter.
type RateLimiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
}

func getRedisClient(redisAddress string) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr: redisAddress,
	})
	return client
}

func authorizeAdminOnly(ctx context.Context) error {
	username, ok := utils.GetUsernameFromContext(ctx)
	if !ok || username == "" {
		return errors.New("unauthorized")
	}

	var user models.User
	exists, err := config.GetRedisObject("User:"+username, &user)
	if err != nil {
		return err
	}
	if !exists {
		db := config.GetDB()
		if db == nil {
			return errors.New("db is nil")
		}
		if err := db.WithContext(ctx).Model(&models.User{}).Where("username = ?", username).Take(&user).Error; err != nil {
			return errors.New("unauthorized")
		}
	}
	if user.Role != models.UserRoleAdmin {
		return errors.New("unauthorized")
	}
	return nil
}

// requireAdmin guards the internal ops surface. Operators authenticate with a
// session token (SessionMiddleware resolves it to a username) or with a bearer
// JWT carrying the Admin role. Writes the 401 itself so handlers can bail with
// a single return.
func requireAdmin(c *gin.Context) bool {
	if _, ok := utils.GetUsernameFromContext(c.Request.Context()); ok {
		if err := authorizeAdminOnly(c.Request.Context()); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return false
		}
		return true
	}

	if claims := middlewares.CtxValue(c.Request.Context()); claims != nil && claims.Role == "Admin" {
		return true
	}

	c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	return false
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func loginHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req loginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		if req.Username == "" || req.Password == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "username and password are required"})
			return
		}

		info, err := models.Login(c.Request.Context(), req.Username, req.Password)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, info)
	}
}

// jobRunRequest narrows an on-demand pass. An empty body means the whole
// fleet; entity_type is only honored by the clock pass.
type jobRunRequest struct {
	CompanyId  string `json:"company_id"`
	SiteId     *int   `json:"site_id"`
	EntityType string `json:"entity_type"`
}

func (req jobRunRequest) scope() jobs.Scope {
	return jobs.Scope{CompanyId: req.CompanyId, SiteId: req.SiteId}
}

func bindJobRunRequest(c *gin.Context) (jobRunRequest, bool) {
	var req jobRunRequest
	// An empty body is a fleet-wide run, not a bind error.
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return req, false
	}
	return req, true
}

func writePassError(c *gin.Context, err error) {
	if errors.Is(err, jobs.ErrPassAlreadyRunning) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

func clockReconcileHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireAdmin(c) {
			return
		}
		req, ok := bindJobRunRequest(c)
		if !ok {
			return
		}

		var only models.ClockEntityType
		if req.EntityType != "" {
			parsed, err := models.ParseClockEntityType(req.EntityType)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			only = parsed
		}

		ctx, span := tracer.Start(c.Request.Context(), "jobs.clock_reconcile")
		defer span.End()
		result, err := jobs.RunClockPass(ctx, req.scope(), only)
		if err != nil {
			writePassError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func evidenceExpiryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireAdmin(c) {
			return
		}
		req, ok := bindJobRunRequest(c)
		if !ok {
			return
		}

		ctx, span := tracer.Start(c.Request.Context(), "jobs.evidence_expiry")
		defer span.End()
		result, err := jobs.RunEvidencePass(ctx, req.scope())
		if err != nil {
			writePassError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func triggerRunHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireAdmin(c) {
			return
		}
		req, ok := bindJobRunRequest(c)
		if !ok {
			return
		}

		ctx, span := tracer.Start(c.Request.Context(), "jobs.trigger_run")
		defer span.End()
		result, err := jobs.RunTriggerPass(ctx, req.scope())
		if err != nil {
			writePassError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func slaCheckHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireAdmin(c) {
			return
		}
		req, ok := bindJobRunRequest(c)
		if !ok {
			return
		}

		ctx, span := tracer.Start(c.Request.Context(), "jobs.sla_check")
		defer span.End()
		result, err := jobs.RunSlaPass(ctx, req.scope())
		if err != nil {
			writePassError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func jobRunsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireAdmin(c) {
			return
		}

		var jobName *string
		if v := strings.TrimSpace(c.Query("job_name")); v != "" {
			jobName = &v
		}
		var companyId *string
		if v := strings.TrimSpace(c.Query("company_id")); v != "" {
			companyId = &v
		}
		limit := 0
		if v := strings.TrimSpace(c.Query("limit")); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				limit = n
			}
		}

		runs, err := models.GetReconciliationReports(c.Request.Context(), jobName, companyId, limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"runs": runs})
	}
}

func clockReportFilterFromQuery(c *gin.Context) reports.ComplianceClockReportFilter {
	filter := reports.ComplianceClockReportFilter{
		CompanyId: strings.TrimSpace(c.Query("company_id")),
	}
	if v := strings.TrimSpace(c.Query("site_id")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.SiteId = &n
		}
	}
	if v := strings.TrimSpace(c.Query("entity_type")); v != "" {
		filter.EntityType = &v
	}
	if v := strings.TrimSpace(c.Query("criticality")); v != "" {
		filter.Criticality = &v
	}
	if v := strings.TrimSpace(c.Query("status")); v != "" {
		filter.Status = &v
	}
	if v := strings.TrimSpace(c.Query("module_code")); v != "" {
		filter.ModuleCode = &v
	}
	return filter
}

func complianceClockReportHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireAdmin(c) {
			return
		}

		var limit *int
		if v := strings.TrimSpace(c.Query("limit")); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
				return
			}
			limit = &n
		}
		var after *string
		if v := c.Query("after"); v != "" {
			after = &v
		}

		connection, err := reports.PaginateComplianceClockReport(c.Request.Context(), limit, after, clockReportFilterFromQuery(c))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, connection)
	}
}

func complianceClockExportHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !requireAdmin(c) {
			return
		}

		rows, err := reports.GetAllComplianceClockReport(c.Request.Context(), clockReportFilterFromQuery(c))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := reports.WriteComplianceClockExcel(c.Writer, rows); err != nil {
			// Headers are already out; all we can do is log.
			config.LogError(config.GetLogger(), "server.go", "complianceClockExportHandler", "stream xlsx", nil, err)
		}
	}
}

func customNotFoundHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
}

func main() {
	port := os.Getenv("API_PORT")
	if port == "" {
		// Cloud Run standard env var.
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	// Shutdown coordination.
	// Cloud Run sends SIGTERM on revision shutdown; handle it for graceful drain.
	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	// Start the HTTP server ASAP so Cloud Run considers the revision healthy.
	// Until DB/Redis are ready, we return 503 for app endpoints.
	r := gin.New()
	// Correlation IDs: generate once per request and attach to context.
	r.Use(func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
		c.Next()
	})
	r.Use(func(c *gin.Context) {
		// Always allow Cloud Run startup probe.
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		// Gate critical endpoints on dependency readiness.
		if config.GetDB() == nil || config.GetRedisDB() == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	corsConfig := cors.DefaultConfig()
	// Production-safe CORS:
	// - In production, require explicit allowlist via CORS_ALLOWED_ORIGINS (comma-separated).
	// - In non-production, allow all (developer convenience).
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			// Safer default: deny all if not configured in production.
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = splitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("token", "Origin", "Content-Type", "Authorization")
	corsConfig.AddExposeHeaders("Content-Length")
	corsConfig.AllowCredentials = true

	r.Use(cors.New(corsConfig))

	// Optional rate limiting (recommended for production).
	// Env:
	// - RATE_LIMIT_ENABLED=true
	// - RATE_LIMIT_WINDOW_SECONDS=60
	// - RATE_LIMIT_MAX_REQUESTS=600
	if strings.EqualFold(strings.TrimSpace(os.Getenv("RATE_LIMIT_ENABLED")), "true") {
		client := getRedisClient(os.Getenv("REDIS_ADDRESS"))
		limit := int64(600)
		if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_MAX_REQUESTS")); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
				limit = n
			}
		}
		windowSec := int64(60)
		if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_WINDOW_SECONDS")); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
				windowSec = n
			}
		}
		rateLimiter := NewRateLimiter(client, limit, time.Duration(windowSec)*time.Second)
		r.Use(rateLimiter.RateLimitMiddleware)
	}

	r.Use(middlewares.SessionMiddleware())
	r.Use(middlewares.AuthMiddleware())
	r.Use(customErrorLogger(logger))
	r.Use(gin.Recovery())

	r.POST("/internal/auth/login", loginHandler())
	// On-demand pass triggers (admin only). A pass that is already running
	// elsewhere answers 409.
	r.POST("/internal/jobs/clock-reconcile", clockReconcileHandler())
	r.POST("/internal/jobs/evidence-expiry", evidenceExpiryHandler())
	r.POST("/internal/jobs/trigger-run", triggerRunHandler())
	r.POST("/internal/jobs/sla-check", slaCheckHandler())
	r.GET("/internal/jobs/runs", jobRunsHandler())
	r.GET("/internal/reports/compliance-clocks", complianceClockReportHandler())
	r.GET("/internal/reports/compliance-clocks.xlsx", complianceClockExportHandler())
	r.NoRoute(customNotFoundHandler)

	// Start listening immediately (Cloud Run startup probe is TCP based).
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		// ListenAndServe returns http.ErrServerClosed on graceful shutdown.
		serverErrCh <- srv.ListenAndServe()
	}()

	// Connect dependencies after the port is open.
	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	// Now DB is ready; run migrations.
	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()
	// IMPORTANT: AutoMigrate can run DDL that blocks tables and causes 504/502 timeouts.
	// Allow disabling migrations on startup (run them as a separate job instead).
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		models.MigrateTable()
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	// Make sure the notification topic exists before the dispatcher publishes
	// to it. Best-effort: without a project id notifications are simply off.
	if topic := strings.TrimSpace(os.Getenv("PUBSUB_TOPIC")); topic != "" {
		go func() {
			client, err := config.GetClient(context.Background())
			if err != nil {
				config.LogError(logger, "server.go", "main", "pubsub client", topic, err)
				return
			}
			if _, err := config.CreateTopicIfNotExists(client, topic); err != nil {
				config.LogError(logger, "server.go", "main", "ensure pubsub topic", topic, err)
			}
		}()
	}

	// Background workers share one cancelable context so shutdown stops them
	// before the HTTP drain. The notification dispatcher publishes AFTER
	// commit; the scheduler is opt-in for deployments without external cron.
	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()
	go jobs.NewNotificationDispatcher(db, logger).Run(workerCtx)
	if jobs.SchedulerEnabled() {
		sched := jobs.NewSchedulerFromEnv()
		sched.Tracer = tracer
		go sched.Run(workerCtx)
	}

	logger.WithFields(logrus.Fields{
		"info": "Connection Established",
	}).Info("internal ops api listening on http://localhost:", port, "/")
	log.Println("Server started successfully")

	// Block until shutdown or server error.
	select {
	case <-sigCtx.Done():
		// graceful shutdown below
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	// Stop background workers first so they don't start new work while we're draining.
	cancelWorkers()

	// Drain HTTP requests.
	shutdownTimeout := 30 * time.Second
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}

	// Close Redis (best-effort).
	if rdb := config.GetRedisDB(); rdb != nil {
		_ = rdb.Close()
	}
}

// customErrorLogger is a custom Gin middleware that logs only errors
func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		// Only log when there are errors
		if len(c.Errors) > 0 {
			logger.Error(c.Errors.String())
		}
	}
}

// Initialize a new RateLimiter instance.
func NewRateLimiter(client *redis.Client, limit int64, window time.Duration) *RateLimiter {
	return &RateLimiter{
		client: client,
		limit:  limit,
		window: window,
	}
}

// Middleware function to check rate limits.
func (rl *RateLimiter) RateLimitMiddleware(c *gin.Context) {
	// Get the IP address or user identifier from the request.
	key := c.ClientIP() // Assuming IP-based rate limiting

	// Check if the key exists in Redis.
	exists, err := rl.client.Exists(c.Request.Context(), key).Result()
	if err != nil {
		c.AbortWithError(http.StatusInternalServerError, err)
		return
	}

	// If the key doesn't exist, create it and set expiry.
	if exists == 0 {
		err := rl.client.Set(c.Request.Context(), key, 1, rl.window).Err()
		if err != nil {
			c.AbortWithError(http.StatusInternalServerError, err)
			return
		}
		c.Next()
		return
	}

	// If the key exists, get the current count.
	count, err := rl.client.Incr(c.Request.Context(), key).Result()
	if err != nil {
		c.AbortWithError(http.StatusInternalServerError, err)
		return
	}

	// If the count exceeds the limit, return an error response.
	if count > rl.limit {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error": fmt.Sprintf("Rate limit exceeded. Try again in %d seconds", int(rl.window.Seconds())),
		})
		return
	}

	c.Next()
}

func splitAndTrim(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
