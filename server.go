package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"

	"github.com/dwellmatch/estates_backend/config"
	"github.com/dwellmatch/estates_backend/middlewares"
	"github.com/dwellmatch/estates_backend/models"
	"github.com/dwellmatch/estates_backend/utils"
	"github.com/dwellmatch/estates_backend/workflow"
)

const defaultPort = "8080"

var tracer = otel.Tracer("dwellmatch-estates")

// Define a struct to represent the rate limiter.
type RateLimiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func getRedisClient(redisAddress string) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr: redisAddress,
	})
	return client
}

// writeWorkflowError maps the workflow error taxonomy onto HTTP statuses.
// Precondition failures are conflicts (the resource exists but is in the
// wrong state); store errors are retryable 503s.
func writeWorkflowError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, utils.ErrorRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, utils.ErrorAlreadySold):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, utils.ErrorPreconditionFailed):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, utils.ErrorStoreUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "temporarily unavailable, retry"})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	}
}

func writeBindError(c *gin.Context, err error) {
	if fields := utils.ProcessValidationErrors(err); fields != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "fields": fields})
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

func pathId(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

func submitServiceRequestHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewServiceRequest
		if err := c.ShouldBindJSON(&input); err != nil {
			writeBindError(c, err)
			return
		}

		ctx, span := tracer.Start(c.Request.Context(), "SubmitServiceRequest")
		defer span.End()

		// Anonymous submissions are allowed; logged-in tenants get linked.
		var clientUserId *int
		if uid, ok := utils.GetUserIdFromContext(ctx); ok {
			clientUserId = &uid
		}

		request, assignment, err := workflow.SubmitServiceRequest(ctx, &input, clientUserId)
		if err != nil {
			writeWorkflowError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{
			"service_request": request,
			"assignment":      assignment,
		})
	}
}

func completeServiceRequestHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		agentId, _ := utils.GetAgentIdFromContext(c.Request.Context())
		if err := workflow.CompleteServiceRequest(c.Request.Context(), id, agentId); err != nil {
			writeWorkflowError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": id, "status": models.ServiceRequestStatusCompleted})
	}
}

func releaseServiceRequestHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		ctx := c.Request.Context()
		agentId, _ := utils.GetAgentIdFromContext(ctx)
		assignment, err := workflow.ReleaseServiceRequest(ctx, id, agentId, utils.IsAdminFromContext(ctx))
		if err != nil {
			writeWorkflowError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": id, "assignment": assignment})
	}
}

func cancelServiceRequestHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		if err := workflow.CancelServiceRequest(c.Request.Context(), id); err != nil {
			writeWorkflowError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": id, "status": models.ServiceRequestStatusCancelled})
	}
}

func toggleContactedHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		agentId, _ := utils.GetAgentIdFromContext(c.Request.Context())
		if err := workflow.ToggleContacted(c.Request.Context(), id, agentId); err != nil {
			writeWorkflowError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func addCommentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		var input models.NewRequestComment
		if err := c.ShouldBindJSON(&input); err != nil {
			writeBindError(c, err)
			return
		}
		agentId, _ := utils.GetAgentIdFromContext(c.Request.Context())
		comment, err := workflow.AddRequestComment(c.Request.Context(), id, agentId, &input)
		if err != nil {
			writeWorkflowError(c, err)
			return
		}
		c.JSON(http.StatusCreated, comment)
	}
}

func purchaseLeadHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		ctx, span := tracer.Start(c.Request.Context(), "PurchaseLead")
		defer span.End()

		agentId, _ := utils.GetAgentIdFromContext(ctx)
		receipt, err := workflow.PurchaseLead(ctx, id, agentId)
		if err != nil {
			writeWorkflowError(c, err)
			return
		}
		c.JSON(http.StatusOK, receipt)
	}
}

func nextAdHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ad, err := workflow.NextAdToShow(c.Request.Context())
		if err != nil {
			writeWorkflowError(c, err)
			return
		}
		if ad == nil {
			c.Status(http.StatusNoContent)
			return
		}
		c.JSON(http.StatusOK, ad)
	}
}

type trackAdEventRequest struct {
	AdvertisementId int    `json:"advertisement_id" binding:"required"`
	EventType       string `json:"event_type" binding:"required,oneof=impression click"`
}

func trackAdEventHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req trackAdEventRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			writeBindError(c, err)
			return
		}
		workflow.TrackAdEvent(c.Request.Context(), req.AdvertisementId, models.AdEventType(req.EventType))
		c.Status(http.StatusNoContent)
	}
}

func createAdvertisementHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewAdvertisement
		if err := c.ShouldBindJSON(&input); err != nil {
			writeBindError(c, err)
			return
		}
		ctx := c.Request.Context()
		// Agents may only boost their own listings.
		if agentId, ok := utils.GetAgentIdFromContext(ctx); ok && !utils.IsAdminFromContext(ctx) {
			input.AgentId = agentId
		}
		ad, err := models.CreateAdvertisement(ctx, &input)
		if err != nil {
			writeWorkflowError(c, err)
			return
		}
		c.JSON(http.StatusCreated, ad)
	}
}

func agentSignupHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewAgent
		if err := c.ShouldBindJSON(&input); err != nil {
			writeBindError(c, err)
			return
		}
		agent, err := models.SignupAgent(c.Request.Context(), &input)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, agent)
	}
}

func agentDocumentUploadHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		agentId, ok := utils.GetAgentIdFromContext(ctx)
		if !ok {
			c.JSON(http.StatusForbidden, gin.H{"error": "agent profile required"})
			return
		}

		fileHeader, err := c.FormFile("document")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "document file is required"})
			return
		}
		file, err := fileHeader.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		defer file.Close()

		objectName := fmt.Sprintf("agent-documents/%d/%s_%s", agentId, uuid.NewString(), fileHeader.Filename)
		url, err := utils.UploadFileToGCS(ctx, objectName, file)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		db := config.GetDB()
		if err := db.WithContext(ctx).
			Model(&models.Agent{}).
			Where("id = ?", agentId).
			Update("document_url", url).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"document_url": url})
	}
}

func loginHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.LoginInput
		if err := c.ShouldBindJSON(&input); err != nil {
			writeBindError(c, err)
			return
		}
		token, user, err := models.Login(c.Request.Context(), &input)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"token": token, "user": user})
	}
}

func listServiceRequestsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		status := models.ServiceRequestStatus(c.Query("status"))
		limit := config.SearchLimit
		if v := c.Query("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				limit = n
			}
		}
		ctx := c.Request.Context()
		requests, err := models.ListServiceRequests(ctx, status, limit)
		if err != nil {
			writeWorkflowError(c, err)
			return
		}

		// Resolve assigned agents through the per-request dataloader so N
		// rows cost one batched query.
		type listedRequest struct {
			*models.ServiceRequest
			AssignedAgent *models.Agent `json:"assigned_agent,omitempty"`
			ClientUser    *models.User  `json:"client_user,omitempty"`
		}
		out := make([]listedRequest, 0, len(requests))
		for _, req := range requests {
			row := listedRequest{ServiceRequest: req}
			if req.AssignedAgentId != nil {
				if agent, err := middlewares.GetAgent(ctx, *req.AssignedAgentId); err == nil {
					row.AssignedAgent = agent
				}
			}
			if req.ClientUserId != nil {
				if user, err := middlewares.GetUser(ctx, *req.ClientUserId); err == nil {
					row.ClientUser = user
				}
			}
			out = append(out, row)
		}
		c.JSON(http.StatusOK, out)
	}
}

func getServiceRequestHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		ctx := c.Request.Context()
		request, err := utils.FetchModel[models.ServiceRequest](ctx, id)
		if err != nil {
			writeWorkflowError(c, err)
			return
		}
		comments, err := utils.FetchModelsWhere[models.RequestComment](ctx, "service_request_id = ?", id)
		if err != nil {
			writeWorkflowError(c, err)
			return
		}
		var assignedAgent *models.Agent
		if request.AssignedAgentId != nil {
			if agent, err := middlewares.GetAgent(ctx, *request.AssignedAgentId); err == nil {
				assignedAgent = agent
			}
		}
		c.JSON(http.StatusOK, gin.H{
			"service_request": request,
			"assigned_agent":  assignedAgent,
			"comments":        comments,
		})
	}
}

func getAgentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		ctx := c.Request.Context()

		var cached models.Agent
		if hit, err := utils.RetrieveRedis(id, &cached); err == nil && hit {
			c.JSON(http.StatusOK, &cached)
			return
		}

		agent, err := utils.FetchModel[models.Agent](ctx, id, "User")
		if err != nil {
			writeWorkflowError(c, err)
			return
		}
		_ = utils.StoreRedis[models.Agent](agent, agent.ID)
		c.JSON(http.StatusOK, agent)
	}
}

func listAgentsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		agents, err := utils.FetchAllModels[models.Agent](c.Request.Context(), "User")
		if err != nil {
			writeWorkflowError(c, err)
			return
		}
		c.JSON(http.StatusOK, agents)
	}
}

func manualAssignHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		assignment, err := workflow.AssignServiceRequest(c.Request.Context(), id, 0)
		if err != nil {
			writeWorkflowError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": id, "assignment": assignment})
	}
}

type verificationDecisionRequest struct {
	Status string `json:"status" binding:"required,oneof=approved rejected"`
}

func agentVerificationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		var req verificationDecisionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			writeBindError(c, err)
			return
		}
		agent, err := models.UpdateAgentVerification(c.Request.Context(), id, models.VerificationStatus(req.Status))
		if err != nil {
			writeWorkflowError(c, err)
			return
		}
		c.JSON(http.StatusOK, agent)
	}
}

type paymentDecisionRequest struct {
	Status string `json:"status" binding:"required,oneof=paid unpaid"`
}

func agentPaymentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		var req paymentDecisionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			writeBindError(c, err)
			return
		}
		agent, err := models.UpdateAgentPayment(c.Request.Context(), id, models.PaymentStatus(req.Status))
		if err != nil {
			writeWorkflowError(c, err)
			return
		}
		c.JSON(http.StatusOK, agent)
	}
}

func allocationReportHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		c.Header("Content-Disposition", `attachment; filename="allocation.xlsx"`)
		if err := models.ExportAllocationExcel(c.Request.Context(), c.Writer); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	}
}

func requeueHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		result, err := workflow.RequeueOpenRequests(c.Request.Context(), 100)
		if err != nil {
			writeWorkflowError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

type outboxReplayRequest struct {
	RecordId int `json:"record_id" binding:"required"`
}

// Ops tooling: put a DEAD/FAILED outbox row back in the dispatch queue.
func outboxReplayHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req outboxReplayRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			writeBindError(c, err)
			return
		}

		db := config.GetDB()
		if db == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "db is nil"})
			return
		}
		now := time.Now().UTC()
		if err := db.WithContext(c.Request.Context()).
			Model(&models.NotificationOutbox{}).
			Where("id = ?", req.RecordId).
			Updates(map[string]interface{}{
				"publish_status":     models.OutboxPublishStatusFailed,
				"next_attempt_at":    &now,
				"locked_at":          nil,
				"locked_by":          nil,
				"last_publish_error": nil,
			}).Error; err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"record_id":       req.RecordId,
			"publish_status":  models.OutboxPublishStatusFailed,
			"next_attempt_at": now.Format(time.RFC3339Nano),
		})
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
			corsConfig.AllowOrigins = utils.SplitAndTrim(allowedOrigins)
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

	r.Use(middlewares.AuthMiddleware())
	r.Use(middlewares.LoaderMiddleware())
	r.Use(customErrorLogger(logger))
	r.Use(gin.Recovery())

	api := r.Group("/api")
	{
		api.POST("/auth/login", loginHandler())
		api.POST("/agents/signup", agentSignupHandler())
		api.POST("/agents/documents", middlewares.RequireAuth(), agentDocumentUploadHandler())

		api.POST("/service-requests", submitServiceRequestHandler())
		api.GET("/service-requests", middlewares.RequireAuth(), listServiceRequestsHandler())
		api.GET("/service-requests/:id", middlewares.RequireAuth(), getServiceRequestHandler())
		api.GET("/agents/:id", getAgentHandler())
		api.POST("/service-requests/:id/complete", middlewares.RequireAgent(), completeServiceRequestHandler())
		api.POST("/service-requests/:id/cancel", middlewares.RequireAdmin(), cancelServiceRequestHandler())
		api.POST("/service-requests/:id/release", middlewares.RequireAuth(), releaseServiceRequestHandler())
		api.POST("/service-requests/:id/contacted", middlewares.RequireAgent(), toggleContactedHandler())
		api.POST("/service-requests/:id/comments", middlewares.RequireAgent(), addCommentHandler())

		api.POST("/leads/:id/purchase", middlewares.RequireAgent(), purchaseLeadHandler())

		api.GET("/ads/next", nextAdHandler())
		api.POST("/ads/track", trackAdEventHandler())
		api.POST("/ads", middlewares.RequireAuth(), createAdvertisementHandler())
	}

	admin := r.Group("/api/admin", middlewares.RequireAdmin())
	{
		admin.GET("/service-requests", listServiceRequestsHandler())
		admin.POST("/service-requests/:id/cancel", cancelServiceRequestHandler())
		admin.POST("/service-requests/:id/assign", manualAssignHandler())
		admin.POST("/service-requests/requeue", requeueHandler())
		admin.GET("/agents", listAgentsHandler())
		admin.POST("/agents/:id/verification", agentVerificationHandler())
		admin.POST("/agents/:id/payment", agentPaymentHandler())
		admin.GET("/reports/allocation.xlsx", allocationReportHandler())
		admin.POST("/outbox/replay", outboxReplayHandler())
	}

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

	// Background workers: outbox dispatcher (publishes AFTER commit) and the
	// ad counter flusher (folds Redis counters into MySQL).
	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()
	go workflow.NewOutboxDispatcher(db, logger).Run(workerCtx)
	go workflow.NewCounterFlusher(db, logger).Run(workerCtx)

	// Set the session isolation level to READ COMMITTED
	for attempt := 1; ; attempt++ {
		err := db.Exec("SET SESSION TRANSACTION ISOLATION LEVEL READ COMMITTED").Error
		if err == nil {
			break
		}
		sleep := time.Second * time.Duration(1<<min(attempt, 5))
		if sleep > 30*time.Second {
			sleep = 30 * time.Second
		}
		logger.WithFields(logrus.Fields{
			"field":   "database",
			"attempt": attempt,
		}).Warn("failed to set isolation level; retrying in " + sleep.String() + ": " + err.Error())
		time.Sleep(sleep)
	}

	logger.WithFields(logrus.Fields{
		"info": "Connection Established",
	}).Info("listening on http://localhost:", port, "/")
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
	key := c.ClientIP()

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
