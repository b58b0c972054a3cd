package main

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Handler holds shared dependencies (store, ledger, feed, config) for all route handlers.
type Handler struct {
	store     ledgerStore
	ledger    *ledger
	feed      *changeFeed
	jwtSecret []byte
	openAI    *openAIClient
}

func newHandler(store ledgerStore, l *ledger, feed *changeFeed, cfg config) *Handler {
	return &Handler{
		store:     store,
		ledger:    l,
		feed:      feed,
		jwtSecret: []byte(cfg.JWTSecret),
		openAI:    newOpenAIClient(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey),
	}
}

// apiError returns a consistent JSON error response: {"error": "message"}.
func apiError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"error": message})
}

// respondError maps ledger errors onto status codes. Validation problems are
// the caller's fault and are echoed back; storage failures are retryable.
func respondError(c *gin.Context, err error) {
	var ve *validationError
	switch {
	case errors.As(err, &ve):
		c.JSON(http.StatusBadRequest, gin.H{"error": ve.Message, "field": ve.Field})
	case errors.Is(err, errUnauthenticated):
		apiError(c, http.StatusUnauthorized, "unauthenticated")
	case errors.Is(err, errDegenerateTarget):
		apiError(c, http.StatusUnprocessableEntity, "goal adjustment leaves no calories to allocate; check weight, height, age and goal")
	case errors.Is(err, errTargetsNotSet):
		apiError(c, http.StatusNotFound, "targets not set")
	case errors.Is(err, errProfileNotSet):
		apiError(c, http.StatusNotFound, "profile not found")
	case errors.Is(err, errStorageUnavailable):
		log.Printf("[%s %s] %v", c.Request.Method, c.FullPath(), err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage unavailable, try again", "retryable": true})
	default:
		log.Printf("[%s %s] unexpected error: %v", c.Request.Method, c.FullPath(), err)
		apiError(c, http.StatusInternalServerError, "internal error")
	}
}

/* ─── Server setup ────────────────────────────────────────────────────── */

// registerRoutes registers all API routes on the router.
func (h *Handler) registerRoutes(router *gin.Engine) {
	// Public routes
	router.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	router.POST("/api/login", h.login)

	// Authenticated routes
	api := router.Group("/api", h.authMiddleware())
	api.POST("/calculate", h.calculate)
	api.GET("/profile", h.getProfile)
	api.PATCH("/profile", h.patchProfile)
	api.GET("/targets", h.getTargets)
	api.PUT("/targets", h.putTargets)
	api.POST("/targets/compute", h.computeTargets)
	api.GET("/ledger/daily", h.getDailyLedger)
	api.GET("/ledger/totals", h.getDailyTotals)
	api.GET("/ledger/history", h.getHistory)
	api.GET("/ledger/stream", h.streamLedger)
	api.POST("/ledger/entries", h.createEntry)
	api.DELETE("/ledger/entries/:id", h.deleteEntry)
	api.POST("/ledger/suggest", h.suggestEntry)
	api.GET("/weight-log", h.getWeightLog)
	api.POST("/weight-log", h.upsertWeightEntry)
}

func newRouter(h *Handler) *gin.Engine {
	router := gin.Default()
	router.SetTrustedProxies(nil)
	h.registerRoutes(router)
	return router
}
