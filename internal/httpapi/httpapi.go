// Package httpapi is the table manager's operational control surface,
// grounded on the reference corpus's gin-based gateway router: a small
// set of JSON endpoints for triggering reindex/backfill and a liveness
// probe, plus reserved per-table routes for future expansion.
package httpapi

import (
	"context"
	"net/http"

	"github.com/ceyewan/tablesync/internal/logging"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Manager is the subset of tablemanager.Manager the HTTP surface drives.
type Manager interface {
	ReindexAll(ctx context.Context) error
	Reindex(ctx context.Context, docName string) error
	BackfillAll(ctx context.Context) error
	Backfill(ctx context.Context, docName string) error
}

// New builds the gin engine exposing mgr's operational endpoints.
func New(mgr Manager, logger logging.Logger) *gin.Engine {
	if logger == nil {
		logger = logging.Namespace("httpapi")
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.Handle(http.MethodGet, "/metrics", gin.WrapH(promhttp.Handler()))

	r.POST("/reindex", func(c *gin.Context) {
		req := struct {
			Model    string `json:"model"`
			Backfill *bool  `json:"backfill"`
		}{}
		_ = c.ShouldBindJSON(&req)

		ctx := c.Request.Context()
		var err error
		if req.Model == "" {
			err = mgr.ReindexAll(ctx)
		} else {
			err = mgr.Reindex(ctx, req.Model)
		}
		if err == nil && (req.Backfill == nil || *req.Backfill) {
			if req.Model == "" {
				err = mgr.BackfillAll(ctx)
			} else {
				err = mgr.Backfill(ctx, req.Model)
			}
		}
		respond(c, logger, "reindex", err)
	})

	r.POST("/backfill", func(c *gin.Context) {
		var req struct {
			Model string `json:"model"`
		}
		_ = c.ShouldBindJSON(&req)

		var err error
		if req.Model == "" {
			err = mgr.BackfillAll(c.Request.Context())
		} else {
			err = mgr.Backfill(c.Request.Context(), req.Model)
		}
		respond(c, logger, "backfill", err)
	})

	// Per-table variants are reserved for a future release; today both
	// bulk endpoints already accept an optional "model" field.
	r.POST("/reindex/:model", reserved)
	r.POST("/backfill/:model", reserved)

	return r
}

func reserved(c *gin.Context) {
	c.JSON(http.StatusNotImplemented, gin.H{"error": "not implemented, use the model field on the bulk endpoint"})
}

func respond(c *gin.Context, logger logging.Logger, op string, err error) {
	if err != nil {
		logger.Error("operation failed", logging.String("op", op), logging.Err(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
