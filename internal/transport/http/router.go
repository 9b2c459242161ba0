package transporthttp

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"tradehook/internal/logger"
	"tradehook/internal/pipeline"
	"tradehook/internal/store/gormstore"
	"tradehook/internal/store/rawlog"
	"tradehook/internal/tradegroup"

	"github.com/gin-gonic/gin"
)

// maxBodyBytes caps webhook bodies; TradingView alerts are small.
const maxBodyBytes = 64 << 10

// UserResolver maps a webhook identifier to a user id.
type UserResolver interface {
	UserByIdentifier(identifier string) (int64, bool)
}

// AlertLister serves the alert history query API.
type AlertLister interface {
	ListAlerts(ctx context.Context, filter gormstore.ListFilter) ([]gormstore.AlertRecord, error)
}

// GroupReader serves the trade-group query API.
type GroupReader interface {
	GroupStatus(ctx context.Context, userID int64, broker, groupID string) (tradegroup.Status, []tradegroup.Record, error)
	TPHitStatus(ctx context.Context, groupID string) (tradegroup.TPHitReport, error)
}

// RawReader serves the raw delivery audit API.
type RawReader interface {
	Recent(ctx context.Context, q rawlog.Query) ([]rawlog.Entry, error)
}

// Router wires the webhook and query handlers.
type Router struct {
	users     UserResolver
	processor *pipeline.Processor
	alerts    AlertLister
	groups    GroupReader
	raw       RawReader
}

func NewRouter(users UserResolver, processor *pipeline.Processor, alerts AlertLister, groups GroupReader, raw RawReader) *Router {
	return &Router{
		users:     users,
		processor: processor,
		alerts:    alerts,
		groups:    groups,
		raw:       raw,
	}
}

// Register mounts the routes under the given group.
func (r *Router) Register(group *gin.RouterGroup) {
	if group == nil {
		return
	}
	group.POST("/hook/:broker/:identifier", r.handleWebhook)
	group.GET("/alerts", r.handleListAlerts)
	group.GET("/groups/:id/status", r.handleGroupStatus)
	group.GET("/groups/:id/tp-status", r.handleTPStatus)
	if r.raw != nil {
		group.GET("/raw", r.handleRawLog)
	}
}

func (r *Router) handleWebhook(c *gin.Context) {
	broker := strings.ToLower(c.Param("broker"))
	identifier := c.Param("identifier")
	userID, ok := r.users.UserByIdentifier(identifier)
	if !ok {
		// 200 with an error body: TradingView disables alerts that keep
		// getting non-2xx responses.
		c.JSON(http.StatusOK, gin.H{"status": "rejected", "error": "unknown identifier"})
		return
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"status": "rejected", "error": "read body failed"})
		return
	}

	out, err := r.processor.Process(c.Request.Context(), pipeline.Request{
		UserID:     userID,
		Broker:     broker,
		Identifier: identifier,
		RemoteAddr: c.ClientIP(),
		Body:       body,
		ReceivedAt: time.Now(),
	})
	if err != nil {
		logger.Errorf("webhook processing failed for user %d: %v", userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "result": out})
}

func (r *Router) handleListAlerts(c *gin.Context) {
	filter := gormstore.ListFilter{
		Symbol:  c.Query("symbol"),
		GroupID: c.Query("group_id"),
	}
	if v := c.Query("user_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user_id"})
			return
		}
		filter.UserID = id
	}
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Limit = n
		}
	}
	records, err := r.alerts.ListAlerts(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"alerts": records, "count": len(records)})
}

func (r *Router) handleGroupStatus(c *gin.Context) {
	groupID := c.Param("id")
	userID, _ := strconv.ParseInt(c.Query("user_id"), 10, 64)
	broker := c.Query("broker")

	status, seq, err := r.groups.GroupStatus(c.Request.Context(), userID, broker, groupID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"trade_group_id": groupID,
		"status":         status,
		"alerts":         seq,
	})
}

func (r *Router) handleTPStatus(c *gin.Context) {
	groupID := c.Param("id")
	report, err := r.groups.TPHitStatus(c.Request.Context(), groupID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trade_group_id": groupID, "tp_status": report})
}

func (r *Router) handleRawLog(c *gin.Context) {
	q := rawlog.Query{
		Broker:     c.Query("broker"),
		Identifier: c.Query("identifier"),
		OnlyFailed: c.Query("only_failed") == "true",
	}
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			q.Limit = n
		}
	}
	entries, err := r.raw.Recent(c.Request.Context(), q)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries, "count": len(entries)})
}
