package apihttp

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"spotguard/internal/book"
	"spotguard/internal/ledger"
	"spotguard/internal/logger"
	"spotguard/internal/operator"
	"spotguard/internal/risk"
)

// Operator 是 HTTP 层依赖的运维面，由 operator.Service 实现。
type Operator interface {
	Balance(ctx context.Context) (operator.BalanceView, error)
	Positions(ctx context.Context) []operator.PositionView
	Price(ctx context.Context, raw string) (string, decimal.Decimal, error)
	Buy(ctx context.Context, raw string, amount decimal.Decimal) (risk.Decision, error)
	Stop(raw string) (book.Position, error)
	RecentTrades(ctx context.Context, n int) ([]ledger.Entry, error)
	Strategies(ctx context.Context) (operator.StrategiesView, error)
	Unblock(label string) bool
	Suggest(ctx context.Context) (string, error)
}

const maxTradesLimit = 200

type Router struct {
	op Operator
}

func NewRouter(op Operator) *Router {
	return &Router{op: op}
}

// Register 将运维路由挂载到给定分组下。
func (r *Router) Register(group *gin.RouterGroup) {
	if group == nil {
		return
	}
	group.GET("/balance", r.handleBalance)
	group.GET("/positions", r.handlePositions)
	group.POST("/positions/:symbol/stop", r.handleStop)
	group.GET("/price/:symbol", r.handlePrice)
	group.POST("/buy", r.handleBuy)
	group.GET("/trades", r.handleTrades)
	group.GET("/strategies", r.handleStrategies)
	group.GET("/strategies/suggest", r.handleSuggest)
	group.GET("/strategies/chart", r.handleChart)
	group.POST("/strategies/:label/unblock", r.handleUnblock)
}

type buyRequest struct {
	Symbol string          `json:"symbol" binding:"required"`
	Amount decimal.Decimal `json:"amount"`
}

func (r *Router) handleBalance(c *gin.Context) {
	view, err := r.op.Balance(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (r *Router) handlePositions(c *gin.Context) {
	positions := r.op.Positions(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"positions": positions, "count": len(positions)})
}

func (r *Router) handlePrice(c *gin.Context) {
	sym, price, err := r.op.Price(c.Request.Context(), c.Param("symbol"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbol": sym, "price": price})
}

func (r *Router) handleBuy(c *gin.Context) {
	var req buyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Amount.IsNegative() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "amount must not be negative"})
		return
	}
	logger.Infof("[api] manual buy ip=%s symbol=%s amount=%s", c.ClientIP(), req.Symbol, req.Amount)
	d, err := r.op.Buy(c.Request.Context(), req.Symbol, req.Amount)
	if err != nil {
		respondError(c, err)
		return
	}
	status := http.StatusOK
	if !d.Accepted {
		status = http.StatusUnprocessableEntity
	}
	c.JSON(status, d)
}

func (r *Router) handleStop(c *gin.Context) {
	pos, err := r.op.Stop(c.Param("symbol"))
	if err != nil {
		respondError(c, err)
		return
	}
	logger.Infof("[api] stop ip=%s symbol=%s", c.ClientIP(), pos.Symbol)
	c.JSON(http.StatusOK, gin.H{"stopped": pos})
}

func (r *Router) handleTrades(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "5"))
	if limit > maxTradesLimit {
		limit = maxTradesLimit
	}
	trades, err := r.op.RecentTrades(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": trades})
}

func (r *Router) handleStrategies(c *gin.Context) {
	view, err := r.op.Strategies(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (r *Router) handleUnblock(c *gin.Context) {
	label := strings.TrimSpace(c.Param("label"))
	if !r.op.Unblock(label) {
		c.JSON(http.StatusNotFound, gin.H{"error": "strategy not blocked", "label": label})
		return
	}
	logger.Infof("[api] unblock ip=%s label=%s", c.ClientIP(), label)
	c.JSON(http.StatusOK, gin.H{"unblocked": label})
}

func (r *Router) handleSuggest(c *gin.Context) {
	text, err := r.op.Suggest(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"suggestion": text})
}

func (r *Router) handleChart(c *gin.Context) {
	view, err := r.op.Strategies(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	page, err := renderStrategyChart(view)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", page)
}

func respondError(c *gin.Context, err error) {
	status := http.StatusBadGateway
	switch {
	case errors.Is(err, operator.ErrInvalidSymbol):
		status = http.StatusBadRequest
	case errors.Is(err, book.ErrNotFound):
		status = http.StatusNotFound
	}
	if status >= http.StatusInternalServerError {
		logger.Warnf("[api] %s %s failed ip=%s err=%v", c.Request.Method, c.Request.URL.Path, c.ClientIP(), err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
