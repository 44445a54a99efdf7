package main

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"slipbook/internal/database"
	"slipbook/models"
	"slipbook/pkg/ledger"
	"slipbook/pkg/scan"
	"slipbook/pkg/storage"
)

type transactionStore interface {
	List(ctx context.Context, o ledger.Owner, f ledger.Filter) ([]models.Transaction, error)
	Create(ctx context.Context, o ledger.Owner, in ledger.Input) (models.Transaction, error)
	Update(ctx context.Context, o ledger.Owner, id uint, in ledger.Input) (models.Transaction, error)
	Delete(ctx context.Context, o ledger.Owner, id uint) error
}

type uploadRecorder interface {
	RecordUpload(ctx context.Context, u *models.ReceiptUpload) error
}

type server struct {
	db         *gorm.DB
	jwtSecret  []byte
	ledger     transactionStore
	parser     scan.ReceiptParser
	creatorFor func(userID uint) scan.TransactionCreator
	archive    storage.Archive
	uploads    uploadRecorder
	notifier   scan.Notifier
	loc        *time.Location
	log        zerolog.Logger
}

func (s *server) routes(r *gin.Engine) {
	r.GET("/categories", s.categoriesHandler)
	if s.db != nil {
		r.POST("/register", s.registerHandler)
		r.POST("/login", s.loginHandler)
		r.POST("/refresh", s.refreshHandler)
		r.POST("/revoke_refresh", s.revokeRefreshHandler)
	}

	authGroup := r.Group("")
	authGroup.Use(jwtAuthMiddleware(s.jwtSecret))
	authGroup.GET("/me", s.meHandler)
	authGroup.GET("/transactions", s.listTransactionsHandler)
	authGroup.POST("/transactions", s.createTransactionHandler)
	authGroup.PUT("/transactions/:id", s.updateTransactionHandler)
	authGroup.DELETE("/transactions/:id", s.deleteTransactionHandler)
	authGroup.POST("/transactions/scan", s.scanHandler)
	authGroup.GET("/dashboard", s.dashboardHandler)
	authGroup.GET("/calendar", s.calendarHandler)
}

func (s *server) registerHandler(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	user, err := registerUser(s.db, req.Username, req.Email, req.Password)
	switch {
	case errors.Is(err, database.ErrUserExists):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	case err != nil:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "user registered successfully", "id": user.ID})
}

func (s *server) loginHandler(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	user, err := authenticate(s.db, req.Username, req.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	token, err := issueAccessToken(s.jwtSecret, user, loginTokenTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate token"})
		return
	}
	refresh, _, err := createRefreshToken(s.db, user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create refresh token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "login successful", "token": token, "refresh_token": refresh})
}

// refreshHandler exchanges a refresh token for a new access token and rotates the refresh token
func (s *server) refreshHandler(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	user, next, err := rotateRefreshToken(s.db, req.RefreshToken)
	if errors.Is(err, ErrInvalidRefresh) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to rotate refresh token"})
		return
	}
	token, err := issueAccessToken(s.jwtSecret, user, rotatedTokenTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "refresh_token": next})
}

func (s *server) revokeRefreshHandler(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rt, err := findRefreshToken(s.db, req.RefreshToken)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "refresh token not found"})
		return
	}
	if err := s.db.Model(&rt).Update("revoked", true).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to revoke token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "refresh token revoked"})
}

func (s *server) meHandler(c *gin.Context) {
	resp := gin.H{"id": c.GetUint(ctxUserID), "username": c.GetString(ctxUsername), "role": c.GetString(ctxRole)}
	if s.db != nil {
		var user models.User
		if err := s.db.First(&user, c.GetUint(ctxUserID)).Error; err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
			return
		}
		resp["email"] = user.Email
	}
	c.JSON(http.StatusOK, resp)
}

func (s *server) categoriesHandler(c *gin.Context) {
	c.JSON(http.StatusOK, models.Categories)
}

// monthFilter reads ?month=YYYY-MM; ok is false after an error response.
func (s *server) monthFilter(c *gin.Context, def string) (ledger.Filter, bool) {
	month := c.DefaultQuery("month", def)
	if month == "" {
		return ledger.Filter{}, true
	}
	from, to, err := ledger.MonthRange(month, s.loc)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return ledger.Filter{}, false
	}
	return ledger.Filter{From: from, To: to}, true
}

func (s *server) listTransactionsHandler(c *gin.Context) {
	f, ok := s.monthFilter(c, "")
	if !ok {
		return
	}
	items, err := s.ledger.List(c.Request.Context(), ownerFromContext(c), f)
	if err != nil {
		s.ledgerError(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

func (s *server) createTransactionHandler(c *gin.Context) {
	var in ledger.Input
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	tx, err := s.ledger.Create(c.Request.Context(), ownerFromContext(c), in)
	if err != nil {
		s.ledgerError(c, err)
		return
	}
	c.JSON(http.StatusCreated, tx)
}

func (s *server) updateTransactionHandler(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var in ledger.Input
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	tx, err := s.ledger.Update(c.Request.Context(), ownerFromContext(c), id, in)
	if err != nil {
		s.ledgerError(c, err)
		return
	}
	c.JSON(http.StatusOK, tx)
}

func (s *server) deleteTransactionHandler(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	if err := s.ledger.Delete(c.Request.Context(), ownerFromContext(c), id); err != nil {
		s.ledgerError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "transaction deleted"})
}

// dashboardHandler totals the caller's own transactions, optionally for one month.
func (s *server) dashboardHandler(c *gin.Context) {
	f, ok := s.monthFilter(c, "")
	if !ok {
		return
	}
	f.Limit = -1
	owner := ownerFromContext(c)
	owner.Admin = false
	items, err := s.ledger.List(c.Request.Context(), owner, f)
	if err != nil {
		s.ledgerError(c, err)
		return
	}
	c.JSON(http.StatusOK, ledger.Summarize(items))
}

func (s *server) calendarHandler(c *gin.Context) {
	f, ok := s.monthFilter(c, time.Now().In(s.loc).Format("2006-01"))
	if !ok {
		return
	}
	f.Limit = -1
	owner := ownerFromContext(c)
	owner.Admin = false
	items, err := s.ledger.List(c.Request.Context(), owner, f)
	if err != nil {
		s.ledgerError(c, err)
		return
	}
	days := ledger.ByDay(items, s.loc)
	c.JSON(http.StatusOK, gin.H{"month": f.From.Format("2006-01"), "days": days, "summary": ledger.Summarize(items)})
}

func idParam(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return uint(id), true
}

func (s *server) ledgerError(c *gin.Context, err error) {
	var verr *ledger.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error()})
	case errors.Is(err, ledger.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, ledger.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	default:
		s.log.Error().Err(err).Str("path", c.FullPath()).Msg("ledger failure")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
	}
}
