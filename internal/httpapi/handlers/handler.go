package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/brandpulse/internal/aicontext"
	"github.com/suPer8Hu/brandpulse/internal/analysis"
	"github.com/suPer8Hu/brandpulse/internal/chat"
	"github.com/suPer8Hu/brandpulse/internal/common"
	"github.com/suPer8Hu/brandpulse/internal/config"
	"github.com/suPer8Hu/brandpulse/internal/httpapi/middleware"
	"github.com/suPer8Hu/brandpulse/internal/logger"
	"github.com/suPer8Hu/brandpulse/internal/models"
	"github.com/suPer8Hu/brandpulse/internal/planning"
	"gorm.io/gorm"
)

type Handler struct {
	DB       *gorm.DB
	Cfg      config.Config
	Log      *logger.Logger
	Contexts *aicontext.Manager
	Chat     *chat.Service
	Analysis *analysis.Generator
	// Jobs is nil when no broker is configured; async analysis then answers 503.
	Jobs     *analysis.Jobs
	Planning *planning.Service
}

func (h *Handler) Ping(c *gin.Context) {
	common.OK(c, gin.H{"pong": true})
}

func userIDFromContext(c *gin.Context) (uint64, bool) {
	v, ok := c.Get(middleware.UserIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(uint64)
	return id, ok
}

func uintParam(c *gin.Context, name string) (uint64, bool) {
	n, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || n == 0 {
		return 0, false
	}
	return n, true
}

// clientFromParam loads :client_id and checks that it belongs to the caller. It writes the
// failure response itself; callers just return when ok is false.
func (h *Handler) clientFromParam(c *gin.Context) (uid uint64, client *models.Client, ok bool) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return 0, nil, false
	}
	id, okk := uintParam(c, "client_id")
	if !okk {
		common.Fail(c, http.StatusBadRequest, 10004, "invalid client id")
		return 0, nil, false
	}
	var cl models.Client
	err := h.DB.WithContext(c.Request.Context()).
		Where("id = ? AND owner_id = ?", id, uid).
		First(&cl).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// other tenants' clients look the same as missing ones
			common.Fail(c, http.StatusNotFound, 40403, "client not found")
			return 0, nil, false
		}
		h.Log.Error("load client failed", "client_id", id, "user_id", uid, "err", err)
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return 0, nil, false
	}
	return uid, &cl, true
}

// failGeneration maps the errors shared by every generation endpoint.
func (h *Handler) failGeneration(c *gin.Context, op string, clientID uint64, err error) {
	var pe *analysis.ParseError
	switch {
	case errors.Is(err, aicontext.ErrNoContext):
		common.Fail(c, http.StatusConflict, 40901, "no documents uploaded for this client")
	case errors.Is(err, analysis.ErrUnknownModule):
		common.Fail(c, http.StatusNotFound, 40406, "unknown analysis module")
	case errors.As(err, &pe):
		common.FailWithData(c, http.StatusBadGateway, 50210, "model returned malformed output", gin.H{"raw": pe.Raw})
	default:
		h.Log.Error(op+" failed", "client_id", clientID, "err", err)
		common.Fail(c, http.StatusBadGateway, 50200, "generation failed")
	}
}
