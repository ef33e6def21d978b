package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/brandpulse/internal/common"
	"github.com/suPer8Hu/brandpulse/internal/models"
)

type clientReq struct {
	Name     string `json:"name"`
	Industry string `json:"industry"`
}

func (h *Handler) CreateClient(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	var req clientReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		common.Fail(c, http.StatusBadRequest, 10002, "name required")
		return
	}
	cl := models.Client{OwnerID: uid, Name: name, Industry: strings.TrimSpace(req.Industry)}
	if err := h.DB.WithContext(c.Request.Context()).Create(&cl).Error; err != nil {
		h.Log.Error("create client failed", "user_id", uid, "err", err)
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	common.OK(c, cl)
}

func (h *Handler) ListClients(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	var out []models.Client
	if err := h.DB.WithContext(c.Request.Context()).
		Where("owner_id = ?", uid).
		Order("id ASC").
		Find(&out).Error; err != nil {
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	common.OK(c, gin.H{"clients": out})
}

func (h *Handler) GetClient(c *gin.Context) {
	_, cl, ok := h.clientFromParam(c)
	if !ok {
		return
	}
	common.OK(c, cl)
}

func (h *Handler) UpdateClient(c *gin.Context) {
	_, cl, ok := h.clientFromParam(c)
	if !ok {
		return
	}
	var req struct {
		Name     *string `json:"name"`
		Industry *string `json:"industry"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			common.Fail(c, http.StatusBadRequest, 10002, "name required")
			return
		}
		cl.Name = name
	}
	if req.Industry != nil {
		cl.Industry = strings.TrimSpace(*req.Industry)
	}
	if err := h.DB.WithContext(c.Request.Context()).Save(cl).Error; err != nil {
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	common.OK(c, cl)
}

// DeleteClient removes the client row. Its context, chats and runs stay behind, unreachable
// through the API once ownership can no longer be checked.
func (h *Handler) DeleteClient(c *gin.Context) {
	_, cl, ok := h.clientFromParam(c)
	if !ok {
		return
	}
	if err := h.DB.WithContext(c.Request.Context()).Delete(cl).Error; err != nil {
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	h.Analysis.InvalidateReport(c.Request.Context(), cl.ID)
	common.OK(c, gin.H{"deleted": true})
}
