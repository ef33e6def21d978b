package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/brandpulse/internal/common"
	"gorm.io/gorm"
)

type chartReq struct {
	Requirements string `json:"requirements" binding:"required"`
}

func (h *Handler) GenerateChart(c *gin.Context) {
	_, cl, ok := h.clientFromParam(c)
	if !ok {
		return
	}
	var req chartReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	res, err := h.Analysis.GenerateChart(c.Request.Context(), cl.ID, req.Requirements)
	if err != nil {
		h.failGeneration(c, "chart generation", cl.ID, err)
		return
	}
	common.OK(c, res)
}

func (h *Handler) RunFullAnalysis(c *gin.Context) {
	_, cl, ok := h.clientFromParam(c)
	if !ok {
		return
	}
	report, err := h.Analysis.GenerateFullAnalysis(c.Request.Context(), cl.ID)
	if err != nil {
		h.failGeneration(c, "full analysis", cl.ID, err)
		return
	}
	common.OK(c, report)
}

func (h *Handler) RunAnalysisModule(c *gin.Context) {
	_, cl, ok := h.clientFromParam(c)
	if !ok {
		return
	}
	res, err := h.Analysis.GenerateModule(c.Request.Context(), cl.ID, c.Param("module"))
	if err != nil {
		h.failGeneration(c, "module analysis", cl.ID, err)
		return
	}
	common.OK(c, res)
}

func (h *Handler) LatestAnalysis(c *gin.Context) {
	_, cl, ok := h.clientFromParam(c)
	if !ok {
		return
	}
	report, err := h.Analysis.LatestReport(c.Request.Context(), cl.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, 40408, "no analysis yet")
			return
		}
		h.Log.Error("load latest report failed", "client_id", cl.ID, "err", err)
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	common.OK(c, report)
}

func (h *Handler) EnqueueAnalysisJob(c *gin.Context) {
	uid, cl, ok := h.clientFromParam(c)
	if !ok {
		return
	}
	if h.Jobs == nil {
		common.Fail(c, http.StatusServiceUnavailable, 50301, "async analysis unavailable")
		return
	}

	idempoKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
	if len(idempoKey) > 128 {
		common.Fail(c, http.StatusBadRequest, 10003, "idempotency key too long")
		return
	}

	job, created, err := h.Jobs.EnqueueFullAnalysis(c.Request.Context(), cl.ID, uid, idempoKey)
	if err != nil {
		h.Log.Error("enqueue analysis failed", "client_id", cl.ID, "user_id", uid, "err", err)
		common.Fail(c, http.StatusInternalServerError, 50002, "enqueue failed")
		return
	}
	common.OK(c, gin.H{"job_id": job.ID, "created": created})
}

func (h *Handler) GetAnalysisJob(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	if h.Jobs == nil {
		common.Fail(c, http.StatusServiceUnavailable, 50301, "async analysis unavailable")
		return
	}
	jobID := c.Param("job_id")
	if jobID == "" {
		common.Fail(c, http.StatusBadRequest, 10002, "job_id required")
		return
	}

	j, err := h.Jobs.Get(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, 40402, "job not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	if j.UserID != uid {
		// hide existence
		common.Fail(c, http.StatusNotFound, 40402, "job not found")
		return
	}
	common.OK(c, gin.H{"job": j})
}
