package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/brandpulse/internal/analysis"
	"github.com/suPer8Hu/brandpulse/internal/common"
	"github.com/suPer8Hu/brandpulse/internal/planning"
	"gorm.io/gorm"
)

func (h *Handler) failTask(c *gin.Context, clientID uint64, err error) {
	var pe *analysis.ParseError
	switch {
	case errors.Is(err, planning.ErrInvalidTask), errors.Is(err, planning.ErrInvalidStatus):
		common.Fail(c, http.StatusBadRequest, 10020, err.Error())
	case errors.Is(err, gorm.ErrRecordNotFound):
		common.Fail(c, http.StatusNotFound, 40407, "task not found")
	case errors.As(err, &pe):
		common.FailWithData(c, http.StatusBadGateway, 50210, "model returned malformed output", gin.H{"raw": pe.Raw})
	default:
		h.Log.Error("planning request failed", "client_id", clientID, "err", err)
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
	}
}

func (h *Handler) CreateTask(c *gin.Context) {
	_, cl, ok := h.clientFromParam(c)
	if !ok {
		return
	}
	var req planning.TaskInput
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	task, err := h.Planning.CreateTask(c.Request.Context(), cl.ID, req)
	if err != nil {
		h.failTask(c, cl.ID, err)
		return
	}
	common.OK(c, task)
}

func (h *Handler) ListTasks(c *gin.Context) {
	_, cl, ok := h.clientFromParam(c)
	if !ok {
		return
	}
	tasks, err := h.Planning.ListTasks(c.Request.Context(), cl.ID, c.Query("status"))
	if err != nil {
		h.failTask(c, cl.ID, err)
		return
	}
	common.OK(c, gin.H{"tasks": tasks})
}

func (h *Handler) UpdateTask(c *gin.Context) {
	_, cl, ok := h.clientFromParam(c)
	if !ok {
		return
	}
	taskID, okk := uintParam(c, "task_id")
	if !okk {
		common.Fail(c, http.StatusBadRequest, 10004, "invalid task id")
		return
	}
	var patch planning.TaskPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	task, err := h.Planning.UpdateTask(c.Request.Context(), cl.ID, taskID, patch)
	if err != nil {
		h.failTask(c, cl.ID, err)
		return
	}
	common.OK(c, task)
}

func (h *Handler) DeleteTask(c *gin.Context) {
	_, cl, ok := h.clientFromParam(c)
	if !ok {
		return
	}
	taskID, okk := uintParam(c, "task_id")
	if !okk {
		common.Fail(c, http.StatusBadRequest, 10004, "invalid task id")
		return
	}
	if err := h.Planning.DeleteTask(c.Request.Context(), cl.ID, taskID); err != nil {
		h.failTask(c, cl.ID, err)
		return
	}
	common.OK(c, gin.H{"deleted": true})
}

type noteReq struct {
	Content string `json:"content"`
}

func (h *Handler) AddTaskNote(c *gin.Context) {
	_, cl, ok := h.clientFromParam(c)
	if !ok {
		return
	}
	taskID, okk := uintParam(c, "task_id")
	if !okk {
		common.Fail(c, http.StatusBadRequest, 10004, "invalid task id")
		return
	}
	var req noteReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	note, err := h.Planning.AddNote(c.Request.Context(), cl.ID, taskID, req.Content)
	if err != nil {
		h.failTask(c, cl.ID, err)
		return
	}
	common.OK(c, note)
}

func (h *Handler) ListTaskNotes(c *gin.Context) {
	_, cl, ok := h.clientFromParam(c)
	if !ok {
		return
	}
	taskID, okk := uintParam(c, "task_id")
	if !okk {
		common.Fail(c, http.StatusBadRequest, 10004, "invalid task id")
		return
	}
	notes, err := h.Planning.ListNotes(c.Request.Context(), cl.ID, taskID)
	if err != nil {
		h.failTask(c, cl.ID, err)
		return
	}
	common.OK(c, gin.H{"notes": notes})
}

type planReq struct {
	Goal  string `json:"goal"`
	Weeks int    `json:"weeks"`
}

func (h *Handler) GeneratePlan(c *gin.Context) {
	_, cl, ok := h.clientFromParam(c)
	if !ok {
		return
	}
	var req planReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	tasks, err := h.Planning.GeneratePlan(c.Request.Context(), planning.PlanInput{
		ClientID: cl.ID,
		Brand:    cl.Name,
		Industry: cl.Industry,
		Goal:     req.Goal,
		Weeks:    req.Weeks,
	})
	if err != nil {
		h.failTask(c, cl.ID, err)
		return
	}
	common.OK(c, gin.H{"tasks": tasks})
}
