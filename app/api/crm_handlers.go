package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lysyi3m/podcast-influence-tracker/app/crm"
)

func crmErrorStatus(err error) int {
	switch {
	case errors.Is(err, crm.ErrNotFound), errors.Is(err, crm.ErrGuestNotFound):
		return http.StatusNotFound
	case errors.Is(err, crm.ErrGuestMerged), errors.Is(err, crm.ErrForbiddenTransition):
		return http.StatusConflict
	case errors.Is(err, crm.ErrInvalidValue), errors.Is(err, crm.ErrInvalidTask):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (h *Handler) crmFailed(c *gin.Context, op string, err error) {
	status := crmErrorStatus(err)
	if status == http.StatusInternalServerError {
		slog.Error("Pipeline operation failed", "operation", op, "user", userID(c), "error", err)
		c.JSON(status, gin.H{"error": "Pipeline operation failed"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func (h *Handler) ListOpportunities(c *gin.Context) {
	opps, err := h.crm.ListOpportunities(c.Request.Context(), userID(c), c.Query("status"))
	if err != nil {
		h.crmFailed(c, "list", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"opportunities": opps, "total": len(opps)})
}

func (h *Handler) CreateOpportunity(c *gin.Context) {
	var req opportunityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	o, err := h.crm.CreateOpportunity(c.Request.Context(), userID(c), crm.NewOpportunity{
		GuestID:   req.GuestID,
		PodcastID: req.PodcastID,
		Priority:  req.Priority,
		Notes:     req.Notes,
	})
	if err != nil {
		h.crmFailed(c, "create", err)
		return
	}

	c.JSON(http.StatusCreated, o)
}

func (h *Handler) MoveOpportunity(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}

	var req moveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	o, err := h.crm.MoveOpportunity(c.Request.Context(), userID(c), id, req.Status, req.Note)
	if err != nil {
		h.crmFailed(c, "move", err)
		return
	}

	c.JSON(http.StatusOK, o)
}

func (h *Handler) ListGuestNotes(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}

	notes, err := h.crm.GuestNotes(c.Request.Context(), id)
	if err != nil {
		h.crmFailed(c, "list_notes", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"notes": notes, "total": len(notes)})
}

func (h *Handler) AddGuestNote(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}

	var req noteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	note, err := h.crm.AddGuestNote(c.Request.Context(), userID(c), id, req.Body)
	if err != nil {
		h.crmFailed(c, "add_note", err)
		return
	}

	c.JSON(http.StatusCreated, note)
}

func (h *Handler) CreateAppearance(c *gin.Context) {
	var req appearanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	a, err := h.crm.CreateAppearance(c.Request.Context(), userID(c), crm.NewAppearance{
		GuestID:       req.GuestID,
		PodcastID:     req.PodcastID,
		OpportunityID: req.OpportunityID,
		EpisodeTitle:  req.EpisodeTitle,
		InterviewAt:   req.InterviewAt,
	})
	if err != nil {
		h.crmFailed(c, "create_appearance", err)
		return
	}

	c.JSON(http.StatusCreated, a)
}

func (h *Handler) AddAppearanceTask(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}

	var req taskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	task, err := h.crm.AddTask(c.Request.Context(), userID(c), id, crm.NewTask{
		Title:      req.Title,
		DueAt:      req.DueAt,
		ReminderAt: req.ReminderAt,
	})
	if err != nil {
		h.crmFailed(c, "add_task", err)
		return
	}

	c.JSON(http.StatusCreated, task)
}

func (h *Handler) CompleteTask(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}

	if err := h.crm.CompleteTask(c.Request.Context(), userID(c), id); err != nil {
		h.crmFailed(c, "complete_task", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"task_id": id, "done": true})
}
