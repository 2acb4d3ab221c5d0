package post

import (
	"net/http"

	"postflow/pkg/httpapi"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Register(r gin.IRouter) {
	g := r.Group("/posts")
	g.POST("", h.create)
	g.GET("/:id", h.get)
	g.PATCH("/:id", h.edit)
	g.DELETE("/:id", h.delete)
	g.POST("/:id/submit", h.submit)
	g.POST("/:id/approve", h.approve)
	g.POST("/:id/reject", h.reject)
	g.POST("/:id/draft", h.draft)
	g.POST("/:id/schedule", h.schedule)
	g.POST("/:id/publish", h.publish)
	g.POST("/:id/cancel", h.cancel)
}

func (h *Handler) create(c *gin.Context) {
	ws, err := httpapi.WorkspaceID(c)
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	var req CreateRequest
	if err := httpapi.BindJSON(c, &req); err != nil {
		httpapi.Fail(c, err)
		return
	}
	req.WorkspaceID = ws

	p, err := h.svc.Create(c.Request.Context(), req)
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (h *Handler) get(c *gin.Context) {
	h.do(c, func(ws, id string) (*Post, error) {
		return h.svc.Get(c.Request.Context(), ws, id)
	})
}

func (h *Handler) edit(c *gin.Context) {
	var req struct {
		Body string `json:"body" binding:"required"`
	}
	if err := httpapi.BindJSON(c, &req); err != nil {
		httpapi.Fail(c, err)
		return
	}
	h.do(c, func(ws, id string) (*Post, error) {
		return h.svc.Edit(c.Request.Context(), ws, id, req.Body)
	})
}

func (h *Handler) delete(c *gin.Context) {
	ws, err := httpapi.WorkspaceID(c)
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	if err := h.svc.Delete(c.Request.Context(), ws, c.Param("id")); err != nil {
		httpapi.Fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) submit(c *gin.Context) {
	h.do(c, func(ws, id string) (*Post, error) {
		return h.svc.Submit(c.Request.Context(), ws, id)
	})
}

func (h *Handler) approve(c *gin.Context) {
	var req DecisionRequest
	if err := httpapi.BindJSON(c, &req); err != nil {
		httpapi.Fail(c, err)
		return
	}
	h.do(c, func(ws, id string) (*Post, error) {
		return h.svc.Approve(c.Request.Context(), ws, id, req)
	})
}

func (h *Handler) reject(c *gin.Context) {
	var req DecisionRequest
	if err := httpapi.BindJSON(c, &req); err != nil {
		httpapi.Fail(c, err)
		return
	}
	h.do(c, func(ws, id string) (*Post, error) {
		return h.svc.Reject(c.Request.Context(), ws, id, req)
	})
}

func (h *Handler) draft(c *gin.Context) {
	h.do(c, func(ws, id string) (*Post, error) {
		return h.svc.ReturnToDraft(c.Request.Context(), ws, id)
	})
}

func (h *Handler) schedule(c *gin.Context) {
	var req ScheduleRequest
	if err := httpapi.BindJSON(c, &req); err != nil {
		httpapi.Fail(c, err)
		return
	}
	h.do(c, func(ws, id string) (*Post, error) {
		return h.svc.Schedule(c.Request.Context(), ws, id, req)
	})
}

func (h *Handler) publish(c *gin.Context) {
	var req struct {
		Targets []TargetInput `json:"targets"`
	}
	if c.Request.ContentLength != 0 {
		if err := httpapi.BindJSON(c, &req); err != nil {
			httpapi.Fail(c, err)
			return
		}
	}
	ws, err := httpapi.WorkspaceID(c)
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	p, err := h.svc.PublishNow(c.Request.Context(), ws, c.Param("id"), req.Targets)
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, p)
}

func (h *Handler) cancel(c *gin.Context) {
	h.do(c, func(ws, id string) (*Post, error) {
		return h.svc.Cancel(c.Request.Context(), ws, id)
	})
}

func (h *Handler) do(c *gin.Context, fn func(ws, id string) (*Post, error)) {
	ws, err := httpapi.WorkspaceID(c)
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	p, err := fn(ws, c.Param("id"))
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	httpapi.OK(c, p)
}
