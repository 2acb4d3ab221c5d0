package oauth

import (
	"net/http"
	"net/url"

	"postflow/pkg/config"
	"postflow/pkg/errutil"
	"postflow/pkg/httpapi"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	svc *Service
	cfg *config.Config
}

func NewHandler(svc *Service, cfg *config.Config) *Handler {
	return &Handler{svc: svc, cfg: cfg}
}

func (h *Handler) Register(r gin.IRouter) {
	g := r.Group("/oauth/:platform")
	g.GET("/authorize", h.authorize)
	g.GET("/callback", h.callback)
	g.POST("/exchange", h.exchange)
	g.POST("/connect", h.connect)

	r.DELETE("/credentials/:id", h.disconnect)
}

func (h *Handler) authorize(c *gin.Context) {
	res, err := h.svc.Authorize(c.Request.Context(), c.Param("platform"))
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	httpapi.OK(c, res)
}

// callback relays the platform redirect to the frontend. The state is left
// for the exchange call to consume.
func (h *Handler) callback(c *gin.Context) {
	target, err := url.Parse(h.cfg.OAuth.FrontendCallbackURL)
	if err != nil || h.cfg.OAuth.FrontendCallbackURL == "" {
		httpapi.Fail(c, errutil.Internal("frontend callback url is not configured", err))
		return
	}

	q := target.Query()
	q.Set("platform", c.Param("platform"))
	if e := c.Query("error"); e != "" {
		q.Set("error", e)
		if desc := c.Query("error_description"); desc != "" {
			q.Set("error_description", desc)
		}
	} else {
		q.Set("code", c.Query("code"))
		q.Set("state", c.Query("state"))
	}
	target.RawQuery = q.Encode()

	c.Redirect(http.StatusFound, target.String())
}

func (h *Handler) exchange(c *gin.Context) {
	var req struct {
		Code  string `json:"code"`
		State string `json:"state"`
	}
	if err := httpapi.BindJSON(c, &req); err != nil {
		httpapi.Fail(c, err)
		return
	}
	res, err := h.svc.Exchange(c.Request.Context(), c.Param("platform"), req.Code, req.State)
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	httpapi.OK(c, res)
}

func (h *Handler) connect(c *gin.Context) {
	var req ConnectRequest
	if err := httpapi.BindJSON(c, &req); err != nil {
		httpapi.Fail(c, err)
		return
	}
	if req.WorkspaceID == "" {
		ws, err := httpapi.WorkspaceID(c)
		if err != nil {
			httpapi.Fail(c, err)
			return
		}
		req.WorkspaceID = ws
	}

	cred, err := h.svc.Connect(c.Request.Context(), c.Param("platform"), req)
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, cred)
}

func (h *Handler) disconnect(c *gin.Context) {
	ws, err := httpapi.WorkspaceID(c)
	if err != nil {
		httpapi.Fail(c, err)
		return
	}
	if err := h.svc.Disconnect(c.Request.Context(), ws, c.Param("id")); err != nil {
		httpapi.Fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
