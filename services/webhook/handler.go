package webhook

import (
	"io"
	"net/http"
	"time"

	"postflow/pkg/config"
	"postflow/pkg/errutil"
	"postflow/pkg/httpapi"
	"postflow/pkg/logger"
	"postflow/pkg/platform"
	"postflow/pkg/task"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// maxBodyBytes bounds what an unauthenticated caller can make us buffer.
const maxBodyBytes = 1 << 20

type Handler struct {
	cfg      *config.Config
	enqueuer task.Enqueuer
	now      func() time.Time
}

type HandlerParams struct {
	fx.In

	Config   *config.Config
	Enqueuer task.Enqueuer
}

func NewHandler(p HandlerParams) *Handler {
	return &Handler{cfg: p.Config, enqueuer: p.Enqueuer, now: time.Now}
}

func (h *Handler) Register(r gin.IRouter) {
	r.GET("/webhooks/:platform", h.handshake)
	r.POST("/webhooks/:platform", h.receive)
}

func (h *Handler) platform(c *gin.Context) (platform.Code, config.WebhookSecret, error) {
	code, ok := platform.ParseCode(c.Param("platform"))
	if !ok || !(code.MetaFamily() || code == platform.Twitter) {
		return "", config.WebhookSecret{}, errutil.New(errutil.StatusUnsupportedPlatform,
			"webhooks are not supported for "+c.Param("platform"))
	}
	secret, _ := h.cfg.WebhookSecret(string(code))
	return code, secret, nil
}

func (h *Handler) reject(c *gin.Context, code platform.Code, err error) {
	signatureRejected.WithLabelValues(string(code)).Inc()
	logger.FromContext(c.Request.Context()).Warn("webhook rejected",
		zap.String("platform", string(code)),
		zap.String("client_ip", c.ClientIP()),
		zap.Error(err),
	)
	httpapi.Fail(c, err)
}

// handshake answers both subscription styles: the Twitter CRC check when a
// crc_token is present, the hub challenge otherwise.
func (h *Handler) handshake(c *gin.Context) {
	code, secret, err := h.platform(c)
	if err != nil {
		httpapi.Fail(c, err)
		return
	}

	if crc := c.Query("crc_token"); crc != "" {
		if secret.AppSecret == "" {
			h.reject(c, code, errutil.New(errutil.StatusSignatureInvalid, "no webhook secret configured"))
			return
		}
		c.JSON(http.StatusOK, gin.H{"response_token": CRCResponse(secret.AppSecret, crc)})
		return
	}

	challenge, err := VerifyChallenge(
		c.Query("hub.mode"),
		c.Query("hub.verify_token"),
		c.Query("hub.challenge"),
		secret.VerifyToken,
	)
	if err != nil {
		h.reject(c, code, err)
		return
	}
	c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(challenge))
}

// receive verifies a delivery and queues it. The platform gets its 200 as
// soon as the delivery is durable in the queue.
func (h *Handler) receive(c *gin.Context) {
	code, secret, err := h.platform(c)
	if err != nil {
		httpapi.Fail(c, err)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes))
	if err != nil {
		httpapi.Fail(c, errutil.BadRequest("failed to read body", err))
		return
	}

	if code == platform.Twitter {
		err = VerifyTwitterSignature(secret.AppSecret, body, c.GetHeader(HeaderTwitterSignature))
	} else {
		err = VerifySignature(secret.AppSecret, body, c.GetHeader(HeaderHubSignature))
	}
	if err != nil {
		h.reject(c, code, err)
		return
	}

	t, err := NewDeliveryTask(Delivery{Platform: string(code), Body: body, ReceivedAt: h.now().UTC()})
	if err != nil {
		httpapi.Fail(c, errutil.Internal("failed to encode delivery", err))
		return
	}
	if _, err := h.enqueuer.Enqueue(c.Request.Context(), t); err != nil {
		logger.FromContext(c.Request.Context()).Error("failed to queue webhook delivery",
			zap.String("platform", string(code)),
			zap.Error(err),
		)
		httpapi.Fail(c, errutil.Internal("failed to queue delivery", err))
		return
	}

	deliveriesAccepted.WithLabelValues(string(code)).Inc()
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
