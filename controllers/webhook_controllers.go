package controllers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/yeremiapane/tenant-realtime/events"
	"github.com/yeremiapane/tenant-realtime/services"
	"github.com/yeremiapane/tenant-realtime/utils"
)

const (
	SignatureHeader  = "X-Signature"
	signaturePrefix  = "sha256="
	maxWebhookBodyKB = 256
)

// WebhookController accepts events from trusted producers (ticketing,
// billing) signed with the shared webhook secret.
type WebhookController struct {
	Publisher *services.EventPublisher
	secret    []byte
}

func NewWebhookController(pub *services.EventPublisher, secret string) *WebhookController {
	return &WebhookController{Publisher: pub, secret: []byte(secret)}
}

type webhookEvent struct {
	Event  events.Name     `json:"event"`
	OrgID  string          `json:"orgId"`
	UserID string          `json:"userId"`
	Data   json.RawMessage `json:"data"`
}

// Sign returns the X-Signature value for body.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

func (wc *WebhookController) validSignature(body []byte, header string) bool {
	if len(wc.secret) == 0 || !strings.HasPrefix(header, signaturePrefix) {
		return false
	}
	return hmac.Equal([]byte(Sign(wc.secret, body)), []byte(header))
}

// Receive verifies the signature before anything is decoded, then routes
// the event to the narrowest scope it allows.
func (wc *WebhookController) Receive(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBodyKB<<10))
	if err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}
	if !wc.validSignature(body, c.GetHeader(SignatureHeader)) {
		utils.InfoLogger.WithField("client_ip", c.ClientIP()).Warn("webhook signature rejected")
		utils.AbortWithAuthError(c, utils.Unauthorized("invalid signature"))
		return
	}

	var evt webhookEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	n, err := wc.Publisher.PublishRaw(evt.Event, evt.OrgID, evt.UserID, evt.Data)
	if err != nil {
		utils.InfoLogger.WithFields(logrus.Fields{"event": evt.Event, "org_id": evt.OrgID}).
			WithError(err).Warn("webhook event rejected")
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}
	utils.RespondJSON(c, http.StatusAccepted, "Event accepted", gin.H{"delivered": n})
}
