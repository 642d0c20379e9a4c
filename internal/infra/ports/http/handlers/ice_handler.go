package handlers

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pion/webrtc/v4"

	"github.com/qrave1/meetsignal/internal/application/config"
)

type IceHandler struct {
	cfg *config.Config
	now func() time.Time
}

func NewIceHandler(cfg *config.Config) *IceHandler {
	return &IceHandler{cfg: cfg, now: time.Now}
}

// IceServers отдает STUN сервера и, если настроен coturn, временные TURN креды
func (h *IceHandler) IceServers(c echo.Context) error {
	ice := h.cfg.ICE

	servers := []webrtc.ICEServer{ice.STUNServer()}

	if ice.TURNEnabled() {
		username, password := turnCredentials(ice.CoturnSecret, h.now().Add(ice.CoturnTTL))

		servers = append(servers, webrtc.ICEServer{
			URLs:       ice.TURNURLs(),
			Username:   username,
			Credential: password,
		})
	}

	return c.JSON(http.StatusOK, servers)
}

// turnCredentials implements the coturn REST API scheme: username is the
// expiry unix time, password is base64(HMAC-SHA1(secret, username)).
func turnCredentials(secret string, expires time.Time) (string, string) {
	username := strconv.FormatInt(expires.Unix(), 10)

	mac := hmac.New(sha1.New, []byte(secret))
	mac.Write([]byte(username))

	return username, base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
