// Package handlers implements Yggdrasil's HTTP surface: the websocket
// upgrade endpoint, health check, state export/import, and controller
// authentication.
package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/jwhector/yggdrasil/internal/application/container"
	"github.com/jwhector/yggdrasil/internal/domain/conductor"
	"github.com/jwhector/yggdrasil/internal/domain/entities/show"
	"github.com/jwhector/yggdrasil/internal/domain/projection"
	"github.com/jwhector/yggdrasil/internal/infrastructure/auth"
	"github.com/jwhector/yggdrasil/internal/infrastructure/messaging"
	"github.com/jwhector/yggdrasil/internal/infrastructure/persistence/store"
	"github.com/jwhector/yggdrasil/pkg/config"
)

// GatewayHandlers serves the websocket gateway and its supporting HTTP
// endpoints.
type GatewayHandlers struct {
	container *container.Container
}

// NewGatewayHandlers builds the handler set for the given container.
func NewGatewayHandlers(c *container.Container) *GatewayHandlers {
	return &GatewayHandlers{container: c}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Connect upgrades an HTTP request to a websocket and registers the
// connection under the role and user id resolved from the request
// (spec §6: audience/projector connect freely, controller requires a
// valid token).
func (h *GatewayHandlers) Connect(c *gin.Context) {
	mode := conductor.ConnectionMode(c.DefaultQuery("mode", "audience"))
	if mode != conductor.ModeAudience && mode != conductor.ModeProjector && mode != conductor.ModeController {
		c.JSON(http.StatusBadRequest, gin.H{"error": "mode must be audience, projector, or controller"})
		return
	}

	if mode == conductor.ModeController {
		token := bearerOrQueryToken(c)
		if _, err := h.container.TokenIssuer.VerifyControllerToken(token); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired controller token"})
			return
		}
	}

	userID := show.UserID(c.Query("userId"))
	if userID == "" {
		userID = show.UserID(auth.GenerateUserID())
	}
	seatID := c.Query("seatId")
	lastVersion, _ := strconv.ParseUint(c.Query("lastVersion"), 10, 64)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.container.Logger.Gateway().Error("websocket upgrade failed", "error", err.Error())
		return
	}

	client := messaging.NewClient(conn, h.container.Hub, h.container.Logger, userID, mode, lastVersion)

	h.container.Hub.Submit(conductor.Command{
		Type:      conductor.CmdJoin,
		UserID:    userID,
		SeatID:    seatID,
		Mode:      mode,
		Origin:    mode,
		Timestamp: time.Now(),
	})

	client.Run()
}

func bearerOrQueryToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	return c.Query("token")
}

// ControllerLogin exchanges the operator secret for a short-lived
// controller token.
func (h *GatewayHandlers) ControllerLogin(c *gin.Context) {
	var req struct {
		Secret string `json:"secret" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "secret is required"})
		return
	}

	if !h.validOperatorSecret(req.Secret) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid operator secret"})
		return
	}

	token, err := h.container.TokenIssuer.IssueControllerToken(config.ShowID)
	if err != nil {
		h.container.Logger.Auth().Error("failed to issue controller token", "error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token})
}

func (h *GatewayHandlers) validOperatorSecret(candidate string) bool {
	if config.OperatorSecretIsHashed {
		return auth.CheckSecret(config.OperatorSecret, candidate)
	}
	return candidate == config.OperatorSecret
}

// Healthz reports liveness and the current show version.
func (h *GatewayHandlers) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"showId":  config.ShowID,
		"version": h.container.Hub.CurrentVersion(),
	})
}

// Export returns the full authoritative state with its containers
// flattened to ordered arrays of entries, for operator backup or
// inspection (spec §4.5, §6 "Exported state format").
func (h *GatewayHandlers) Export(c *gin.Context) {
	c.JSON(http.StatusOK, store.ToSnapshot(h.container.Hub.CurrentState()))
}

// Import replaces the authoritative state via IMPORT_STATE, validating
// invariants before it takes effect (spec §4.3, §3, §6). The payload is
// the same ordered-array Snapshot format Export emits. IMPORT_STATE is
// controller-only, so the request must carry a valid controller token.
func (h *GatewayHandlers) Import(c *gin.Context) {
	if _, err := h.container.TokenIssuer.VerifyControllerToken(bearerOrQueryToken(c)); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired controller token"})
		return
	}

	var snap store.Snapshot
	if err := c.ShouldBindJSON(&snap); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed state payload"})
		return
	}
	imported := store.FromSnapshot(snap)

	err := h.container.Hub.SubmitAndWait(conductor.Command{
		Type:          conductor.CmdImportState,
		ImportedState: imported,
		Origin:        conductor.ModeController,
		Timestamp:     time.Now(),
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "imported"})
}

// ControllerView returns a one-shot snapshot of the controller dashboard,
// useful for a controller UI's initial paint before its websocket connects.
func (h *GatewayHandlers) ControllerView(c *gin.Context) {
	c.JSON(http.StatusOK, projection.Controller(h.container.Hub.CurrentState()))
}
