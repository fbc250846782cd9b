package adminapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/meshline/meshcore/internal/contact"
	"github.com/meshline/meshcore/internal/protocol"
	"github.com/meshline/meshcore/internal/queue"
)

func (s *Server) handleLogin(c *gin.Context) {
	var req protocol.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Username != s.cfg.Username || !checkPassword(req.Password, s.adminPasswordHash) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	token, expiresAt, err := generateToken(req.Username, s.cfg.JWTSecret)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "generate token failed"})
		return
	}
	c.JSON(http.StatusOK, protocol.LoginResponse{Token: token, ExpiresAt: expiresAt})
}

func (s *Server) handleIdentity(c *gin.Context) {
	id := s.node.Identity()
	c.JSON(http.StatusOK, gin.H{
		"address":    id.Address.String(),
		"public_key": id.PublicKeyHex(),
	})
}

func (s *Server) handleGetRelayConfig(c *gin.Context) {
	c.JSON(http.StatusOK, s.node.RelayConfig().GetConfigSummary())
}

func (s *Server) handleUpdateRelayConfig(c *gin.Context) {
	var req protocol.RelayConfigUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	cfg := s.node.RelayConfig()
	if req.Enabled != nil {
		if *req.Enabled {
			cfg.Enable()
		} else {
			cfg.Disable()
		}
	}
	if req.MaxRelayHops != nil {
		cfg.SetMaxRelayHops(*req.MaxRelayHops)
	}
	if req.BatteryThreshold != nil {
		cfg.SetBatteryThreshold(*req.BatteryThreshold)
	}
	c.JSON(http.StatusOK, cfg.GetConfigSummary())
}

func (s *Server) handleRelayStats(c *gin.Context) {
	stats := s.node.Relay().Statistics()
	c.JSON(http.StatusOK, gin.H{
		"total_relayed":    stats.TotalRelayed,
		"total_delivered":  stats.TotalDelivered,
		"total_dropped":    stats.TotalDropped,
		"relay_efficiency": stats.RelayEfficiency(),
		"drops_by_reason":  stats.DropsByReason,
	})
}

func (s *Server) handleQueueStats(c *gin.Context) {
	stats, err := s.node.Queue().Statistics(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) handleListContacts(c *gin.Context) {
	contacts := s.node.Contacts().List()
	views := make([]protocol.ContactView, 0, len(contacts))
	for _, ct := range contacts {
		views = append(views, protocol.ContactView{
			EphemeralID:   ct.EphemeralID,
			DisplayName:   ct.DisplayName,
			TrustStatus:   string(ct.TrustStatus),
			SecurityLevel: string(ct.SecurityLevel),
			SessionState:  string(ct.NoiseSessionState),
			FirstSeen:     ct.FirstSeen,
			LastSeen:      ct.LastSeen,
		})
	}
	c.JSON(http.StatusOK, views)
}

func (s *Server) handleGetContact(c *gin.Context) {
	ct, ok := s.node.Contacts().Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "contact not found"})
		return
	}
	c.JSON(http.StatusOK, protocol.ContactView{
		EphemeralID:   ct.EphemeralID,
		DisplayName:   ct.DisplayName,
		TrustStatus:   string(ct.TrustStatus),
		SecurityLevel: string(ct.SecurityLevel),
		SessionState:  string(ct.NoiseSessionState),
		FirstSeen:     ct.FirstSeen,
		LastSeen:      ct.LastSeen,
	})
}

func (s *Server) handleSetContactTrust(c *gin.Context) {
	var req struct {
		TrustStatus string `json:"trust_status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.node.Contacts().SetTrustStatus(c.Request.Context(), c.Param("id"), contact.TrustStatus(req.TrustStatus)); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleSendMessage(c *gin.Context) {
	var req struct {
		ChatID      string `json:"chat_id"`
		RecipientPK string `json:"recipient_public_key" binding:"required"`
		Content     []byte `json:"content" binding:"required"`
		Priority    int    `json:"priority"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	messageID, err := s.node.SendMessage(c.Request.Context(), req.ChatID, req.RecipientPK, req.Content, queue.Priority(req.Priority))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"message_id": messageID})
}
