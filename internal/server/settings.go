package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	escrowdomain "github.com/smallbiznis/shoptok/internal/escrow/domain"
)

type updatePlatformFeeRequest struct {
	PlatformFeeBps *uint32 `json:"platform_fee_bps"`
}

type updateEscrowPeriodRequest struct {
	EscrowPeriodSeconds *int64 `json:"escrow_period_seconds"`
}

type settingsView struct {
	escrowdomain.Settings
	EscrowPeriod string `json:"escrow_period"`
	Currency     string `json:"currency"`
}

func (s *Server) settingsView(settings escrowdomain.Settings) settingsView {
	return settingsView{
		Settings:     settings,
		EscrowPeriod: settings.EscrowPeriod().String(),
		Currency:     s.cfg.Settlement.Currency,
	}
}

func (s *Server) GetSettings(c *gin.Context) {
	resp, err := s.escrowSvc.GetSettings(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": s.settingsView(*resp)})
}

func (s *Server) UpdatePlatformFee(c *gin.Context) {
	var req updatePlatformFeeRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.PlatformFeeBps == nil {
		AbortWithError(c, newValidationError("platform_fee_bps", "required", "platform_fee_bps is required"))
		return
	}

	resp, err := s.escrowSvc.UpdatePlatformFee(c.Request.Context(), escrowdomain.UpdatePlatformFeeRequest{
		Admin:  actorFrom(c),
		FeeBps: *req.PlatformFeeBps,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": s.settingsView(resp.Settings)})
}

func (s *Server) UpdateEscrowPeriod(c *gin.Context) {
	var req updateEscrowPeriodRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.EscrowPeriodSeconds == nil {
		AbortWithError(c, newValidationError("escrow_period_seconds", "required", "escrow_period_seconds is required"))
		return
	}
	seconds := *req.EscrowPeriodSeconds
	if seconds < 0 || seconds > escrowdomain.MaxEscrowPeriodSeconds {
		AbortWithError(c, newValidationError("escrow_period_seconds", "out_of_range",
			fmt.Sprintf("escrow_period_seconds must be between 0 and %d", escrowdomain.MaxEscrowPeriodSeconds)))
		return
	}

	resp, err := s.escrowSvc.UpdateEscrowPeriod(c.Request.Context(), escrowdomain.UpdateEscrowPeriodRequest{
		Admin:  actorFrom(c),
		Period: time.Duration(seconds) * time.Second,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": s.settingsView(resp.Settings)})
}
