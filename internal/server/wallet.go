package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

type depositRequest struct {
	Amount int64 `json:"amount"`
}

// Deposit funds the caller's own wallet. Only the owner may fund it.
func (s *Server) Deposit(c *gin.Context) {
	owner := strings.TrimSpace(c.Param("owner"))
	if owner != actorFrom(c) {
		AbortWithError(c, ErrForbidden)
		return
	}

	var req depositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	account, err := s.ledgerSvc.Deposit(c.Request.Context(), owner, req.Amount)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"owner":     account.Owner,
		"available": s.money(account.Available),
	}})
}

func (s *Server) GetWallet(c *gin.Context) {
	owner := strings.TrimSpace(c.Param("owner"))
	balance, err := s.ledgerSvc.Balance(c.Request.Context(), owner)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"owner":     owner,
		"available": s.money(balance),
	}})
}

func (s *Server) EscrowSummary(c *gin.Context) {
	summary, err := s.escrowSvc.Summary(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"custody_account":    summary.CustodyAccount,
		"custody_balance":    s.money(summary.CustodyBalance),
		"outstanding_amount": s.money(summary.OutstandingAmount),
		"open_purchases":     summary.OpenPurchases,
		"balanced":           summary.Balanced,
	}})
}
