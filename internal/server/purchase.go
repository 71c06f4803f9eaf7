package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	escrowdomain "github.com/smallbiznis/shoptok/internal/escrow/domain"
)

type createPurchaseRequest struct {
	ProductID int64 `json:"product_id"`
}

type updatePurchaseStatusRequest struct {
	Status string `json:"status"`
}

type resolveDisputeRequest struct {
	RefundToBuyer *bool `json:"refund_to_buyer"`
}

func (s *Server) CreatePurchase(c *gin.Context) {
	var req createPurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.escrowSvc.PurchaseProduct(c.Request.Context(), escrowdomain.PurchaseRequest{
		Buyer:     actorFrom(c),
		ProductID: req.ProductID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, s.resultResponse(resp))
}

func (s *Server) UpdatePurchaseStatus(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req updatePurchaseStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.escrowSvc.UpdatePurchaseStatus(c.Request.Context(), escrowdomain.UpdateStatusRequest{
		Caller:     actorFrom(c),
		PurchaseID: id,
		Status:     escrowdomain.PurchaseStatus(strings.TrimSpace(req.Status)),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, s.resultResponse(resp))
}

func (s *Server) ResolveDispute(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req resolveDisputeRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.RefundToBuyer == nil {
		AbortWithError(c, newValidationError("refund_to_buyer", "required", "refund_to_buyer is required"))
		return
	}

	resp, err := s.escrowSvc.ResolveDispute(c.Request.Context(), escrowdomain.ResolveDisputeRequest{
		Admin:         actorFrom(c),
		PurchaseID:    id,
		RefundToBuyer: *req.RefundToBuyer,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, s.resultResponse(resp))
}

func (s *Server) GetPurchaseByID(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.escrowSvc.GetPurchase(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": s.purchaseView(*resp, s.clock.Now())})
}

func (s *Server) ListPurchases(c *gin.Context) {
	var query struct {
		Buyer  string `form:"buyer"`
		Seller string `form:"seller"`
		Status string `form:"status"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	page, err := bindPage(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.escrowSvc.ListPurchases(c.Request.Context(), escrowdomain.ListRequest{
		Buyer:  strings.TrimSpace(query.Buyer),
		Seller: strings.TrimSpace(query.Seller),
		Status: escrowdomain.PurchaseStatus(strings.TrimSpace(query.Status)),
		Page:   page,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": s.purchaseViews(resp, s.clock.Now())})
}

func (s *Server) resultResponse(resp *escrowdomain.Result) gin.H {
	return gin.H{
		"data":            s.purchaseView(resp.Purchase, s.clock.Now()),
		"operation":       resp.Operation,
		"previous_status": resp.PreviousStatus,
		"moves":           resp.Moves,
	}
}
