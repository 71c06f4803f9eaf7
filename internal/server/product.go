package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	catalogdomain "github.com/smallbiznis/shoptok/internal/catalog/domain"
)

type createProductRequest struct {
	Price       int64  `json:"price"`
	MetadataRef string `json:"metadata_ref"`
}

type batchCreateProductsRequest struct {
	Prices       []int64  `json:"prices"`
	MetadataRefs []string `json:"metadata_refs"`
}

type updateProductRequest struct {
	Price       *int64  `json:"price"`
	Active      *bool   `json:"active"`
	MetadataRef *string `json:"metadata_ref"`
}

func (s *Server) CreateProduct(c *gin.Context) {
	var req createProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.catalogSvc.ListProduct(c.Request.Context(), catalogdomain.ListProductRequest{
		Seller:      actorFrom(c),
		Price:       req.Price,
		MetadataRef: strings.TrimSpace(req.MetadataRef),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": s.productView(resp.Products[0])})
}

func (s *Server) BatchCreateProducts(c *gin.Context) {
	var req batchCreateProductsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.catalogSvc.BatchListProduct(c.Request.Context(), catalogdomain.BatchListProductRequest{
		Seller:       actorFrom(c),
		Prices:       req.Prices,
		MetadataRefs: req.MetadataRefs,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"data":        s.productViews(resp.Products),
		"product_ids": resp.ProductIDs,
	})
}

func (s *Server) UpdateProduct(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req updateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.catalogSvc.UpdateProduct(c.Request.Context(), catalogdomain.UpdateProductRequest{
		Caller:      actorFrom(c),
		ProductID:   id,
		Price:       req.Price,
		Active:      req.Active,
		MetadataRef: req.MetadataRef,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": s.productView(resp.Products[0])})
}

func (s *Server) GetProductByID(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.catalogSvc.GetProduct(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": s.productView(*resp)})
}

func (s *Server) ListProducts(c *gin.Context) {
	var query struct {
		Seller string `form:"seller"`
		Active string `form:"active"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	active, err := parseOptionalBool(query.Active)
	if err != nil {
		AbortWithError(c, newValidationError("active", "invalid_active", "invalid active"))
		return
	}
	page, err := bindPage(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.catalogSvc.ListProducts(c.Request.Context(), catalogdomain.ListRequest{
		Seller: strings.TrimSpace(query.Seller),
		Active: active,
		Page:   page,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": s.productViews(resp)})
}
