package api

import (
	"context"
	"net/http"

	"marketplace-backoffice/internal/models"
	"marketplace-backoffice/internal/service"

	"github.com/gin-gonic/gin"
)

func (h *Handler) searchProducts(c *gin.Context) {
	priceMin, err := queryInt64(c, "price_min")
	if err != nil {
		writeError(c, err)
		return
	}
	priceMax, err := queryInt64(c, "price_max")
	if err != nil {
		writeError(c, err)
		return
	}

	products, err := h.svc.Products.SearchProducts(c.Request.Context(), c.Query("name"), priceMin, priceMax)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, products)
}

func (h *Handler) getProduct(c *gin.Context) {
	id, ok := pathID(c, "product_id")
	if !ok {
		return
	}

	product, err := h.svc.Products.GetProduct(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func (h *Handler) createProduct(c *gin.Context) {
	var req service.ProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}

	product, err := h.svc.Products.CreateProduct(c.Request.Context(), &req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, product)
}

func (h *Handler) replaceProduct(c *gin.Context) {
	h.updateProduct(c, h.svc.Products.ReplaceProduct)
}

func (h *Handler) patchProduct(c *gin.Context) {
	h.updateProduct(c, h.svc.Products.PatchProduct)
}

func (h *Handler) updateProduct(c *gin.Context, apply func(ctx context.Context, id int64, req *service.ProductRequest) (*models.Product, error)) {
	id, ok := pathID(c, "product_id")
	if !ok {
		return
	}

	var req service.ProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}

	product, err := apply(c.Request.Context(), id, &req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func (h *Handler) deleteProduct(c *gin.Context) {
	id, ok := pathID(c, "product_id")
	if !ok {
		return
	}

	if err := h.svc.Products.DeleteProduct(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) searchAddresses(c *gin.Context) {
	cityID, err := queryInt64(c, "city_id")
	if err != nil {
		writeError(c, err)
		return
	}
	var city int64
	if cityID != nil {
		city = *cityID
	}

	addresses, err := h.svc.Addresses.SearchAddresses(c.Request.Context(), city, c.Query("street"), c.Query("cep"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, addresses)
}

// createAddress registers an address; an identical one is answered with 200
func (h *Handler) createAddress(c *gin.Context) {
	stateID, ok := pathID(c, "state_id")
	if !ok {
		return
	}
	cityID, ok := pathID(c, "city_id")
	if !ok {
		return
	}

	var req service.AddressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}

	address, created, err := h.svc.Addresses.CreateAddress(c.Request.Context(), stateID, cityID, &req)
	if err != nil {
		writeError(c, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, address)
}

func (h *Handler) patchAddress(c *gin.Context) {
	id, ok := pathID(c, "address_id")
	if !ok {
		return
	}

	var req service.AddressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}

	address, err := h.svc.Addresses.PatchAddress(c.Request.Context(), id, &req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, address)
}

func (h *Handler) deleteAddress(c *gin.Context) {
	id, ok := pathID(c, "address_id")
	if !ok {
		return
	}

	if err := h.svc.Addresses.DeleteAddress(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) listStates(c *gin.Context) {
	states, err := h.svc.States.ListStates(c.Request.Context(), c.Query("name"), c.Query("initials"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, states)
}

func (h *Handler) getState(c *gin.Context) {
	id, ok := pathID(c, "state_id")
	if !ok {
		return
	}

	state, err := h.svc.States.GetState(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

func (h *Handler) listCities(c *gin.Context) {
	id, ok := pathID(c, "state_id")
	if !ok {
		return
	}

	cities, err := h.svc.States.ListCities(c.Request.Context(), id, c.Query("name"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cities)
}
