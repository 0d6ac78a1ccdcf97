package api

import (
	"net/http"

	"marketplace-backoffice/internal/service"

	"github.com/gin-gonic/gin"
)

// createSale handles sale creation for the seller in the path
func (h *Handler) createSale(c *gin.Context) {
	sellerID, ok := pathID(c, "user_id")
	if !ok {
		return
	}

	var req service.CreateSaleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}
	req.SellerID = sellerID
	req.IdempotencyKey = c.GetHeader("Idempotency-Key")

	resp, err := h.svc.Sales.CreateSaleWithLineItem(c.Request.Context(), &req)
	if err != nil {
		writeError(c, err)
		return
	}

	status := http.StatusCreated
	if resp.Replayed {
		status = http.StatusOK
	}
	c.JSON(status, resp)
}

func (h *Handler) listSales(c *gin.Context) {
	sales, err := h.svc.Sales.ListSales(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sales)
}

func (h *Handler) getSale(c *gin.Context) {
	saleID, ok := pathID(c, "sale_id")
	if !ok {
		return
	}

	sale, err := h.svc.Sales.GetSale(c.Request.Context(), saleID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sale)
}

// listBuys lists the purchases of the user in the path
func (h *Handler) listBuys(c *gin.Context) {
	buyerID, ok := pathID(c, "user_id")
	if !ok {
		return
	}

	sales, err := h.svc.Sales.ListSalesByBuyer(c.Request.Context(), buyerID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sales)
}

func (h *Handler) updateLineItem(c *gin.Context) {
	saleID, ok := pathID(c, "sale_id")
	if !ok {
		return
	}
	productID, ok := pathID(c, "product_id")
	if !ok {
		return
	}

	var req service.UpdateLineItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}

	item, err := h.svc.Sales.UpdateLineItem(c.Request.Context(), saleID, productID, &req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

// scheduleDelivery books the delivery of the sale in the path
func (h *Handler) scheduleDelivery(c *gin.Context) {
	saleID, ok := pathID(c, "sale_id")
	if !ok {
		return
	}

	var req service.ScheduleDeliveryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}
	req.SaleID = saleID

	delivery, err := h.svc.Deliveries.ScheduleDelivery(c.Request.Context(), &req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"delivery_id": delivery.ID, "delivery": delivery})
}

func (h *Handler) getDelivery(c *gin.Context) {
	saleID, ok := pathID(c, "sale_id")
	if !ok {
		return
	}

	delivery, err := h.svc.Deliveries.GetDelivery(c.Request.Context(), saleID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, delivery)
}
