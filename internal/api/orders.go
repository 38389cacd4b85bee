package api

import (
	"net/http"
	"strconv"

	"storefront/internal/service"

	"github.com/gin-gonic/gin"
)

const idempotencyHeader = "Idempotency-Key"

func (h *Handler) createOrder(c *gin.Context) {
	var req service.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	order, created, err := h.orders.CreateOrder(c.Request.Context(), &req, c.GetHeader(idempotencyHeader))
	if err != nil {
		h.fail(c, err, "Failed to create order")
		return
	}

	status := http.StatusCreated
	if !created {
		status = http.StatusOK
	}
	c.JSON(status, order)
}

// listOrders accepts the customer filter as ?customer= or ?where[customer][equals]=
func (h *Handler) listOrders(c *gin.Context) {
	param := "customer"
	if c.Query(param) == "" && c.Query("where[customer][equals]") != "" {
		param = "where[customer][equals]"
	}
	customerID, ok := queryID(c, param)
	if !ok {
		return
	}

	page, err := h.orders.ListOrders(c.Request.Context(), customerID, queryInt(c, "page"), queryInt(c, "limit"))
	if err != nil {
		h.fail(c, err, "Failed to fetch orders")
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *Handler) getOrder(c *gin.Context) {
	orderID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		badRequest(c, "Invalid order ID", nil)
		return
	}

	order, err := h.orders.GetOrder(c.Request.Context(), orderID)
	if err != nil {
		h.fail(c, err, "Failed to fetch order")
		return
	}
	c.JSON(http.StatusOK, order)
}
