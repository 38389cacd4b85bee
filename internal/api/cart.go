package api

import (
	"net/http"
	"strconv"

	"storefront/internal/models"

	"github.com/gin-gonic/gin"
)

// cartRequest is the body of POST and PATCH /cart. productId accepts a
// bare id or a product object.
type cartRequest struct {
	UserID    int64             `json:"userId"`
	ProductID models.ProductRef `json:"productId"`
	Quantity  *int              `json:"quantity"`
}

func (h *Handler) getCart(c *gin.Context) {
	userID, ok := queryID(c, "userId")
	if !ok {
		return
	}

	cart, err := h.carts.GetOrCreate(c.Request.Context(), userID)
	if err != nil {
		h.fail(c, err, "Failed to fetch cart")
		return
	}

	if depth, _ := strconv.Atoi(c.Query("depth")); depth > 0 {
		cart, err = h.carts.Expand(c.Request.Context(), cart)
		if err != nil {
			h.fail(c, err, "Failed to fetch cart")
			return
		}
	}

	c.JSON(http.StatusOK, cart)
}

func (h *Handler) addToCart(c *gin.Context) {
	var req cartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	quantity := 1
	if req.Quantity != nil {
		quantity = *req.Quantity
	}

	cart, err := h.carts.AddItem(c.Request.Context(), req.UserID, req.ProductID.ID(), quantity)
	if err != nil {
		h.fail(c, err, "Failed to add item to cart")
		return
	}
	c.JSON(http.StatusOK, cart)
}

func (h *Handler) updateCartItem(c *gin.Context) {
	var req cartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	cart, err := h.carts.UpdateItem(c.Request.Context(), req.UserID, req.ProductID.ID(), req.Quantity)
	if err != nil {
		h.fail(c, err, "Failed to update cart item")
		return
	}
	c.JSON(http.StatusOK, cart)
}

// removeFromCart drops one line, or empties the cart when no productId is given
func (h *Handler) removeFromCart(c *gin.Context) {
	userID, ok := queryID(c, "userId")
	if !ok {
		return
	}

	var (
		cart *models.Cart
		err  error
	)
	if c.Query("productId") == "" {
		cart, err = h.carts.Clear(c.Request.Context(), userID)
	} else {
		productID, ok := queryID(c, "productId")
		if !ok {
			return
		}
		cart, err = h.carts.RemoveItem(c.Request.Context(), userID, productID)
	}
	if err != nil {
		h.fail(c, err, "Failed to remove item from cart")
		return
	}
	c.JSON(http.StatusOK, cart)
}

// queryID parses an optional numeric query parameter. A missing value is
// returned as 0 so the service reports it; a malformed one is rejected here.
func queryID(c *gin.Context, key string) (int64, bool) {
	raw := c.Query(key)
	if raw == "" {
		return 0, true
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		badRequest(c, "Invalid "+key, err)
		return 0, false
	}
	return id, true
}

func queryInt(c *gin.Context, key string) int {
	n, _ := strconv.Atoi(c.Query(key))
	return n
}
