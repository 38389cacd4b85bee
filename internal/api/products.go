package api

import (
	"net/http"
	"strconv"

	"storefront/internal/models"

	"github.com/gin-gonic/gin"
)

// productView adds the derived storefront fields to a product
type productView struct {
	models.Product
	OnSale             bool   `json:"onSale"`
	DiscountPercentage int    `json:"discountPercentage"`
	Availability       string `json:"availability"`
}

func newProductView(p models.Product) productView {
	return productView{
		Product:            p,
		OnSale:             p.OnSale(),
		DiscountPercentage: p.DiscountPercentage(),
		Availability:       p.Availability(),
	}
}

func productPage(page models.Page[models.Product]) models.Page[productView] {
	views := make([]productView, 0, len(page.Docs))
	for _, p := range page.Docs {
		views = append(views, newProductView(p))
	}
	return models.NewPage(views, page.TotalDocs, page.Page, page.Limit)
}

func productQuery(c *gin.Context) models.ProductQuery {
	featured, _ := strconv.ParseBool(c.Query("featured"))
	return models.ProductQuery{
		Page:      queryInt(c, "page"),
		Limit:     queryInt(c, "limit"),
		Featured:  featured,
		Search:    c.Query("q"),
		SortBy:    c.DefaultQuery("sortBy", "createdAt"),
		SortOrder: c.DefaultQuery("sortOrder", "desc"),
	}
}

func (h *Handler) listProducts(c *gin.Context) {
	q := productQuery(c)
	q.Search = ""

	page, err := h.products.ListProducts(c.Request.Context(), q)
	if err != nil {
		h.fail(c, err, "Failed to fetch products")
		return
	}
	c.JSON(http.StatusOK, productPage(page))
}

func (h *Handler) searchProducts(c *gin.Context) {
	page, err := h.products.SearchProducts(c.Request.Context(), productQuery(c))
	if err != nil {
		h.fail(c, err, "Failed to search products")
		return
	}
	c.JSON(http.StatusOK, productPage(page))
}

// getProduct resolves numeric paths as ids and anything else as a slug
func (h *Handler) getProduct(c *gin.Context) {
	key := c.Param("idOrSlug")

	var (
		product *models.Product
		err     error
	)
	if id, convErr := strconv.ParseInt(key, 10, 64); convErr == nil {
		product, err = h.products.GetProduct(c.Request.Context(), id)
	} else {
		product, err = h.products.GetProductBySlug(c.Request.Context(), key)
	}
	if err != nil {
		h.fail(c, err, "Failed to fetch product")
		return
	}
	c.JSON(http.StatusOK, newProductView(*product))
}
