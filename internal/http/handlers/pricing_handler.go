// README: Pricing handlers: public quotes and admin configuration.
package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"transferhub/internal/modules/pricing"
	"transferhub/internal/modules/user"
)

type PricingHandler struct {
	pricing *pricing.Service
}

func NewPricingHandler(svc *pricing.Service) *PricingHandler {
	return &PricingHandler{pricing: svc}
}

// Quote serves GET /api/pricing/quote?km=12&category=economy.
func (h *PricingHandler) Quote(c *gin.Context) {
	km, err := strconv.ParseFloat(c.Query("km"), 64)
	if err != nil {
		writeError(c, http.StatusBadRequest, "km must be a number")
		return
	}
	cat := pricing.Category(c.DefaultQuery("category", string(pricing.CategoryEconomy)))
	q, err := h.pricing.Estimate(c.Request.Context(), km, cat)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, q)
}

func (h *PricingHandler) Config(c *gin.Context) {
	if !requireRole(c, user.RoleAdmin) {
		return
	}
	writeJSON(c, http.StatusOK, h.pricing.Snapshot())
}

func (h *PricingHandler) Update(c *gin.Context) {
	if !requireRole(c, user.RoleAdmin) {
		return
	}
	var cfg pricing.Config
	if err := c.ShouldBindJSON(&cfg); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	uid, _ := caller(c)
	out, err := h.pricing.Update(c.Request.Context(), cfg, uid)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, out)
}
