// README: Ledger handlers: payouts and transaction history.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"transferhub/internal/modules/settlement"
	"transferhub/internal/modules/user"
	"transferhub/internal/types"
)

type LedgerHandler struct {
	settlement *settlement.Service
	currency   string
}

// NewLedgerHandler takes the platform currency, used when a payout request
// does not name one.
func NewLedgerHandler(svc *settlement.Service, currency string) *LedgerHandler {
	return &LedgerHandler{settlement: svc, currency: currency}
}

type payoutReq struct {
	UserID    string  `json:"user_id"`
	Amount    float64 `json:"amount"`
	Currency  string  `json:"currency"`
	Reference string  `json:"reference"`
}

func (h *LedgerHandler) Payout(c *gin.Context) {
	if !requireRole(c, user.RoleAdmin) {
		return
	}
	var req payoutReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if !isValidID(req.UserID) {
		writeError(c, http.StatusBadRequest, "invalid user_id")
		return
	}
	currency := req.Currency
	if currency == "" {
		currency = h.currency
	}
	tx, err := h.settlement.Payout(c.Request.Context(), settlement.PayoutCommand{
		UserID:    types.ID(req.UserID),
		Amount:    types.FromFloat(req.Amount, currency),
		Reference: req.Reference,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, tx)
}

// UserTransactions is readable by the user themself and by admins.
func (h *LedgerHandler) UserTransactions(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	uid, role := caller(c)
	if role != user.RoleAdmin && uid != id {
		writeError(c, http.StatusForbidden, "forbidden")
		return
	}
	txs, err := h.settlement.History(c.Request.Context(), id)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"transactions": txs})
}

func (h *LedgerHandler) JobTransactions(c *gin.Context) {
	if !requireRole(c, user.RoleAdmin) {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	txs, err := h.settlement.JobTransactions(c.Request.Context(), id)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"transactions": txs})
}
