package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// getWeightLog returns weigh-ins for the authenticated user within [start, end].
// GET /api/weight-log?start=YYYY-MM-DD&end=YYYY-MM-DD. Both params required.
// Returns an empty array (not null) if no entries exist in the range.
func (h *Handler) getWeightLog(c *gin.Context) {
	entries, err := h.ledger.weights(c, c.GetInt("user_id"), c.Query("start"), c.Query("end"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

// upsertWeightEntry creates or updates the weigh-in for the given date.
// POST /api/weight-log. Body: { "date": "YYYY-MM-DD", "weight": 185.5 }.
// Date defaults to today; a weigh-in for today also updates the profile weight.
func (h *Handler) upsertWeightEntry(c *gin.Context) {
	var body struct {
		Date   string  `json:"date"`
		Weight float64 `json:"weight"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		apiError(c, http.StatusBadRequest, "invalid request body")
		return
	}

	entry, err := h.ledger.logWeight(c, c.GetInt("user_id"), body.Date, body.Weight)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, entry)
}
