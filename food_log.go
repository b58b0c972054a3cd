package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// getDailyLedger returns entries (newest first), totals, targets and remaining
// for one day.
// GET /api/ledger/daily?date=YYYY-MM-DD (defaults to today in the user's timezone).
func (h *Handler) getDailyLedger(c *gin.Context) {
	userID := c.GetInt("user_id")
	date, err := h.ledger.resolveDate(c, userID, c.Query("date"))
	if err != nil {
		respondError(c, err)
		return
	}

	day, err := h.ledger.getDay(c, userID, date)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, day)
}

// getDailyTotals returns just the summed macros for one day; all zeros when
// nothing is logged.
// GET /api/ledger/totals?date=YYYY-MM-DD.
func (h *Handler) getDailyTotals(c *gin.Context) {
	userID := c.GetInt("user_id")
	date, err := h.ledger.resolveDate(c, userID, c.Query("date"))
	if err != nil {
		respondError(c, err)
		return
	}

	totals, err := h.ledger.getTotals(c, userID, date)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"date": date, "totals": totals})
}

// getHistory returns per-day totals for an arbitrary date range.
// GET /api/ledger/history?start=YYYY-MM-DD&end=YYYY-MM-DD. Both params required.
// Only days with logged entries are returned (no gap-filling).
func (h *Handler) getHistory(c *gin.Context) {
	userID := c.GetInt("user_id")

	rows, err := h.ledger.history(c, userID, c.Query("start"), c.Query("end"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

// createEntry logs a food entry. Macro fields in the body are per serving.
// POST /api/ledger/entries. Defaults date to today in the user's timezone.
// Responds with the stored entry and the re-derived day.
func (h *Handler) createEntry(c *gin.Context) {
	userID := c.GetInt("user_id")

	var body createFoodLogEntryRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		apiError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	date, err := h.ledger.resolveDate(c, userID, body.Date)
	if err != nil {
		respondError(c, err)
		return
	}

	entry, day, err := h.ledger.addEntry(c, userID, date, body)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"entry": entry, "day": day})
}

// deleteEntry removes an entry from a day. Deleting an id that isn't there
// still succeeds and returns the current day.
// DELETE /api/ledger/entries/:id?date=YYYY-MM-DD.
func (h *Handler) deleteEntry(c *gin.Context) {
	userID := c.GetInt("user_id")
	date, err := h.ledger.resolveDate(c, userID, c.Query("date"))
	if err != nil {
		respondError(c, err)
		return
	}

	day, err := h.ledger.removeEntry(c, userID, date, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, day)
}
