package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// calculate runs the target pipeline on the profile in the body without
// storing anything. Height may be sent as height_ft + height_in instead.
// POST /api/calculate.
func (h *Handler) calculate(c *gin.Context) {
	var body calculateRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		apiError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.Units == "" {
		body.Units = unitsImperial
	}
	if body.HeightFt != nil || body.HeightIn != nil {
		if body.Height != 0 {
			respondError(c, invalid("height", "give either height or height_ft/height_in"))
			return
		}
		var ft, in float64
		if body.HeightFt != nil {
			ft = *body.HeightFt
		}
		if body.HeightIn != nil {
			in = *body.HeightIn
		}
		height, err := heightFromFeetInches(body.Units, ft, in)
		if err != nil {
			respondError(c, err)
			return
		}
		body.Height = height
	}

	calc, err := computeTargets(userProfile{
		Sex:           body.Sex,
		Age:           body.Age,
		Height:        body.Height,
		Weight:        body.Weight,
		Units:         body.Units,
		ActivityLevel: body.ActivityLevel,
		Goal:          body.Goal,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, calc)
}

// getProfile returns the authenticated user's profile.
// GET /api/profile.
func (h *Handler) getProfile(c *gin.Context) {
	p, err := h.ledger.getProfile(c, c.GetInt("user_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// patchProfile updates only the provided profile fields.
// PATCH /api/profile. Uses pointer fields in the request body to distinguish
// "not provided" from zero. When auto_targets is true after the update and the
// profile is complete, targets are recomputed and returned as "calculation".
func (h *Handler) patchProfile(c *gin.Context) {
	var body patchProfileRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		apiError(c, http.StatusBadRequest, "invalid request body")
		return
	}

	p, calc, err := h.ledger.updateProfile(c, c.GetInt("user_id"), body)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"profile": p, "calculation": calc})
}

// getTargets returns the stored targets and their provenance.
// GET /api/targets.
func (h *Handler) getTargets(c *gin.Context) {
	t, err := h.ledger.getTargets(c, c.GetInt("user_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

// putTargets stores manually entered targets, replacing whatever was there.
// PUT /api/targets. All four fields are required.
func (h *Handler) putTargets(c *gin.Context) {
	var body putTargetsRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		apiError(c, http.StatusBadRequest, "invalid request body")
		return
	}

	t, err := h.ledger.setManualTargets(c, c.GetInt("user_id"), body)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

// computeTargets derives targets from the stored profile and saves them.
// POST /api/targets/compute.
func (h *Handler) computeTargets(c *gin.Context) {
	calc, t, err := h.ledger.computeTargets(c, c.GetInt("user_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"calculation": calc, "targets": t})
}
