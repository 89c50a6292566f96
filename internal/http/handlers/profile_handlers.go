package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/you/otpgate/domain"
)

// ProfileHandlers handles launch preference and operator list requests
type ProfileHandlers struct {
	profileSvc domain.ProfileService
}

// NewProfileHandlers creates new profile handlers
func NewProfileHandlers(profileSvc domain.ProfileService) *ProfileHandlers {
	return &ProfileHandlers{profileSvc: profileSvc}
}

// AdminListRequest represents an operator list request
type AdminListRequest struct {
	RequesterUserID looseString `json:"requesterUserId"`
	Limit           looseLimit  `json:"limit"`
}

// LaunchNotifyRequest represents a launch preference read or write
type LaunchNotifyRequest struct {
	UserID            looseString     `json:"userId"`
	LaunchNotifyOptIn json.RawMessage `json:"launchNotifyOptIn"`
}

// AdminList returns collected profiles to allow-listed operators
func (h *ProfileHandlers) AdminList(c *gin.Context) {
	var req AdminListRequest
	if !bindBody(c, &req) || !assertIdentity(c, req.RequesterUserID.String()) {
		return
	}

	// A missing limit is passed as 0 and resolved to the default
	rows, err := h.profileSvc.ListProfilesForOperator(c.Request.Context(), req.RequesterUserID.String(), req.Limit.Int())
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrMissingUserID):
			respondError(c, http.StatusBadRequest, MsgMissingRequester)
		case errors.Is(err, domain.ErrForbidden):
			respondError(c, http.StatusForbidden, MsgForbidden)
		case errors.Is(err, domain.ErrProfileStoreUnconfigured):
			respondError(c, http.StatusServiceUnavailable, "Convex is not configured.")
		case errors.Is(err, domain.ErrBackendCredentialMissing):
			respondError(c, http.StatusServiceUnavailable, "Backend credential is not configured.")
		case errors.Is(err, domain.ErrProfileStoreFailure):
			respondError(c, http.StatusBadGateway, "Failed to load private profiles.")
		default:
			zerolog.Ctx(c.Request.Context()).Err(err).Msg("admin list failed")
			respondError(c, http.StatusInternalServerError, MsgServerError)
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "rows": rows})
}

// GetLaunchNotify returns the caller's launch preference
func (h *ProfileHandlers) GetLaunchNotify(c *gin.Context) {
	var req LaunchNotifyRequest
	if !bindBody(c, &req) || !assertIdentity(c, req.UserID.String()) {
		return
	}

	pref, err := h.profileSvc.GetLaunchNotify(c.Request.Context(), req.UserID.String())
	if err != nil {
		if errors.Is(err, domain.ErrMissingUserID) {
			respondError(c, http.StatusBadRequest, MsgMissingUserID)
			return
		}
		zerolog.Ctx(c.Request.Context()).Err(err).Msg("failed to get launch notify preference")
		respondError(c, http.StatusBadGateway, "Failed to load notification preference.")
		return
	}

	resp := gin.H{"ok": true, "launchNotifyOptIn": pref.OptIn}
	if pref.UpdatedAt != nil {
		resp["launchNotifyUpdatedAt"] = domain.ToEpochMillis(*pref.UpdatedAt)
	}
	c.JSON(http.StatusOK, resp)
}

// SetLaunchNotify stores the caller's launch preference
func (h *ProfileHandlers) SetLaunchNotify(c *gin.Context) {
	var req LaunchNotifyRequest
	if !bindBody(c, &req) || !assertIdentity(c, req.UserID.String()) {
		return
	}

	optIn := truthy(req.LaunchNotifyOptIn)
	if err := h.profileSvc.SetLaunchNotify(c.Request.Context(), req.UserID.String(), optIn); err != nil {
		if errors.Is(err, domain.ErrMissingUserID) {
			respondError(c, http.StatusBadRequest, MsgMissingUserID)
			return
		}
		zerolog.Ctx(c.Request.Context()).Err(err).Msg("failed to set launch notify preference")
		respondError(c, http.StatusBadGateway, "Failed to save notification preference.")
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "launchNotifyOptIn": optIn})
}
