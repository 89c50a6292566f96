package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/you/otpgate/domain"
)

// OTPHandlers handles OTP send and verify requests
type OTPHandlers struct {
	otpSvc domain.OTPService
}

// NewOTPHandlers creates new OTP handlers
func NewOTPHandlers(otpSvc domain.OTPService) *OTPHandlers {
	return &OTPHandlers{otpSvc: otpSvc}
}

// SendOTPRequest represents an OTP send request
type SendOTPRequest struct {
	UserID      looseString `json:"userId"`
	CountryCode looseString `json:"countryCode"`
	PhoneNumber looseString `json:"phoneNumber"`
}

// VerifyOTPRequest represents an OTP verification request
type VerifyOTPRequest struct {
	UserID      looseString     `json:"userId"`
	CountryCode looseString     `json:"countryCode"`
	PhoneNumber looseString     `json:"phoneNumber"`
	RequestID   looseString     `json:"requestId"`
	OTP         looseString     `json:"otp"`
	Email       json.RawMessage `json:"email"`
	FullName    json.RawMessage `json:"fullName"`
	Address     json.RawMessage `json:"address"`
	ChurchName  json.RawMessage `json:"churchName"`
}

// Health reports liveness
func (h *OTPHandlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Send handles OTP generation and dispatch
func (h *OTPHandlers) Send(c *gin.Context) {
	var req SendOTPRequest
	if !bindBody(c, &req) || !assertIdentity(c, req.UserID.String()) {
		return
	}

	target := domain.NewPhoneTarget(req.UserID.String(), req.CountryCode.String(), req.PhoneNumber.String())
	issued, err := h.otpSvc.Send(c.Request.Context(), target)
	if err != nil {
		h.sendError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ok":        true,
		"requestId": issued.RequestID,
		"expiresAt": domain.ToEpochMillis(issued.ExpiresAt),
	})
}

func (h *OTPHandlers) sendError(c *gin.Context, err error) {
	var rateErr *domain.RateLimitError
	var dispatchErr *domain.DispatchError

	switch {
	case errors.Is(err, domain.ErrInvalidPayload):
		respondError(c, http.StatusBadRequest, MsgInvalidPayload)
	case errors.Is(err, domain.ErrPhoneLinkedElsewhere):
		respondError(c, http.StatusConflict, domain.PhoneLinkedMessage)
	case errors.As(err, &rateErr):
		c.JSON(http.StatusTooManyRequests, gin.H{
			"ok":           false,
			"error":        "Please wait before requesting another OTP.",
			"retryAfterMs": rateErr.RetryAfter.Milliseconds(),
		})
	case errors.As(err, &dispatchErr):
		status := http.StatusBadGateway
		if dispatchErr.RateLimited() {
			status = http.StatusTooManyRequests
		}
		respondError(c, status, dispatchMessage(dispatchErr))
	default:
		zerolog.Ctx(c.Request.Context()).Err(err).Msg("otp send failed")
		respondError(c, http.StatusInternalServerError, MsgServerError)
	}
}

func dispatchMessage(err *domain.DispatchError) string {
	switch err.Kind {
	case domain.DispatchTimeout:
		return "OTP delivery timed out."
	case domain.DispatchRejected:
		return fmt.Sprintf("OTP delivery failed with HTTP %d.", err.Status)
	default:
		return "Failed to dispatch OTP."
	}
}

// Verify handles OTP verification
func (h *OTPHandlers) Verify(c *gin.Context) {
	var req VerifyOTPRequest
	if !bindBody(c, &req) || !assertIdentity(c, req.UserID.String()) {
		return
	}

	result, err := h.otpSvc.Verify(c.Request.Context(), domain.VerifyRequest{
		Target:    domain.NewPhoneTarget(req.UserID.String(), req.CountryCode.String(), req.PhoneNumber.String()),
		RequestID: req.RequestID.String(),
		Code:      req.OTP.String(),
		Contact: domain.ContactFields{
			Email:      optional(req.Email),
			FullName:   optional(req.FullName),
			Address:    optional(req.Address),
			ChurchName: optional(req.ChurchName),
		},
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidPayload):
			respondError(c, http.StatusBadRequest, MsgInvalidPayload)
		case errors.Is(err, domain.ErrOTPNotFound):
			respondError(c, http.StatusNotFound, "OTP request not found.")
		case errors.Is(err, domain.ErrOTPExpired):
			respondError(c, http.StatusGone, "OTP expired.")
		case errors.Is(err, domain.ErrOTPMaxAttempts):
			respondError(c, http.StatusTooManyRequests, "Maximum OTP attempts exceeded.")
		case errors.Is(err, domain.ErrOTPInvalid):
			respondError(c, http.StatusUnauthorized, "Invalid OTP.")
		default:
			zerolog.Ctx(c.Request.Context()).Err(err).Msg("otp verification failed")
			respondError(c, http.StatusInternalServerError, MsgServerError)
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ok":              true,
		"verified":        true,
		"userId":          result.UserID,
		"fullPhoneNumber": result.FullPhoneNumber,
		"persistence":     result.Persistence,
	})
}
