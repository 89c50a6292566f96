package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/you/otpgate/domain"
	"github.com/you/otpgate/internal/http/middleware"
)

// Client visible messages
const (
	MsgInvalidPayload   = "Invalid payload."
	MsgPayloadTooLarge  = "Payload too large."
	MsgServerError      = "Server error"
	MsgNotFound         = "Not found"
	MsgForbidden        = "Forbidden."
	MsgMissingUserID    = "Missing userId."
	MsgMissingRequester = "Missing requesterUserId."
)

// looseString accepts JSON strings, numbers and booleans and trims the result.
// null and absent fields decode to "".
type looseString string

func (s *looseString) UnmarshalJSON(data []byte) error {
	var v interface{}
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return err
	}
	switch t := v.(type) {
	case nil:
		*s = ""
	case string:
		*s = looseString(strings.TrimSpace(t))
	case json.Number:
		*s = looseString(t.String())
	case bool:
		*s = looseString(strconv.FormatBool(t))
	default:
		return errors.New("expected a scalar value")
	}
	return nil
}

func (s looseString) String() string { return string(s) }

// maxRequestedLimit caps a requested limit before integer conversion; the service
// applies the real bound.
const maxRequestedLimit = math.MaxInt32

// looseLimit decodes a numeric limit from a number, numeric string or boolean.
// Absent, null and non-finite values leave it unset.
type looseLimit struct {
	value float64
	set   bool
}

func (l *looseLimit) UnmarshalJSON(data []byte) error {
	var v interface{}
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return err
	}

	var f float64
	switch t := v.(type) {
	case json.Number:
		parsed, err := strconv.ParseFloat(t.String(), 64)
		if err != nil {
			return nil
		}
		f = parsed
	case string:
		s := strings.TrimSpace(t)
		if s != "" {
			parsed, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil
			}
			f = parsed
		}
	case bool:
		if t {
			f = 1
		}
	default:
		return nil
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	l.value, l.set = f, true
	return nil
}

// Int returns the requested limit, at least 1, or 0 when none was given
func (l looseLimit) Int() int {
	if !l.set {
		return 0
	}
	v := math.Trunc(l.value)
	if v < 1 {
		return 1
	}
	if v > maxRequestedLimit {
		return maxRequestedLimit
	}
	return int(v)
}

// optional returns nil for fields that were absent or not strings
func optional(raw json.RawMessage) *string {
	if len(raw) == 0 {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil
	}
	s = strings.TrimSpace(s)
	return &s
}

// truthy applies JavaScript-style truthiness to a decoded JSON value
func truthy(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return false
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return false
	}
	switch t := v.(type) {
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		return t != ""
	case nil:
		return false
	default:
		return true
	}
}

// bindBody decodes the JSON body into dst. An empty body decodes as {}.
// It writes the error response and returns false on failure.
func bindBody(c *gin.Context, dst interface{}) bool {
	err := c.ShouldBindJSON(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		respondError(c, http.StatusRequestEntityTooLarge, MsgPayloadTooLarge)
		return false
	}
	respondError(c, http.StatusBadRequest, MsgInvalidPayload)
	return false
}

// assertIdentity rejects a bound identity that differs from the verified token subject.
// Requests without a verified subject are trusted as given; an empty identity is left
// to validation. It writes the 403 response and returns false on mismatch.
func assertIdentity(c *gin.Context, claimed string) bool {
	subject, ok := middleware.SubjectFrom(c)
	if !ok || claimed == "" || claimed == subject {
		return true
	}
	zerolog.Ctx(c.Request.Context()).Warn().
		Str("subject", subject).
		Str("claimed", claimed).
		Msg(domain.ErrIdentityMismatch.Error())
	respondError(c, http.StatusForbidden, MsgForbidden)
	return false
}

func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"ok": false, "error": message})
}
