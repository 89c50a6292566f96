package notifications

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/twilio/twilio-go"
	twilioClient "github.com/twilio/twilio-go/client"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
	"github.com/you/otpgate/domain"
)

// messageCreator is the slice of the Twilio API used here
type messageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// TwilioServiceImpl implements domain.Dispatcher by sending an SMS through Twilio
type TwilioServiceImpl struct {
	api        messageCreator
	fromNumber string
	timeout    time.Duration
}

// NewTwilioService creates a new Twilio dispatcher. Each REST call is bounded by
// timeout at the HTTP client, so an abandoned send is also aborted on the wire.
func NewTwilioService(accountSID, authToken, fromNumber string, timeout time.Duration) *TwilioServiceImpl {
	if timeout <= 0 {
		timeout = defaultWebhookTimeout
	}
	return newTwilioService(accountSID, authToken, fromNumber, &http.Client{Timeout: timeout}, timeout)
}

func newTwilioService(accountSID, authToken, fromNumber string, httpClient *http.Client, timeout time.Duration) *TwilioServiceImpl {
	base := &twilioClient.Client{
		Credentials: twilioClient.NewCredentials(accountSID, authToken),
		HTTPClient:  httpClient,
	}
	base.SetAccountSid(accountSID)

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
		Client:   base,
	})

	return &TwilioServiceImpl{
		api:        client.Api,
		fromNumber: fromNumber,
		timeout:    timeout,
	}
}

// Send implements domain.Dispatcher
func (t *TwilioServiceImpl) Send(ctx context.Context, payload domain.DispatchPayload) error {
	params := &twilioApi.CreateMessageParams{}
	params.SetTo(payload.FullPhoneNumber)
	params.SetFrom(t.fromNumber)
	params.SetBody(smsBody(payload))

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	// CreateMessage takes no context; the HTTP client timeout aborts the request
	// and this select only bounds the caller
	done := make(chan error, 1)
	go func() {
		_, err := t.api.CreateMessage(params)
		done <- err
	}()

	select {
	case <-ctx.Done():
		return &domain.DispatchError{Kind: domain.DispatchTimeout, Err: ctx.Err()}
	case err := <-done:
		if err == nil {
			return nil
		}
		var restErr *twilioClient.TwilioRestError
		if errors.As(err, &restErr) {
			return domain.NewRejectedDispatch(restErr.Status, restErr.Message)
		}
		return classifyTransportError(err)
	}
}

func smsBody(p domain.DispatchPayload) string {
	minutes := int(p.ExpiresAt.Time().Sub(p.CreatedAt.Time()).Round(time.Minute) / time.Minute)
	if minutes < 1 {
		minutes = 1
	}
	return fmt.Sprintf("Your verification code is %s. It expires in %d minutes.", p.OTP, minutes)
}
