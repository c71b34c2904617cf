package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/mail"
	"strings"

	"github.com/sendgrid/sendgrid-go"
	twilio "github.com/twilio/twilio-go"
	twilioclient "github.com/twilio/twilio-go/client"
	lookupsv2 "github.com/twilio/twilio-go/rest/lookups/v2"

	"github.com/WmBreck/2nd-opinion-construction/internal/utils"
)

const sendGridHost = "https://api.sendgrid.com"

// ---------------------------------------------------------------------
// Email deliverability
// ---------------------------------------------------------------------

type emailDeliverability struct {
	apiKey      string
	useSendGrid bool
	lookupMX    func(ctx context.Context, domain string) ([]*net.MX, error)
}

// NewEmailChecker accepts an address whose domain publishes MX records and,
// with useSendGrid, whose SendGrid validation verdict is valid or risky.
func NewEmailChecker(apiKey string, useSendGrid bool) EmailChecker {
	d := &emailDeliverability{
		apiKey:      apiKey,
		useSendGrid: useSendGrid,
		lookupMX:    net.DefaultResolver.LookupMX,
	}
	return d.check
}

func (d *emailDeliverability) check(ctx context.Context, email string) (bool, error) {
	addr, err := mail.ParseAddress(email)
	if err != nil {
		return false, nil
	}
	domain := addr.Address[strings.LastIndex(addr.Address, "@")+1:]
	if mx, err := d.lookupMX(ctx, domain); err != nil || len(mx) == 0 {
		return false, nil
	}
	if !d.useSendGrid {
		return true, nil
	}
	return d.sendGridVerdict(ctx, addr.Address)
}

func (d *emailDeliverability) sendGridVerdict(ctx context.Context, email string) (bool, error) {
	body, err := json.Marshal(map[string]string{"email": email})
	if err != nil {
		return false, err
	}
	req := sendgrid.GetRequest(d.apiKey, "/v3/validations/email", sendGridHost)
	req.Method = http.MethodPost
	req.Body = body

	resp, err := sendgrid.MakeRequestWithContext(ctx, req)
	if err != nil {
		return false, fmt.Errorf("%w: sendgrid validation: %v", utils.ErrExternalServiceFailure, err)
	}
	switch resp.StatusCode {
	case http.StatusOK:
		var out struct {
			Result struct {
				Verdict string `json:"verdict"`
			} `json:"result"`
		}
		if err := json.Unmarshal([]byte(resp.Body), &out); err != nil {
			return false, fmt.Errorf("decode sendgrid verdict: %w", err)
		}
		switch strings.ToLower(out.Result.Verdict) {
		case "valid", "risky":
			return true, nil
		}
		return false, nil
	case http.StatusBadRequest:
		return false, nil
	}
	return false, fmt.Errorf("%w: sendgrid validation status %d", utils.ErrExternalServiceFailure, resp.StatusCode)
}

// ---------------------------------------------------------------------
// Phone lookup
// ---------------------------------------------------------------------

// NewTwilioPhoneChecker normalizes a US-style number and asks Twilio
// Lookups v2 whether it exists. Unplaceable numbers fail without a call.
func NewTwilioPhoneChecker(tw *twilio.RestClient) PhoneChecker {
	return func(ctx context.Context, phone string) (bool, error) {
		e164, ok := utils.NormalizeUSPhone(phone)
		if !ok {
			return false, nil
		}
		if tw == nil {
			return true, nil
		}

		_, err := tw.LookupsV2.FetchPhoneNumber(e164, &lookupsv2.FetchPhoneNumberParams{})
		if err == nil {
			return true, nil
		}
		var restErr *twilioclient.TwilioRestError
		if errors.As(err, &restErr) && restErr.Status == http.StatusNotFound {
			return false, nil
		}
		return false, fmt.Errorf("%w: twilio lookup: %v", utils.ErrExternalServiceFailure, err)
	}
}
