package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"unicode"
)

// DefaultTwilioURL is the public Twilio REST API.
const DefaultTwilioURL = "https://api.twilio.com"

// ErrInvalidPhone is returned for numbers that cannot be dialled.
var ErrInvalidPhone = errors.New("invalid phone number")

// Twilio sends SMS through the Twilio Messages API.
type Twilio struct {
	baseURL    string
	accountSID string
	authToken  string
	from       string
	client     *http.Client
}

// NewTwilio creates a client sending from the given number.
func NewTwilio(baseURL, accountSID, authToken, from string, client *http.Client) *Twilio {
	if baseURL == "" {
		baseURL = DefaultTwilioURL
	}
	return &Twilio{
		baseURL:    strings.TrimRight(baseURL, "/"),
		accountSID: accountSID,
		authToken:  authToken,
		from:       from,
		client:     defaultClient(client),
	}
}

// SendSMS delivers body to the E.164 number to and returns the message SID.
func (t *Twilio) SendSMS(ctx context.Context, to, body string) (string, error) {
	var msg struct {
		SID string `json:"sid"`
	}
	err := do(ctx, t.client, request{
		provider: "twilio",
		method:   http.MethodPost,
		url:      fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", t.baseURL, url.PathEscape(t.accountSID)),
		form:     url.Values{"To": {to}, "From": {t.from}, "Body": {body}},
		user:     t.accountSID,
		password: t.authToken,
	}, &msg)
	return msg.SID, err
}

// FormatPhone returns phone in E.164 form. A number written with a leading
// "+" is kept as is; a national number of exactly nine digits gets prefix.
// Spaces and punctuation are ignored.
func FormatPhone(phone, prefix string) (string, error) {
	var digits strings.Builder
	for _, r := range phone {
		if unicode.IsDigit(r) {
			digits.WriteRune(r)
		}
	}
	d := digits.String()

	switch {
	case strings.HasPrefix(strings.TrimSpace(phone), "+") && len(d) >= 8 && len(d) <= 15:
		return "+" + d, nil
	case len(d) == 9:
		return prefix + d, nil
	default:
		return "", fmt.Errorf("%w: %q: want nine national digits or a +country number", ErrInvalidPhone, phone)
	}
}
