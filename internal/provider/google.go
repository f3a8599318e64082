package provider

import (
	"context"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// Google calls the Calendar and Gmail APIs with a user access token.
type Google struct {
	calendarURL string
	gmailURL    string
	client      *http.Client
}

// NewGoogle creates a client. Empty URLs select the public endpoints;
// otherwise calendarURL is the Calendar v3 root and gmailURL the host root
// the gmail/v1 paths hang off.
func NewGoogle(calendarURL, gmailURL string, client *http.Client) *Google {
	return &Google{
		calendarURL: endpoint(calendarURL),
		gmailURL:    endpoint(gmailURL),
		client:      defaultClient(client),
	}
}

func endpoint(u string) string {
	if u == "" {
		return ""
	}
	return strings.TrimRight(u, "/") + "/"
}

func (g *Google) options(accessToken, base string) []option.ClientOption {
	hc := &http.Client{
		Timeout: g.client.Timeout,
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken}),
			Base:   g.client.Transport,
		},
	}
	opts := []option.ClientOption{option.WithHTTPClient(hc)}
	if base != "" {
		opts = append(opts, option.WithEndpoint(base))
	}
	return opts
}

func (g *Google) gmail(ctx context.Context, accessToken string) (*gmail.Service, error) {
	return gmail.NewService(ctx, g.options(accessToken, g.gmailURL)...)
}

// InsertCalendarEvent creates ev on the primary calendar.
func (g *Google) InsertCalendarEvent(ctx context.Context, accessToken string, ev *calendar.Event) (*calendar.Event, error) {
	svc, err := calendar.NewService(ctx, g.options(accessToken, g.calendarURL)...)
	if err != nil {
		return nil, err
	}
	return svc.Events.Insert("primary", ev).Context(ctx).Do()
}

// Watch (re)installs the Gmail push watch of the token's mailbox. Gmail
// replaces an existing watch, so the call is idempotent.
func (g *Google) Watch(ctx context.Context, accessToken string, req *gmail.WatchRequest) (*gmail.WatchResponse, error) {
	svc, err := g.gmail(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	return svc.Users.Watch("me", req).Context(ctx).Do()
}

// Profile returns the mailbox profile of the token's owner.
func (g *Google) Profile(ctx context.Context, accessToken string) (*gmail.Profile, error) {
	svc, err := g.gmail(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	return svc.Users.GetProfile("me").Context(ctx).Do()
}
