package reaction

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/roach88/area/internal/catalog"
)

// CalendarParams are the arguments of create_google_cal_event.
type CalendarParams struct {
	Summary     string
	Description string
	StartTime   string
	EndTime     string
	TimeZone    string
	Attendees   string
	Location    string
}

// AttendeeList splits the comma-separated attendee addresses.
func (p CalendarParams) AttendeeList() []string {
	var out []string
	for _, a := range strings.Split(p.Attendees, ",") {
		if a = strings.TrimSpace(a); a != "" {
			out = append(out, a)
		}
	}
	return out
}

// PrivateMessageParams are the arguments of send_private_message.
type PrivateMessageParams struct {
	Username string
	Subject  string
}

// SubmissionParams are the arguments of post_new_submission.
type SubmissionParams struct {
	Title     string
	Subreddit string
}

// CommentParams are the arguments of post_new_comment_on_post.
type CommentParams struct {
	PostID  string
	Subject string
}

// TransferParams are the arguments of send_usdc.
type TransferParams struct {
	ToAddress string
}

func bindCalendar(cat *catalog.Catalog, args []string) (CalendarParams, error) {
	m, err := cat.BindReaction("create_google_cal_event", args)
	if err != nil {
		return CalendarParams{}, err
	}
	return CalendarParams{
		Summary:     m["summary"],
		Description: m["description"],
		StartTime:   m["start_time"],
		EndTime:     m["end_time"],
		TimeZone:    m["time_zone"],
		Attendees:   m["attendees"],
		Location:    m["location"],
	}, nil
}

func bindPrivateMessage(cat *catalog.Catalog, args []string) (PrivateMessageParams, error) {
	m, err := cat.BindReaction("send_private_message", args)
	if err != nil {
		return PrivateMessageParams{}, err
	}
	p := PrivateMessageParams{Username: m["username"], Subject: m["subject"]}
	return p, required("username", p.Username, "subject", p.Subject)
}

func bindSubmission(cat *catalog.Catalog, args []string) (SubmissionParams, error) {
	m, err := cat.BindReaction("post_new_submission", args)
	if err != nil {
		return SubmissionParams{}, err
	}
	p := SubmissionParams{Title: m["title"], Subreddit: m["subreddit"]}
	return p, required("title", p.Title, "subreddit", p.Subreddit)
}

func bindComment(cat *catalog.Catalog, args []string) (CommentParams, error) {
	m, err := cat.BindReaction("post_new_comment_on_post", args)
	if err != nil {
		return CommentParams{}, err
	}
	p := CommentParams{PostID: m["post_id"], Subject: m["subject"]}
	return p, required("post_id", p.PostID, "subject", p.Subject)
}

func bindTransfer(cat *catalog.Catalog, args []string) (TransferParams, error) {
	m, err := cat.BindReaction("send_usdc", args)
	if err != nil {
		return TransferParams{}, err
	}
	p := TransferParams{ToAddress: strings.TrimSpace(m["to_address"])}
	return p, required("to_address", p.ToAddress)
}

// required checks name/value pairs for empty values.
func required(pairs ...string) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		if strings.TrimSpace(pairs[i+1]) == "" {
			return fmt.Errorf("%s is required", pairs[i])
		}
	}
	return nil
}

var trailingComment = regexp.MustCompile(`\s*\(.*\)$`)

// zonedLayouts carry their own offset.
var zonedLayouts = []string{
	time.RFC3339,
	time.RFC1123Z,
	time.RFC1123,
	"Mon Jan 02 2006 15:04:05 GMT-0700",
	"2006-01-02 15:04:05-07:00",
}

// localLayouts are interpreted in the event's time zone.
var localLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ToRFC3339 normalizes a user-entered date to RFC 3339. A trailing
// parenthesized zone name, as browsers append, is ignored. Dates without an
// offset are read in zone, or UTC when zone is empty or unknown.
func ToRFC3339(s, zone string) (string, error) {
	s = strings.TrimSpace(trailingComment.ReplaceAllString(s, ""))
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(time.RFC3339), nil
		}
	}
	loc := time.UTC
	if zone != "" {
		if l, err := time.LoadLocation(zone); err == nil {
			loc = l
		}
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t.Format(time.RFC3339), nil
		}
	}
	return "", fmt.Errorf("unrecognized date %q", s)
}
