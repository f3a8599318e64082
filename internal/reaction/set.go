package reaction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/go-github/v66/github"
	"google.golang.org/api/calendar/v3"

	"github.com/roach88/area/internal/catalog"
	"github.com/roach88/area/internal/engine"
	"github.com/roach88/area/internal/ir"
	"github.com/roach88/area/internal/provider"
	"github.com/roach88/area/internal/store"
	"github.com/roach88/area/internal/token"
)

// ErrNotConfigured is returned by reactions whose backend was not set up.
var ErrNotConfigured = errors.New("reaction backend not configured")

// DefaultUSDCUnits is the reward of send_usdc: 0.01 USDC.
var DefaultUSDCUnits = big.NewInt(10_000)

// DefaultPhonePrefix is prepended to nine-digit national numbers.
const DefaultPhonePrefix = "+34"

// Subjects of outbound messages.
const (
	EmailSubject         = "Notification from Area"
	RedditMessageSubject = "Automated Area message"
)

// Mailer sends email. *provider.SMTP satisfies it.
type Mailer interface {
	SendMail(ctx context.Context, to, subject, body string) error
}

// SMSSender sends text messages. *provider.Twilio satisfies it.
type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) (string, error)
}

// Calendar creates calendar events. *provider.Google satisfies it.
type Calendar interface {
	InsertCalendarEvent(ctx context.Context, accessToken string, ev *calendar.Event) (*calendar.Event, error)
}

// IssueTracker opens issues. *provider.GitHub satisfies it.
type IssueTracker interface {
	CreateIssue(ctx context.Context, token, owner, repo string, issue *github.IssueRequest) (*github.Issue, error)
}

// Reddit posts as the platform account. *provider.Reddit satisfies it.
type Reddit interface {
	SendMessage(ctx context.Context, to, subject, text string) error
	Submit(ctx context.Context, subreddit, title, text string) (string, error)
	Comment(ctx context.Context, postID, text string) (string, error)
}

// Payments transfers tokens. *provider.USDC satisfies it.
type Payments interface {
	Transfer(ctx context.Context, to string, units *big.Int) (string, error)
}

// Set holds the backends of every reaction.
type Set struct {
	catalog  *catalog.Catalog
	composer Composer
	tokens   *token.Manager

	mailer   Mailer
	sms      SMSSender
	calendar Calendar
	issues   IssueTracker
	reddit   Reddit
	payments Payments

	phonePrefix string
	usdcUnits   *big.Int
}

// Option configures a Set.
type Option func(*Set)

// WithComposer sets the message composer.
func WithComposer(c Composer) Option { return func(s *Set) { s.composer = c } }

// WithTokens sets the manager refreshing Google tokens before use.
func WithTokens(m *token.Manager) Option { return func(s *Set) { s.tokens = m } }

// WithMailer enables send_email.
func WithMailer(m Mailer) Option { return func(s *Set) { s.mailer = m } }

// WithSMS enables send_sms.
func WithSMS(m SMSSender) Option { return func(s *Set) { s.sms = m } }

// WithCalendar enables create_google_cal_event.
func WithCalendar(c Calendar) Option { return func(s *Set) { s.calendar = c } }

// WithIssueTracker enables create_github_issue.
func WithIssueTracker(t IssueTracker) Option { return func(s *Set) { s.issues = t } }

// WithReddit enables the Reddit reactions.
func WithReddit(r Reddit) Option { return func(s *Set) { s.reddit = r } }

// WithPayments enables send_usdc.
func WithPayments(p Payments) Option { return func(s *Set) { s.payments = p } }

// WithPhonePrefix sets the country prefix of national phone numbers.
func WithPhonePrefix(p string) Option { return func(s *Set) { s.phonePrefix = p } }

// WithUSDCUnits sets the send_usdc amount in smallest token units.
func WithUSDCUnits(u *big.Int) Option { return func(s *Set) { s.usdcUnits = u } }

// New creates a Set over the vocabulary cat.
func New(cat *catalog.Catalog, opts ...Option) *Set {
	s := &Set{
		catalog:     cat,
		composer:    NewTemplateComposer("", ""),
		phonePrefix: DefaultPhonePrefix,
		usdcUnits:   DefaultUSDCUnits,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handlers returns the handler table keyed by reaction name, ready for
// engine.RegistryFromCatalog.
func (s *Set) Handlers() map[string]engine.Reaction {
	return map[string]engine.Reaction{
		"send_email":               engine.ReactionFunc(s.SendEmail),
		"send_sms":                 engine.ReactionFunc(s.SendSMS),
		"create_google_cal_event":  engine.ReactionFunc(s.CreateCalendarEvent),
		"create_github_issue":      engine.ReactionFunc(s.CreateGitHubIssue),
		"send_private_message":     engine.ReactionFunc(s.SendPrivateMessage),
		"post_new_submission":      engine.ReactionFunc(s.PostNewSubmission),
		"post_new_comment_on_post": engine.ReactionFunc(s.PostNewComment),
		"send_usdc":                engine.ReactionFunc(s.SendUSDC),
	}
}

func notConfigured(backend string) error {
	return fmt.Errorf("%w: %s", ErrNotConfigured, backend)
}

func (s *Set) owner(ctx context.Context, inv engine.Invocation) (ir.Identity, error) {
	id, err := inv.Session.GetIdentity(ctx, inv.Task.OwnerID)
	if err != nil {
		return ir.Identity{}, fmt.Errorf("load owner %d: %w", inv.Task.OwnerID, err)
	}
	return id, nil
}

func (s *Set) compose(ctx context.Context, kind Kind, inv engine.Invocation, recipient ir.Identity, subject string) (string, error) {
	body, err := s.composer.Compose(ctx, Message{
		Kind:        kind,
		ServiceFrom: inv.ServiceFrom,
		Trigger:     inv.Task.Trigger,
		Recipient:   recipient,
		Subject:     subject,
		Details:     inv.Params,
	})
	if err != nil {
		return "", fmt.Errorf("compose %s: %w", kind, err)
	}
	return body, nil
}

// SendEmail mails a notification about the event to the task owner.
func (s *Set) SendEmail(ctx context.Context, inv engine.Invocation) error {
	if s.mailer == nil {
		return notConfigured("smtp")
	}
	owner, err := s.owner(ctx, inv)
	if err != nil {
		return err
	}
	body, err := s.compose(ctx, KindEmail, inv, owner, "")
	if err != nil {
		return err
	}
	if err := s.mailer.SendMail(ctx, owner.Email, EmailSubject, body); err != nil {
		return err
	}
	slog.Info("email sent", "task_id", inv.Task.ID, "to", owner.Email)
	return nil
}

// SendSMS texts a notification about the event to the task owner.
func (s *Set) SendSMS(ctx context.Context, inv engine.Invocation) error {
	if s.sms == nil {
		return notConfigured("twilio")
	}
	owner, err := s.owner(ctx, inv)
	if err != nil {
		return err
	}
	if owner.PhoneNumber == "" {
		return fmt.Errorf("user %d has no phone number", owner.ID)
	}
	to, err := provider.FormatPhone(owner.PhoneNumber, s.phonePrefix)
	if err != nil {
		return err
	}
	body, err := s.compose(ctx, KindSMS, inv, owner, "")
	if err != nil {
		return err
	}
	sid, err := s.sms.SendSMS(ctx, to, body)
	if err != nil {
		return err
	}
	slog.Info("sms sent", "task_id", inv.Task.ID, "sid", sid)
	return nil
}

// googleAccess returns a usable Google access token of the task owner,
// refreshing it inside the running transaction when stale.
func (s *Set) googleAccess(ctx context.Context, inv engine.Invocation) (string, error) {
	tok, err := inv.Session.GetToken(ctx, inv.Task.OwnerID, ir.ProviderGoogle)
	if errors.Is(err, store.ErrNotFound) {
		return "", fmt.Errorf("user %d has not authenticated with google", inv.Task.OwnerID)
	}
	if err != nil {
		return "", err
	}
	if s.tokens != nil {
		if tok, err = s.tokens.With(inv.Session).EnsureFresh(ctx, tok); err != nil {
			return "", err
		}
	}
	return tok.AccessToken, nil
}

// CreateCalendarEvent inserts the event described by the task's reaction
// arguments into the owner's primary Google calendar.
func (s *Set) CreateCalendarEvent(ctx context.Context, inv engine.Invocation) error {
	if s.calendar == nil {
		return notConfigured("google calendar")
	}
	p, err := bindCalendar(s.catalog, inv.Task.ReactionArgs)
	if err != nil {
		return err
	}
	start, err := ToRFC3339(p.StartTime, p.TimeZone)
	if err != nil {
		return fmt.Errorf("start_time: %w", err)
	}
	end, err := ToRFC3339(p.EndTime, p.TimeZone)
	if err != nil {
		return fmt.Errorf("end_time: %w", err)
	}

	access, err := s.googleAccess(ctx, inv)
	if err != nil {
		return err
	}

	ev := &calendar.Event{
		Summary:     p.Summary,
		Description: p.Description,
		Location:    p.Location,
		Start:       &calendar.EventDateTime{DateTime: start},
		End:         &calendar.EventDateTime{DateTime: end},
		Reminders: &calendar.EventReminders{
			Overrides: []*calendar.EventReminder{
				{Method: "email", Minutes: 24 * 60},
				{Method: "popup", Minutes: 10},
			},
			// useDefault=false has to be sent for the overrides to apply.
			ForceSendFields: []string{"UseDefault"},
		},
	}
	for _, a := range p.AttendeeList() {
		ev.Attendees = append(ev.Attendees, &calendar.EventAttendee{Email: a})
	}

	created, err := s.calendar.InsertCalendarEvent(ctx, access, ev)
	if err != nil {
		return fmt.Errorf("create google calendar event: %w", err)
	}
	slog.Info("calendar event created", "task_id", inv.Task.ID, "link", created.HtmlLink)
	return nil
}

// CreateGitHubIssue opens an issue on the repository named by the event.
// The first reaction argument, when present, is the issue title.
func (s *Set) CreateGitHubIssue(ctx context.Context, inv engine.Invocation) error {
	if s.issues == nil {
		return notConfigured("github")
	}
	repoOwner, repo := inv.Params["owner"], inv.Params["repo"]
	if err := required("owner", repoOwner, "repo", repo); err != nil {
		return fmt.Errorf("event params: %w", err)
	}

	access := inv.Task.OAuthToken
	tok, err := inv.Session.GetToken(ctx, inv.Task.OwnerID, ir.ProviderGitHub)
	switch {
	case err == nil:
		access = tok.AccessToken
	case !errors.Is(err, store.ErrNotFound):
		return err
	}
	if access == "" {
		return fmt.Errorf("user %d has not authenticated with github", inv.Task.OwnerID)
	}

	title := fmt.Sprintf("%s on %s/%s", inv.Task.Trigger, repoOwner, repo)
	if len(inv.Task.ReactionArgs) > 0 && inv.Task.ReactionArgs[0] != "" {
		title = inv.Task.ReactionArgs[0]
	}
	body, err := s.compose(ctx, KindIssue, inv, ir.Identity{}, "")
	if err != nil {
		return err
	}

	issue := &github.IssueRequest{Title: github.String(title)}
	if body != "" {
		issue.Body = github.String(body)
	}
	created, err := s.issues.CreateIssue(ctx, access, repoOwner, repo, issue)
	if err != nil {
		return err
	}
	slog.Info("github issue created", "task_id", inv.Task.ID, "number", created.GetNumber(), "url", created.GetHTMLURL())
	return nil
}

// SendPrivateMessage messages a redditor about the task's subject.
func (s *Set) SendPrivateMessage(ctx context.Context, inv engine.Invocation) error {
	if s.reddit == nil {
		return notConfigured("reddit")
	}
	p, err := bindPrivateMessage(s.catalog, inv.Task.ReactionArgs)
	if err != nil {
		return err
	}
	body, err := s.compose(ctx, KindRedditMessage, inv, ir.Identity{Username: p.Username}, p.Subject)
	if err != nil {
		return err
	}
	if err := s.reddit.SendMessage(ctx, p.Username, RedditMessageSubject, body); err != nil {
		return err
	}
	slog.Info("reddit message sent", "task_id", inv.Task.ID, "to", p.Username)
	return nil
}

// PostNewSubmission posts the event to a subreddit.
func (s *Set) PostNewSubmission(ctx context.Context, inv engine.Invocation) error {
	if s.reddit == nil {
		return notConfigured("reddit")
	}
	p, err := bindSubmission(s.catalog, inv.Task.ReactionArgs)
	if err != nil {
		return err
	}
	body, err := s.compose(ctx, KindRedditSubmission, inv, ir.Identity{}, "")
	if err != nil {
		return err
	}
	name, err := s.reddit.Submit(ctx, p.Subreddit, p.Title, body)
	if err != nil {
		return err
	}
	slog.Info("reddit submission posted", "task_id", inv.Task.ID, "subreddit", p.Subreddit, "post", name)
	return nil
}

// PostNewComment replies to a Reddit post given by id or URL.
func (s *Set) PostNewComment(ctx context.Context, inv engine.Invocation) error {
	if s.reddit == nil {
		return notConfigured("reddit")
	}
	p, err := bindComment(s.catalog, inv.Task.ReactionArgs)
	if err != nil {
		return err
	}
	body, err := s.compose(ctx, KindRedditComment, inv, ir.Identity{}, p.Subject)
	if err != nil {
		return err
	}
	postID := provider.PostID(p.PostID)
	name, err := s.reddit.Comment(ctx, postID, body)
	if err != nil {
		return err
	}
	slog.Info("reddit comment posted", "task_id", inv.Task.ID, "post_id", postID, "comment", name)
	return nil
}

// SendUSDC rewards the address in the task's reaction arguments.
func (s *Set) SendUSDC(ctx context.Context, inv engine.Invocation) error {
	if s.payments == nil {
		return notConfigured("usdc")
	}
	p, err := bindTransfer(s.catalog, inv.Task.ReactionArgs)
	if err != nil {
		return err
	}
	if !common.IsHexAddress(p.ToAddress) {
		return fmt.Errorf("to_address %q: %w", p.ToAddress, provider.ErrInvalidAddress)
	}
	hash, err := s.payments.Transfer(ctx, p.ToAddress, s.usdcUnits)
	if err != nil {
		return err
	}
	slog.Info("usdc transfer sent", "task_id", inv.Task.ID, "to", p.ToAddress, "units", s.usdcUnits.String(), "tx", hash)
	return nil
}
