package reaction

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/google/go-github/v66/github"
	"google.golang.org/api/calendar/v3"

	"github.com/roach88/area/internal/engine"
	"github.com/roach88/area/internal/ir"
	"github.com/roach88/area/internal/store"
)

// fakeSession is an in-memory engine.Session.
type fakeSession struct {
	identities map[int64]ir.Identity
	tokens     map[string]ir.OAuthToken
	puts       []ir.OAuthToken
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		identities: map[int64]ir.Identity{
			1: {ID: 1, Username: "pau", Email: "pau@example.com", PhoneNumber: "612345678", FirstName: "Pau"},
		},
		tokens: map[string]ir.OAuthToken{},
	}
}

func tokenKey(owner int64, provider string) string {
	return fmt.Sprintf("%d/%s", owner, provider)
}

func (s *fakeSession) GetIdentity(_ context.Context, id int64) (ir.Identity, error) {
	ident, ok := s.identities[id]
	if !ok {
		return ir.Identity{}, fmt.Errorf("get identity %d: %w", id, store.ErrNotFound)
	}
	return ident, nil
}

func (s *fakeSession) GetToken(_ context.Context, owner int64, provider string) (ir.OAuthToken, error) {
	tok, ok := s.tokens[tokenKey(owner, provider)]
	if !ok {
		return ir.OAuthToken{}, fmt.Errorf("get %s token for %d: %w", provider, owner, store.ErrNotFound)
	}
	return tok, nil
}

func (s *fakeSession) PutToken(_ context.Context, tok ir.OAuthToken) error {
	s.puts = append(s.puts, tok)
	s.tokens[tokenKey(tok.OwnerID, tok.Provider)] = tok
	return nil
}

func invocation(sess engine.Session, task ir.Task, params map[string]string) engine.Invocation {
	if task.OwnerID == 0 {
		task.OwnerID = 1
	}
	return engine.Invocation{EventID: "evt-1", Task: task, Session: sess, Params: params}
}

type sentMail struct{ to, subject, body string }

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (m *fakeMailer) SendMail(_ context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMail{to, subject, body})
	return nil
}

type fakeSMS struct {
	to, body string
}

func (f *fakeSMS) SendSMS(_ context.Context, to, body string) (string, error) {
	f.to, f.body = to, body
	return "SM1", nil
}

type fakeCalendar struct {
	token string
	event *calendar.Event
}

func (f *fakeCalendar) InsertCalendarEvent(_ context.Context, token string, ev *calendar.Event) (*calendar.Event, error) {
	f.token, f.event = token, ev
	return &calendar.Event{Id: "ev1", HtmlLink: "https://calendar/ev1"}, nil
}

type fakeIssues struct {
	token, owner, repo string
	issue              *github.IssueRequest
}

func (f *fakeIssues) CreateIssue(_ context.Context, token, owner, repo string, issue *github.IssueRequest) (*github.Issue, error) {
	f.token, f.owner, f.repo, f.issue = token, owner, repo, issue
	return &github.Issue{Number: github.Int(1)}, nil
}

type fakeReddit struct {
	calls []string
}

func (f *fakeReddit) SendMessage(_ context.Context, to, subject, text string) error {
	f.calls = append(f.calls, "message "+to+" "+subject)
	return nil
}

func (f *fakeReddit) Submit(_ context.Context, subreddit, title, text string) (string, error) {
	f.calls = append(f.calls, "submit "+subreddit+" "+title)
	return "t3_x", nil
}

func (f *fakeReddit) Comment(_ context.Context, postID, text string) (string, error) {
	f.calls = append(f.calls, "comment "+postID+" "+text)
	return "t1_x", nil
}

type fakePayments struct {
	to    string
	units *big.Int
}

func (f *fakePayments) Transfer(_ context.Context, to string, units *big.Int) (string, error) {
	f.to, f.units = to, units
	return "0xhash", nil
}
