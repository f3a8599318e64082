package reaction

import (
	"bytes"
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"text/template"

	"github.com/roach88/area/internal/ir"
)

// Kind selects the shape of composed copy.
type Kind string

const (
	KindEmail            Kind = "email"
	KindSMS              Kind = "sms"
	KindRedditMessage    Kind = "reddit_message"
	KindRedditSubmission Kind = "reddit_submission"
	KindRedditComment    Kind = "reddit_comment"
	KindIssue            Kind = "issue"
)

// Message is what a reaction asks the Composer to write.
type Message struct {
	Kind Kind

	// ServiceFrom is the originating event service, empty when the reaction
	// belongs to the event's own service.
	ServiceFrom string

	Trigger   string
	Recipient ir.Identity

	// Subject is the owner-supplied topic for Reddit messages and comments.
	Subject string

	// Details are the merged event params.
	Details map[string]string
}

// Composer writes message bodies. The production system may put a language
// model behind it; TemplateComposer is deterministic.
type Composer interface {
	Compose(ctx context.Context, msg Message) (string, error)
}

// ComposerFunc adapts a function to the Composer interface.
type ComposerFunc func(ctx context.Context, msg Message) (string, error)

// Compose calls f.
func (f ComposerFunc) Compose(ctx context.Context, msg Message) (string, error) {
	return f(ctx, msg)
}

var templates = map[Kind]string{
	KindEmail: `Dear {{with .Recipient.FirstName}}{{.}}{{else}}{{.Recipient.Username}}{{end}},

{{.Source}} reported {{.Event}}{{if .Details}} with the following details: {{.DetailList}}{{end}}.

Best regards,
{{.Sender}}
{{.Company}}
`,
	KindSMS: `Dear {{with .Recipient.FirstName}}{{.}}{{else}}{{.Recipient.Username}}{{end}},
{{.Source}} reported {{.Event}}.
{{range .Details}}- {{.Key}}: {{.Value}}
{{end}}{{.Sender}}`,
	KindRedditMessage: `Hello! {{.Subject}}

Sent by {{.Sender}}`,
	KindRedditSubmission: `{{.Source}} reported {{.Event}}.
{{range .Details}}
* {{.Key}}: {{.Value}}{{end}}

Posted by {{.Sender}}`,
	KindRedditComment: `{{.Subject}}

{{.Sender}}`,
	KindIssue: `{{.Source}} reported {{.Event}}.
{{range .Details}}
- **{{.Key}}**: {{.Value}}{{end}}

Opened automatically by {{.Sender}}.`,
}

var sourceNames = map[string]string{
	"github": "GitHub",
	"google": "Google",
	"reddit": "Reddit",
	"crypto": "Crypto",
}

// detail is one rendered key/value pair.
type detail struct {
	Key   string
	Value string
}

// TemplateComposer renders fixed text/template copy signed by a sender.
type TemplateComposer struct {
	sender  string
	company string

	once   sync.Once
	parsed map[Kind]*template.Template
	err    error
}

// NewTemplateComposer creates a composer signing messages as sender of
// company.
func NewTemplateComposer(sender, company string) *TemplateComposer {
	if sender == "" {
		sender = "Operations team"
	}
	if company == "" {
		company = "Area"
	}
	return &TemplateComposer{sender: sender, company: company}
}

func (c *TemplateComposer) parse() {
	c.parsed = make(map[Kind]*template.Template, len(templates))
	for kind, src := range templates {
		t, err := template.New(string(kind)).Option("missingkey=error").Parse(src)
		if err != nil {
			c.err = fmt.Errorf("parse %s template: %w", kind, err)
			return
		}
		c.parsed[kind] = t
	}
}

// Compose renders msg. Details are listed in key order.
func (c *TemplateComposer) Compose(_ context.Context, msg Message) (string, error) {
	c.once.Do(c.parse)
	if c.err != nil {
		return "", c.err
	}
	t, ok := c.parsed[msg.Kind]
	if !ok {
		return "", fmt.Errorf("no template for message kind %q", msg.Kind)
	}

	keys := make([]string, 0, len(msg.Details))
	for k := range msg.Details {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	details := make([]detail, len(keys))
	list := make([]string, len(keys))
	for i, k := range keys {
		details[i] = detail{Key: k, Value: msg.Details[k]}
		list[i] = fmt.Sprintf("%s '%s'", k, msg.Details[k])
	}

	source := sourceNames[msg.ServiceFrom]
	if source == "" {
		source = "Your automation"
		if msg.ServiceFrom != "" {
			source = msg.ServiceFrom
		}
	}

	var buf bytes.Buffer
	err := t.Execute(&buf, map[string]any{
		"Recipient":  msg.Recipient,
		"Subject":    msg.Subject,
		"Source":     source,
		"Event":      strings.ReplaceAll(msg.Trigger, "_", " "),
		"Details":    details,
		"DetailList": strings.Join(list, ", "),
		"Sender":     c.sender,
		"Company":    c.company,
	})
	if err != nil {
		return "", fmt.Errorf("render %s message: %w", msg.Kind, err)
	}
	return buf.String(), nil
}
