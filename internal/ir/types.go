package ir

import "time"

// Task is a stored automation rule binding a trigger pattern to a reaction
// for one owning identity.
type Task struct {
	ID           int64    `json:"id"`
	OwnerID      int64    `json:"user_id"`
	Trigger      string   `json:"trigger"`
	TriggerArgs  []string `json:"trigger_args"`
	Fingerprint  string   `json:"event_hash"` // Derived from Trigger + TriggerArgs, never set by callers
	ReactionName string   `json:"action_name"`
	ReactionArgs []string `json:"action_params"`
	Service      string   `json:"service"`

	RequiresOAuth bool   `json:"requires_oauth"`
	OAuthToken    string `json:"oauth_token,omitempty"` // Cached access token, refreshed out-of-band
}

// Identity is the owner of tasks, tokens, and dedup records.
type Identity struct {
	ID          int64  `json:"id"`
	Username    string `json:"username"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phone_number,omitempty"`
	FirstName   string `json:"first_name,omitempty"`
	LastName    string `json:"last_name,omitempty"`
}

// Provider names for stored OAuth tokens.
const (
	ProviderGoogle = "google"
	ProviderGitHub = "github"
)

// OAuthToken is a provider credential belonging to one identity.
//
// A zero ExpiresAt means the token never expires (GitHub style).
type OAuthToken struct {
	OwnerID      int64     `json:"user_id"`
	Provider     string    `json:"provider"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type,omitempty"`
	Scope        string    `json:"scope,omitempty"`
	ExpiresAt    time.Time `json:"expires_at,omitzero"`
}

// Expires reports whether the token carries an expiry at all.
func (t OAuthToken) Expires() bool {
	return !t.ExpiresAt.IsZero()
}

// InboundEvent is the canonical event shape produced by webhook listeners
// and pollers. It is never persisted.
type InboundEvent struct {
	TriggerName   string            `json:"event_name"`
	Service       string            `json:"service"`
	Params        map[string]string `json:"params"`         // Feeds the fingerprint
	ContextParams map[string]string `json:"context_params"` // Enrichment only
	Dedup         *DedupInfo        `json:"processed_message_info,omitempty"`
}

// MergedParams returns Params overlaid with ContextParams. Context keys win.
func (e InboundEvent) MergedParams() map[string]string {
	merged := make(map[string]string, len(e.Params)+len(e.ContextParams))
	for k, v := range e.Params {
		merged[k] = v
	}
	for k, v := range e.ContextParams {
		merged[k] = v
	}
	return merged
}

// DedupInfo identifies a provider message for at-most-once processing.
type DedupInfo struct {
	MessageID string `json:"message_id"`
	UserID    string `json:"user_id"`
}

// DedupRecord is a row of the dedup ledger.
type DedupRecord struct {
	ID          int64     `json:"id"`
	MessageID   string    `json:"message_id"`
	OwnerID     int64     `json:"user_id"`
	ProcessedAt time.Time `json:"processed_at"`
}

// LastExecutedEvent is an append-only audit row written once per handled event.
// ReactionName is empty when no task matched.
type LastExecutedEvent struct {
	ID           int64     `json:"id"`
	Trigger      string    `json:"trigger"`
	ReactionName string    `json:"action_name"`
	Timestamp    time.Time `json:"timestamp"`
}

// Field describes one named parameter of a trigger or reaction, in the shape
// the editors render.
type Field struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	Label       string `json:"label"`
	Placeholder string `json:"placeholder"`
}

// TriggerSpec is a trigger of the vocabulary and its parameter schema.
type TriggerSpec struct {
	Name    string  `json:"name"`
	Service string  `json:"service"`
	Fields  []Field `json:"fields"`
}

// ReactionSpec is a reaction of the vocabulary and its parameter schema.
// Fields is empty when the reaction takes no positional arguments. A reaction
// may be offered by more than one service tier.
type ReactionSpec struct {
	Name   string  `json:"name"`
	Fields []Field `json:"fields"`
}

// ReactionRef names a reaction together with the registry tier offering it.
type ReactionRef struct {
	Name    string `json:"name"`
	Service string `json:"service"`
}
