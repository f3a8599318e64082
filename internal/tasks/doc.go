// Package tasks manages the lifecycle of automation rules.
//
// Create validates a rule against the catalog before it reaches the store:
// the reaction must be offered by some registry tier, the owning identity
// must exist, a service is required, and positional reaction arguments must
// match the reaction schema when it declares one. Directional trigger
// variants (email_received_from_person, email_sent_to_person) are rewritten
// onto their base trigger with the filter marker appended, so the correlator
// only ever sees base triggers.
//
// ListForService feeds the reaction pollers. Tasks that require OAuth get a
// fresh access token from the token manager; a task whose token cannot be
// produced is still returned, carrying an Error instead of a token.
package tasks
