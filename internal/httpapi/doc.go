// Package httpapi is the HTTP surface of the engine: event ingestion, task
// management, vocabulary queries, the audit trail, identity and token
// management, and the optional GitHub webhook listener.
//
// Routes live under APIPrefix and exchange JSON. Request bodies are checked
// against embedded JSON schemas before they are decoded, and every error is
// answered with a body of the form
//
//	{"error": "<code>", "detail": "<message>"}
//
// Event ingestion answers 202 with the name of the last reaction attempted
// as a JSON string, "" when no task matched or the message was a duplicate.
package httpapi
