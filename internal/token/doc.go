// Package token keeps provider OAuth credentials usable.
//
// Manager.EnsureFresh is called on the read paths that hand tokens to
// reaction code: the per-service task listing consumed by pollers and the
// reactions that call Google APIs. An expired token (or one expiring within
// the refresh margin) is exchanged at the provider's token endpoint and the
// stored record is overwritten. Tokens without an expiry, and all GitHub
// tokens, are returned unchanged.
//
// Refresh failures are returned as *RefreshError, which matches
// ErrRefreshFailed with errors.Is. Callers report them per task and keep
// going; a failed refresh never removes the task or the stored token.
package token
