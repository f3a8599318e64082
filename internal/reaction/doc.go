// Package reaction implements the side effects tasks can invoke.
//
// A Set binds every reaction of the vocabulary to a handler. Handlers bind
// the task's positional reaction arguments to typed parameters, compose
// message copy with a Composer, and call a thin provider client. A backend
// left unconfigured makes its reactions fail with ErrNotConfigured rather
// than disappear from the registry, so tasks naming them still resolve.
package reaction
