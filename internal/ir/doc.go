// Package ir provides the domain types shared by every AREA package.
//
// This package contains type definitions and the task fingerprint only. All
// other internal packages import ir; ir imports nothing internal. This keeps
// it the foundational layer with no circular dependencies.
//
// Key design constraints:
//   - Task.Fingerprint is derived from (Trigger, TriggerArgs) and never set by callers
//   - Trigger and reaction arguments are ordered string lists; named binding
//     happens in the catalog package
//   - All JSON tags use snake_case and match the wire format consumed by
//     the event producers and pollers
package ir
