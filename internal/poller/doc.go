// Package poller runs the per-service reaction-execution loops.
//
// Each Poller owns one service. A cycle fetches the service's tasks (with
// OAuth tokens already refreshed by the task service), hands every usable
// task to the service Worker, and then sleeps for a fixed interval. A fetch
// or network failure never stops the loop; the next cycle is the retry.
// Workers are idempotent: installing a webhook or a Gmail watch that already
// exists is a no-op, so every cycle re-ensures every task.
//
// Pollers of different services share nothing and do not coordinate.
// Cancelling the context passed to Run stops the loop after the current
// task.
package poller
