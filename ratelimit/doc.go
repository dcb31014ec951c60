// Package ratelimit provides token-bucket limiters for inbound client
// messages. The WebSocket transport keeps one Limiter per connection in a
// ClientLimiters registry and drops messages over the budget.
package ratelimit
