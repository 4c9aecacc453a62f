// Package like buffers like toggles in the cache and reconciles them into the
// system of record.
//
// Toggler is the hot path: it flips a user's like on a tweet inside one cache
// transaction and queues the tweet. Reconciler drains queued tweets one at a
// time into MySQL, then hands notifications for new likes to a Notifier.
// Relay copies those notifications into ClickHouse for analytics.
package like
