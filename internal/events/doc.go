// Package events implements the in-process publish/subscribe buses that carry
// catalog changes and scan progress.
//
// A Bus buffers published values for a short window and delivers them to every
// subscriber as one batch. Publishers never block: each subscriber owns a
// bounded queue and the oldest batch is dropped when that queue is full. A bus
// constructed with a retention window also keeps a sequenced history that new
// subscribers can replay and that pollers can page through with Fetch.
package events
