// Package store provides storage and pub/sub functionality for the dashboard.
//
// This package is internal to GPUBoard and holds the latest [Board]: the
// rows of every server that answered the last poll cycle plus warnings for
// the ones that did not. It implements a publish-subscribe pattern for
// real-time updates to connected dashboard clients.
//
// The main components are:
//
//   - [Store]: Interface defining storage and subscription operations
//   - [MemoryStore]: In-memory implementation of Store with pub/sub
//   - [Board], [Row], [Warning]: Storage representation of a cycle
//
// Subscribers receive updates via channels with non-blocking sends (slow
// subscribers will miss updates rather than block the system).
package store
