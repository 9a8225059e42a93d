// Package domain holds the core types of the active-workout synchronization
// engine: sessions, focus state, change-feed events, and the interfaces the
// engine consumes from its adapters. It has no dependencies on transport or
// storage packages.
package domain
