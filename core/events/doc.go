// Package events defines the record change events emitted on the event bus.
package events
