// Package domain contains the core concepts of the whiteboard system:
// room identity and drawing events. Pure values only; no runtime,
// network, or UI logic lives here.
package domain

// RoomID names an isolated collaboration namespace. Rooms are opaque,
// non-empty strings, created implicitly by first reference (first join or
// first publish) and never explicitly declared. Events and subscribers in
// one room never affect another.
type RoomID string
