// Package ws is the transport collaborator: it exposes the hub over
// HTTP/WebSocket and owns the wire format of every frame.
package ws

import (
	"github.com/samber/lo"

	"whiteboard-hub/domain"
)

const (
	// client -> hub
	frameTypePublish = "publish"
	frameTypeClear   = "clear"
	// hub -> client
	frameTypeInit  = "init"
	frameTypeEvent = "event"
	frameTypeReset = "reset"
)

type colorPayload struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
}

type eventPayload struct {
	X     float64      `json:"x"`
	Y     float64      `json:"y"`
	Color colorPayload `json:"color"`
	Size  uint32       `json:"size"`
}

// clientFrame is one inbound message on a room connection.
type clientFrame struct {
	Type  string        `json:"type" validate:"required,oneof=publish clear"`
	Event *eventPayload `json:"event" validate:"required_if=Type publish"`
}

// serverFrame is one outbound message. Events is only set on init frames
// and deliberately not omitempty: an empty canvas is still an explicit
// initialize.
type serverFrame struct {
	Type   string         `json:"type"`
	Events []eventPayload `json:"events"`
	Event  *eventPayload  `json:"event,omitempty"`
}

func initFrame(history []domain.DrawingEvent) serverFrame {
	return serverFrame{
		Type: frameTypeInit,
		Events: lo.Map(history, func(event domain.DrawingEvent, _ int) eventPayload {
			return toPayload(event)
		}),
	}
}

func eventFrame(event domain.DrawingEvent) serverFrame {
	return serverFrame{Type: frameTypeEvent, Event: lo.ToPtr(toPayload(event))}
}

func resetFrame() serverFrame {
	return serverFrame{Type: frameTypeReset}
}

func toPayload(event domain.DrawingEvent) eventPayload {
	return eventPayload{
		X: event.X,
		Y: event.Y,
		Color: colorPayload{
			R: event.Color.R,
			G: event.Color.G,
			B: event.Color.B,
		},
		Size: event.Size,
	}
}

func fromPayload(payload eventPayload) domain.DrawingEvent {
	return domain.DrawingEvent{
		X: payload.X,
		Y: payload.Y,
		Color: domain.Color{
			R: payload.Color.R,
			G: payload.Color.G,
			B: payload.Color.B,
		},
		Size: payload.Size,
	}
}
