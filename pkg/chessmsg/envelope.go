package chessmsg

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Type names one message kind on the wire.
type Type string

// Inbound (client to server).
const (
	TypeJoinGame     Type = "joinGame"
	TypeMove         Type = "move"
	TypeResign       Type = "resign"
	TypeOfferDraw    Type = "offerDraw"
	TypeDrawAccepted Type = "drawAccepted"
	TypeDrawDeclined Type = "drawDeclined"
)

// Outbound (server to client). TypeMove is shared by both directions.
const (
	TypePlayerRole               Type = "playerRole"
	TypeSpectatorRole            Type = "spectatorRole"
	TypeInvalidMove              Type = "invalidMove"
	TypeInvalidTurn              Type = "invalidTurn"
	TypeBoardState               Type = "boardState"
	TypeCheckmate                Type = "checkmate"
	TypeStalemate                Type = "stalemate"
	TypeResigned                 Type = "resigned"
	TypeDraw                     Type = "draw"
	TypeOpponentLeft             Type = "opponentLeft"
	TypePlayerJoined             Type = "playerJoined"
	TypeDrawOffered              Type = "drawOffered"
	TypeDrawDeclinedNotification Type = "drawDeclinedNotification"
)

// Terminal reports whether receiving t ends the current game on the client.
func (t Type) Terminal() bool {
	switch t {
	case TypeCheckmate, TypeStalemate, TypeResigned, TypeDraw, TypeOpponentLeft:
		return true
	}
	return false
}

// Envelope is the single frame shape exchanged over the websocket.
type Envelope struct {
	Type    Type            `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// New builds an envelope; a nil payload is omitted from the frame.
func New(t Type, payload any) (Envelope, error) {
	env := Envelope{Type: t}
	if payload == nil {
		return env, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", t, err)
	}
	env.Payload = raw
	return env, nil
}

// MustNew is New for payload types that always marshal (the structs in this package).
func MustNew(t Type, payload any) Envelope {
	env, err := New(t, payload)
	if err != nil {
		panic(err)
	}
	return env
}

// Decode unmarshals the payload into v. An absent payload leaves v untouched.
func (e Envelope) Decode(v any) error {
	if len(e.Payload) == 0 || strings.TrimSpace(string(e.Payload)) == "null" {
		return nil
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	return nil
}

// Parse reads one frame.
func Parse(frame []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Envelope{}, fmt.Errorf("parse frame: %w", err)
	}
	if strings.TrimSpace(string(env.Type)) == "" {
		return Envelope{}, ErrMissingType
	}
	return env, nil
}
