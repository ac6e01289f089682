package arenadto

import "encoding/json"

// Event is the wire envelope for both directions.
type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Client → server event types.
const (
	EvFindMatch       = "findMatch"
	EvCancelFindMatch = "cancelFindMatch"
	EvCreateRoom      = "createPrivateRoom"
	EvJoinRoom        = "joinPrivateRoom"
	EvMakeMove        = "makeMove"
	EvSurrender       = "surrender"
	EvGameState       = "requestGameState"
	EvAvailableMoves  = "requestAvailableMoves"
)

// Server → client event types.
const (
	EvWaiting        = "waitingForMatch"
	EvMatchFound     = "matchFound"
	EvRoomCreated    = "privateRoomCreated"
	EvMoveApplied    = "moveApplied"
	EvContinuedTurn  = "continuedTurn"
	EvTurnChanged    = "turnChanged"
	EvMovesAvailable = "availableMoves"
	EvState          = "gameState"
	EvGameOver       = "gameOver"
	EvLevelUp        = "levelUp"
	EvError          = "error"
)

// NewEvent marshals the payload into an envelope. Marshal failures collapse
// to an empty payload; every payload type here is marshal-safe.
func NewEvent(typ string, payload any) Event {
	if payload == nil {
		return Event{Type: typ}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{Type: typ}
	}
	return Event{Type: typ, Data: raw}
}
