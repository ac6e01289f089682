package arenadto

// CellRef addresses one board square on the wire.
type CellRef struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

// MoveRef is one move in availableMoves listings.
type MoveRef struct {
	From     CellRef   `json:"from"`
	To       CellRef   `json:"to"`
	Captured []CellRef `json:"captured,omitempty"`
	Capture  bool      `json:"capture"`
}

// PlayerInfo describes one seat of a match.
type PlayerInfo struct {
	ID    string `json:"id"`
	Color string `json:"color"`
}

// PlayerStats is the post-settlement snapshot broadcast with outcomes.
type PlayerStats struct {
	Rating     int   `json:"rating"`
	Wins       int   `json:"wins"`
	Losses     int   `json:"losses"`
	Level      int   `json:"level"`
	Experience int64 `json:"experience"`
}

// Requests

type FindMatchReq struct {
	Stake int64 `json:"stake"`
}

type CreateRoomReq struct {
	Stake int64 `json:"stake"`
}

type JoinRoomReq struct {
	Code string `json:"code"`
}

type MakeMoveReq struct {
	From CellRef `json:"from"`
	To   CellRef `json:"to"`
}

type AvailableMovesReq struct {
	Position CellRef `json:"position"`
}

// Notifications

type WaitingEvt struct {
	Stake    int64 `json:"stake"`
	Position int   `json:"position"`
}

type MatchFoundEvt struct {
	MatchID     string       `json:"matchId"`
	RoomCode    string       `json:"roomCode,omitempty"`
	Stake       int64        `json:"stake"`
	Pot         int64        `json:"pot"`
	Players     []PlayerInfo `json:"players"`
	Board       string       `json:"board"`
	CurrentTurn string       `json:"currentTurn"`
	YourColor   string       `json:"yourColor,omitempty"`
}

type RoomCreatedEvt struct {
	RoomCode string `json:"roomCode"`
	Stake    int64  `json:"stake"`
}

type MoveAppliedEvt struct {
	From          CellRef                `json:"from"`
	To            CellRef                `json:"to"`
	Actor         string                 `json:"actor"`
	Captured      []CellRef              `json:"captured,omitempty"`
	CapturedPiece string                 `json:"capturedPiece,omitempty"`
	Promoted      bool                   `json:"promoted"`
	Board         string                 `json:"board"`
	Stats         map[string]PlayerStats `json:"stats,omitempty"`
}

type TurnChangedEvt struct {
	CurrentTurn string `json:"currentTurn"`
}

type AvailableMovesEvt struct {
	Moves []MoveRef `json:"moves"`
}

type GameStateEvt struct {
	MatchID     string                 `json:"matchId"`
	Board       string                 `json:"board"`
	CurrentTurn string                 `json:"currentTurn"`
	Status      string                 `json:"status"`
	Pot         int64                  `json:"pot"`
	Players     []PlayerInfo           `json:"players"`
	Stats       map[string]PlayerStats `json:"stats,omitempty"`
	ChainCell   *CellRef               `json:"chainCell,omitempty"`
}

type GameOverEvt struct {
	Winner string `json:"winner"`
	Prize  int64  `json:"prize"`
	Reason string `json:"reason"`
}

type LevelUpEvt struct {
	NewLevel int    `json:"newLevel"`
	Reward   string `json:"reward,omitempty"`
}

type ErrorEvt struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
