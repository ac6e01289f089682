package rules

import "errors"

var (
	ErrEmptyOrigin = errors.New("no piece on origin cell")
	ErrOffBoard    = errors.New("move leaves the board")
)

// Move is one displacement of a single piece. Captured lists the cells of
// the removed enemy pieces; it is empty exactly when Capture is false.
type Move struct {
	From     Cell   `json:"from"`
	To       Cell   `json:"to"`
	Captured []Cell `json:"captured,omitempty"`
	Capture  bool   `json:"capture"`
}

// Equal compares origin and destination. Captured cells are derived from
// the board, so two moves with the same endpoints are the same move.
func (m Move) Equal(o Move) bool {
	return m.From == o.From && m.To == o.To
}

var diagonals = [4][2]int{{1, 1}, {1, -1}, {-1, 1}, {-1, -1}}

// LegalMoves enumerates every legal move for the side. Captures are
// mandatory side-wide: if any piece of the color can capture, only capture
// moves are returned.
func LegalMoves(b *Board, color Color) []Move {
	var simple, captures []Move
	for r := 0; r < 8; r++ {
		for c := 0; c < 8; c++ {
			from := Cell{Row: r, Col: c}
			p := b.At(from)
			if p == nil || p.Color != color {
				continue
			}
			captures = append(captures, CapturesFrom(b, from)...)
			if len(captures) > 0 {
				continue // simple moves are already dead, skip computing them
			}
			simple = append(simple, simpleMovesFrom(b, from, p)...)
		}
	}
	if len(captures) > 0 {
		return captures
	}
	return simple
}

// CapturesFrom enumerates capture moves for the single piece on the cell.
// Returns nil when the cell is empty. Used for chain continuation and for
// move hinting.
func CapturesFrom(b *Board, from Cell) []Move {
	p := b.At(from)
	if p == nil {
		return nil
	}
	if p.Rank == King {
		return kingCapturesFrom(b, from, p.Color)
	}
	return manCapturesFrom(b, from, p.Color)
}

func simpleMovesFrom(b *Board, from Cell, p *Piece) []Move {
	var out []Move
	if p.Rank == Man {
		dr := forward(p.Color)
		for _, dc := range []int{-1, 1} {
			to := Cell{Row: from.Row + dr, Col: from.Col + dc}
			if to.OnBoard() && b.At(to) == nil {
				out = append(out, Move{From: from, To: to})
			}
		}
		return out
	}
	// king: slide any distance along an empty diagonal
	for _, d := range diagonals {
		for step := 1; ; step++ {
			to := Cell{Row: from.Row + d[0]*step, Col: from.Col + d[1]*step}
			if !to.OnBoard() || b.At(to) != nil {
				break
			}
			out = append(out, Move{From: from, To: to})
		}
	}
	return out
}

// manCapturesFrom jumps exactly one adjacent enemy into the empty square
// immediately beyond, in any diagonal direction.
func manCapturesFrom(b *Board, from Cell, color Color) []Move {
	var out []Move
	for _, d := range diagonals {
		over := Cell{Row: from.Row + d[0], Col: from.Col + d[1]}
		to := Cell{Row: from.Row + 2*d[0], Col: from.Col + 2*d[1]}
		if !to.OnBoard() {
			continue
		}
		victim := b.At(over)
		if victim == nil || victim.Color == color {
			continue
		}
		if b.At(to) != nil {
			continue
		}
		out = append(out, Move{From: from, To: to, Captured: []Cell{over}, Capture: true})
	}
	return out
}

// kingCapturesFrom slides until the first occupied cell in each direction.
// If that cell holds exactly one enemy and the cell beyond it is empty,
// every empty landing square past the enemy is a valid destination. An
// own-color piece, or a second piece before an empty landing, voids the
// direction.
func kingCapturesFrom(b *Board, from Cell, color Color) []Move {
	var out []Move
	for _, d := range diagonals {
		var victim *Cell
		for step := 1; ; step++ {
			cur := Cell{Row: from.Row + d[0]*step, Col: from.Col + d[1]*step}
			if !cur.OnBoard() {
				break
			}
			p := b.At(cur)
			if p == nil {
				if victim != nil {
					out = append(out, Move{From: from, To: cur, Captured: []Cell{*victim}, Capture: true})
				}
				continue
			}
			if p.Color == color || victim != nil {
				break // own piece, or a second piece before landing
			}
			v := cur
			victim = &v
		}
	}
	return out
}

// ApplyResult reports the side effects of one applied move.
type ApplyResult struct {
	Captured []Piece
	Promoted bool
}

// Apply mutates the board with the move: relocates the piece, removes the
// captured cells, and promotes a man the instant it lands on the crowning
// row, even when the move is itself a capture.
func Apply(b *Board, m Move) (ApplyResult, error) {
	p := b.At(m.From)
	if p == nil {
		return ApplyResult{}, ErrEmptyOrigin
	}
	if !m.To.OnBoard() {
		return ApplyResult{}, ErrOffBoard
	}
	var res ApplyResult
	for _, cc := range m.Captured {
		if victim := b.At(cc); victim != nil {
			res.Captured = append(res.Captured, *victim)
			b.grid[cc.Row][cc.Col] = nil
		}
	}
	b.grid[m.From.Row][m.From.Col] = nil
	if p.Rank == Man && m.To.Row == crowningRow(p.Color) {
		p.Rank = King
		res.Promoted = true
	}
	b.grid[m.To.Row][m.To.Col] = p
	return res, nil
}

// Winner evaluates terminal state before the side toMove acts. The side to
// move loses with zero pieces or an empty legal-move set; a side whose
// opponent has no pieces left wins regardless of turn.
func Winner(b *Board, toMove Color) (Color, bool) {
	if b.Count(toMove.Opponent()) == 0 {
		return toMove, true
	}
	if b.Count(toMove) == 0 {
		return toMove.Opponent(), true
	}
	if len(LegalMoves(b, toMove)) == 0 {
		return toMove.Opponent(), true
	}
	return "", false
}
