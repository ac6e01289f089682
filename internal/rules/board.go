package rules

// Color identifies a side.
type Color string

const (
	Red   Color = "red"
	Black Color = "black"
)

// Opponent returns the other side.
func (c Color) Opponent() Color {
	if c == Red {
		return Black
	}
	return Red
}

// Rank distinguishes a man from a promoted king.
type Rank string

const (
	Man  Rank = "man"
	King Rank = "king"
)

// Piece is one checker on the board.
type Piece struct {
	Color Color `json:"color"`
	Rank  Rank  `json:"rank"`
}

// Cell addresses one square. Row 0 is red's back rank.
type Cell struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

// OnBoard reports whether the cell lies within the 8x8 grid.
func (c Cell) OnBoard() bool {
	return c.Row >= 0 && c.Row < 8 && c.Col >= 0 && c.Col < 8
}

// Dark reports whether the cell is a playable dark square. Row and column
// parity match on dark squares, so diagonal steps stay on them.
func (c Cell) Dark() bool {
	return (c.Row+c.Col)%2 == 0
}

// Board holds the 8x8 grid. Only dark squares ever carry a piece.
type Board struct {
	grid [8][8]*Piece
}

// NewBoard returns the standard starting position: twelve men per side on
// the dark squares of the three rows nearest each player. Red sits on rows
// 0..2 and moves toward row 7; black sits on rows 5..7 and moves toward
// row 0.
func NewBoard() *Board {
	b := &Board{}
	for row := 0; row < 3; row++ {
		for col := 0; col < 8; col++ {
			if (Cell{Row: row, Col: col}).Dark() {
				b.grid[row][col] = &Piece{Color: Red, Rank: Man}
			}
		}
	}
	for row := 5; row < 8; row++ {
		for col := 0; col < 8; col++ {
			if (Cell{Row: row, Col: col}).Dark() {
				b.grid[row][col] = &Piece{Color: Black, Rank: Man}
			}
		}
	}
	return b
}

// At returns the piece on the cell, or nil for empty or off-board cells.
func (b *Board) At(c Cell) *Piece {
	if !c.OnBoard() {
		return nil
	}
	return b.grid[c.Row][c.Col]
}

// Place puts a piece on a cell. Used by tests and the codec; game flow goes
// through Apply.
func (b *Board) Place(c Cell, p *Piece) {
	if c.OnBoard() {
		b.grid[c.Row][c.Col] = p
	}
}

// Clone returns a deep copy of the board.
func (b *Board) Clone() *Board {
	out := &Board{}
	for r := 0; r < 8; r++ {
		for c := 0; c < 8; c++ {
			if p := b.grid[r][c]; p != nil {
				cp := *p
				out.grid[r][c] = &cp
			}
		}
	}
	return out
}

// Count returns how many pieces of the color remain.
func (b *Board) Count(color Color) int {
	n := 0
	for r := 0; r < 8; r++ {
		for c := 0; c < 8; c++ {
			if p := b.grid[r][c]; p != nil && p.Color == color {
				n++
			}
		}
	}
	return n
}

// forward returns the row delta a man of the color advances by.
func forward(c Color) int {
	if c == Red {
		return 1
	}
	return -1
}

// crowningRow is the farthest row for the color; a man landing there
// becomes a king.
func crowningRow(c Color) int {
	if c == Red {
		return 7
	}
	return 0
}
