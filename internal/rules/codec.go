package rules

import (
	"fmt"
	"strings"
)

// Wire symbols, row-major from row 0. Five states per cell.
const (
	symEmpty     = '.'
	symRedMan    = 'r'
	symRedKing   = 'R'
	symBlackMan  = 'b'
	symBlackKing = 'B'
)

// Encode serializes the board as 64 symbols, row-major.
func Encode(b *Board) string {
	var sb strings.Builder
	sb.Grow(64)
	for r := 0; r < 8; r++ {
		for c := 0; c < 8; c++ {
			p := b.grid[r][c]
			switch {
			case p == nil:
				sb.WriteByte(symEmpty)
			case p.Color == Red && p.Rank == Man:
				sb.WriteByte(symRedMan)
			case p.Color == Red:
				sb.WriteByte(symRedKing)
			case p.Rank == Man:
				sb.WriteByte(symBlackMan)
			default:
				sb.WriteByte(symBlackKing)
			}
		}
	}
	return sb.String()
}

// Decode parses the 64-symbol wire form back into a board.
func Decode(s string) (*Board, error) {
	if len(s) != 64 {
		return nil, fmt.Errorf("board encoding must be 64 symbols, got %d", len(s))
	}
	b := &Board{}
	for i := 0; i < 64; i++ {
		cell := Cell{Row: i / 8, Col: i % 8}
		var p *Piece
		switch s[i] {
		case symEmpty:
			continue
		case symRedMan:
			p = &Piece{Color: Red, Rank: Man}
		case symRedKing:
			p = &Piece{Color: Red, Rank: King}
		case symBlackMan:
			p = &Piece{Color: Black, Rank: Man}
		case symBlackKing:
			p = &Piece{Color: Black, Rank: King}
		default:
			return nil, fmt.Errorf("unknown board symbol %q at index %d", s[i], i)
		}
		if !cell.Dark() {
			return nil, fmt.Errorf("piece on light square at index %d", i)
		}
		b.grid[cell.Row][cell.Col] = p
	}
	return b, nil
}
