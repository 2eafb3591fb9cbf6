package board

import nchess "github.com/corentings/chess/v2"

var pieceValues = map[nchess.PieceType]int{
	nchess.Pawn:   1,
	nchess.Knight: 3,
	nchess.Bishop: 3,
	nchess.Rook:   5,
	nchess.Queen:  9,
}

// CapturedPiece is one entry of the ledger; list order is capture order.
type CapturedPiece struct {
	Kind  nchess.PieceType
	Color nchess.Color
	Ply   int
}

// Ledger keeps the pieces each side has taken. Append-only.
type Ledger struct {
	white []CapturedPiece
	black []CapturedPiece
}

func NewLedger() *Ledger { return &Ledger{} }

// Record appends piece under capturingSide. ply is the 1-based ply of the
// capturing move.
func (l *Ledger) Record(piece nchess.Piece, capturingSide nchess.Color, ply int) {
	if piece == nchess.NoPiece {
		return
	}
	entry := CapturedPiece{Kind: piece.Type(), Color: piece.Color(), Ply: ply}
	switch capturingSide {
	case nchess.White:
		l.white = append(l.white, entry)
	case nchess.Black:
		l.black = append(l.black, entry)
	}
}

// RecordOutcome records o when it is a capture.
func (l *Ledger) RecordOutcome(o CaptureOutcome, ply int) {
	if !o.Captured {
		return
	}
	l.Record(o.Piece, o.By, ply)
}

func (l *Ledger) Snapshot(side nchess.Color) []CapturedPiece {
	var src []CapturedPiece
	switch side {
	case nchess.White:
		src = l.white
	case nchess.Black:
		src = l.black
	}
	out := make([]CapturedPiece, len(src))
	copy(out, src)
	return out
}

func (l *Ledger) Count(side nchess.Color) int {
	switch side {
	case nchess.White:
		return len(l.white)
	case nchess.Black:
		return len(l.black)
	}
	return 0
}

// MaterialFor sums the standard values of everything side has captured.
func (l *Ledger) MaterialFor(side nchess.Color) int {
	total := 0
	for _, c := range l.Snapshot(side) {
		total += pieceValues[c.Kind]
	}
	return total
}

// Clone copies the ledger for read-only consumers.
func (l *Ledger) Clone() *Ledger {
	return &Ledger{white: l.Snapshot(nchess.White), black: l.Snapshot(nchess.Black)}
}
