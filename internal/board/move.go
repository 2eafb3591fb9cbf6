package board

import (
	"errors"
	"fmt"
	"strings"

	nchess "github.com/corentings/chess/v2"
)

var (
	ErrIllegalMove       = errors.New("illegal move")
	ErrPromotionRequired = errors.New("promotion piece required")
	ErrMalformedMove     = errors.New("malformed move")
)

// Move is a from/to pair with an optional promotion kind.
type Move struct {
	From      nchess.Square
	To        nchess.Square
	Promotion nchess.PieceType
}

// IllegalMoveError reports a move outside the oracle's legal set for the
// position it was offered to.
type IllegalMoveError struct {
	Move Move
	FEN  string
}

func (e *IllegalMoveError) Error() string {
	return fmt.Sprintf("illegal move %s in position %s", e.Move, e.FEN)
}

func (e *IllegalMoveError) Is(target error) bool {
	return target == ErrIllegalMove
}

// ParseMove decodes long algebraic (UCI) text such as "e2e4" or "e7e8q".
func ParseMove(text string) (Move, error) {
	s := strings.ToLower(strings.TrimSpace(text))
	if len(s) != 4 && len(s) != 5 {
		return Move{}, fmt.Errorf("%w: %q", ErrMalformedMove, text)
	}
	from, ok := parseSquare(s[0:2])
	if !ok {
		return Move{}, fmt.Errorf("%w: %q", ErrMalformedMove, text)
	}
	to, ok := parseSquare(s[2:4])
	if !ok {
		return Move{}, fmt.Errorf("%w: %q", ErrMalformedMove, text)
	}
	mv := Move{From: from, To: to, Promotion: nchess.NoPieceType}
	if len(s) == 5 {
		kind, ok := promotionKinds[s[4]]
		if !ok {
			return Move{}, fmt.Errorf("%w: bad promotion in %q", ErrMalformedMove, text)
		}
		mv.Promotion = kind
	}
	return mv, nil
}

// MustParseMove is ParseMove for literals known to be well formed.
func MustParseMove(text string) Move {
	mv, err := ParseMove(text)
	if err != nil {
		panic(err)
	}
	return mv
}

// ParseSquare decodes a square name such as "e4".
func ParseSquare(text string) (nchess.Square, error) {
	sq, ok := parseSquare(strings.ToLower(strings.TrimSpace(text)))
	if !ok {
		return nchess.NoSquare, fmt.Errorf("invalid square %q", text)
	}
	return sq, nil
}

func (m Move) String() string {
	var sb strings.Builder
	sb.WriteString(squareName(m.From))
	sb.WriteString(squareName(m.To))
	if letter, ok := promotionLetters[m.Promotion]; ok {
		sb.WriteByte(letter)
	}
	return sb.String()
}

// WithPromotion returns a copy of m carrying kind.
func (m Move) WithPromotion(kind nchess.PieceType) Move {
	m.Promotion = kind
	return m
}

func (m Move) sameSquares(v *nchess.Move) bool {
	return v.S1() == m.From && v.S2() == m.To
}

func fromLibrary(v *nchess.Move) Move {
	return Move{From: v.S1(), To: v.S2(), Promotion: v.Promo()}
}

var promotionKinds = map[byte]nchess.PieceType{
	'q': nchess.Queen,
	'r': nchess.Rook,
	'b': nchess.Bishop,
	'n': nchess.Knight,
}

var promotionLetters = map[nchess.PieceType]byte{
	nchess.Queen:  'q',
	nchess.Rook:   'r',
	nchess.Bishop: 'b',
	nchess.Knight: 'n',
}

func parseSquare(s string) (nchess.Square, bool) {
	if len(s) != 2 {
		return nchess.NoSquare, false
	}
	file, rank := s[0], s[1]
	if file < 'a' || file > 'h' || rank < '1' || rank > '8' {
		return nchess.NoSquare, false
	}
	return nchess.NewSquare(nchess.File(file-'a'), nchess.Rank(rank-'1')), true
}

func squareName(sq nchess.Square) string {
	if sq < nchess.A1 || sq > nchess.H8 {
		return "--"
	}
	return string([]byte{byte('a' + int(sq.File())), byte('1' + int(sq.Rank()))})
}

// SquareName renders sq in algebraic form ("e4").
func SquareName(sq nchess.Square) string { return squareName(sq) }
