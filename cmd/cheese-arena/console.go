package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/park285/cheese-arena/internal/board"
	"github.com/park285/cheese-arena/pkg/arenadto"
)

// readConsole turns typed lines into input events:
//
//	e2e4 | e7e8q     select + drop (+ promote)
//	select e2 | drop e4 | promote q
//	pause | abandon
func readConsole(ctx context.Context, r io.Reader, out chan<- arenadto.InputEvent, logger *zap.Logger) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		events, err := parseConsoleLine(sc.Text())
		if err != nil {
			logger.Info("console_input_invalid", zap.String("line", sc.Text()), zap.Error(err))
			continue
		}
		for _, ev := range events {
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}
}

func parseConsoleLine(text string) ([]arenadto.InputEvent, error) {
	fields := strings.Fields(strings.ToLower(text))
	if len(fields) == 0 {
		return nil, nil
	}
	switch fields[0] {
	case "pause":
		return []arenadto.InputEvent{{Type: arenadto.InputPause}}, nil
	case "abandon", "quit":
		return []arenadto.InputEvent{{Type: arenadto.InputAbandon}}, nil
	case "select", "drop", "promote":
		if len(fields) != 2 {
			return nil, fmt.Errorf("%s needs one argument", fields[0])
		}
		ev := arenadto.InputEvent{Type: arenadto.InputType(fields[0])}
		if fields[0] == "promote" {
			ev.Piece = fields[1]
		} else {
			ev.Square = fields[1]
		}
		return []arenadto.InputEvent{ev}, nil
	}

	mv, err := board.ParseMove(fields[0])
	if err != nil {
		return nil, err
	}
	events := []arenadto.InputEvent{
		{Type: arenadto.InputSelect, Square: board.SquareName(mv.From)},
		{Type: arenadto.InputDrop, Square: board.SquareName(mv.To)},
	}
	if len(fields[0]) == 5 {
		events = append(events, arenadto.InputEvent{Type: arenadto.InputPromote, Piece: fields[0][4:]})
	}
	return events, nil
}
