package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/MeNameek/camerasystem/internal/core/domain"
)

// switcher is the part of the viewer orchestrator driven from stdin.
type switcher interface {
	Next() error
	Previous() error
	Select(source domain.ParticipantID) error
	Sources() []domain.ParticipantID
	Active() domain.ParticipantID
	Pending() domain.ParticipantID
}

type flipper interface {
	Flip(ctx context.Context) error
	Facing() domain.Facing
}

// readCommands feeds stdin lines to handle until EOF or ctx is done.
func readCommands(ctx context.Context, in io.Reader, handle func(line string)) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		handle(line)
	}
}

func viewerCommand(v switcher, out io.Writer, line string) error {
	fields := strings.Fields(line)
	switch fields[0] {
	case "n", "next":
		return v.Next()
	case "p", "prev", "previous":
		return v.Previous()
	case "s", "select":
		if len(fields) != 2 {
			return fmt.Errorf("usage: select <source id>")
		}
		return v.Select(domain.ParticipantID(fields[1]))
	case "l", "list":
		active, pending := v.Active(), v.Pending()
		for _, id := range v.Sources() {
			marker := " "
			switch id {
			case active:
				marker = "*"
			case pending:
				marker = "~"
			}
			fmt.Fprintf(out, "%s %s\n", marker, id)
		}
		return nil
	default:
		return fmt.Errorf("unknown command %q (next, prev, select <id>, list)", fields[0])
	}
}

func sourceCommand(ctx context.Context, s flipper, out io.Writer, line string) error {
	switch line {
	case "f", "flip":
		if err := s.Flip(ctx); err != nil {
			return err
		}
		fmt.Fprintf(out, "facing %s\n", s.Facing())
		return nil
	default:
		return fmt.Errorf("unknown command %q (flip)", line)
	}
}
