package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/chzyer/readline"
)

const consoleHelp = `commands:
  list [prefix]               known parameters
  set <id>[:partial] <value>  write a parameter
  get <id>[:partial]          read a parameter
  load <bank> <program>       bank select + program change
  identify                    identity handshake
  play [notes]                test notes, or e.g. "C4 E4 G4"
  chord                       C minor 7 chord
  status                      session state
  help                        this text
  quit                        leave
`

type console struct {
	app *app
	out io.Writer
	mu  sync.Mutex
}

func (c *console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

// exec runs one input line. It returns false when the console should exit.
func (c *console) exec(ctx context.Context, line string) bool {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return true
	}
	cmd, args := strings.ToLower(parts[0]), parts[1:]

	var buf strings.Builder
	var err error
	switch cmd {
	case "help", "?":
		buf.WriteString(consoleHelp)
	case "list", "ls":
		prefix := ""
		if len(args) > 0 {
			prefix = args[0]
		}
		err = listParameters(&buf, c.app.ctrl.Registry(), prefix)
	case "set", "s":
		err = cmdSet(ctx, c.app, &buf, args)
	case "get", "g":
		err = cmdGet(ctx, c.app, &buf, args)
	case "load", "l":
		err = cmdLoad(ctx, c.app, &buf, args)
	case "identify", "id":
		err = c.identify(ctx, &buf)
	case "play", "p":
		if len(args) == 0 {
			err = playTestNotes(c.app.session, c.app.channel())
		} else {
			err = playNotesFromText(c.app.session, c.app.channel(), strings.Join(args, " "))
		}
	case "chord":
		err = playMinor7Chord(c.app.session, c.app.channel())
	case "status":
		c.status(&buf)
	case "quit", "exit", "q":
		return false
	default:
		err = fmt.Errorf("unknown command %q, try help", cmd)
	}

	if err != nil {
		c.printf("error: %v\n", err)
		return true
	}
	c.printf("%s", buf.String())
	return true
}

func (c *console) identify(ctx context.Context, w io.Writer) error {
	id, err := c.app.ctrl.Identify(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, id)
	return nil
}

func (c *console) status(w io.Writer) {
	fmt.Fprintf(w, "session  %s\n", c.app.session.ID())
	fmt.Fprintf(w, "pending  %d\n", c.app.session.Pending())
	fmt.Fprintf(w, "preset   %s\n", c.app.ctrl.Sequencer().State())
	if id, ok := c.app.ctrl.Identity(); ok {
		fmt.Fprintf(w, "device   %s\n", id)
	} else {
		fmt.Fprintln(w, "device   not identified")
	}
}

func runConsole(ctx context.Context, a *app) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "jdxi> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	defer rl.Close()

	c := &console{app: a, out: rl.Stdout()}
	watch(a, rl.Stdout(), &c.mu)
	c.printf("%s", consoleHelp)

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if err != nil {
			return nil
		}
		if !c.exec(ctx, line) {
			return nil
		}
	}
}
