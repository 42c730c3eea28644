package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/rs/zerolog/log"
)

const usage = `commands:
  call <user-id> [voice|video]
  answer
  reject
  hangup
  mute
  video
  status
  quit`

var errUnknownCommand = errors.New("unknown command")

type phone interface {
	StartCall(ctx context.Context, remote domain.Party, kind domain.CallKind) error
	AnswerCall(ctx context.Context, in domain.IncomingCall) error
	RejectCall() error
	EndCall()
	ToggleMute() bool
	ToggleVideo() bool
	Snapshot() domain.Snapshot
}

// console drives a phone from line commands. Calls that acquire media run
// in the background so hangup stays responsive.
type console struct {
	phone phone
	out   io.Writer
	wg    sync.WaitGroup
}

func newConsole(p phone, out io.Writer) *console {
	return &console{phone: p, out: out}
}

// run reads commands until quit, end of input or ctx is done.
func (c *console) run(ctx context.Context, in io.Reader) error {
	readCtx, stopReading := context.WithCancel(ctx)
	defer stopReading()

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-readCtx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			quit, err := c.exec(ctx, line)
			if err != nil {
				fmt.Fprintf(c.out, "error: %v\n", err)
			}
			if quit {
				return nil
			}
		}
	}
}

func (c *console) exec(ctx context.Context, line string) (bool, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}

	switch cmd, args := fields[0], fields[1:]; cmd {
	case "call":
		return false, c.call(ctx, args)
	case "answer":
		snap := c.phone.Snapshot()
		if snap.Incoming == nil {
			return false, domain.ErrNotRinging
		}
		in := *snap.Incoming
		c.async("answer", func() error { return c.phone.AnswerCall(ctx, in) })
	case "reject":
		return false, c.phone.RejectCall()
	case "hangup":
		c.phone.EndCall()
	case "mute":
		fmt.Fprintf(c.out, "muted: %t\n", c.phone.ToggleMute())
	case "video":
		fmt.Fprintf(c.out, "video off: %t\n", c.phone.ToggleVideo())
	case "status":
		c.printStatus(c.phone.Snapshot())
	case "help":
		fmt.Fprintln(c.out, usage)
	case "quit", "exit":
		return true, nil
	default:
		return false, fmt.Errorf("%w %q, try help", errUnknownCommand, cmd)
	}
	return false, nil
}

func (c *console) call(ctx context.Context, args []string) error {
	if len(args) == 0 || len(args) > 2 {
		return errors.New("usage: call <user-id> [voice|video]")
	}
	id, err := domain.NewUserIDFromString(args[0])
	if err != nil {
		return fmt.Errorf("bad user id: %w", err)
	}
	kind := domain.KindVoice
	if len(args) == 2 {
		kind = domain.CallKind(args[1])
	}
	if !kind.Valid() {
		return domain.ErrInvalidKind
	}

	c.async("call", func() error {
		return c.phone.StartCall(ctx, domain.Party{ID: id}, kind)
	})
	return nil
}

func (c *console) async(op string, fn func() error) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := fn(); err != nil {
			log.Warn().Err(err).Str("op", op).Msg("Command failed")
			fmt.Fprintf(c.out, "%s failed: %v\n", op, err)
		}
	}()
}

func (c *console) wait() {
	c.wg.Wait()
}

func (c *console) printStatus(s domain.Snapshot) {
	fmt.Fprintf(c.out, "state: %s\n", s.State)
	if s.Remote != nil {
		fmt.Fprintf(c.out, "remote: %s %s\n", s.Remote.ID, s.Remote.DisplayName)
	}
	if s.State == domain.StateActive {
		fmt.Fprintf(c.out, "kind: %s duration: %ds muted: %t video off: %t\n", s.Kind, s.DurationSeconds, s.Muted, s.VideoOff)
	}
	if s.Incoming != nil {
		fmt.Fprintf(c.out, "incoming %s call from %s\n", s.Incoming.Kind, s.Incoming.Caller.ID)
	}
	if s.EndReason != domain.EndNone {
		fmt.Fprintf(c.out, "last call: %s\n", s.EndReason)
	}
}
