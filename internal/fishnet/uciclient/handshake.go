// Package uciclient implements a strict client for the engine's line-oriented
// move/evaluation protocol: handshake, ready synchronization, option setting,
// variant configuration, search invocation and incremental result parsing.
// It is built entirely on top of the send/recv primitives in enginechan.
package uciclient

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/lichess-org/fishnet-go/internal/fishnet/enginechan"
	"github.com/seekerror/logw"
)

// Identification is what the engine reported about itself during the
// handshake: its id fields (at minimum "name" and usually "author") and the
// set of UCI_Variant values it advertises support for.
type Identification struct {
	Fields   map[string]string
	Variants map[string]bool
}

// Name is a convenience accessor for the most commonly needed id field.
func (id Identification) Name() string {
	return id.Fields["name"]
}

// Client drives one engine subprocess through the UCI dialogue. It is not
// safe for concurrent use — the worker loop that owns it serializes all
// calls, matching the ordering guarantee that setoption -> isready -> position
// -> go -> bestmove is strictly sequential.
type Client struct {
	ch *enginechan.Channel
	id Identification
}

// Handshake sends "uci" and accumulates the identification and supported
// variants until "uciok". Unrecognized lines are warned, not fatal.
func Handshake(ctx context.Context, ch *enginechan.Channel) (*Client, error) {
	if err := send(ctx, ch, "uci"); err != nil {
		return nil, err
	}

	id := Identification{
		Fields:   map[string]string{},
		Variants: map[string]bool{},
	}

	for {
		line, err := recv(ctx, ch)
		if err != nil {
			return nil, err
		}

		switch {
		case line == "uciok":
			return &Client{ch: ch, id: id}, nil

		case strings.HasPrefix(line, "id "):
			rest := strings.TrimPrefix(line, "id ")
			parts := strings.SplitN(rest, " ", 2)
			if len(parts) == 2 {
				id.Fields[parts[0]] = parts[1]
			}

		case strings.HasPrefix(line, "option "):
			parseVariantOption(line, id.Variants)

		default:
			logw.Warningf(ctx, "Unexpected engine response to uci: %v", line)
		}
	}
}

// parseVariantOption extracts the supported-variant set out of the one
// option line the dialogue cares about:
//
//	option name UCI_Variant type combo default chess var chess var crazyhouse …
func parseVariantOption(line string, variants map[string]bool) {
	const marker = "name UCI_Variant type combo default "
	idx := strings.Index(line, marker)
	if idx < 0 {
		return
	}
	fields := strings.Fields(line[idx+len(marker):])
	for _, f := range fields {
		if f != "var" {
			variants[f] = true
		}
	}
}

// Identification returns the engine's handshake identification.
func (c *Client) Identification() Identification {
	return c.id
}

// WaitReady sends "isready" and consumes lines until "readyok". info string
// lines emitted during sync are discarded, matching the protocol's allowance
// for asynchronous diagnostics mid-sync.
func (c *Client) WaitReady(ctx context.Context) error {
	if err := send(ctx, c.ch, "isready"); err != nil {
		return err
	}
	for {
		line, err := recv(ctx, c.ch)
		if err != nil {
			return err
		}
		if line == "readyok" {
			return nil
		}
		if strings.HasPrefix(line, "info string") {
			continue
		}
		logw.Warningf(ctx, "Unexpected engine response to isready: %v", line)
	}
}

// SetOption sends "setoption name N value V". Booleans serialize as
// true/false; a nil value serializes as "none".
func (c *Client) SetOption(ctx context.Context, name string, value any) error {
	return send(ctx, c.ch, fmt.Sprintf("setoption name %v value %v", name, formatOptionValue(value)))
}

func formatOptionValue(value any) string {
	switch v := value.(type) {
	case nil:
		return "none"
	case bool:
		if v {
			return "true"
		}
		return "false"
	case int:
		return strconv.Itoa(v)
	case string:
		return v
	default:
		return fmt.Sprintf("%v", v)
	}
}

// NewGame sends "ucinewgame".
func (c *Client) NewGame(ctx context.Context) error {
	return send(ctx, c.ch, "ucinewgame")
}

// Quit sends "quit". The caller is still responsible for reaping the process
// (via enginechan.Channel.Kill) if the engine does not exit promptly.
func (c *Client) Quit(ctx context.Context) error {
	return send(ctx, c.ch, "quit")
}

func send(ctx context.Context, ch *enginechan.Channel, line string) error {
	logw.Debugf(ctx, "engine << %v", line)
	return ch.Send(line)
}

func recv(ctx context.Context, ch *enginechan.Channel) (string, error) {
	line, err := ch.Recv()
	if err != nil {
		return "", err
	}
	logw.Debugf(ctx, "engine >> %v", line)
	return line, nil
}
