package uciclient

import (
	"context"
	"strings"
)

// ModdedVariant computes the effective variant sent to the engine for certain
// template variants that require a compatibility name when the initial
// placement's king sits on a non-default file. It is idempotent:
// ModdedVariant(ModdedVariant(v,c,f),c,f) == ModdedVariant(v,c,f), since the
// only rewrite target ("embassy"/"embassyhouse") never matches its own input
// condition again.
func ModdedVariant(variant string, chess960 bool, initialFEN string) string {
	if chess960 || initialFEN == "" {
		return variant
	}
	if variant != "capablanca" && variant != "capahouse" {
		return variant
	}

	fields := strings.Fields(initialFEN)
	if len(fields) < 3 || fields[2] == "-" {
		return variant
	}
	ranks := strings.Split(fields[0], "/")
	if len(ranks) != 8 {
		return variant
	}

	castling := fields[2]
	whiteCastles := strings.ContainsAny(castling, "KQ")
	blackCastles := strings.ContainsAny(castling, "kq")
	if whiteCastles && fileOf('K', ranks[7]) == 4 && blackCastles && fileOf('k', ranks[0]) == 4 {
		if strings.Contains(variant, "house") {
			return "embassyhouse"
		}
		return "embassy"
	}
	return variant
}

// fileOf returns the 0-based file of piece in rank, or -1 if absent.
func fileOf(piece byte, rank string) int {
	file := 0
	for i := 0; i < len(rank); i++ {
		c := rank[i]
		if c == piece {
			return file
		}
		if c >= '1' && c <= '9' {
			file += int(c - '0')
		} else {
			file++
		}
	}
	return -1
}

// EffectiveUCIVariant maps the fishnet-level variant name to the value sent
// as UCI_Variant: the three "vanilla chess" template variants collapse to
// the engine's "chess" variant name.
func EffectiveUCIVariant(variant string) string {
	switch variant {
	case "standard", "fromposition", "chess960":
		return "chess"
	default:
		return variant
	}
}

// NNUEAlias maps a handful of variants onto the network key they share with
// another variant, matching the original client's NNUE_ALIAS table: Cambodian
// chess plays on the Makruk net, and the literal "chess" and "placement"
// variants both use the standard net ("nn").
var NNUEAlias = map[string]string{
	"cambodian": "makruk",
	"chess":     "nn",
	"placement": "nn",
}

// NNUENetKey returns the key under which variant's local NNUE network file
// is looked up: its NNUEAlias target if aliased, otherwise variant itself.
// "standard"/"fromposition"/"chess960" deliberately have no alias entry, so
// they resolve to their own name and — absent an operator-supplied net under
// that key — fall back to the engine's own compiled-in default network.
func NNUENetKey(variant string) string {
	if alias, ok := NNUEAlias[variant]; ok {
		return alias
	}
	return variant
}

// ConfigureVariant sets UCI_Chess960, EvalFile (if nnuePath is non-empty) and
// UCI_Variant for the given job parameters.
func (c *Client) ConfigureVariant(ctx context.Context, variant string, chess960 bool, nnuePath string) error {
	if err := c.SetOption(ctx, "UCI_Chess960", chess960); err != nil {
		return err
	}
	if nnuePath != "" {
		if err := c.SetOption(ctx, "EvalFile", nnuePath); err != nil {
			return err
		}
	}
	return c.SetOption(ctx, "UCI_Variant", EffectiveUCIVariant(variant))
}
