// Package wizard implements the interactive `configure` setup: prompting
// for the engine directory, cores, threads, memory, endpoint and API key,
// validating each answer the same way config.Resolve does, and writing the
// accepted values back into a config.Config for the caller to save.
package wizard

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"runtime"
	"strconv"
	"strings"

	"github.com/lichess-org/fishnet-go/internal/fishnet/config"
	"github.com/lichess-org/fishnet-go/internal/fishnet/variants"
)

// IO bundles the prompt streams so the wizard is testable without a real
// terminal.
type IO struct {
	In  io.Reader
	Out io.Writer
}

// Run drives the interactive prompts, writing the accepted answers into
// existing (which may be nil, meaning "start from a blank file" — any
// section existing already carried, such as passthrough engine options, is
// preserved). validator is used to confirm the entered key against the
// coordinator; it may be nil to skip network validation.
func Run(ctx context.Context, streams IO, existing *config.Config, validator config.KeyValidator) (*config.Config, error) {
	r := bufio.NewReader(streams.In)
	fmt.Fprintln(streams.Out)
	fmt.Fprintln(streams.Out, "### Configuration")
	fmt.Fprintln(streams.Out)

	c := existing
	if c == nil {
		c = &config.Config{}
	}

	engineDir, err := prompt(r, streams.Out, "Stockfish working directory (default: .): ", func(in string) (string, error) {
		return config.ValidateEngineDir(in)
	})
	if err != nil {
		return nil, err
	}
	c.Set("EngineDir", engineDir)

	maxCores := runtime.NumCPU()
	defaultCores := maxCores - 1
	if defaultCores < 1 {
		defaultCores = 1
	}
	coresRaw, err := prompt(r, streams.Out, fmt.Sprintf("Number of cores to use for engine threads (default %d, max %d): ", defaultCores, maxCores), func(in string) (string, error) {
		n, err := config.ValidateCores(in)
		return strconv.Itoa(n), err
	})
	if err != nil {
		return nil, err
	}
	c.Set("Cores", coresRaw)
	cores, _ := strconv.Atoi(coresRaw)

	defaultThreads := config.DefaultThreads
	if cores < defaultThreads {
		defaultThreads = cores
	}
	threadsRaw, err := prompt(r, streams.Out, fmt.Sprintf("Number of threads to use per engine process (default %d, max %d): ", defaultThreads, cores), func(in string) (string, error) {
		n, err := config.ValidateThreads(in, cores)
		return strconv.Itoa(n), err
	})
	if err != nil {
		return nil, err
	}
	c.Set("Threads", threadsRaw)
	threads, _ := strconv.Atoi(threadsRaw)

	processes := (cores + threads - 1) / threads
	if processes < 1 {
		processes = 1
	}
	memoryRaw, err := prompt(r, streams.Out, fmt.Sprintf("Memory in MB to use for engine hashtables (default: auto, min %d, max %d): ",
		config.HashMin*processes, config.HashMax*processes), func(in string) (string, error) {
		n, err := config.ValidateMemory(in, cores, threads)
		return strconv.Itoa(n), err
	})
	if err != nil {
		return nil, err
	}
	c.Set("Memory", memoryRaw)

	advanced, err := promptBool(r, streams.Out, "Configure advanced options? (default: no) ")
	if err != nil {
		return nil, err
	}

	endpoint := config.DefaultEndpoint
	fixedBackoff := false
	if advanced {
		endpointRaw, err := prompt(r, streams.Out, fmt.Sprintf("Fishnet API endpoint (default: %s): ", endpoint), func(in string) (string, error) {
			return config.ValidateEndpoint(in), nil
		})
		if err != nil {
			return nil, err
		}
		endpoint = endpointRaw

		fixedBackoff, err = promptBool(r, streams.Out, "Fixed backoff? (for move servers, default: no) ")
		if err != nil {
			return nil, err
		}

		variant, err := prompt(r, streams.Out, fmt.Sprintf("Default UCI_Variant (default: chess, one of %s): ", strings.Join(variants.List(), ", ")), func(in string) (string, error) {
			if in == "" {
				return "", nil
			}
			if !variants.Supported(in) {
				return "", fmt.Errorf("unsupported variant: %s", in)
			}
			return in, nil
		})
		if err != nil {
			return nil, err
		}
		if variant != "" {
			c.SetEngineOption("UCI_Variant", variant)
		}
	}
	c.Set("Endpoint", endpoint)
	c.Set("FixedBackoff", strconv.FormatBool(fixedBackoff))

	keyRaw, err := prompt(r, streams.Out, "Personal fishnet key (append ! to force): ", func(in string) (string, error) {
		return config.ValidateKey(ctx, in, validator)
	})
	if err != nil {
		return nil, err
	}
	c.Set("Key", keyRaw)

	return c, nil
}

// prompt repeats a single read/validate cycle until validate succeeds,
// printing the error and re-asking on failure — the same retry loop the
// original client's `while True: try/except ConfigError` blocks implement.
func prompt(r *bufio.Reader, out io.Writer, question string, validate func(string) (string, error)) (string, error) {
	for {
		fmt.Fprint(out, question)
		line, err := r.ReadString('\n')
		if err != nil && line == "" {
			return "", fmt.Errorf("wizard: read input: %w", err)
		}
		line = strings.TrimRight(line, "\r\n")

		val, verr := validate(line)
		if verr == nil {
			return val, nil
		}
		fmt.Fprintln(out, verr)
	}
}

func promptBool(r *bufio.Reader, out io.Writer, question string) (bool, error) {
	for {
		fmt.Fprint(out, question)
		line, err := r.ReadString('\n')
		if err != nil && line == "" {
			return false, fmt.Errorf("wizard: read input: %w", err)
		}
		line = strings.ToLower(strings.TrimSpace(line))

		switch line {
		case "":
			return false, nil
		case "y", "yes", "true", "t", "1", "ok":
			return true, nil
		case "n", "no", "false", "f", "0":
			return false, nil
		default:
			fmt.Fprintf(out, "not a boolean value: %s\n", line)
		}
	}
}
