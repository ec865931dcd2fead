// Command fishnet is the distributed analysis client: it drives a local
// Stockfish subprocess pool against the lichess.org fishnet coordinator.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/lichess-org/fishnet-go/internal/fishnet/config"
	"github.com/lichess-org/fishnet-go/internal/fishnet/cpuprobe"
	"github.com/lichess-org/fishnet-go/internal/fishnet/download"
	"github.com/lichess-org/fishnet-go/internal/fishnet/supervisor"
	"github.com/lichess-org/fishnet-go/internal/fishnet/systemdunit"
	"github.com/lichess-org/fishnet-go/internal/fishnet/transport"
	"github.com/lichess-org/fishnet-go/internal/fishnet/wizard"
	"github.com/seekerror/build"
	"github.com/seekerror/logw"
)

// version is this client's own release, stamped the way morlock stamps its
// own engine version.
var version = build.NewVersion(1, 0, 0)

const githubRepo = "lichess-org/fishnet-go"

// Exit codes mirror internal/fishnet/supervisor's, reproduced here so the
// flag-parsing and config-loading paths (which run before a Supervisor
// exists) can return them directly.
const (
	exitOK          = supervisor.ExitOK
	exitConfigError = supervisor.ExitConfigError
)

type globalFlags struct {
	verbosity      int
	showVersion    bool
	autoUpdate     bool
	confPath       string
	noConf         bool
	key            string
	cores          string
	memory         string
	endpoint       string
	engineDir      string
	stockfishCmd   string
	threadsPerProc string
	fixedBackoff   bool
	noFixedBackoff bool
	engineOptions  map[string]string
}

// verboseFlag implements flag.Value as a repeatable counter, the idiomatic
// Go stand-in for argparse's action="count".
type verboseFlag struct{ n *int }

func (v verboseFlag) String() string { return "" }
func (v verboseFlag) Set(string) error {
	*v.n++
	return nil
}
func (v verboseFlag) IsBoolFlag() bool { return true }

func main() {
	ctx := context.Background()
	os.Exit(run(ctx, os.Args[1:]))
}

func run(ctx context.Context, args []string) int {
	sub := "run"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		sub = args[0]
		args = args[1:]
	}

	args, setOptions := extractSetOptions(args)

	fs := flag.NewFlagSet("fishnet", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprint(os.Stderr, `usage: fishnet [run|configure|systemd|cpuid] [options]

Distributed analysis client for lichess.org.
Options:
`)
		fs.PrintDefaults()
	}

	var g globalFlags
	g.engineOptions = setOptions

	fs.Var(verboseFlag{&g.verbosity}, "verbose", "Verbosity counter (repeatable; does not change the log level)")
	fs.Var(verboseFlag{&g.verbosity}, "v", "Verbosity counter (repeatable; does not change the log level)")
	fs.BoolVar(&g.showVersion, "version", false, "Print the client version and exit")
	fs.BoolVar(&g.autoUpdate, "auto-update", false, "Automatically stop for updates")
	fs.StringVar(&g.confPath, "conf", "fishnet.ini", "Configuration file")
	fs.BoolVar(&g.noConf, "no-conf", false, "Do not use a configuration file")
	fs.StringVar(&g.key, "key", "", "Personal fishnet API key")
	fs.StringVar(&g.cores, "cores", "", "Number of cores to use (\"auto\", \"all\" or a number)")
	fs.StringVar(&g.memory, "memory", "", "Memory in MB for engine hash tables (\"auto\" or a number)")
	fs.StringVar(&g.endpoint, "endpoint", "", "Fishnet API endpoint")
	fs.StringVar(&g.engineDir, "engine-dir", "", "Engine working directory")
	fs.StringVar(&g.stockfishCmd, "stockfish-command", "", "Path or command to run the engine (\"download\" to self-update)")
	fs.StringVar(&g.threadsPerProc, "threads-per-process", "", "Threads per engine process")
	fs.BoolVar(&g.fixedBackoff, "fixed-backoff", false, "Use fixed backoff (recommended for move servers)")
	fs.BoolVar(&g.noFixedBackoff, "no-fixed-backoff", false, "Use expanding backoff (default)")

	if err := fs.Parse(args); err != nil {
		return exitConfigError
	}

	if g.showVersion {
		fmt.Printf("fishnet v%v\n", version)
		return exitOK
	}

	if sub != "systemd" {
		printIntro()
	}

	switch sub {
	case "cpuid":
		return cmdCPUID()
	case "systemd":
		return cmdSystemd(g, args)
	case "configure":
		return cmdConfigure(ctx, g)
	case "run":
		return cmdRun(ctx, g)
	default:
		fs.Usage()
		return exitConfigError
	}
}

func extractSetOptions(args []string) ([]string, map[string]string) {
	options := map[string]string{}
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		if args[i] == "--setoption" && i+2 < len(args) {
			options[args[i+1]] = args[i+2]
			i += 2
			continue
		}
		out = append(out, args[i])
	}
	return out, options
}

func printIntro() {
	fmt.Fprintf(os.Stderr, `
             _________ _     _
    /\      | ,_ , _ / `+"`"+` \  / | fishnet-go v%v
   /  \     | | | | | |  |  || |
  / /\ \    | | | | | '--'  || | Distributed Stockfish analysis
 /_/  \_\   |_| |_| |________| for lichess.org

`, version)
}

func cmdCPUID() int {
	c := cpuprobe.Detect()
	fmt.Printf("vendor: %v\n", c.Vendor)
	fmt.Printf("modern (popcnt): %v\n", c.Modern)
	fmt.Printf("bmi2: %v\n", c.BMI2)
	return exitOK
}

func cmdSystemd(g globalFlags, rawArgs []string) int {
	exe, err := os.Executable()
	if err != nil {
		exe = "fishnet"
	}

	execArgs := make([]string, 0, len(rawArgs)+1)
	if !g.noConf {
		execArgs = append(execArgs, "--conf", g.confPath)
	} else {
		execArgs = append(execArgs, "--no-conf")
		if g.key != "" {
			execArgs = append(execArgs, "--key", g.key)
		}
		if g.engineDir != "" {
			execArgs = append(execArgs, "--engine-dir", g.engineDir)
		}
		if g.cores != "" {
			execArgs = append(execArgs, "--cores", g.cores)
		}
		if g.memory != "" {
			execArgs = append(execArgs, "--memory", g.memory)
		}
		if g.threadsPerProc != "" {
			execArgs = append(execArgs, "--threads-per-process", g.threadsPerProc)
		}
		if g.endpoint != "" {
			execArgs = append(execArgs, "--endpoint", g.endpoint)
		}
		if g.fixedBackoff {
			execArgs = append(execArgs, "--fixed-backoff")
		}
	}
	execArgs = append(execArgs, "run")

	out, err := systemdunit.Render(systemdunit.Params{
		User:       "fishnet",
		Group:      "fishnet",
		WorkingDir: g.engineDir,
		Executable: exe,
		Args:       execArgs,
	}, os.Geteuid() == 0)
	if err != nil {
		logw.Errorf(context.Background(), "could not render systemd unit: %v", err)
		return exitConfigError
	}
	fmt.Print(out)
	return exitOK
}

func cmdConfigure(ctx context.Context, g globalFlags) int {
	c, err := config.Load(pathOrEmpty(g))
	if err != nil {
		logw.Errorf(ctx, "%v", err)
		return exitConfigError
	}

	validator := keyValidatorFor(g)
	result, err := wizard.Run(ctx, wizard.IO{In: bufio.NewReader(os.Stdin), Out: os.Stderr}, c, validator)
	if err != nil {
		logw.Errorf(ctx, "%v", err)
		return exitConfigError
	}

	savePath := g.confPath
	if savePath == "" {
		savePath = "fishnet.ini"
	}
	if err := result.Save(savePath); err != nil {
		logw.Errorf(ctx, "%v", err)
		return exitConfigError
	}
	return exitOK
}

func cmdRun(ctx context.Context, g globalFlags) int {
	c, err := config.Load(pathOrEmpty(g))
	if err != nil {
		logw.Errorf(ctx, "%v", err)
		return exitConfigError
	}

	validator := keyValidatorFor(g)
	resolved, err := config.Resolve(ctx, c, overrideFromFlags(g), validator)
	if err != nil {
		logw.Errorf(ctx, "%v", err)
		return exitConfigError
	}

	client := transport.New(resolved.Endpoint, fmt.Sprintf("fishnet-go/%v", version))

	d := download.New(download.DefaultClient(), fmt.Sprintf("fishnet-go/%v", version), os.Getenv("GITHUB_API_TOKEN"))

	engineCommand, err := resolveEngineCommand(ctx, d, resolved)
	if err != nil {
		logw.Errorf(ctx, "%v", err)
		return exitConfigError
	}

	nnueFiles, err := d.EnsureNNUENets(ctx, resolved.EngineDir, c.NNUENets())
	if err != nil {
		logw.Errorf(ctx, "%v", err)
		return exitConfigError
	}

	checker := download.NewGithubReleaseChecker(download.DefaultClient(), githubRepo, fmt.Sprintf("fishnet-go/%v", version), os.Getenv("GITHUB_API_TOKEN"), version.String())

	s := supervisor.New(supervisor.Config{
		Cores:             resolved.Cores,
		ThreadsPerProcess: resolved.Threads,
		MemoryMB:          resolved.Memory,
		FixedBackoff:      resolved.FixedBackoff,
		EngineCommand:     engineCommand,
		EngineDir:         resolved.EngineDir,
		EngineOptions:     resolved.EngineOptions,
		NNUEFiles:         nnueFiles,
		FishnetVersion:    version.String(),
		APIKey:            resolved.Key,
		AutoUpdate:        g.autoUpdate,
	}, client, checker)

	return s.Run(ctx)
}

// resolveEngineCommand returns the argv to spawn the engine with, downloading
// a precompiled binary if StockfishCommand is empty or "download".
func resolveEngineCommand(ctx context.Context, d *download.Downloader, resolved *config.Resolved) ([]string, error) {
	cmd := strings.TrimSpace(resolved.StockfishCommand)
	if cmd != "" && strings.ToLower(cmd) != "download" {
		return strings.Fields(cmd), nil
	}

	caps := cpuprobe.Detect()
	filename := download.EngineFilename(caps)

	path, err := d.EnsureEngine(ctx, resolved.EngineDir, filename)
	if err != nil {
		return nil, err
	}
	return []string{path}, nil
}

func pathOrEmpty(g globalFlags) string {
	if g.noConf {
		return ""
	}
	return g.confPath
}

func overrideFromFlags(g globalFlags) config.Resolved {
	o := config.Resolved{
		EngineDir:        g.engineDir,
		StockfishCommand: g.stockfishCmd,
		Key:              g.key,
		Endpoint:         g.endpoint,
		EngineOptions:    g.engineOptions,
	}
	switch {
	case g.fixedBackoff:
		o.FixedBackoff, o.FixedBackoffSet = true, true
	case g.noFixedBackoff:
		o.FixedBackoff, o.FixedBackoffSet = false, true
	}
	o.CoresRaw = g.cores
	o.ThreadsRaw = g.threadsPerProc
	o.MemoryRaw = g.memory
	return o
}

// httpKeyValidator validates a fishnet key against GET key/<key>, matching
// validate_key's network=True path in the original client.
type httpKeyValidator struct {
	client *transport.Client
}

func (v httpKeyValidator) ValidateKey(ctx context.Context, key string) error {
	resp, err := v.client.Get(ctx, "key/"+key)
	if err != nil {
		return err
	}
	if resp.Status == 404 {
		return fmt.Errorf("invalid or inactive fishnet key")
	}
	return nil
}

func keyValidatorFor(g globalFlags) config.KeyValidator {
	endpoint := config.ValidateEndpoint(g.endpoint)
	return httpKeyValidator{client: transport.New(endpoint, fmt.Sprintf("fishnet-go/%v", version))}
}
