// Package config reads the INI-style configuration file (spec §6), applies
// the same defaulting and validation the original client uses, and exposes
// a minimal typed-getter wrapper over the raw file — a key/value store with
// typed getters suffices per spec §9's design note, so this package does not
// grow into a general-purpose settings framework.
package config

import (
	"context"
	"fmt"
	"regexp"
	"runtime"
	"strconv"
	"strings"

	"github.com/lichess-org/fishnet-go/internal/fishnet/sysmem"
	"github.com/seekerror/logw"
	"gopkg.in/ini.v1"
)

// Defaults mirrored from the original client's constants.
const (
	DefaultEndpoint = "https://lichess.org/fishnet/"
	DefaultThreads  = 4
	HashMin         = 32
	HashDefault     = 256
	HashMax         = 512
)

const section = "Fishnet"

// KeyValidator validates a fishnet key against the coordinator, used only
// when the caller asks for network validation (the configure wizard and
// run's config resolution).
type KeyValidator interface {
	ValidateKey(ctx context.Context, key string) error
}

// Error is a configuration error. The CLI entry point maps any Error into
// exit code 78, per spec §6/§7.
type Error struct {
	msg string
}

func (e *Error) Error() string { return e.msg }

func errf(format string, args ...any) *Error {
	return &Error{msg: fmt.Sprintf(format, args...)}
}

// Config is a thin typed-getter wrapper over the parsed INI file. A nil
// *ini.File (no config file, "--no-conf") is valid: every getter then falls
// back to its zero/default value, matching conf_get's "missing section or
// key returns the default" behavior in the original client.
type Config struct {
	file *ini.File
}

// Load reads and parses path. An empty path returns an empty Config (as if
// "--no-conf" had been passed).
func Load(path string) (*Config, error) {
	if path == "" {
		return &Config{}, nil
	}
	f, err := ini.Load(path)
	if err != nil {
		return nil, errf("could not read config file %v: %v", path, err)
	}
	return &Config{file: f}, nil
}

// Save writes the Config back to path; a Config with no file behind it is
// written as an empty file.
func (c *Config) Save(path string) error {
	if c.file == nil {
		c.file = ini.Empty()
	}
	if err := c.file.SaveTo(path); err != nil {
		return errf("could not write config file %v: %v", path, err)
	}
	return nil
}

func (c *Config) get(key string) string {
	if c.file == nil {
		return ""
	}
	s := c.file.Section(section)
	if !s.HasKey(key) {
		return ""
	}
	return s.Key(key).String()
}

// Set writes key in the Fishnet section, creating the file/section on
// first use.
func (c *Config) Set(key, value string) {
	if c.file == nil {
		c.file = ini.Empty()
	}
	c.file.Section(section).Key(key).SetValue(value)
}

// EngineOptions returns every key in the optional engine-options section,
// passed through as UCI options verbatim (spec §6).
func (c *Config) EngineOptions() map[string]string {
	out := map[string]string{}
	if c.file == nil {
		return out
	}
	s := c.file.Section("Engine")
	for _, k := range s.Keys() {
		out[k.Name()] = k.String()
	}
	return out
}

// SetEngineOption writes a single passthrough UCI option into the optional
// engine-options section.
func (c *Config) SetEngineOption(name, value string) {
	if c.file == nil {
		c.file = ini.Empty()
	}
	c.file.Section("Engine").Key(name).SetValue(value)
}

// NNUENets returns every key in the optional NNUE section: a variant's
// NNUENetKey (see internal/fishnet/uciclient) mapped to the URL of its
// network-parameter file, operator-supplied since the original client's own
// per-variant net URLs come from scraping a page this client does not fetch.
func (c *Config) NNUENets() map[string]string {
	out := map[string]string{}
	if c.file == nil {
		return out
	}
	s := c.file.Section("NNUE")
	for _, k := range s.Keys() {
		out[k.Name()] = k.String()
	}
	return out
}

var keyPattern = regexp.MustCompile(`^[a-zA-Z0-9]+$`)

// ValidateKey checks the fishnet key's shape (alphanumeric, optional
// trailing "!" meaning "skip network validation"). If validator is non-nil
// and the key does not carry the "!" suffix, it also validates the key
// against the coordinator.
func ValidateKey(ctx context.Context, raw string, validator KeyValidator) (string, error) {
	key := strings.TrimSpace(raw)
	if key == "" {
		return "", errf("fishnet key required")
	}

	network := validator != nil && !strings.HasSuffix(key, "!")
	key = strings.TrimRight(key, "!")
	key = strings.TrimSpace(key)

	if !keyPattern.MatchString(key) {
		return "", errf("fishnet key is expected to be alphanumeric")
	}

	if network {
		if err := validator.ValidateKey(ctx, key); err != nil {
			return "", errf("invalid or inactive fishnet key: %v", err)
		}
	}
	return key, nil
}

// ValidateEngineDir trims engine_dir and returns it as given (relative paths
// are not made absolute). An empty value defaults to the current directory
// "."; existence is not checked here (the
// caller does that once it knows whether an engine binary will be
// downloaded into it).
func ValidateEngineDir(dir string) (string, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return ".", nil
	}
	return dir, nil
}

// ValidateCores interprets "auto" (NumCPU-1, floored at 1), "all" (NumCPU)
// or an explicit integer, matching validate_cores in the original client.
func ValidateCores(raw string) (int, error) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	numCPU := runtime.NumCPU()

	switch raw {
	case "", "auto":
		if numCPU > 1 {
			return numCPU - 1, nil
		}
		return 1, nil
	case "all":
		return numCPU, nil
	}

	cores, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errf("number of cores must be an integer")
	}
	if cores < 1 {
		return 0, errf("need at least one core")
	}
	if cores > numCPU {
		return 0, errf("at most %d cores available on your machine", numCPU)
	}
	return cores, nil
}

// ValidateThreads interprets "auto" (min(DefaultThreads, cores)) or an
// explicit integer in [1, cores]; a value above cores is rejected, matching
// validate_threads.
func ValidateThreads(raw string, cores int) (int, error) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" || raw == "auto" {
		if DefaultThreads < cores {
			return DefaultThreads, nil
		}
		return cores, nil
	}

	threads, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errf("number of threads must be an integer")
	}
	if threads < 1 {
		return 0, errf("need at least one thread per engine process")
	}
	if threads > cores {
		return 0, errf("%d cores is not enough to run %d threads", cores, threads)
	}
	return threads, nil
}

// ValidateMemory interprets "auto" (detected total memory less a quarter of
// headroom, clamped to [processes*HashMin, processes*HashMax]; falls back to
// processes*HashDefault when detection fails) or an explicit integer bounded
// to [processes*HashMin, processes*HashMax], matching validate_memory.
// processes is ceil(cores/threads).
func ValidateMemory(raw string, cores, threads int) (int, error) {
	processes := (cores + threads - 1) / threads
	if processes < 1 {
		processes = 1
	}

	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" || raw == "auto" {
		total, err := sysmem.TotalMB()
		if err != nil || total == 0 {
			return processes * HashDefault, nil
		}
		headroom := total / 4
		budget := total - headroom
		if budget < processes*HashMin {
			return processes * HashMin, nil
		}
		if budget > processes*HashMax {
			return processes * HashMax, nil
		}
		return budget, nil
	}

	memory, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errf("memory must be an integer")
	}
	if memory < processes*HashMin {
		return 0, errf("not enough memory for a minimum of %d x %d MB in hash tables", processes, HashMin)
	}
	if memory > processes*HashMax {
		return 0, errf("can not reasonably use more than %d x %d MB = %d MB for hash tables", processes, HashMax, processes*HashMax)
	}
	return memory, nil
}

// ValidateEndpoint normalizes endpoint to always end in "/", defaulting to
// DefaultEndpoint when empty.
func ValidateEndpoint(endpoint string) string {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return DefaultEndpoint
	}
	if !strings.HasSuffix(endpoint, "/") {
		endpoint += "/"
	}
	return endpoint
}

// Resolved is the fully validated, defaulted configuration the supervisor
// and CLI consume.
type Resolved struct {
	EngineDir        string
	StockfishCommand string
	Key              string
	Cores            int
	Threads          int
	Memory           int
	Endpoint         string
	FixedBackoff     bool
	FixedBackoffSet  bool
	EngineOptions    map[string]string

	// CoresRaw, ThreadsRaw and MemoryRaw are only meaningful when Resolved is
	// passed as the override argument to Resolve: they carry the raw CLI
	// flag text ("auto", "all", or a number) so ValidateCores/Threads/Memory
	// see the same string a config-file value would produce. Cores/Threads/
	// Memory above cannot serve this since "auto"/"all" have no int form.
	CoresRaw   string
	ThreadsRaw string
	MemoryRaw  string
}

// Resolve applies every validator above to the raw Config plus any CLI
// overrides (non-empty override values win over the file), producing a
// fully-defaulted Resolved configuration or the first *Error encountered.
func Resolve(ctx context.Context, c *Config, override Resolved, validator KeyValidator) (*Resolved, error) {
	pick := func(o, f string) string {
		if o != "" {
			return o
		}
		return f
	}

	engineDir, err := ValidateEngineDir(pick(override.EngineDir, c.get("EngineDir")))
	if err != nil {
		return nil, err
	}

	key, err := ValidateKey(ctx, pick(override.Key, c.get("Key")), validator)
	if err != nil {
		return nil, err
	}

	coresRaw := pick(pick(override.CoresRaw, intOrEmpty(override.Cores)), c.get("Cores"))
	cores, err := ValidateCores(coresRaw)
	if err != nil {
		return nil, err
	}

	threadsRaw := pick(pick(override.ThreadsRaw, intOrEmpty(override.Threads)), c.get("Threads"))
	threads, err := ValidateThreads(threadsRaw, cores)
	if err != nil {
		return nil, err
	}

	memoryRaw := pick(pick(override.MemoryRaw, intOrEmpty(override.Memory)), c.get("Memory"))
	memory, err := ValidateMemory(memoryRaw, cores, threads)
	if err != nil {
		return nil, err
	}

	endpoint := ValidateEndpoint(pick(override.Endpoint, c.get("Endpoint")))

	fixedBackoff := false
	if raw := c.get("FixedBackoff"); raw != "" {
		fixedBackoff = strings.EqualFold(raw, "true") || raw == "1"
	}
	if override.FixedBackoffSet {
		fixedBackoff = override.FixedBackoff
	}

	options := c.EngineOptions()
	for k, v := range override.EngineOptions {
		options[k] = v
	}

	logw.Debugf(ctx, "Resolved config: cores=%v threads=%v memory=%vMB endpoint=%v", cores, threads, memory, endpoint)

	return &Resolved{
		EngineDir:        engineDir,
		StockfishCommand: pick(override.StockfishCommand, c.get("StockfishCommand")),
		Key:              key,
		Cores:            cores,
		Threads:          threads,
		Memory:           memory,
		Endpoint:         endpoint,
		FixedBackoff:     fixedBackoff,
		EngineOptions:    options,
	}, nil
}

func intOrEmpty(v int) string {
	if v == 0 {
		return ""
	}
	return strconv.Itoa(v)
}
