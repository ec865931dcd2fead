// Package cpuprobe detects the CPU features that decide which precompiled
// engine binary variant to download (plain / "-modern" / "-bmi2"), matching
// detect_cpu_capabilities in the original client, but without the
// subprocess-and-parse-raw-CPUID dance: klauspost/cpuid/v2 does the probing
// in-process.
package cpuprobe

import "github.com/klauspost/cpuid/v2"

// Capabilities is the information the binary downloader and the `cpuid`
// subcommand need.
type Capabilities struct {
	Vendor string
	Intel  bool
	Modern bool // POPCNT support
	BMI2   bool
}

// Detect probes the running CPU.
func Detect() Capabilities {
	return Capabilities{
		Vendor: cpuid.CPU.VendorID.String(),
		Intel:  cpuid.CPU.VendorID == cpuid.Intel,
		Modern: cpuid.CPU.Supports(cpuid.POPCNT),
		BMI2:   cpuid.CPU.Supports(cpuid.BMI2),
	}
}

// BinarySuffix returns the engine filename suffix for these capabilities,
// matching stockfish_filename's vendor/modern/bmi2 decision.
func (c Capabilities) BinarySuffix() string {
	switch {
	case c.Modern && c.Intel && c.BMI2:
		return "-bmi2"
	case c.Modern:
		return "-modern"
	default:
		return ""
	}
}
