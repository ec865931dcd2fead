// Package sysmem detects total system memory for the "--memory auto"
// configuration path and the interactive configure wizard, mirroring the
// original client's use of psutil.virtual_memory().total.
package sysmem

import "github.com/shirou/gopsutil/v3/mem"

// TotalMB returns total physical memory in megabytes.
func TotalMB() (int, error) {
	v, err := mem.VirtualMemory()
	if err != nil {
		return 0, err
	}
	return int(v.Total / (1024 * 1024)), nil
}
