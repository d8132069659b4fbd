package processor

import (
	"encoding/json"
	"os"
	"path/filepath"
	"syscall"

	"github.com/dustin/go-humanize"
)

// currentDiskUsage sums the size of every regular file under path
func currentDiskUsage(path string) uint64 {
	var total uint64
	filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err == nil && info.Mode().IsRegular() {
			total += uint64(info.Size())
		}
		return nil
	})
	return total
}

// peakMemoryUsage is the largest resident set of any finished child
// process, in bytes.
func peakMemoryUsage() uint64 {
	var usage syscall.Rusage
	if err := syscall.Getrusage(syscall.RUSAGE_CHILDREN, &usage); err != nil {
		return 0
	}
	// Linux reports kilobytes
	return uint64(usage.Maxrss) * 1024
}

type resourceSnapshot struct {
	CurrentWorkdirSize string            `json:"current_workdir_size"`
	PeakMemoryUsage    string            `json:"peak_memory_usage"`
	Entity             map[string]string `json:"entity"`
}

// snapshotResources logs disk and memory use when include_resource_report
// is configured.
func (b *base) snapshotResources() {
	if !b.env.Config.IncludeResourceReport() {
		return
	}
	snapshot := resourceSnapshot{
		CurrentWorkdirSize: humanize.IBytes(currentDiskUsage(b.dirs.Work)),
		PeakMemoryUsage:    humanize.IBytes(peakMemoryUsage()),
		Entity:             map[string]string{"scene": b.req.Scene, "orderid": b.req.OrderID},
	}
	data, _ := json.Marshal(snapshot)
	b.logger.Info("*** RESOURCE SNAPSHOT " + string(data) + " ***")
}
