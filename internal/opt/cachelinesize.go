//go:build !crit_cachelinesize_64 && !crit_cachelinesize_128

package opt

import (
	"unsafe"

	"golang.org/x/sys/cpu"
)

// CacheLineSize is used to pad the slot structure so that adjacent
// slots never share a cache line. It's automatically calculated using
// the `golang.org/x/sys` package.
const CacheLineSize = unsafe.Sizeof(cpu.CacheLinePad{})
