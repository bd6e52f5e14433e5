//go:build crit_cachelinesize_128

package opt

// CacheLineSize is forced to 128 bytes via the crit_cachelinesize_128
// build tag.
// Use: go build -tags=crit_cachelinesize_128
const CacheLineSize = 128
