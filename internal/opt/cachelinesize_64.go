//go:build crit_cachelinesize_64

package opt

// CacheLineSize is forced to 64 bytes via the crit_cachelinesize_64
// build tag.
// Use: go build -tags=crit_cachelinesize_64
const CacheLineSize = 64
