package webcache

const (
	cachePrefix = "cache:"
	countPrefix = "count:"
)

// CacheKey is where the content of url is cached
func CacheKey(url string) string { return cachePrefix + url }

// CountKey is where accesses to url are counted
func CountKey(url string) string { return countPrefix + url }
