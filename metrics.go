package swcache

// Metrics.
const (
	MetricHit         = "swcache_hit"
	MetricMiss        = "swcache_miss"
	MetricWrite       = "swcache_write"
	MetricWriteFailed = "swcache_write_failed"
	MetricRefresh     = "swcache_refresh"
	MetricPassThrough = "swcache_passthrough"
	MetricOffline     = "swcache_offline"
	MetricInstalled   = "swcache_installed"
	MetricDeleted     = "swcache_generations_deleted"
	MetricBroadcast   = "swcache_broadcast"
	MetricEntries     = "swcache_entries"
)
