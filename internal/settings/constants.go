package settings

// DB config keys and defaults for settings.
const (
	// SyncEnabledKey toggles the periodic channel synchronization.
	SyncEnabledKey = "SYNC_ENABLED"
	// SyncIntervalMSKey controls the sync interval in milliseconds.
	SyncIntervalMSKey = "SYNC_INTERVAL_MS"
	// SyncConcurrencyKey controls simultaneous per-channel fetches.
	SyncConcurrencyKey = "SYNC_CONCURRENCY"
	// SyncMaxRetriesKey controls extra attempts after a failed fetch.
	SyncMaxRetriesKey = "SYNC_MAX_RETRIES"
	// SyncRequestsPerMinuteKey controls the sustained outbound request rate.
	SyncRequestsPerMinuteKey = "SYNC_REQUESTS_PER_MINUTE"
	// SyncBurstKey controls the instantaneous request burst capacity.
	SyncBurstKey = "SYNC_BURST"
	// MappingPriorityWeightKey scales channel priority in candidate scores.
	MappingPriorityWeightKey = "MAPPING_PRIORITY_WEIGHT"
	// MappingWeightWeightKey scales channel weight in candidate scores.
	MappingWeightWeightKey = "MAPPING_WEIGHT_WEIGHT"
	// MappingUsedQuotaWeightKey scales used quota in candidate scores.
	MappingUsedQuotaWeightKey = "MAPPING_USED_QUOTA_WEIGHT"

	// DefaultSyncEnabled leaves automatic sync off until an operator opts in.
	DefaultSyncEnabled = false
	// DefaultSyncIntervalMS is the fallback sync interval (30 minutes).
	DefaultSyncIntervalMS = 30 * 60 * 1000
	// DefaultSyncConcurrency is the fallback per-channel fetch concurrency.
	DefaultSyncConcurrency = 3
	// DefaultSyncMaxRetries is the fallback retry budget per channel.
	DefaultSyncMaxRetries = 2
	// DefaultSyncRequestsPerMinute is the fallback sustained request rate.
	DefaultSyncRequestsPerMinute = 60
	// DefaultSyncBurst is the fallback burst capacity.
	DefaultSyncBurst = 5
	// DefaultMappingPriorityWeight is the fallback priority coefficient.
	DefaultMappingPriorityWeight = 10000
	// DefaultMappingWeightWeight is the fallback weight coefficient.
	DefaultMappingWeightWeight = 100
	// DefaultMappingUsedQuotaWeight is the fallback used-quota coefficient.
	DefaultMappingUsedQuotaWeight = -1
)
