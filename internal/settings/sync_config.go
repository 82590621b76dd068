package settings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// SyncConfig captures the sync preferences stored in DB config.
type SyncConfig struct {
	Enabled           bool
	IntervalMS        int
	Concurrency       int
	MaxRetries        int
	RequestsPerMinute int
	Burst             int
	PriorityWeight    int
	WeightWeight      int
	UsedQuotaWeight   int
}

// SyncConfigPatch is a partial update to SyncConfig; nil fields keep the
// current value. All merging funnels through Merge so defaults cannot
// diverge between call sites.
type SyncConfigPatch struct {
	Enabled           *bool `json:"enabled"`
	IntervalMS        *int  `json:"interval_ms"`
	Concurrency       *int  `json:"concurrency"`
	MaxRetries        *int  `json:"max_retries"`
	RequestsPerMinute *int  `json:"requests_per_minute"`
	Burst             *int  `json:"burst"`
	PriorityWeight    *int  `json:"priority_weight"`
	WeightWeight      *int  `json:"weight_weight"`
	UsedQuotaWeight   *int  `json:"used_quota_weight"`
}

// LoadSyncConfig loads the current sync preferences snapshot, applying
// defaults for missing or malformed values.
func LoadSyncConfig(store *Store) SyncConfig {
	cfg := SyncConfig{
		Enabled:           DefaultSyncEnabled,
		IntervalMS:        DefaultSyncIntervalMS,
		Concurrency:       DefaultSyncConcurrency,
		MaxRetries:        DefaultSyncMaxRetries,
		RequestsPerMinute: DefaultSyncRequestsPerMinute,
		Burst:             DefaultSyncBurst,
		PriorityWeight:    DefaultMappingPriorityWeight,
		WeightWeight:      DefaultMappingWeightWeight,
		UsedQuotaWeight:   DefaultMappingUsedQuotaWeight,
	}
	if store == nil {
		return cfg
	}

	if raw, ok := store.Value(SyncEnabledKey); ok {
		if enabled, okParse := parseBool(raw); okParse {
			cfg.Enabled = enabled
		}
	}
	if raw, ok := store.Value(SyncIntervalMSKey); ok {
		if interval, okParse := parseInt(raw); okParse && interval > 0 {
			cfg.IntervalMS = interval
		}
	}
	if raw, ok := store.Value(SyncConcurrencyKey); ok {
		if concurrency, okParse := parseInt(raw); okParse && concurrency > 0 {
			cfg.Concurrency = concurrency
		}
	}
	if raw, ok := store.Value(SyncMaxRetriesKey); ok {
		if retries, okParse := parseInt(raw); okParse && retries >= 0 {
			cfg.MaxRetries = retries
		}
	}
	if raw, ok := store.Value(SyncRequestsPerMinuteKey); ok {
		if rpm, okParse := parseInt(raw); okParse && rpm > 0 {
			cfg.RequestsPerMinute = rpm
		}
	}
	if raw, ok := store.Value(SyncBurstKey); ok {
		if burst, okParse := parseInt(raw); okParse && burst > 0 {
			cfg.Burst = burst
		}
	}
	if raw, ok := store.Value(MappingPriorityWeightKey); ok {
		if weight, okParse := parseInt(raw); okParse {
			cfg.PriorityWeight = weight
		}
	}
	if raw, ok := store.Value(MappingWeightWeightKey); ok {
		if weight, okParse := parseInt(raw); okParse {
			cfg.WeightWeight = weight
		}
	}
	if raw, ok := store.Value(MappingUsedQuotaWeightKey); ok {
		if weight, okParse := parseInt(raw); okParse {
			cfg.UsedQuotaWeight = weight
		}
	}
	return cfg
}

// Merge applies non-nil patch fields onto the config.
func (c SyncConfig) Merge(patch SyncConfigPatch) SyncConfig {
	if patch.Enabled != nil {
		c.Enabled = *patch.Enabled
	}
	if patch.IntervalMS != nil && *patch.IntervalMS > 0 {
		c.IntervalMS = *patch.IntervalMS
	}
	if patch.Concurrency != nil && *patch.Concurrency > 0 {
		c.Concurrency = *patch.Concurrency
	}
	if patch.MaxRetries != nil && *patch.MaxRetries >= 0 {
		c.MaxRetries = *patch.MaxRetries
	}
	if patch.RequestsPerMinute != nil && *patch.RequestsPerMinute > 0 {
		c.RequestsPerMinute = *patch.RequestsPerMinute
	}
	if patch.Burst != nil && *patch.Burst > 0 {
		c.Burst = *patch.Burst
	}
	if patch.PriorityWeight != nil {
		c.PriorityWeight = *patch.PriorityWeight
	}
	if patch.WeightWeight != nil {
		c.WeightWeight = *patch.WeightWeight
	}
	if patch.UsedQuotaWeight != nil {
		c.UsedQuotaWeight = *patch.UsedQuotaWeight
	}
	return c
}

// SaveSyncConfig merges the patch into the stored preferences and persists
// every resulting field, so a later read rebuilds the identical config.
func SaveSyncConfig(ctx context.Context, store *Store, patch SyncConfigPatch) (SyncConfig, error) {
	if store == nil {
		return SyncConfig{}, fmt.Errorf("settings: nil store")
	}
	merged := LoadSyncConfig(store).Merge(patch)

	values := map[string]json.RawMessage{
		SyncEnabledKey:            mustMarshal(merged.Enabled),
		SyncIntervalMSKey:         mustMarshal(merged.IntervalMS),
		SyncConcurrencyKey:        mustMarshal(merged.Concurrency),
		SyncMaxRetriesKey:         mustMarshal(merged.MaxRetries),
		SyncRequestsPerMinuteKey:  mustMarshal(merged.RequestsPerMinute),
		SyncBurstKey:              mustMarshal(merged.Burst),
		MappingPriorityWeightKey:  mustMarshal(merged.PriorityWeight),
		MappingWeightWeightKey:    mustMarshal(merged.WeightWeight),
		MappingUsedQuotaWeightKey: mustMarshal(merged.UsedQuotaWeight),
	}
	if errSave := store.SetValues(ctx, values); errSave != nil {
		return SyncConfig{}, errSave
	}
	return merged, nil
}

func mustMarshal(v any) json.RawMessage {
	payload, errMarshal := json.Marshal(v)
	if errMarshal != nil {
		return json.RawMessage("null")
	}
	return payload
}

func parseBool(raw json.RawMessage) (bool, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return false, false
	}
	var parsedBool bool
	if errUnmarshalBool := json.Unmarshal(raw, &parsedBool); errUnmarshalBool == nil {
		return parsedBool, true
	}
	var parsedString string
	if errUnmarshalString := json.Unmarshal(raw, &parsedString); errUnmarshalString == nil {
		switch strings.ToLower(strings.TrimSpace(parsedString)) {
		case "1", "true", "yes", "y", "on":
			return true, true
		case "0", "false", "no", "n", "off":
			return false, true
		default:
			return false, false
		}
	}
	var parsedFloat float64
	if errUnmarshalFloat := json.Unmarshal(raw, &parsedFloat); errUnmarshalFloat == nil {
		if math.IsNaN(parsedFloat) || math.IsInf(parsedFloat, 0) {
			return false, false
		}
		if parsedFloat == 1 {
			return true, true
		}
		if parsedFloat == 0 {
			return false, true
		}
	}
	return false, false
}

func parseInt(raw json.RawMessage) (int, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return 0, false
	}
	var parsedInt int
	if errUnmarshalInt := json.Unmarshal(raw, &parsedInt); errUnmarshalInt == nil {
		return parsedInt, true
	}
	var parsedString string
	if errUnmarshalString := json.Unmarshal(raw, &parsedString); errUnmarshalString == nil {
		parsed, errParse := strconv.Atoi(strings.TrimSpace(parsedString))
		if errParse != nil {
			return 0, false
		}
		return parsed, true
	}
	var parsedFloat float64
	if errUnmarshalFloat := json.Unmarshal(raw, &parsedFloat); errUnmarshalFloat == nil {
		if math.IsNaN(parsedFloat) || math.IsInf(parsedFloat, 0) {
			return 0, false
		}
		if parsedFloat != math.Trunc(parsedFloat) {
			return 0, false
		}
		return int(parsedFloat), true
	}
	return 0, false
}
