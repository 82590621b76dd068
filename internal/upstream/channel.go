// Package upstream talks to the channel-management API that owns the
// configured channels and their live model lists.
package upstream

import "strings"

// ChannelStatus mirrors the upstream enabled/disabled flag.
type ChannelStatus int

const (
	// ChannelStatusEnabled marks a channel eligible for routing.
	ChannelStatusEnabled ChannelStatus = 1
	// ChannelStatusDisabled marks a manually disabled channel.
	ChannelStatusDisabled ChannelStatus = 2
	// ChannelStatusAutoDisabled marks a channel disabled by health checks.
	ChannelStatusAutoDisabled ChannelStatus = 3
)

// Channel is one upstream endpoint configuration.
type Channel struct {
	ID        int64         `json:"id"`
	Name      string        `json:"name"`
	Status    ChannelStatus `json:"status"`
	Priority  int           `json:"priority"`
	Weight    int           `json:"weight"`
	UsedQuota float64       `json:"used_quota"`
	Models    []string      `json:"models"`
}

// Enabled reports whether the channel participates in mapping.
func (c Channel) Enabled() bool {
	return c.Status == ChannelStatusEnabled
}

// ChannelList is the upstream listing result.
type ChannelList struct {
	Items      []Channel      `json:"items"`
	Total      int            `json:"total"`
	TypeCounts map[string]int `json:"type_counts"`
}

// SplitModels parses the upstream comma-separated model field into a
// deduplicated, order-preserving list.
func SplitModels(raw string) []string {
	parts := strings.Split(raw, ",")
	seen := make(map[string]struct{}, len(parts))
	models := make([]string, 0, len(parts))
	for _, part := range parts {
		name := strings.TrimSpace(part)
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		models = append(models, name)
	}
	return models
}
