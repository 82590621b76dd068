// Package mapping computes the standard-model to channel redirect table
// from the enabled channels' advertised model lists.
package mapping

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/router-for-me/ChannelHub/internal/modelname"
	"github.com/router-for-me/ChannelHub/internal/upstream"
)

// ErrNoEnabledChannels is returned when no enabled channel is available
// for mapping generation.
var ErrNoEnabledChannels = errors.New("mapping: no enabled channels")

// Coefficients weight the candidate score. Higher score wins.
type Coefficients struct {
	Priority  int
	Weight    int
	UsedQuota int
}

// Candidate is one (channel, raw model string) pair matched against a
// standard model. Built fresh per computation, never persisted.
type Candidate struct {
	ChannelID   int64
	ChannelName string
	Priority    int
	Weight      int
	UsedQuota   float64
	ModelName   string
	Normalized  string
	ParsedDate  string
}

// Entry is one resolved redirect for a standard model.
type Entry struct {
	StandardModel     string  `json:"standard_model"`
	SourceModel       string  `json:"source_model"`
	TargetChannelID   int64   `json:"target_channel_id"`
	TargetChannelName string  `json:"target_channel_name"`
	TargetModel       string  `json:"target_model"`
	Score             float64 `json:"score"`
	Reason            string  `json:"reason"`
}

// Metadata describes one mapping computation.
type Metadata struct {
	Trigger      string    `json:"trigger"`
	GeneratedAt  time.Time `json:"generated_at"`
	ChannelCount int       `json:"channel_count"`
	MappingCount int       `json:"mapping_count"`
}

// Result is the full computed mapping.
type Result struct {
	Mapping   map[string]Entry `json:"mapping"`
	UpdatedAt time.Time        `json:"updated_at"`
	Metadata  Metadata         `json:"metadata"`
}

// Compute builds the mapping for the given channels. Disabled channels are
// excluded first; an empty remainder is ErrNoEnabledChannels. The result is
// deterministic for identical inputs.
func Compute(channels []upstream.Channel, coeffs Coefficients, trigger string, now time.Time) (*Result, error) {
	enabled := enabledChannels(channels)
	if len(enabled) == 0 {
		return nil, ErrNoEnabledChannels
	}

	standards := electStandardModels(enabled)

	result := &Result{
		Mapping:   make(map[string]Entry, len(standards)),
		UpdatedAt: now,
		Metadata: Metadata{
			Trigger:      trigger,
			GeneratedAt:  now,
			ChannelCount: len(enabled),
		},
	}
	for _, standard := range standards {
		candidates := collectCandidates(enabled, standard.display)
		if len(candidates) == 0 {
			// A standard model nobody advertises anymore gets no entry.
			continue
		}
		best := selectBest(candidates, coeffs)
		result.Mapping[standard.key] = Entry{
			StandardModel:     standard.key,
			SourceModel:       standard.display,
			TargetChannelID:   best.ChannelID,
			TargetChannelName: best.ChannelName,
			TargetModel:       best.ModelName,
			Score:             score(best, coeffs),
			Reason:            reason(best, coeffs, len(candidates)),
		}
	}
	result.Metadata.MappingCount = len(result.Mapping)
	return result, nil
}

// Suggestions returns the deduplicated raw model names across the enabled
// channels, sorted by preference. An empty channel set yields an empty
// list, never an error.
func Suggestions(channels []upstream.Channel) []string {
	enabled := enabledChannels(channels)
	seen := make(map[string]struct{})
	names := make([]string, 0)
	for _, channel := range enabled {
		for _, model := range dedupModels(channel.Models) {
			if _, ok := seen[model]; ok {
				continue
			}
			seen[model] = struct{}{}
			names = append(names, model)
		}
	}
	sort.Slice(names, func(i, j int) bool {
		if cmp := modelname.CompareModels(names[i], names[j]); cmp != 0 {
			return cmp < 0
		}
		return modelname.Normalize(names[i]) < modelname.Normalize(names[j])
	})
	return names
}

func enabledChannels(channels []upstream.Channel) []upstream.Channel {
	enabled := make([]upstream.Channel, 0, len(channels))
	for _, channel := range channels {
		if channel.Enabled() {
			enabled = append(enabled, channel)
		}
	}
	return enabled
}

// dedupModels removes case-sensitive exact duplicates, preserving order.
func dedupModels(models []string) []string {
	seen := make(map[string]struct{}, len(models))
	out := make([]string, 0, len(models))
	for _, model := range models {
		if model == "" {
			continue
		}
		if _, ok := seen[model]; ok {
			continue
		}
		seen[model] = struct{}{}
		out = append(out, model)
	}
	return out
}

type standardModel struct {
	key     string // normalized form
	display string // canonical raw form
}

// electStandardModels groups every advertised raw model name by its
// normalized form and elects the preferred raw form as the canonical
// display string for that group.
func electStandardModels(channels []upstream.Channel) []standardModel {
	display := make(map[string]string)
	for _, channel := range channels {
		for _, raw := range dedupModels(channel.Models) {
			key := modelname.Normalize(raw)
			if key == "" {
				continue
			}
			current, ok := display[key]
			if !ok || modelname.CompareModels(raw, current) < 0 {
				display[key] = raw
			}
		}
	}

	standards := make([]standardModel, 0, len(display))
	for key, raw := range display {
		standards = append(standards, standardModel{key: key, display: raw})
	}
	sort.Slice(standards, func(i, j int) bool {
		if cmp := modelname.CompareModels(standards[i].display, standards[j].display); cmp != 0 {
			return cmp < 0
		}
		return standards[i].key < standards[j].key
	})
	return standards
}

// collectCandidates gathers every (channel, raw model) pair whose raw name
// matches the standard display form, exactly or by token similarity.
func collectCandidates(channels []upstream.Channel, standardDisplay string) []Candidate {
	candidates := make([]Candidate, 0)
	for _, channel := range channels {
		for _, raw := range dedupModels(channel.Models) {
			if !modelname.IsModelMatch(raw, standardDisplay, modelname.DefaultMatchThreshold) {
				continue
			}
			date, _ := modelname.ParseDate(raw)
			candidates = append(candidates, Candidate{
				ChannelID:   channel.ID,
				ChannelName: channel.Name,
				Priority:    channel.Priority,
				Weight:      channel.Weight,
				UsedQuota:   channel.UsedQuota,
				ModelName:   raw,
				Normalized:  modelname.Normalize(raw),
				ParsedDate:  date,
			})
		}
	}
	return candidates
}

func score(c Candidate, coeffs Coefficients) float64 {
	return float64(c.Priority)*float64(coeffs.Priority) +
		float64(c.Weight)*float64(coeffs.Weight) +
		c.UsedQuota*float64(coeffs.UsedQuota)
}

// selectBest picks the highest-scoring candidate; score ties fall back to
// the model-name total order.
func selectBest(candidates []Candidate, coeffs Coefficients) Candidate {
	best := candidates[0]
	if len(candidates) == 1 {
		return best
	}
	bestScore := score(best, coeffs)
	for _, candidate := range candidates[1:] {
		candidateScore := score(candidate, coeffs)
		switch {
		case candidateScore > bestScore:
			best, bestScore = candidate, candidateScore
		case candidateScore == bestScore && modelname.CompareModels(candidate.ModelName, best.ModelName) < 0:
			best = candidate
		}
	}
	return best
}

func reason(c Candidate, coeffs Coefficients, candidateCount int) string {
	date := c.ParsedDate
	if date == "" {
		date = "none"
	}
	return fmt.Sprintf("picked %q on channel %q out of %d candidate(s): priority=%d weight=%d used_quota=%.2f date=%s score=%.2f",
		c.ModelName, c.ChannelName, candidateCount, c.Priority, c.Weight, c.UsedQuota, date, score(c, coeffs))
}
