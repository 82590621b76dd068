package mapping

import (
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/router-for-me/ChannelHub/internal/upstream"
)

var defaultCoeffs = Coefficients{Priority: 10000, Weight: 100, UsedQuota: -1}

func enabled(id int64, name string, priority, weight int, usedQuota float64, models ...string) upstream.Channel {
	return upstream.Channel{
		ID:        id,
		Name:      name,
		Status:    upstream.ChannelStatusEnabled,
		Priority:  priority,
		Weight:    weight,
		UsedQuota: usedQuota,
		Models:    models,
	}
}

func TestCompute_NoEnabledChannels(t *testing.T) {
	channels := []upstream.Channel{
		{ID: 1, Name: "off", Status: upstream.ChannelStatusDisabled, Models: []string{"gpt-4o"}},
	}
	if _, err := Compute(channels, defaultCoeffs, "manual", time.Now()); !errors.Is(err, ErrNoEnabledChannels) {
		t.Fatalf("expected ErrNoEnabledChannels, got %v", err)
	}
}

func TestCompute_PriorityBeatsWeightAndQuota(t *testing.T) {
	channels := []upstream.Channel{
		enabled(1, "low-priority", 5, 10, 100, "gpt-4o"),
		enabled(2, "high-priority", 10, 10, 100, "gpt-4o"),
	}
	result, err := Compute(channels, defaultCoeffs, "manual", time.Now())
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	entry, ok := result.Mapping["gpt-4o"]
	if !ok {
		t.Fatalf("missing entry: %+v", result.Mapping)
	}
	if entry.TargetChannelID != 2 {
		t.Fatalf("priority should dominate: %+v", entry)
	}
}

func TestCompute_WeightBreaksEqualPriority(t *testing.T) {
	channels := []upstream.Channel{
		enabled(1, "light", 1, 10, 0, "gpt-4o"),
		enabled(2, "heavy", 1, 50, 0, "gpt-4o"),
	}
	result, err := Compute(channels, defaultCoeffs, "manual", time.Now())
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if entry := result.Mapping["gpt-4o"]; entry.TargetChannelID != 2 {
		t.Fatalf("weight should break the tie: %+v", entry)
	}
}

func TestCompute_LowerQuotaWinsLastTie(t *testing.T) {
	channels := []upstream.Channel{
		enabled(1, "busy", 1, 10, 900, "gpt-4o"),
		enabled(2, "idle", 1, 10, 10, "gpt-4o"),
	}
	result, err := Compute(channels, defaultCoeffs, "manual", time.Now())
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if entry := result.Mapping["gpt-4o"]; entry.TargetChannelID != 2 {
		t.Fatalf("lower used quota should win: %+v", entry)
	}
}

func TestCompute_ScoreTieFallsBackToModelOrder(t *testing.T) {
	// Identical channel attributes; the dated variant must win the tie.
	channels := []upstream.Channel{
		enabled(1, "a", 1, 10, 0, "claude-3-5-sonnet"),
		enabled(2, "b", 1, 10, 0, "claude-3-5-sonnet-20241022"),
	}
	result, err := Compute(channels, defaultCoeffs, "manual", time.Now())
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	for _, entry := range result.Mapping {
		if entry.TargetModel != "claude-3-5-sonnet-20241022" {
			t.Fatalf("dated model should win score ties: %+v", entry)
		}
	}
}

func TestCompute_CanonicalFormElection(t *testing.T) {
	// Same normalized key advertised under two raw spellings; the
	// comparator-preferred spelling becomes the display form.
	channels := []upstream.Channel{
		enabled(1, "a", 1, 10, 0, "GPT-4o"),
		enabled(2, "b", 1, 10, 0, "gpt-4o"),
	}
	result, err := Compute(channels, defaultCoeffs, "manual", time.Now())
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	entry, ok := result.Mapping["gpt-4o"]
	if !ok {
		t.Fatalf("expected normalized key gpt-4o: %+v", result.Mapping)
	}
	if entry.StandardModel != "gpt-4o" {
		t.Fatalf("unexpected standard key: %+v", entry)
	}
}

func TestCompute_DisabledChannelsExcluded(t *testing.T) {
	channels := []upstream.Channel{
		enabled(1, "on", 1, 10, 0, "gpt-4o"),
		{ID: 2, Name: "off", Status: upstream.ChannelStatusAutoDisabled, Priority: 99, Weight: 99, Models: []string{"gpt-4o"}},
	}
	result, err := Compute(channels, defaultCoeffs, "manual", time.Now())
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if entry := result.Mapping["gpt-4o"]; entry.TargetChannelID != 1 {
		t.Fatalf("disabled channel must not win: %+v", entry)
	}
	if result.Metadata.ChannelCount != 1 {
		t.Fatalf("disabled channels counted: %+v", result.Metadata)
	}
}

func TestCompute_Deterministic(t *testing.T) {
	channels := []upstream.Channel{
		enabled(1, "alpha", 2, 10, 5, "gpt-4o", "gpt-4o-mini", "claude-3-5-sonnet"),
		enabled(2, "beta", 1, 50, 0, "gpt-4o", "gemini-2.0-flash"),
		enabled(3, "gamma", 2, 10, 5, "claude-3-5-sonnet-20241022"),
	}
	at := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	first, errFirst := Compute(channels, defaultCoeffs, "auto", at)
	if errFirst != nil {
		t.Fatalf("compute: %v", errFirst)
	}
	second, errSecond := Compute(channels, defaultCoeffs, "auto", at)
	if errSecond != nil {
		t.Fatalf("compute: %v", errSecond)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("identical inputs produced different mappings")
	}
	if first.Metadata.MappingCount != len(first.Mapping) {
		t.Fatalf("mapping count out of sync: %+v", first.Metadata)
	}
}

func TestCompute_ReasonMentionsSelection(t *testing.T) {
	channels := []upstream.Channel{
		enabled(1, "alpha", 2, 10, 5, "gpt-4o"),
		enabled(2, "beta", 1, 50, 0, "gpt-4o"),
	}
	result, err := Compute(channels, defaultCoeffs, "manual", time.Now())
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	entry := result.Mapping["gpt-4o"]
	if entry.Reason == "" {
		t.Fatalf("missing reason")
	}
	for _, fragment := range []string{"alpha", "2 candidate(s)", "priority=2", "score="} {
		if !strings.Contains(entry.Reason, fragment) {
			t.Fatalf("reason %q missing %q", entry.Reason, fragment)
		}
	}
}

func TestSuggestions(t *testing.T) {
	channels := []upstream.Channel{
		enabled(1, "a", 1, 1, 0, "gpt-4o", "claude-3-5-sonnet"),
		enabled(2, "b", 1, 1, 0, "gpt-4o", "gemini-2.0-flash"),
		{ID: 3, Name: "off", Status: upstream.ChannelStatusDisabled, Models: []string{"hidden-model"}},
	}
	names := Suggestions(channels)
	if len(names) != 3 {
		t.Fatalf("unexpected suggestions: %v", names)
	}
	for _, name := range names {
		if name == "hidden-model" {
			t.Fatalf("disabled channel leaked into suggestions: %v", names)
		}
	}
	if len(Suggestions(nil)) != 0 {
		t.Fatalf("nil channels should yield empty suggestions")
	}
}
