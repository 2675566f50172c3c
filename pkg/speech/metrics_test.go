package speech_test

import (
	"encoding/json"
	"reflect"
	"testing"
	"time"

	"github.com/vocably/cadenza/pkg/speech"
)

func TestSeverityOf_Boundaries(t *testing.T) {
	t.Parallel()

	tests := []struct {
		score float64
		want  speech.Severity
	}{
		{100, speech.SeverityGood},
		{80, speech.SeverityGood},
		{79.999, speech.SeverityModerate},
		{60, speech.SeverityModerate},
		{59.999, speech.SeverityNeedsWork},
		{0, speech.SeverityNeedsWork},
	}
	for _, tt := range tests {
		if got := speech.SeverityOf(tt.score); got != tt.want {
			t.Errorf("SeverityOf(%v) = %q, want %q", tt.score, got, tt.want)
		}
	}
}

func TestOverallScore_Deterministic(t *testing.T) {
	t.Parallel()

	a := speech.OverallScore(82, 30, 3.5, 76)
	b := speech.OverallScore(82, 30, 3.5, 76)
	if a != b {
		t.Fatalf("OverallScore not deterministic: %v vs %v", a, b)
	}

	want := 82*0.35 + (100-30)*0.25 + 90*0.20 + 76*0.20
	if a != want {
		t.Errorf("OverallScore = %v, want %v", a, want)
	}
}

func TestPacingFit_BandReward(t *testing.T) {
	t.Parallel()

	tests := []struct {
		pacing float64
		want   float64
	}{
		{3.0, 70}, // boundary is exclusive
		{3.0001, 90},
		{3.5, 90},
		{3.9999, 90},
		{4.0, 70},
		{0, 70},
		{6, 70},
	}
	for _, tt := range tests {
		if got := speech.PacingFit(tt.pacing); got != tt.want {
			t.Errorf("PacingFit(%v) = %v, want %v", tt.pacing, got, tt.want)
		}
	}
}

func TestMetrics_Clamp(t *testing.T) {
	t.Parallel()

	m := speech.Metrics{
		ClarityScore:       140,
		NasalityScore:      -5,
		PacingScore:        -1,
		BreathControlScore: 101,
		PhonemeErrors:      []speech.PhonemeError{{Phoneme: "s", Confidence: 1.8}},
		PhonemeSegments:    []speech.PhonemeSegment{{Phoneme: "r", Start: 0, End: 0.5, Confidence: -0.2}},
	}
	m.Clamp()

	if m.ClarityScore != 100 || m.NasalityScore != 0 || m.BreathControlScore != 100 {
		t.Errorf("bounded scores not clamped: %+v", m)
	}
	if m.PacingScore != 0 {
		t.Errorf("negative pacing not floored: %v", m.PacingScore)
	}
	if m.PhonemeErrors[0].Confidence != 1 {
		t.Errorf("error confidence not clamped: %v", m.PhonemeErrors[0].Confidence)
	}
	if m.PhonemeSegments[0].Confidence != 0 {
		t.Errorf("segment confidence not clamped: %v", m.PhonemeSegments[0].Confidence)
	}
}

func TestMetrics_JSONRoundTrip(t *testing.T) {
	t.Parallel()

	ts := time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC)
	populated := speech.Metrics{
		ClarityScore:       82.5,
		NasalityScore:      31,
		PacingScore:        3.4,
		BreathControlScore: 77,
		PhonemeErrors: []speech.PhonemeError{
			{Phoneme: "s", Expected: "sun", Actual: "thun", Position: 4, Confidence: 0.92},
		},
		PhonemeSegments: []speech.PhonemeSegment{
			{Phoneme: "s", Start: 0.1, End: 0.6, Confidence: 0.9},
			{Phoneme: "a", Start: 0.7, End: 1.2, Confidence: 0.85},
		},
		Suggestions: []string{"Great work!"},
		Source:      speech.SourceRemote,
		Timestamp:   ts,
	}
	populated.Recompute()

	for name, m := range map[string]speech.Metrics{"populated": populated, "defaults": {}} {
		data, err := json.Marshal(m)
		if err != nil {
			t.Fatalf("%s: marshal: %v", name, err)
		}
		var back speech.Metrics
		if err := json.Unmarshal(data, &back); err != nil {
			t.Fatalf("%s: unmarshal: %v", name, err)
		}
		if !reflect.DeepEqual(m, back) {
			t.Errorf("%s: round-trip mismatch:\n got %+v\nwant %+v", name, back, m)
		}
	}
}

func TestSession_JSONRoundTrip(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	end := start.Add(5 * time.Minute)
	final := speech.Metrics{ClarityScore: 88, Source: speech.SourceSimulated, Timestamp: end}
	final.Recompute()

	populated := speech.Session{
		ID:             "session-20260314T0900Z-1",
		Mode:           speech.ModeGuided,
		Type:           speech.TypePhonemeDrill,
		Scenario:       "ordering-pizza",
		StartTime:      start,
		EndTime:        &end,
		Duration:       5 * time.Minute,
		MetricsHistory: []speech.Metrics{final},
		FinalMetrics:   &final,
		AudioPath:      "recordings/s1.m4a",
		Transcript:     "the sun is shining",
		Notes:          []string{"worked on s sounds"},
		Completed:      true,
	}

	for name, s := range map[string]speech.Session{"populated": populated, "defaults": {}} {
		data, err := json.Marshal(s)
		if err != nil {
			t.Fatalf("%s: marshal: %v", name, err)
		}
		var back speech.Session
		if err := json.Unmarshal(data, &back); err != nil {
			t.Fatalf("%s: unmarshal: %v", name, err)
		}
		if !reflect.DeepEqual(s, back) {
			t.Errorf("%s: round-trip mismatch:\n got %+v\nwant %+v", name, back, s)
		}
	}
}

func TestProgressState_JSONRoundTrip(t *testing.T) {
	t.Parallel()

	unlocked := time.Date(2026, 2, 1, 18, 0, 0, 0, time.UTC)
	last := time.Date(2026, 3, 13, 19, 15, 0, 0, time.UTC)
	populated := speech.ProgressState{
		Game: speech.GameProgress{
			Level:                 3,
			Experience:            40,
			ExperienceToNextLevel: 225,
			Achievements: []speech.Achievement{
				{ID: "first_session", Title: "First Steps", Description: "Complete your first session", UnlockedAt: &unlocked},
				{ID: "week_streak", Title: "One Week Strong", Description: "Practice 7 days in a row"},
			},
			Stickers:      []speech.Sticker{{ID: "star-1", Name: "Gold Star", Emoji: "⭐", EarnedAt: unlocked}},
			Stars:         12,
			Coins:         340,
			CurrentAvatar: "otter",
		},
		Profile: speech.Profile{
			TotalSessions:   27,
			TotalMinutes:    195.5,
			CurrentStreak:   4,
			LongestStreak:   9,
			LastSessionDate: &last,
		},
	}

	for name, p := range map[string]speech.ProgressState{"populated": populated, "defaults": *speech.NewProgressState()} {
		data, err := json.Marshal(p)
		if err != nil {
			t.Fatalf("%s: marshal: %v", name, err)
		}
		var back speech.ProgressState
		if err := json.Unmarshal(data, &back); err != nil {
			t.Fatalf("%s: unmarshal: %v", name, err)
		}
		if !reflect.DeepEqual(p, back) {
			t.Errorf("%s: round-trip mismatch:\n got %+v\nwant %+v", name, back, p)
		}
	}
}

func TestSession_AverageScore(t *testing.T) {
	t.Parallel()

	var empty speech.Session
	if got := empty.AverageScore(); got != 0 {
		t.Errorf("AverageScore on empty history = %v, want 0", got)
	}

	s := speech.Session{MetricsHistory: []speech.Metrics{
		{OverallScore: 80},
		{OverallScore: 60},
	}}
	if got := s.AverageScore(); got != 70 {
		t.Errorf("AverageScore = %v, want 70", got)
	}
}
