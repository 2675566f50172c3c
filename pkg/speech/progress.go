package speech

import "time"

// Achievement is one entry of the fixed achievement catalogue. Unlocking is a
// one-way transition: UnlockedAt is set once and never cleared.
type Achievement struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`

	// UnlockedAt is nil while the achievement is still locked.
	UnlockedAt *time.Time `json:"unlockedAt,omitempty"`
}

// Unlocked reports whether the achievement has been earned.
func (a Achievement) Unlocked() bool {
	return a.UnlockedAt != nil
}

// Sticker is a collectible reward earned through practice.
type Sticker struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Emoji    string    `json:"emoji,omitempty"`
	EarnedAt time.Time `json:"earnedAt"`
}

// GameProgress is the gamification state: level, experience, collectibles.
//
// Invariant: Experience < ExperienceToNextLevel after every XP award — any
// overflow rolls into level-ups with a compounding requirement.
type GameProgress struct {
	Level                 int           `json:"level"`
	Experience            int           `json:"experience"`
	ExperienceToNextLevel int           `json:"experienceToNextLevel"`
	Achievements          []Achievement `json:"achievements,omitempty"`
	Stickers              []Sticker     `json:"stickers,omitempty"`
	Stars                 int           `json:"stars"`
	Coins                 int           `json:"coins"`
	CurrentAvatar         string        `json:"currentAvatar,omitempty"`
}

// baseExperienceToLevel is the XP requirement at level 1.
const baseExperienceToLevel = 100

// NewGameProgress returns the starting gamification state.
func NewGameProgress() GameProgress {
	return GameProgress{
		Level:                 1,
		ExperienceToNextLevel: baseExperienceToLevel,
	}
}

// Profile is the practice-history fragment of the user profile owned by the
// progression engine.
//
// Invariant: LongestStreak >= CurrentStreak.
type Profile struct {
	TotalSessions int     `json:"totalSessions"`
	TotalMinutes  float64 `json:"totalMinutes"`
	CurrentStreak int     `json:"currentStreak"`
	LongestStreak int     `json:"longestStreak"`

	// LastSessionDate is the end time of the most recent completed session,
	// nil before the first one.
	LastSessionDate *time.Time `json:"lastSessionDate,omitempty"`
}

// ProgressState is the persisted progression record: gamification state plus
// the practice-history profile fragment. It is stored as a single keyed JSON
// object and must round-trip losslessly.
type ProgressState struct {
	Game    GameProgress `json:"game"`
	Profile Profile      `json:"profile"`
}

// NewProgressState returns the default progression record used for a fresh
// install and for corruption recovery.
func NewProgressState() *ProgressState {
	return &ProgressState{Game: NewGameProgress()}
}
