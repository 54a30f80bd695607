package domain

import (
	"sort"
	"time"
)

// DefaultChapterID is the scoring category used when a submission or a
// leaderboard query does not name one.
const DefaultChapterID = "overall"

// Attempt is one completed quiz submission. Attempts are append-only.
type Attempt struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Score          int       `json:"score"`
	TotalQuestions int       `json:"totalQuestions"`
	TimeUsed       int       `json:"timeUsed"`   // seconds
	Percentage     int       `json:"percentage"` // derived once at write time
	ChapterID      string    `json:"chapterId"`
	CreatedAt      time.Time `json:"createdAt"`
}

// RankedAttempt is the stored attempt plus its rank at submission time.
type RankedAttempt struct {
	Attempt
	Rank int `json:"rank"`
}

// Submission is the raw submit input. Pointer fields distinguish an absent
// value from a zero value.
type Submission struct {
	Name           *string
	Score          *int
	TotalQuestions *int
	TimeUsed       *int
	ChapterID      string
}

// Stats summarizes every stored attempt regardless of chapter.
type Stats struct {
	TotalAttempts     int      `json:"totalAttempts"`
	AveragePercentage int      `json:"averagePercentage"`
	AverageTime       int      `json:"averageTime"`
	HighestScore      *Attempt `json:"highestScore"`
}

// Aggregate is the raw whole-table aggregate returned by a store. Rounding
// happens in one place (RoundedMean) so every store reports the same figures.
type Aggregate struct {
	Count         int
	PercentageSum int64
	TimeUsedSum   int64
}

// Leaderboard is a point-in-time snapshot pushed to live subscribers.
type Leaderboard struct {
	ChapterID string    `json:"chapterId"`
	Entries   []Attempt `json:"entries"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Percentage returns round(score/total*100), rounding halves up. Inputs are
// non-negative so this matches round-half-away-from-zero. Integer arithmetic
// keeps x.5 boundaries exact.
func Percentage(score, total int) int {
	if total <= 0 {
		return 0
	}
	return int((200*int64(score) + int64(total)) / (2 * int64(total)))
}

// RoundedMean returns round(sum/count) with the same rule as Percentage.
func RoundedMean(sum int64, count int) int {
	if count <= 0 {
		return 0
	}
	c := int64(count)
	return int((2*sum + c) / (2 * c))
}

// Better reports whether a is strictly ahead of b: higher percentage first,
// then lower time used. Equal pairs are tied.
func Better(a, b Attempt) bool {
	if a.Percentage != b.Percentage {
		return a.Percentage > b.Percentage
	}
	return a.TimeUsed < b.TimeUsed
}

// SortAttempts orders attempts by Better. Ties keep their relative order.
func SortAttempts(attempts []Attempt) {
	sort.SliceStable(attempts, func(i, j int) bool {
		return Better(attempts[i], attempts[j])
	})
}
