package domain

import "math"

// maxValue bounds every numeric field so stores with 32-bit integer columns
// accept whatever validation accepts.
const maxValue = math.MaxInt32

// Validate checks presence first, then ranges. Presence failures all collapse
// to ErrMissingFields to match what clients already handle.
func (s Submission) Validate() error {
	if s.Name == nil || *s.Name == "" || s.Score == nil || s.TotalQuestions == nil ||
		*s.TotalQuestions == 0 || s.TimeUsed == nil {
		return ErrMissingFields
	}
	switch {
	case *s.TotalQuestions < 0:
		return &ValidationError{Field: "totalQuestions", Reason: "must be positive"}
	case *s.TotalQuestions > maxValue:
		return &ValidationError{Field: "totalQuestions", Reason: "is too large"}
	case *s.Score < 0:
		return &ValidationError{Field: "score", Reason: "must not be negative"}
	// score is bounded through totalQuestions
	case *s.Score > *s.TotalQuestions:
		return &ValidationError{Field: "score", Reason: "must not exceed totalQuestions"}
	case *s.TimeUsed < 0:
		return &ValidationError{Field: "timeUsed", Reason: "must not be negative"}
	case *s.TimeUsed > maxValue:
		return &ValidationError{Field: "timeUsed", Reason: "is too large"}
	}
	return nil
}

// Chapter returns the submission's category, defaulting to DefaultChapterID.
func (s Submission) Chapter() string {
	return ResolveChapter(s.ChapterID)
}

// ResolveChapter maps an empty category to DefaultChapterID.
func ResolveChapter(chapterID string) string {
	if chapterID == "" {
		return DefaultChapterID
	}
	return chapterID
}

// NewAttempt builds the unsaved attempt for a validated submission.
func (s Submission) NewAttempt() Attempt {
	return Attempt{
		Name:           *s.Name,
		Score:          *s.Score,
		TotalQuestions: *s.TotalQuestions,
		TimeUsed:       *s.TimeUsed,
		Percentage:     Percentage(*s.Score, *s.TotalQuestions),
		ChapterID:      s.Chapter(),
	}
}
