package types

import "time"

// Recommendation is a single suggested activity produced by the
// recommendation workflow.
type Recommendation struct {
	Name            string `json:"name"`
	Reason          string `json:"reason"`
	ExpectedBenefit string `json:"expectedBenefit"`
	Duration        string `json:"duration"`
	Difficulty      string `json:"difficulty"`
}

// RecommendationBatch is a set of recommendations created at once for a
// user. Batches are written wholesale and never partially updated.
type RecommendationBatch struct {
	ID        string           `json:"_id" db:"id"`
	UserID    string           `json:"userId" db:"user_id"`
	Items     []Recommendation `json:"items" db:"items"`
	CreatedAt time.Time        `json:"createdAt" db:"created_at"`
}
