// Package rating implements the plain Elo model used to rate 1v1 matches.
package rating

import "math"

// DefaultK is the K-factor used when none is configured.
const DefaultK = 32

// Score values for the player whose rating is being updated.
const (
	Loss = 0.0
	Draw = 0.5
	Win  = 1.0
)

// Expected returns the expected score of a player rated ra against a player rated rb.
func Expected(ra, rb int) float64 {
	return 1.0 / (1.0 + math.Pow(10, float64(rb-ra)/400.0))
}

// Update returns ra's new rating after scoring score (Win, Draw or Loss) against rb.
// Halves round to even, so an odd K between equal ratings keeps the pool total.
// The result is not clamped; ratings may go below zero.
func Update(ra, rb int, score float64, k int) int {
	return int(math.RoundToEven(float64(ra) + float64(k)*(score-Expected(ra, rb))))
}

// Apply updates both sides of a 1v1 result from their pre-match ratings.
// score1 is player 1's score; player 2 receives the complement.
func Apply(r1, r2 int, score1 float64, k int) (int, int) {
	return Update(r1, r2, score1, k), Update(r2, r1, 1-score1, k)
}
