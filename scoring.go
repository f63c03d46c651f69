/*
Copyright © 2025 Seednode <seednode@seedno.de>
*/

package main

import (
	"math"
)

const (
	minNumber float64 = 0
	maxNumber float64 = 100

	minMultiplier     float64 = 0.1
	maxMultiplier     float64 = 0.9
	defaultMultiplier float64 = 0.8
)

// submission pairs a player's nickname and join order with the number
// they locked in for the round.
type submission struct {
	nickname  string
	joinOrder int
	number    float64
}

// outcome holds the derived scalars for a resolved round.
type outcome struct {
	totalSum float64
	average  float64
	target   float64
	winner   string
}

// round2 truncates to two decimal places, rounding half away from zero.
func round2(n float64) float64 {
	return math.Round(n*100) / 100
}

// hasTwoDecimals reports whether n carries at most two decimal places.
func hasTwoDecimals(n float64) bool {
	return round2(n) == n
}

func validNumber(n float64) bool {
	return n >= minNumber && n <= maxNumber && hasTwoDecimals(n)
}

func validMultiplier(m float64) bool {
	return m >= minMultiplier && m <= maxMultiplier
}

// score resolves a round from the given submissions. The target is the
// multiplier-scaled average, and the winner is the submission closest
// to it. Ties break toward the earliest-joined player, so the result
// never depends on iteration order.
func score(subs []submission, multiplier float64) (outcome, error) {
	if len(subs) == 0 {
		return outcome{}, ErrNothingToFinish
	}

	var total float64
	for _, s := range subs {
		total += s.number
	}
	average := total / float64(len(subs))
	target := average * multiplier

	winner := subs[0]
	best := math.Abs(winner.number - target)
	for _, s := range subs[1:] {
		distance := math.Abs(s.number - target)
		if distance < best || (distance == best && s.joinOrder < winner.joinOrder) {
			winner = s
			best = distance
		}
	}

	return outcome{
		totalSum: total,
		average:  round2(average),
		target:   round2(target),
		winner:   winner.nickname,
	}, nil
}
