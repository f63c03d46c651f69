/*
Copyright © 2025 Seednode <seednode@seedno.de>
*/

package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScore(t *testing.T) {
	tests := []struct {
		name        string
		subs        []submission
		multiplier  float64
		wantTotal   float64
		wantAverage float64
		wantTarget  float64
		wantWinner  string
	}{
		{
			name: "default multiplier, closest wins",
			subs: []submission{
				{nickname: "Alice", joinOrder: 0, number: 60},
				{nickname: "Bob", joinOrder: 1, number: 40},
			},
			multiplier:  0.8,
			wantTotal:   100,
			wantAverage: 50,
			wantTarget:  40,
			wantWinner:  "Bob",
		},
		{
			name: "halved multiplier favors the low pick",
			subs: []submission{
				{nickname: "Alice", joinOrder: 0, number: 100},
				{nickname: "Bob", joinOrder: 1, number: 0},
			},
			multiplier:  0.5,
			wantTotal:   100,
			wantAverage: 50,
			wantTarget:  25,
			wantWinner:  "Bob",
		},
		{
			name: "equal distance breaks toward earliest join",
			subs: []submission{
				{nickname: "Alice", joinOrder: 0, number: 50},
				{nickname: "Bob", joinOrder: 1, number: 50},
			},
			multiplier:  0.8,
			wantTotal:   100,
			wantAverage: 50,
			wantTarget:  40,
			wantWinner:  "Alice",
		},
		{
			name: "tie break is join order, not slice order",
			subs: []submission{
				{nickname: "Bob", joinOrder: 1, number: 50},
				{nickname: "Alice", joinOrder: 0, number: 50},
			},
			multiplier:  0.8,
			wantTotal:   100,
			wantAverage: 50,
			wantTarget:  40,
			wantWinner:  "Alice",
		},
		{
			name: "single submission wins trivially",
			subs: []submission{
				{nickname: "Alice", joinOrder: 0, number: 77.25},
			},
			multiplier:  0.8,
			wantTotal:   77.25,
			wantAverage: 77.25,
			wantTarget:  61.8,
			wantWinner:  "Alice",
		},
		{
			name: "average and target rounded to two decimals",
			subs: []submission{
				{nickname: "Alice", joinOrder: 0, number: 10},
				{nickname: "Bob", joinOrder: 1, number: 10},
				{nickname: "Carol", joinOrder: 2, number: 11},
			},
			multiplier:  0.8,
			wantTotal:   31,
			wantAverage: 10.33,
			wantTarget:  8.27,
			wantWinner:  "Alice",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := score(tt.subs, tt.multiplier)
			require.NoError(t, err)

			assert.Equal(t, tt.wantTotal, out.totalSum)
			assert.Equal(t, tt.wantAverage, out.average)
			assert.Equal(t, tt.wantTarget, out.target)
			assert.Equal(t, tt.wantWinner, out.winner)
		})
	}
}

func TestScoreNoSubmissions(t *testing.T) {
	_, err := score(nil, 0.8)
	assert.ErrorIs(t, err, ErrNothingToFinish)
}

func TestValidNumber(t *testing.T) {
	tests := []struct {
		name   string
		number float64
		want   bool
	}{
		{"lower bound", 0, true},
		{"upper bound", 100, true},
		{"two decimals", 42.42, true},
		{"negative", -1, false},
		{"too large", 100.01, false},
		{"three decimals", 10.001, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, validNumber(tt.number))
		})
	}
}

func TestValidMultiplier(t *testing.T) {
	tests := []struct {
		name       string
		multiplier float64
		want       bool
	}{
		{"lower bound", 0.1, true},
		{"upper bound", 0.9, true},
		{"default", 0.8, true},
		{"zero", 0, false},
		{"one", 1.0, false},
		{"above range", 1.9, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, validMultiplier(tt.multiplier))
		})
	}
}
