package cron

import (
	"testing"
	"time"
)

func TestParser_ValidExpressions(t *testing.T) {
	tests := []struct {
		name string
		expr string
	}{
		{"every hour", "0 * * * *"},
		{"every 5 minutes", "*/5 * * * *"},
		{"weekday business hours", "0 9-17 * * 1-5"},
		{"daily 2:30am", "30 2 * * *"},
		{"every minute", "* * * * *"},
	}

	p := NewParser()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sched, err := p.Parse(tt.expr)
			if err != nil {
				t.Errorf("Parse(%q) returned error: %v", tt.expr, err)
			}
			if sched == nil {
				t.Errorf("Parse(%q) returned nil schedule", tt.expr)
			}
		})
	}
}

func TestParser_InvalidExpressions(t *testing.T) {
	tests := []struct {
		name string
		expr string
	}{
		{"four fields", "* * * *"},
		{"six fields", "* * * * * *"},
		{"invalid minute 60", "60 * * * *"},
		{"invalid hour 25", "0 25 * * *"},
		{"non-numeric", "abc * * * *"},
		{"empty", ""},
	}

	p := NewParser()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Parse(tt.expr)
			if err == nil {
				t.Errorf("Parse(%q) should return error for invalid expression", tt.expr)
			}
		})
	}
}

func TestParser_NextCalculation(t *testing.T) {
	p := NewParser()

	// "0 10 * * *" = daily at 10:00 UTC
	sched, err := p.Parse("0 10 * * *")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	// After 09:00 -> 10:00 same day
	after := time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)
	next := sched.Next(after)
	want := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("Next(%v) = %v, want %v", after, next, want)
	}

	// After 11:00 -> 10:00 next day
	after2 := time.Date(2026, 1, 15, 11, 0, 0, 0, time.UTC)
	next2 := sched.Next(after2)
	want2 := time.Date(2026, 1, 16, 10, 0, 0, 0, time.UTC)
	if !next2.Equal(want2) {
		t.Errorf("Next(%v) = %v, want %v", after2, next2, want2)
	}
}

func TestParser_NextEvaluatesInUTC(t *testing.T) {
	p := NewParser()

	sched, err := p.Parse("0 10 * * *")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	// 09:00 UTC expressed in a non-UTC location still resolves against UTC.
	tokyo := time.FixedZone("JST", 9*3600)
	after := time.Date(2026, 1, 15, 18, 0, 0, 0, tokyo) // 09:00 UTC
	next := sched.Next(after)
	want := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("Next(%v) = %v, want %v", after, next.UTC(), want)
	}
}
