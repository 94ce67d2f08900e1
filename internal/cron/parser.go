// Package cron parses standard five-field cron expressions for sweep
// scheduling. All schedules evaluate in UTC, matching how reminder due
// times are stored.
package cron

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

type Parser struct {
	parser cron.Parser
}

func NewParser() *Parser {
	return &Parser{
		parser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
	}
}

func (p *Parser) Parse(expression string) (Schedule, error) {
	sched, err := p.parser.Parse(expression)
	if err != nil {
		return nil, fmt.Errorf("parse cron: %w", err)
	}
	return &schedule{sched: sched}, nil
}

type Schedule interface {
	Next(after time.Time) time.Time
}

type schedule struct {
	sched cron.Schedule
}

func (s *schedule) Next(after time.Time) time.Time {
	return s.sched.Next(after.UTC())
}
