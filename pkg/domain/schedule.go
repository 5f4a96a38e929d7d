package domain

import (
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
)

// Schedules turns a rule's cron spec into its next run time.
type Schedules struct {
	parser      cron.Parser
	defaultSpec string
}

func NewSchedules(defaultSpec string) (*Schedules, error) {
	s := &Schedules{
		parser:      cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		defaultSpec: defaultSpec,
	}

	if _, err := s.parser.Parse(defaultSpec); err != nil {
		return nil, errors.Wrapf(err, "invalid default schedule %q", defaultSpec)
	}

	return s, nil
}

func (s *Schedules) Validate(spec string) error {
	if spec == "" {
		return nil
	}

	_, err := s.parser.Parse(spec)
	return err
}

// Next returns the first activation of the rule after `from`, or nil for
// disabled rules.
func (s *Schedules) Next(rule Rule, from time.Time) *time.Time {
	if !rule.Enabled {
		return nil
	}

	spec := rule.Schedule
	if spec == "" {
		spec = s.defaultSpec
	}

	sched, err := s.parser.Parse(spec)
	if err != nil {
		sched, _ = s.parser.Parse(s.defaultSpec)
	}

	next := sched.Next(from).UTC()

	return &next
}
