// internal/results/multi.go
package results

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/scalpel-explore/api/schemas"
)

// MultiSink fans every call out to several sinks. Record and RecordPopup
// visit the sinks in order and join their errors so one failing sink does
// not starve the others. Flush runs the sinks concurrently.
type MultiSink struct {
	sinks []schemas.ResultsSink
}

// NewMultiSink drops nil sinks.
func NewMultiSink(sinks ...schemas.ResultsSink) *MultiSink {
	m := &MultiSink{}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

// Len is the number of wrapped sinks.
func (m *MultiSink) Len() int { return len(m.sinks) }

func (m *MultiSink) Record(ctx context.Context, page schemas.PageResult) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Record(ctx, page); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *MultiSink) RecordPopup(ctx context.Context, report schemas.PopupReport) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.RecordPopup(ctx, report); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Flush returns the first error, but every sink is given the chance to
// flush; the group context is not handed to the sinks.
func (m *MultiSink) Flush(ctx context.Context, summary schemas.RunSummary) error {
	var g errgroup.Group
	for _, s := range m.sinks {
		g.Go(func() error {
			return s.Flush(ctx, summary)
		})
	}
	return g.Wait()
}
