package broker

import (
	"context"
	"errors"

	"github.com/IliaW/archive-spider/internal/model"
)

type Publisher interface {
	Publish(ctx context.Context, result *model.Result) error
	Close() error
}

// FanOut hands every result to all publishers. One failing publisher does not stop the others.
type FanOut struct {
	publishers []Publisher
}

func NewFanOut(publishers ...Publisher) *FanOut {
	return &FanOut{publishers: publishers}
}

func (f *FanOut) Publish(ctx context.Context, result *model.Result) error {
	var errs []error
	for _, p := range f.publishers {
		if err := p.Publish(ctx, result); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (f *FanOut) Close() error {
	var errs []error
	for _, p := range f.publishers {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (f *FanOut) Len() int {
	return len(f.publishers)
}
