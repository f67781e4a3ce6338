package results

import (
	"context"
	"errors"

	"github.com/ligun0805/bundle-monitor/internal/bundlecore"
)

// Multi saves to every sink and joins their errors.
type Multi []bundlecore.ResultSink

func (m Multi) Save(ctx context.Context, r bundlecore.Result) error {
	var errs []error
	for _, s := range m {
		if err := s.Save(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
