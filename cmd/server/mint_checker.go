package main

import (
	"context"
	"errors"

	enrollstore "credible/internal/enrollment/store"
	projstore "credible/internal/projector/store"
	"credible/pkg/platform/sentinel"
)

// mintChecker answers "is this credential minted" from either side: the local
// enrollment record or the chain projection, whichever saw the mint first.
type mintChecker struct {
	enrollments enrollstore.Store
	projections projstore.Store
}

func (c *mintChecker) Minted(ctx context.Context, packID, holder string) (bool, error) {
	enrollment, err := c.enrollments.Find(ctx, packID, holder)
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return false, err
	}
	if err == nil && enrollment.Minted {
		return true, nil
	}
	return c.projections.Minted(ctx, packID, holder)
}
