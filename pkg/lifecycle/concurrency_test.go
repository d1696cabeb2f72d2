package lifecycle

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/Mindburn-Labs/icl/core/pkg/integrity"
)

func TestConcurrentUtilize(t *testing.T) {
	ctx := context.Background()
	m, store := newManager(t)

	_, err := m.Capitalize(ctx, capitalizeReq("model-load"))
	require.NoError(t, err)

	const goroutines, perGoroutine = 8, 25
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < goroutines; i++ {
		g.Go(func() error {
			for j := 0; j < perGoroutine; j++ {
				_, err := m.Utilize(gctx, UtilizeRequest{
					AssetID:     "model-load",
					Amount:      d("10"),
					Actor:       "svc-inference",
					EffectiveAt: jan1.AddDate(0, 0, 1),
				})
				if err != nil {
					return err
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	asset, err := m.Asset("model-load")
	require.NoError(t, err)
	assert.True(t, asset.AccumulatedUtilization.Equal(d("2000.00")),
		"lost update: accumulated %s", asset.AccumulatedUtilization)
	assert.Equal(t, uint64(1+goroutines*perGoroutine), entryCount(t, store))

	report, err := integrity.NewChecker().VerifyStore(ctx, store)
	require.NoError(t, err)
	assert.True(t, report.Valid, "violations: %+v", report.Violations)
}

func TestConcurrentAssetsIndependent(t *testing.T) {
	ctx := context.Background()
	m, store := newManager(t)

	const assets = 6
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < assets; i++ {
		id := fmt.Sprintf("model-%02d", i)
		g.Go(func() error {
			req := capitalizeReq(id)
			if _, err := m.Capitalize(gctx, req); err != nil {
				return err
			}
			if _, err := m.Utilize(gctx, UtilizeRequest{AssetID: id, Amount: d("42"), EffectiveAt: jan1.AddDate(0, 0, 1)}); err != nil {
				return err
			}
			_, err := m.Depreciate(gctx, DepreciateRequest{AssetID: id, PeriodStart: jan1, PeriodEnd: jun1})
			return err
		})
	}
	require.NoError(t, g.Wait())

	require.Len(t, m.Assets(), assets)
	for _, a := range m.Assets() {
		assert.True(t, a.BookValue.Equal(d("79166.67")), "%s book %s", a.ID, a.BookValue)
	}

	report, err := integrity.NewChecker().VerifyStore(ctx, store)
	require.NoError(t, err)
	assert.True(t, report.Valid, "violations: %+v", report.Violations)
	head, err := store.Head(ctx)
	require.NoError(t, err)
	assert.Equal(t, report.HeadHash, head)
}

func TestConcurrentDuplicateCapitalize(t *testing.T) {
	ctx := context.Background()
	m, store := newManager(t)

	const racers = 8
	errs := make(chan error, racers)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < racers; i++ {
		g.Go(func() error {
			_, err := m.Capitalize(gctx, capitalizeReq("model-contested"))
			errs <- err
			return nil
		})
	}
	require.NoError(t, g.Wait())
	close(errs)

	won := 0
	for err := range errs {
		if err == nil {
			won++
		}
	}
	assert.Equal(t, 1, won, "exactly one racer may capitalize")
	assert.Equal(t, uint64(1), entryCount(t, store))
}

func TestLockAcquireHonoursDeadline(t *testing.T) {
	ctx := context.Background()
	m, _ := newManager(t)

	_, err := m.Capitalize(ctx, capitalizeReq("model-held"))
	require.NoError(t, err)

	release, err := m.locks.acquire(ctx, "model-held")
	require.NoError(t, err)

	bounded, cancel := context.WithTimeout(ctx, 30*time.Millisecond)
	defer cancel()
	_, err = m.Utilize(bounded, UtilizeRequest{AssetID: "model-held", Amount: d("10")})
	require.ErrorIs(t, err, context.DeadlineExceeded)

	release()
	_, err = m.Utilize(ctx, UtilizeRequest{AssetID: "model-held", Amount: d("10"), EffectiveAt: jan1.AddDate(0, 0, 1)})
	require.NoError(t, err)
}
