// Package availability revalidates an open cart against the catalog's current
// per-branch variant availability.
package availability

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"storefront/internal/cart"
	"storefront/internal/entity"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Logger()

// Checker answers whether one variant can still be ordered at a branch.
type Checker interface {
	CheckVariant(ctx context.Context, productID entity.ProductID, branch, variant string) (bool, error)
}

type CheckerFunc func(ctx context.Context, productID entity.ProductID, branch, variant string) (bool, error)

func (f CheckerFunc) CheckVariant(ctx context.Context, productID entity.ProductID, branch, variant string) (bool, error) {
	return f(ctx, productID, branch, variant)
}

// Eviction describes a line removed from the cart. Err is set when the check
// itself failed.
type Eviction struct {
	Line entity.CartLine
	Err  error
}

func (e Eviction) Message() string {
	return fmt.Sprintf("%s (%s) is no longer available at the %s branch and was removed from your cart",
		e.Line.Product.Name, e.Line.VariantName, e.Line.Branch)
}

type Result struct {
	Checked   int
	Evicted   []Eviction
	Discarded bool // context ended or cart was cleared before results applied
}

// Validator checks every line of a cart concurrently.
type Validator struct {
	checker Checker
}

func NewValidator(checker Checker) *Validator {
	return &Validator{checker: checker}
}

type checkResult struct {
	line      entity.CartLine
	available bool
	err       error
}

// Validate runs one revalidation pass. Each line is checked in its own
// goroutine; a failed check counts as unavailable and does not affect the
// others. Results are applied only if the store was not cleared meanwhile.
func (v *Validator) Validate(ctx context.Context, store *cart.Store) (Result, error) {
	snap := store.Snapshot()
	if len(snap.Lines) == 0 {
		return Result{}, nil
	}

	resultCh := make(chan checkResult, len(snap.Lines))
	for _, line := range snap.Lines {
		go func(line entity.CartLine) {
			available, err := v.checker.CheckVariant(ctx, line.ProductID, line.Branch, line.VariantName)
			resultCh <- checkResult{line: line, available: available, err: err}
		}(line)
	}

	var evictions []Eviction
	for range snap.Lines {
		select {
		case <-ctx.Done():
			logger.Warn().Msgf("Availability check for session %s abandoned: %v", store.Session(), ctx.Err())
			return Result{Checked: len(snap.Lines), Discarded: true}, ctx.Err()
		case res := <-resultCh:
			if res.err != nil {
				err := fmt.Errorf("%w: %s/%s/%s: %v", entity.ErrAvailabilityCheck, res.line.ProductID, res.line.Branch, res.line.VariantName, res.err)
				logger.Error().Err(err).Msgf("Error checking availability for product %s", res.line.ProductID)
				evictions = append(evictions, Eviction{Line: res.line, Err: err})
				continue
			}
			if !res.available {
				logger.Warn().Msgf("Product %s (%s) unavailable at branch %s", res.line.ProductID, res.line.VariantName, res.line.Branch)
				evictions = append(evictions, Eviction{Line: res.line})
			}
		}
	}

	result := Result{Checked: len(snap.Lines)}
	if len(evictions) == 0 {
		return result, nil
	}

	keys := make([]entity.LineKey, 0, len(evictions))
	for _, e := range evictions {
		keys = append(keys, e.Line.Key())
	}
	removed := store.Evict(snap.Generation, keys)
	if removed == nil && store.Snapshot().Generation != snap.Generation {
		result.Discarded = true
		return result, nil
	}

	// report only what actually left the cart
	gone := make(map[entity.LineKey]bool, len(removed))
	for _, l := range removed {
		gone[l.Key()] = true
	}
	for _, e := range evictions {
		if gone[e.Line.Key()] {
			result.Evicted = append(result.Evicted, e)
		}
	}
	return result, nil
}
