package promotion

import (
	"context"
	"slices"
	"strings"

	"github.com/go-faster/errors"
)

// Evaluator runs promotions against a cart snapshot and collects the
// discounts of every satisfied promotion. Evaluation is deterministic
// (ascending priority score, ties broken by id) and idempotent: evaluating
// an unchanged cart twice yields identical results.
type Evaluator struct {
	reg *Registry
}

// NewEvaluator creates an evaluator using the given registry.
func NewEvaluator(reg *Registry) *Evaluator {
	return &Evaluator{reg: reg}
}

// Evaluate checks each promotion's conditions against the cart and, for
// promotions whose conditions all pass, applies every action. Promotions
// gated by a coupon code are skipped unless that code is in the cart's
// applied set; window and usage-limit checks happened at coupon-apply time
// and are not repeated here.
func (e *Evaluator) Evaluate(_ context.Context, cart Cart, promos []*Promotion) (Result, error) {
	ordered := make([]*Promotion, len(promos))
	copy(ordered, promos)
	slices.SortStableFunc(ordered, func(a, b *Promotion) int {
		if a.PriorityScore != b.PriorityScore {
			return a.PriorityScore - b.PriorityScore
		}
		return strings.Compare(a.ID.String(), b.ID.String())
	})

	var out Result
	for _, p := range ordered {
		if p.CouponCode != "" && !slices.Contains(cart.CouponCodes, p.CouponCode) {
			continue
		}

		satisfied, err := e.conditionsPass(cart, p)
		if err != nil {
			return Result{}, errors.Wrapf(err, "promotion %s", p.Name)
		}
		if !satisfied {
			continue
		}

		for _, ac := range p.Actions {
			action, ok := e.reg.Action(ac.Code)
			if !ok {
				return Result{}, errors.Errorf("promotion %s: unknown action %q", p.Name, ac.Code)
			}
			res, err := action.Apply(cart, ac.Args)
			if err != nil {
				return Result{}, errors.Wrapf(err, "promotion %s: action %s", p.Name, ac.Code)
			}
			for i := range res.OrderDiscounts {
				res.OrderDiscounts[i].PromotionID = p.ID.String()
			}
			for i := range res.LineDiscounts {
				res.LineDiscounts[i].PromotionID = p.ID.String()
			}
			out.OrderDiscounts = append(out.OrderDiscounts, res.OrderDiscounts...)
			out.LineDiscounts = append(out.LineDiscounts, res.LineDiscounts...)
		}
	}
	return out, nil
}

func (e *Evaluator) conditionsPass(cart Cart, p *Promotion) (bool, error) {
	for _, cc := range p.Conditions {
		cond, ok := e.reg.Condition(cc.Code)
		if !ok {
			return false, errors.Errorf("unknown condition %q", cc.Code)
		}
		pass, err := cond.Check(cart, cc.Args)
		if err != nil {
			return false, errors.Wrapf(err, "condition %s", cc.Code)
		}
		if !pass {
			return false, nil
		}
	}
	return true, nil
}
