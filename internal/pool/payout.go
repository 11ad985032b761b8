package pool

import (
	fpmath "ParaCover/internal/math"
)

// The three valuation formulas share one structure: pick source supplies
// (live while Ongoing for previews, settled snapshot otherwise), compute the
// outcome's adjusted split, derive each side's value from TVL, then price the
// requested shares against the un-adjusted side totals. The cross-side
// leverage transfer lives entirely in the adjusted split; an individual
// holder's redemption stays linear in their own share count.

// AmountClaimable values a redemption under the buyer-wins formula: buyer
// shares scale up by the multiplier, seller shares scale down.
func (p *Pool) AmountClaimable(buyShares, sellShares int64) (int64, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.amountForLocked(StatusClaimable, buyShares, sellShares)
}

// AmountMatured values a redemption under the seller-wins formula: the
// mirror image of AmountClaimable.
func (p *Pool) AmountMatured(buyShares, sellShares int64) (int64, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.amountForLocked(StatusMatured, buyShares, sellShares)
}

// AmountTerminated values a redemption at par: a pure pro-rata split with no
// cross-side transfer, as if no insurance event occurred.
func (p *Pool) AmountTerminated(buyShares, sellShares int64) (int64, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.amountForLocked(StatusTerminated, buyShares, sellShares)
}

func (p *Pool) amountForLocked(formula Status, buyShares, sellShares int64) (int64, error) {
	rBuy := p.settledBuyShare
	rSell := p.settledSellShare
	if p.status == StatusOngoing {
		rBuy = p.buyToken.TotalSupply()
		rSell = p.sellToken.TotalSupply()
	}

	scale := fpmath.MultiplierConfig.Scale
	mult := p.params.Multiplier

	var adjustedBuy, adjustedSell int64
	var err error

	switch formula {
	case StatusClaimable:
		if adjustedBuy, err = fpmath.MulDiv(rBuy, mult, scale); err != nil {
			return 0, err
		}
		if adjustedSell, err = fpmath.MulDiv(rSell, scale, mult); err != nil {
			return 0, err
		}
	case StatusMatured:
		if adjustedBuy, err = fpmath.MulDiv(rBuy, scale, mult); err != nil {
			return 0, err
		}
		if adjustedSell, err = fpmath.MulDiv(rSell, mult, scale); err != nil {
			return 0, err
		}
	case StatusTerminated:
		adjustedBuy = rBuy
		adjustedSell = rSell
	default:
		return 0, ErrWrongStatus
	}

	adjustedTotal := adjustedBuy + adjustedSell
	tvl := p.vault.Balance()

	// adjustedTotal == 0 surfaces as a division-by-zero arithmetic error:
	// callers must not price a redemption against an empty pool.
	buyValue, err := fpmath.MulDiv(adjustedBuy, tvl, adjustedTotal)
	if err != nil {
		return 0, err
	}
	sellValue, err := fpmath.MulDiv(adjustedSell, tvl, adjustedTotal)
	if err != nil {
		return 0, err
	}

	var amount int64
	if buyShares > 0 {
		portion, err := fpmath.MulDiv(buyShares, buyValue, rBuy)
		if err != nil {
			return 0, err
		}
		amount += portion
	}
	if sellShares > 0 {
		portion, err := fpmath.MulDiv(sellShares, sellValue, rSell)
		if err != nil {
			return 0, err
		}
		amount += portion
	}

	return amount, nil
}
