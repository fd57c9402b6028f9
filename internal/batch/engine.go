package batch

import (
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrNoWetWeight is returned when a distribution is requested for a batch
// without contributions.
var ErrNoWetWeight = errors.New("batch has no contributions to distribute over")

// Contribution is one reception's wet-weight share of a batch.
type Contribution struct {
	ReceptionID uuid.UUID
	WetWeight   decimal.Decimal
}

// Share is the dried weight allotted to one contribution.
type Share struct {
	ReceptionID    uuid.UUID
	WetWeight      decimal.Decimal
	PercentOfTotal decimal.Decimal
	DriedShare     decimal.Decimal
}

var hundred = decimal.NewFromInt(100)

// shareScale keeps distributed weights at storage precision.
const shareScale = 3

// DistributeDriedWeight splits the measured dried weight across the
// contributions in proportion to their wet weight. Every share except the
// last is rounded to storage precision; the last share absorbs the rounding
// remainder so the shares always sum exactly to the dried total. A zero wet
// total yields all-zero shares and percentages.
func DistributeDriedWeight(contribs []Contribution, totalDried decimal.Decimal) ([]Share, error) {
	if len(contribs) == 0 {
		return nil, ErrNoWetWeight
	}
	totalWet := decimal.Zero
	for _, c := range contribs {
		totalWet = totalWet.Add(c.WetWeight)
	}

	shares := make([]Share, len(contribs))
	if totalWet.Sign() <= 0 {
		for i, c := range contribs {
			shares[i] = Share{
				ReceptionID:    c.ReceptionID,
				WetWeight:      c.WetWeight,
				PercentOfTotal: decimal.Zero,
				DriedShare:     decimal.Zero,
			}
		}
		return shares, nil
	}

	distributed := decimal.Zero
	for i, c := range contribs {
		share := Share{
			ReceptionID:    c.ReceptionID,
			WetWeight:      c.WetWeight,
			PercentOfTotal: c.WetWeight.Div(totalWet).Mul(hundred).Round(4),
		}
		if i == len(contribs)-1 {
			share.DriedShare = totalDried.Sub(distributed)
		} else {
			share.DriedShare = totalDried.Mul(c.WetWeight).Div(totalWet).Round(shareScale)
			distributed = distributed.Add(share.DriedShare)
		}
		shares[i] = share
	}
	return shares, nil
}

// SackBreakdown converts a dried weight into full sacks plus the leftover
// weight that does not fill a sack.
func SackBreakdown(totalDried, sackWeight decimal.Decimal) (int64, decimal.Decimal) {
	if sackWeight.Sign() <= 0 || totalDried.Sign() <= 0 {
		return 0, totalDried
	}
	sacks := totalDried.Div(sackWeight).Floor()
	remainder := totalDried.Sub(sacks.Mul(sackWeight))
	return sacks.IntPart(), remainder
}
