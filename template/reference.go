package template

import (
	"corep-assistant/models"

	"github.com/shopspring/decimal"
)

// ReferenceValues derives every C 01.00 field from a scenario using the
// template formulas. Keys are full field identifiers.
func ReferenceValues(s *models.ScenarioInput) map[string]decimal.Decimal {
	instruments := s.ShareCapitalNominal.Add(s.SharePremium).Add(s.OtherCET1Instruments)
	deductions := s.Goodwill.Abs().Add(s.OtherIntangibleAssets.Abs()).Add(s.DeferredTaxAssetsFutureProfit.Abs())
	cet1 := instruments.
		Add(s.RetainedEarnings).
		Add(s.AccumulatedOCI).
		Add(s.OtherReserves).
		Sub(deductions)
	at1 := s.AT1Instruments
	tier1 := cet1.Add(at1)
	tier2 := s.T2Instruments.Add(s.T2SubordinatedLoans)

	return map[string]decimal.Decimal{
		FieldID(RowOwnFunds):             tier1.Add(tier2),
		FieldID(RowTier1):                tier1,
		FieldID(RowCET1):                 cet1,
		FieldID(RowCET1Instruments):      instruments,
		FieldID(RowPaidUpInstruments):    s.ShareCapitalNominal,
		FieldID(RowSharePremium):         s.SharePremium,
		FieldID(RowOtherCET1Instruments): s.OtherCET1Instruments,
		FieldID(RowRetainedEarnings):     s.RetainedEarnings,
		FieldID(RowAOCI):                 s.AccumulatedOCI,
		FieldID(RowOtherReserves):        s.OtherReserves,
		FieldID(RowGoodwill):             s.Goodwill.Abs(),
		FieldID(RowOtherIntangibles):     s.OtherIntangibleAssets.Abs(),
		FieldID(RowDeferredTaxAssets):    s.DeferredTaxAssetsFutureProfit.Abs(),
		FieldID(RowAT1):                  at1,
		FieldID(RowAT1Instruments):       s.AT1Instruments,
		FieldID(RowTier2):                tier2,
	}
}
