package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// ErrInvalidScenarioInput is returned when scenario data fails ingress validation
var ErrInvalidScenarioInput = errors.New("invalid scenario input")

// ScenarioInput is the bank data a report is built from. All amounts are in
// thousands of the reporting currency.
//
// Amounts must be non-negative except accumulated_oci and other_reserves,
// which are signed. Deductions (goodwill, intangibles, DTA) are magnitudes:
// a negative deduction is normalised to its absolute value.
type ScenarioInput struct {
	BankName      string `json:"bank_name" validate:"required,max=200"`
	ReportingDate string `json:"reporting_date" validate:"required,datetime=2006-01-02"`
	Currency      string `json:"currency" validate:"required,len=3,uppercase"`

	ShareCapitalNominal  decimal.Decimal `json:"share_capital_nominal" validate:"nonneg"`
	SharePremium         decimal.Decimal `json:"share_premium" validate:"nonneg"`
	OtherCET1Instruments decimal.Decimal `json:"other_cet1_instruments" validate:"nonneg"`
	RetainedEarnings     decimal.Decimal `json:"retained_earnings" validate:"nonneg"`
	AccumulatedOCI       decimal.Decimal `json:"accumulated_oci"`
	OtherReserves        decimal.Decimal `json:"other_reserves"`

	Goodwill                      decimal.Decimal `json:"goodwill"`
	OtherIntangibleAssets         decimal.Decimal `json:"other_intangible_assets"`
	DeferredTaxAssetsFutureProfit decimal.Decimal `json:"deferred_tax_assets_future_profit"`

	AT1Instruments      decimal.Decimal `json:"at1_instruments" validate:"nonneg"`
	T2Instruments       decimal.Decimal `json:"t2_instruments" validate:"nonneg"`
	T2SubordinatedLoans decimal.Decimal `json:"t2_subordinated_loans" validate:"nonneg"`
}

// Amount is one named quantity of a scenario
type Amount struct {
	Key   string
	Value decimal.Decimal
}

// Amounts returns the numeric quantities in declaration order
func (s *ScenarioInput) Amounts() []Amount {
	return []Amount{
		{"share_capital_nominal", s.ShareCapitalNominal},
		{"share_premium", s.SharePremium},
		{"other_cet1_instruments", s.OtherCET1Instruments},
		{"retained_earnings", s.RetainedEarnings},
		{"accumulated_oci", s.AccumulatedOCI},
		{"other_reserves", s.OtherReserves},
		{"goodwill", s.Goodwill},
		{"other_intangible_assets", s.OtherIntangibleAssets},
		{"deferred_tax_assets_future_profit", s.DeferredTaxAssetsFutureProfit},
		{"at1_instruments", s.AT1Instruments},
		{"t2_instruments", s.T2Instruments},
		{"t2_subordinated_loans", s.T2SubordinatedLoans},
	}
}

// ApplyDefaults fills the descriptive fields left empty and normalises deductions
func (s *ScenarioInput) ApplyDefaults() {
	if s.BankName == "" {
		s.BankName = "Bank"
	}
	if s.ReportingDate == "" {
		s.ReportingDate = "2025-12-31"
	}
	if s.Currency == "" {
		s.Currency = "GBP"
	}
	s.Goodwill = s.Goodwill.Abs()
	s.OtherIntangibleAssets = s.OtherIntangibleAssets.Abs()
	s.DeferredTaxAssetsFutureProfit = s.DeferredTaxAssetsFutureProfit.Abs()
}

// Validate checks the scenario against its declared constraints
func (s *ScenarioInput) Validate() error {
	if s == nil {
		return fmt.Errorf("%w: scenario is required", ErrInvalidScenarioInput)
	}
	err := scenarioValidator().Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalidScenarioInput, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describeFieldError(fe))
	}
	return fmt.Errorf("%w: %s", ErrInvalidScenarioInput, strings.Join(msgs, "; "))
}

// ParseScenario decodes scenario JSON, rejecting unknown keys and malformed
// amounts, then applies defaults and validates the result
func ParseScenario(data []byte) (*ScenarioInput, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var s ScenarioInput
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidScenarioInput, err)
	}
	s.ApplyDefaults()
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func scenarioValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		// nonneg tests the decimal sign exactly, with no float conversion.
		_ = validate.RegisterValidation("nonneg", func(fl validator.FieldLevel) bool {
			d, ok := fl.Field().Interface().(decimal.Decimal)
			return ok && !d.IsNegative()
		})
	})
	return validate
}

func describeFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "nonneg":
		return fmt.Sprintf("%s must be >= 0", fe.Field())
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "datetime":
		return fmt.Sprintf("%s must be a date in the form %s", fe.Field(), fe.Param())
	case "len":
		return fmt.Sprintf("%s must be %s characters", fe.Field(), fe.Param())
	case "uppercase":
		return fmt.Sprintf("%s must be upper case", fe.Field())
	default:
		return fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag())
	}
}
