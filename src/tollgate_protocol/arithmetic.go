package tollgate_protocol

import (
	"math"
	"math/bits"
	"time"
)

const maxDurationMillis = math.MaxInt64 / int64(time.Millisecond)

// Default purchase floors for an initial purchase and a renewal.
const (
	InitialTimeFloor = 5 * time.Minute
	InitialDataFloor = 10 * 1024 * 1024
	RenewalTimeFloor = 5 * time.Minute
	RenewalDataFloor = 5 * 1024 * 1024
)

// CalculateCost returns steps * price_per_step, failing instead of wrapping.
func CalculateCost(option PricingOption, steps uint64) (uint64, error) {
	return checkedMul(steps, option.PricePerStep, "cost")
}

// CalculateAllotment returns steps * step_size, failing instead of wrapping.
func CalculateAllotment(steps, stepSize uint64) (uint64, error) {
	return checkedMul(steps, stepSize, "allotment")
}

// StepsFor returns the number of steps needed to cover amount metric units,
// rounding up to a whole step.
func StepsFor(amount, stepSize uint64) uint64 {
	if stepSize == 0 {
		return 0
	}
	steps := amount / stepSize
	if amount%stepSize != 0 {
		steps++
	}
	return steps
}

// FloorSteps converts a purchase floor for the advertisement's metric into steps.
func FloorSteps(ad *Advertisement, timeFloor time.Duration, dataFloor uint64) uint64 {
	switch ad.Metric {
	case MetricTime:
		return StepsFor(uint64(timeFloor.Milliseconds()), ad.StepSize)
	case MetricData:
		return StepsFor(dataFloor, ad.StepSize)
	default:
		return 0
	}
}

// InitialPurchaseSteps sizes a first purchase: at least the smallest
// min_steps on offer, and at least the metric's floor worth of steps.
func InitialPurchaseSteps(ad *Advertisement, timeFloor time.Duration, dataFloor uint64) uint64 {
	return max(ad.MinSteps(), FloorSteps(ad, timeFloor, dataFloor))
}

// RenewalPurchaseSteps sizes a renewal: the metric's floor worth of steps,
// raised to the chosen option's min_steps so the gateway accepts it.
func RenewalPurchaseSteps(ad *Advertisement, option PricingOption, timeFloor time.Duration, dataFloor uint64) uint64 {
	return max(option.MinSteps, FloorSteps(ad, timeFloor, dataFloor))
}

func checkedMul(a, b uint64, what string) (uint64, error) {
	hi, lo := bits.Mul64(a, b)
	if hi != 0 {
		return 0, &Error{
			Type:    ErrorTypeArithmeticOverflow,
			Code:    what,
			Message: what + " overflows 64 bits",
		}
	}
	return lo, nil
}
