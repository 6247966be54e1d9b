package chandler

import (
	"fmt"

	"github.com/OpenTollGate/tollgate-client-go/src/tollgate_protocol"
)

// ValidateBudgetConstraints checks that an option's price per metric unit stays under the configured maximum
func ValidateBudgetConstraints(option tollgate_protocol.PricingOption, metric tollgate_protocol.Metric, stepSize uint64, maxPricePerMs, maxPricePerByte float64) error {
	if stepSize == 0 {
		return &ChandlerError{
			Type:    ErrorTypeBudget,
			Code:    "invalid-step-size",
			Message: "step size is zero",
		}
	}

	pricePerStep := float64(option.PricePerStep)
	pricePerUnit := pricePerStep / float64(stepSize)

	var maxPrice float64
	var unitName string

	switch metric {
	case tollgate_protocol.MetricTime:
		maxPrice = maxPricePerMs
		unitName = "millisecond"
	case tollgate_protocol.MetricData:
		maxPrice = maxPricePerByte
		unitName = "byte"
	default:
		return &ChandlerError{
			Type:    ErrorTypeBudget,
			Code:    "unsupported-metric",
			Message: "unsupported metric: " + string(metric),
		}
	}

	if pricePerUnit > maxPrice {
		return &ChandlerError{
			Type:    ErrorTypeBudget,
			Code:    "price-too-high",
			Message: fmt.Sprintf("price per %s %.6f exceeds maximum %.6f (price per step: %.0f, step size: %d)", unitName, pricePerUnit, maxPrice, pricePerStep, stepSize),
			Context: map[string]interface{}{
				"price_per_step": pricePerStep,
				"price_per_unit": pricePerUnit,
				"max_price":      maxPrice,
				"metric":         string(metric),
				"step_size":      stepSize,
				"mint_url":       option.MintURL,
			},
		}
	}

	return nil
}

// eligibleOptions keeps the options that are within budget and can be bought at the given step count
func eligibleOptions(ad *tollgate_protocol.Advertisement, steps uint64, maxPricePerMs, maxPricePerByte float64) ([]tollgate_protocol.PricingOption, error) {
	var eligible []tollgate_protocol.PricingOption
	var lastErr error

	for _, option := range ad.PricingOptions {
		if err := ValidateBudgetConstraints(option, ad.Metric, ad.StepSize, maxPricePerMs, maxPricePerByte); err != nil {
			lastErr = err
			continue
		}
		if option.MinSteps > steps {
			continue
		}
		eligible = append(eligible, option)
	}

	if len(eligible) == 0 {
		if lastErr != nil {
			return nil, lastErr
		}
		return nil, &ChandlerError{
			Type:           ErrorTypeBudget,
			Code:           "no-eligible-option",
			Message:        fmt.Sprintf("no pricing option can be bought at %d steps", steps),
			UpstreamPubkey: ad.GatewayIdentity,
		}
	}
	return eligible, nil
}

// ValidateTrustPolicy checks if an upstream pubkey is trusted
func ValidateTrustPolicy(pubkey string, allowlist, blocklist []string, defaultPolicy string) error {
	for _, blocked := range blocklist {
		if pubkey == blocked {
			return &ChandlerError{
				Type:           ErrorTypeTrust,
				Code:           "pubkey-blocked",
				Message:        "pubkey is in blocklist",
				UpstreamPubkey: pubkey,
			}
		}
	}

	// If allowlist is specified, pubkey must be in it
	if len(allowlist) > 0 {
		for _, allowed := range allowlist {
			if pubkey == allowed {
				return nil
			}
		}
		return &ChandlerError{
			Type:           ErrorTypeTrust,
			Code:           "pubkey-not-allowed",
			Message:        "pubkey not in allowlist",
			UpstreamPubkey: pubkey,
		}
	}

	switch defaultPolicy {
	case "trust_all", "":
		return nil
	case "trust_none":
		return &ChandlerError{
			Type:           ErrorTypeTrust,
			Code:           "default-policy-deny",
			Message:        "default policy is trust_none",
			UpstreamPubkey: pubkey,
		}
	default:
		return &ChandlerError{
			Type:           ErrorTypeTrust,
			Code:           "invalid-default-policy",
			Message:        "unknown default policy: " + defaultPolicy,
			UpstreamPubkey: pubkey,
		}
	}
}
