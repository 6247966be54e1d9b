package tollgate_protocol

import (
	"strconv"

	"github.com/nbd-wtf/go-nostr"
)

// PricingOption is one accepted way of paying a TollGate, taken from a
// ["price_per_step", asset_type, price, unit, mint_url, min_steps] tag.
type PricingOption struct {
	AssetType    string `json:"asset_type"`
	PricePerStep uint64 `json:"price_per_step"`
	PriceUnit    string `json:"price_unit"`
	MintURL      string `json:"mint_url"`
	MinSteps     uint64 `json:"min_steps"`
}

// Advertisement holds the terms a TollGate publishes in its kind 10021 event.
type Advertisement struct {
	Metric          Metric          `json:"metric"`
	StepSize        uint64          `json:"step_size"`
	PricingOptions  []PricingOption `json:"pricing_options"`
	Tips            []string        `json:"tips,omitempty"`
	GatewayIdentity string          `json:"gateway_identity"`
}

// pricePerStepTagLen is the number of fields a price_per_step tag must carry
const pricePerStepTagLen = 6

// ParseAdvertisement extracts the advertisement terms from an event.
// The result is not validated; use ValidateAdvertisement or ExtractAdvertisement.
func ParseAdvertisement(event *nostr.Event) (*Advertisement, error) {
	if err := requireKind(event, AdvertisementKind); err != nil {
		return nil, &Error{Type: ErrorTypeInvalidAdvertisement, Code: "wrong-kind", Message: err.Message}
	}

	ad := &Advertisement{
		GatewayIdentity: event.PubKey,
		PricingOptions:  make([]PricingOption, 0),
	}
	var haveMetric, haveStepSize bool

	for _, tag := range event.Tags {
		if len(tag) < 1 {
			continue
		}

		switch tag[0] {
		case "metric":
			if len(tag) < 2 {
				return nil, invalidAdvertisement("malformed-metric", "metric tag has no value")
			}
			ad.Metric = Metric(tag[1])
			haveMetric = true

		case "step_size":
			if len(tag) < 2 {
				return nil, invalidAdvertisement("malformed-step-size", "step_size tag has no value")
			}
			stepSize, err := strconv.ParseUint(tag[1], 10, 64)
			if err != nil {
				return nil, invalidAdvertisement("malformed-step-size", "step_size %q is not an unsigned integer", tag[1])
			}
			ad.StepSize = stepSize
			haveStepSize = true

		case "price_per_step":
			option, err := parsePricingOption(tag)
			if err != nil {
				return nil, err
			}
			ad.PricingOptions = append(ad.PricingOptions, option)

		case "tips":
			ad.Tips = append(ad.Tips, tag[1:]...)
		}
	}

	if !haveMetric {
		return nil, invalidAdvertisement("missing-metric", "metric not specified in advertisement")
	}
	if !haveStepSize {
		return nil, invalidAdvertisement("missing-step-size", "step_size not specified in advertisement")
	}

	return ad, nil
}

func parsePricingOption(tag nostr.Tag) (PricingOption, error) {
	if len(tag) < pricePerStepTagLen {
		return PricingOption{}, invalidAdvertisement("malformed-price", "price_per_step tag has %d fields, expected %d", len(tag), pricePerStepTagLen)
	}

	price, err := strconv.ParseUint(tag[2], 10, 64)
	if err != nil {
		return PricingOption{}, invalidAdvertisement("malformed-price", "price %q is not an unsigned integer", tag[2])
	}

	minSteps, err := strconv.ParseUint(tag[5], 10, 64)
	if err != nil {
		return PricingOption{}, invalidAdvertisement("malformed-price", "min_steps %q is not an unsigned integer", tag[5])
	}

	return PricingOption{
		AssetType:    tag[1],
		PricePerStep: price,
		PriceUnit:    tag[3],
		MintURL:      tag[4],
		MinSteps:     minSteps,
	}, nil
}

// ValidateAdvertisement reports the first violated invariant.
func ValidateAdvertisement(ad *Advertisement) error {
	if ad == nil {
		return invalidAdvertisement("nil", "advertisement is nil")
	}
	if !ad.Metric.IsValid() {
		return invalidAdvertisement("unknown-metric", "unknown metric %q", string(ad.Metric))
	}
	if ad.StepSize == 0 {
		return invalidAdvertisement("zero-step-size", "step_size cannot be zero")
	}
	if len(ad.PricingOptions) == 0 {
		return invalidAdvertisement("no-pricing-options", "no pricing options in advertisement")
	}

	for i, option := range ad.PricingOptions {
		if err := validatePricingOption(option); err != nil {
			err.Message = "pricing option " + strconv.Itoa(i) + ": " + err.Message
			return err
		}
	}

	return nil
}

func validatePricingOption(option PricingOption) *Error {
	if option.AssetType != AssetTypeCashu {
		return invalidAdvertisement("unsupported-asset", "unsupported asset type %q", option.AssetType)
	}
	if option.PricePerStep == 0 {
		return invalidAdvertisement("zero-price", "price_per_step cannot be zero")
	}
	if option.MinSteps == 0 {
		return invalidAdvertisement("zero-min-steps", "min_steps cannot be zero")
	}
	return nil
}

// ExtractAdvertisement parses and validates an advertisement event.
func ExtractAdvertisement(event *nostr.Event) (*Advertisement, error) {
	ad, err := ParseAdvertisement(event)
	if err != nil {
		return nil, err
	}
	if err := ValidateAdvertisement(ad); err != nil {
		return nil, err
	}
	return ad, nil
}

// MinSteps returns the smallest min_steps across all pricing options.
func (ad *Advertisement) MinSteps() uint64 {
	var lowest uint64
	for i, option := range ad.PricingOptions {
		if i == 0 || option.MinSteps < lowest {
			lowest = option.MinSteps
		}
	}
	return lowest
}
