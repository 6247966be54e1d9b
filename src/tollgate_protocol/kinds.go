package tollgate_protocol

import "fmt"

// Event kinds used on the wire between a customer and a TollGate.
const (
	AdvertisementKind = 10021
	PaymentKind       = 21000
	SessionKind       = 1022
	NoticeKind        = 21023
)

// AssetTypeCashu is the only asset type this client can pay with.
const AssetTypeCashu = "cashu"

// Metric is the unit an advertisement meters access in.
type Metric string

const (
	MetricTime Metric = "milliseconds"
	MetricData Metric = "bytes"
)

// ParseMetric maps a wire value to a Metric.
func ParseMetric(value string) (Metric, error) {
	switch Metric(value) {
	case MetricTime, MetricData:
		return Metric(value), nil
	default:
		return "", fmt.Errorf("unknown metric %q", value)
	}
}

func (m Metric) IsValid() bool {
	return m == MetricTime || m == MetricData
}

func (m Metric) String() string {
	return string(m)
}
