package tollgate_protocol

import (
	"strconv"
	"time"

	"github.com/nbd-wtf/go-nostr"
)

// DataSessionLifetime bounds how long a data-metered session is considered
// valid when the gateway does not meter it by time.
const DataSessionLifetime = 24 * time.Hour

// SessionResponse is the gateway's answer to an accepted payment.
type SessionResponse struct {
	SessionID        string           `json:"session_id"`
	Allotment        uint64           `json:"allotment"`
	Metric           Metric           `json:"metric"`
	SessionExpiry    time.Time        `json:"session_expiry"`
	DeviceIdentifier DeviceIdentifier `json:"device_identifier"`
	GatewayIdentity  string           `json:"gateway_identity"`
	CustomerIdentity string           `json:"customer_identity,omitempty"`
}

// ParseSessionResponse extracts a SessionResponse from a kind 1022 event.
// The allotment and device-identifier tags are mandatory. metric is the
// advertised metric of the session being paid for; a response metering in a
// different unit is rejected.
//
// The expiry is derived from the event timestamp: for time sessions it is
// created_at plus the allotment, for data sessions created_at plus
// DataSessionLifetime.
func ParseSessionResponse(event *nostr.Event, metric Metric) (*SessionResponse, error) {
	if err := requireKind(event, SessionKind); err != nil {
		return nil, err
	}

	resp := &SessionResponse{
		SessionID:       event.ID,
		Metric:          metric,
		GatewayIdentity: event.PubKey,
	}
	var haveAllotment, haveDevice bool

	for _, tag := range event.Tags {
		if len(tag) < 2 {
			continue
		}

		switch tag[0] {
		case "p":
			resp.CustomerIdentity = tag[1]

		case "allotment":
			allotment, err := strconv.ParseUint(tag[1], 10, 64)
			if err != nil {
				return nil, protocolError("malformed-allotment", "allotment %q is not an unsigned integer", tag[1])
			}
			resp.Allotment = allotment
			haveAllotment = true

		case "device-identifier":
			device, ok := parseDeviceIdentifierTag(tag)
			if !ok {
				return nil, protocolError("malformed-device-identifier", "device-identifier tag needs a type and a value")
			}
			resp.DeviceIdentifier = device
			haveDevice = true

		case "metric":
			if metric != "" && Metric(tag[1]) != metric {
				return nil, protocolError("metric-mismatch", "session metered in %q, advertisement uses %q", tag[1], metric)
			}
			resp.Metric = Metric(tag[1])
		}
	}

	if !haveAllotment {
		return nil, protocolError("missing-allotment", "no allotment tag found in session event")
	}
	if !haveDevice {
		return nil, protocolError("missing-device-identifier", "no device-identifier tag found in session event")
	}

	expiry, err := sessionExpiry(event.CreatedAt.Time(), resp.Metric, resp.Allotment)
	if err != nil {
		return nil, err
	}
	resp.SessionExpiry = expiry

	return resp, nil
}

func sessionExpiry(createdAt time.Time, metric Metric, allotment uint64) (time.Time, error) {
	if metric != MetricTime {
		return createdAt.Add(DataSessionLifetime), nil
	}

	if allotment > uint64(maxDurationMillis) {
		return time.Time{}, &Error{Type: ErrorTypeArithmeticOverflow, Code: "expiry", Message: "allotment of " + strconv.FormatUint(allotment, 10) + " ms overflows session expiry"}
	}
	return createdAt.Add(time.Duration(allotment) * time.Millisecond), nil
}
