package crowsnest

import (
	"net"
)

// inferGatewayFromIP guesses the gateway of a subnet that has no default
// route, trying the first and then the last host address.
func inferGatewayFromIP(ip net.IP, mask net.IPMask) string {
	ip4 := ip.To4()
	if ip4 == nil || len(mask) != net.IPv4len {
		return ""
	}

	network := ip4.Mask(mask)
	broadcast := make(net.IP, net.IPv4len)
	for i := range network {
		broadcast[i] = network[i] | ^mask[i]
	}

	first := net.IP{network[0], network[1], network[2], network[3] + 1}
	last := net.IP{broadcast[0], broadcast[1], broadcast[2], broadcast[3] - 1}

	for _, gateway := range []net.IP{first, last} {
		if gateway.Mask(mask).Equal(network) && !gateway.Equal(network) && !gateway.Equal(broadcast) && !gateway.Equal(ip4) {
			return gateway.String()
		}
	}
	return ""
}
