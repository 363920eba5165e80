package network

import (
	"fmt"
	"net"
	"strconv"

	"github.com/jackpal/gateway"
)

// HostAddresses returns the IPv4 addresses of every interface, loopback last.
func HostAddresses() ([]string, error) {
	ifaceAddrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil, err
	}

	var (
		hostAddrs []string
		loopback  []string
	)
	for _, addr := range ifaceAddrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok {
			continue
		}
		ip := ipNet.IP.To4()
		if ip == nil {
			continue
		}
		if ip.IsLoopback() {
			loopback = append(loopback, ip.String())
			continue
		}
		hostAddrs = append(hostAddrs, ip.String())
	}

	return append(hostAddrs, loopback...), nil
}

// GetSourceIP returns the local ip address used to reach target:port.
// If target is the empty string then the default gateway is used.
// If the port is 0, then 80 is used by default.
func GetSourceIP(target string, port int) (string, error) {
	if target == "" {
		ip, err := gateway.DiscoverGateway()
		if err != nil {
			return "", fmt.Errorf("unable to discover default gateway: %w", err)
		}
		target = ip.String()
	}
	if port <= 0 {
		port = 80
	}

	// no packets are sent; dialing udp only selects a route
	conn, err := net.Dial("udp4", net.JoinHostPort(target, strconv.Itoa(port)))
	if err != nil {
		return "", err
	}
	defer conn.Close()

	localAddr := conn.LocalAddr().(*net.UDPAddr)

	return localAddr.IP.String(), nil
}

// CallbackURL builds the event callback URL a player at target should use to
// reach a listener on port.
func CallbackURL(target string, port int, path string) (string, error) {
	ip, err := GetSourceIP(target, 0)
	if err != nil {
		return "", err
	}
	if path == "" || path[0] != '/' {
		path = "/" + path
	}
	return "http://" + net.JoinHostPort(ip, strconv.Itoa(port)) + path, nil
}
