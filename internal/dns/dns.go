// Package dns resolves the signaling host, falling back to well-known
// public resolvers when the system resolver is broken or hijacked.
package dns

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

var publicDNS = []string{
	"1.1.1.1",                // Cloudflare
	"[2606:4700:4700::1111]", // Cloudflare
	"8.8.8.8",                // Google
	"[2001:4860:4860::8888]", // Google
	"9.9.9.9",                // Quad9
	"[2620:fe::fe]",          // Quad9
}

// Lookup resolves a hostname, preferring the system resolver and racing
// the public resolvers only when that fails.
func Lookup(address string) (string, error) {
	if ip, err := systemLookup(address); err == nil && ip != "" {
		return ip, nil
	}
	return raceLookup(address)
}

func systemLookup(address string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	r := &net.Resolver{}
	ips, err := r.LookupHost(ctx, address)
	if err != nil {
		return "", err
	}
	return pickAddress(ips)
}

// raceLookup queries every public resolver at once and takes the first
// answer.
func raceLookup(address string) (string, error) {
	type result struct {
		ip  string
		err error
	}

	results := make(chan result, len(publicDNS))
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	for _, server := range publicDNS {
		go func(server string) {
			ip, err := queryServer(ctx, address, server)
			results <- result{ip: ip, err: err}
		}(server)
	}

	for range publicDNS {
		select {
		case res := <-results:
			if res.err == nil && res.ip != "" {
				return res.ip, nil
			}
		case <-ctx.Done():
			return "", fmt.Errorf("resolving %s: public DNS race timed out", address)
		}
	}
	return "", fmt.Errorf("resolving %s: every public resolver failed", address)
}

func queryServer(ctx context.Context, address, server string) (string, error) {
	r := &net.Resolver{
		PreferGo: true,
		Dial: func(ctx context.Context, network, _ string) (net.Conn, error) {
			d := new(net.Dialer)
			return d.DialContext(ctx, network, net.JoinHostPort(server, "53"))
		},
	}

	ips, err := r.LookupHost(ctx, address)
	if err != nil {
		return "", err
	}
	return pickAddress(ips)
}

// pickAddress prefers IPv4 so the websocket dial works on v4-only paths.
func pickAddress(ips []string) (string, error) {
	if len(ips) == 0 {
		return "", errors.New("no addresses returned")
	}
	for _, ip := range ips {
		if net.ParseIP(ip).To4() != nil {
			return ip, nil
		}
	}
	return ips[0], nil
}
