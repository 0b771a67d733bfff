// Package fingerprint builds HTTP transports whose TLS ClientHello mimics a
// real browser, so result pages are requested the way a browser would.
package fingerprint

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"

	utls "github.com/refraction-networking/utls"
)

// Profile names a TLS fingerprint.
type Profile string

const (
	ProfileChrome  Profile = "chrome"
	ProfileFirefox Profile = "firefox"
	ProfileSafari  Profile = "safari"
	ProfileGo      Profile = "go"     // standard go TLS
	ProfileRandom  Profile = "random" // randomized uTLS profile
)

// Profiles lists every accepted profile name.
var Profiles = []Profile{ProfileChrome, ProfileFirefox, ProfileSafari, ProfileGo, ProfileRandom}

// ParseProfile maps a configuration value onto a Profile. The empty string
// selects ProfileGo.
func ParseProfile(s string) (Profile, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ProfileGo, nil
	}
	for _, p := range Profiles {
		if string(p) == s {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown fingerprint profile %q", s)
}

func helloID(p Profile) (utls.ClientHelloID, error) {
	switch p {
	case ProfileChrome:
		return utls.HelloChrome_Auto, nil
	case ProfileFirefox:
		return utls.HelloFirefox_Auto, nil
	case ProfileSafari:
		return utls.HelloIOS_Auto, nil
	case ProfileRandom:
		return utls.HelloRandomizedALPN, nil
	}
	return utls.ClientHelloID{}, fmt.Errorf("unknown fingerprint profile %q", p)
}

// Transport returns an http.RoundTripper that negotiates TLS with the given
// profile. ProfileGo yields a plain cloned http.Transport. proxyFunc is
// optional and becomes the transport's Proxy.
func Transport(p Profile, proxyFunc func(*http.Request) (*url.URL, error)) (http.RoundTripper, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if proxyFunc != nil {
		transport.Proxy = proxyFunc
	}
	if p == ProfileGo {
		return transport, nil
	}

	id, err := helloID(p)
	if err != nil {
		return nil, err
	}
	transport.DialTLSContext = dialer(transport.DialContext, &utls.Config{}, id)
	return transport, nil
}

// dialer wraps a TCP dial func with a uTLS handshake. base is copied per
// connection and its ServerName filled from addr.
func dialer(dial func(ctx context.Context, network, addr string) (net.Conn, error), base *utls.Config, id utls.ClientHelloID) func(ctx context.Context, network, addr string) (net.Conn, error) {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		tcpConn, err := dial(ctx, network, addr)
		if err != nil {
			return nil, err
		}

		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			host = addr
		}

		cfg := base.Clone()
		cfg.ServerName = host
		uConn := utls.UClient(tcpConn, cfg, id)
		if err := uConn.HandshakeContext(ctx); err != nil {
			_ = tcpConn.Close()
			return nil, fmt.Errorf("utls handshake with %s failed: %w", host, err)
		}
		return uConn, nil
	}
}
