package validate

import (
	"errors"
	"testing"
)

func TestMultiaddr(t *testing.T) {
	valid := []string{
		"/ip4/192.168.1.5/tcp/4001",
		"/ip4/10.0.0.1/udp/4001/quic-v1",
		"/ip6/::1/tcp/4001",
	}
	for _, addr := range valid {
		if err := Multiaddr(addr); err != nil {
			t.Errorf("Multiaddr(%q) = %v, want nil", addr, err)
		}
	}

	invalid := []string{"", "not-an-address", "192.168.1.5:4001"}
	for _, addr := range invalid {
		if err := Multiaddr(addr); err == nil {
			t.Errorf("Multiaddr(%q) = nil, want error", addr)
		}
	}
}

func TestMultiaddr_SentinelError(t *testing.T) {
	err := Multiaddr("")
	if !errors.Is(err, ErrInvalidMultiaddr) {
		t.Errorf("error should wrap ErrInvalidMultiaddr, got: %v", err)
	}
}
