package validate

import (
	"fmt"

	ma "github.com/multiformats/go-multiaddr"
)

// Multiaddr checks that a transport address string parses as a
// multi-component multi-address (GLOSSARY: "/ip4/…/tcp/…/p2p/…").
func Multiaddr(addr string) error {
	if addr == "" {
		return fmt.Errorf("%w: address cannot be empty", ErrInvalidMultiaddr)
	}
	if _, err := ma.NewMultiaddr(addr); err != nil {
		return fmt.Errorf("%w: %q: %v", ErrInvalidMultiaddr, addr, err)
	}
	return nil
}
