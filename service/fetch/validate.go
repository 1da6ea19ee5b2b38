package fetch

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	ethAddressRe = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)

	// Legacy (P2PKH/P2SH) base58 addresses.
	btcLegacyRe = regexp.MustCompile(`^[13][a-km-zA-HJ-NP-Z1-9]{25,34}$`)
	// Native segwit (bech32) addresses.
	btcBech32Re = regexp.MustCompile(`^bc1[a-z0-9]{39,59}$`)
)

// ValidateAddress checks that an address is plausibly valid for the given
// network. It does not verify checksums; providers reject garbage anyway,
// this just catches obvious typos before spending an API call.
func ValidateAddress(network, address string) error {
	address = strings.TrimSpace(address)
	if address == "" {
		return fmt.Errorf("address is empty")
	}
	switch network {
	case "ethereum":
		if !ethAddressRe.MatchString(address) {
			return fmt.Errorf("invalid ethereum address: %s", address)
		}
	case "bitcoin":
		if !btcLegacyRe.MatchString(address) && !btcBech32Re.MatchString(strings.ToLower(address)) {
			return fmt.Errorf("invalid bitcoin address: %s", address)
		}
	default:
		return fmt.Errorf("unsupported network: %s", network)
	}
	return nil
}
