package primitives

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Liqwid-Labs/hose-sub000/constants"
)

// NetworkInfo pairs the address network id with the node network magic.
type NetworkInfo struct {
	Id    uint8
	Magic uint32
}

var namedNetworks = map[string]constants.Network{
	"mainnet": constants.MAINNET,
	"testnet": constants.TESTNET,
	"preview": constants.PREVIEW,
	"preprod": constants.PREPROD,
}

// ParseNetwork accepts a network name (mainnet, testnet, preview, preprod)
// or a numeric network id 0..15. Empty means testnet.
func ParseNetwork(s string) (NetworkInfo, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if name == "" {
		name = "testnet"
	}
	if n, ok := namedNetworks[name]; ok {
		return NetworkInfo{Id: n.NetworkId(), Magic: n.Magic()}, nil
	}
	v, err := strconv.ParseUint(s, 10, 8)
	if err != nil {
		return NetworkInfo{}, fmt.Errorf("%w: %q", ErrInvalidNetworkId, s)
	}
	id := uint8(v)
	if err := ValidateNetworkId(id); err != nil {
		return NetworkInfo{}, err
	}
	magic := constants.TestnetNetworkMagic
	if id == constants.MainnetNetworkId {
		magic = constants.MainnetNetworkMagic
	}
	return NetworkInfo{Id: id, Magic: magic}, nil
}
