package constants

// Network identifies the chain a transaction targets.
type Network int

const (
	MAINNET Network = iota
	TESTNET
	PREVIEW
	PREPROD
)

// Network ids as carried in address headers and the body's network_id field.
const (
	TestnetNetworkId uint8 = 0
	MainnetNetworkId uint8 = 1
	MaxNetworkId     uint8 = 15
)

const (
	MainnetNetworkMagic uint32 = 764824073
	TestnetNetworkMagic uint32 = 2
	PreprodNetworkMagic uint32 = 1
)

const MaxAssetNameLength = 32

// Cost model language versions as used by the language view encoding.
const (
	PlutusV1Version uint = 0
	PlutusV2Version uint = 1
	PlutusV3Version uint = 2
)

// NetworkId returns the address network id for the network.
func (n Network) NetworkId() uint8 {
	if n == MAINNET {
		return MainnetNetworkId
	}
	return TestnetNetworkId
}

// Magic returns the network magic used by node-to-client protocols.
func (n Network) Magic() uint32 {
	switch n {
	case MAINNET:
		return MainnetNetworkMagic
	case PREPROD:
		return PreprodNetworkMagic
	default:
		return TestnetNetworkMagic
	}
}

const (
	BlockfrostBaseUrlMainnet = "https://cardano-mainnet.blockfrost.io/api"
	BlockfrostBaseUrlPreview = "https://cardano-preview.blockfrost.io/api"
	BlockfrostBaseUrlPreprod = "https://cardano-preprod.blockfrost.io/api"
)

// BlockfrostBaseUrl returns the hosted Blockfrost endpoint for the network.
// The legacy testnet maps to preview.
func (n Network) BlockfrostBaseUrl() string {
	switch n {
	case MAINNET:
		return BlockfrostBaseUrlMainnet
	case PREPROD:
		return BlockfrostBaseUrlPreprod
	default:
		return BlockfrostBaseUrlPreview
	}
}

func (n Network) String() string {
	switch n {
	case MAINNET:
		return "mainnet"
	case PREVIEW:
		return "preview"
	case PREPROD:
		return "preprod"
	default:
		return "testnet"
	}
}
