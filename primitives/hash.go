package primitives

import (
	"encoding/hex"
	"fmt"

	"github.com/blinklabs-io/gouroboros/ledger/common"
)

// Hash224FromHex decodes a 28-byte hash such as a policy id or key hash.
func Hash224FromHex(s string) (common.Blake2b224, error) {
	var result common.Blake2b224
	b, err := hex.DecodeString(s)
	if err != nil {
		return result, fmt.Errorf("invalid hex %q: %w", s, err)
	}
	if len(b) != common.Blake2b224Size {
		return result, fmt.Errorf("expected %d byte hash, got %d", common.Blake2b224Size, len(b))
	}
	copy(result[:], b)
	return result, nil
}

// Hash256FromHex decodes a 32-byte hash such as a transaction id.
func Hash256FromHex(s string) (common.Blake2b256, error) {
	var result common.Blake2b256
	b, err := hex.DecodeString(s)
	if err != nil {
		return result, fmt.Errorf("invalid hex %q: %w", s, err)
	}
	if len(b) != common.Blake2b256Size {
		return result, fmt.Errorf("expected %d byte hash, got %d", common.Blake2b256Size, len(b))
	}
	copy(result[:], b)
	return result, nil
}
