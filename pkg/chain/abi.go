package chain

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

//go:embed product_ledger.abi.json
var productLedgerABI []byte

// Contract vocabulary.
const (
	MethodMintProduct    = "mintProduct"
	MethodUpdateMetadata = "updateMetadata"
	MethodUpdatePrice    = "updatePrice"
	MethodUpdateQuantity = "updateQuantity"
	MethodUpdateStatus   = "updateStatus"
	MethodBurnProduct    = "burnProduct"
	MethodBuyTokens      = "buyTokens"
	MethodStoreEventCID  = "storeEventCID"

	MethodGetProductInfo     = "getProductInfo"
	MethodGetAllTokenIDs     = "getAllTokenIds"
	MethodGetTokenOwners     = "getTokenOwners"
	MethodBalanceOf          = "balanceOf"
	MethodGetTransactionCIDs = "getTransactionCIDs"
	MethodGetMetadataCID     = "getMetadataCID"

	EventTokenStateChanged = "TokenStateChanged"
)

// LoadABI parses the contract ABI at path, or the built-in one when path is empty.
func LoadABI(path string) (abi.ABI, error) {
	raw := productLedgerABI
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return abi.ABI{}, fmt.Errorf("read abi %q: %w", path, err)
		}
		raw = b
	}
	parsed, err := abi.JSON(bytes.NewReader(raw))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("parse abi: %w", err)
	}
	if _, ok := parsed.Events[EventTokenStateChanged]; !ok {
		return abi.ABI{}, fmt.Errorf("parse abi: missing event %s", EventTokenStateChanged)
	}
	return parsed, nil
}

// MustDefaultABI returns the built-in ABI.
func MustDefaultABI() abi.ABI {
	parsed, err := LoadABI("")
	if err != nil {
		panic(err)
	}
	return parsed
}
