package chain

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Helpers for reading positional outputs of Read.

func OutString(out []any, i int) (string, error) {
	if i >= len(out) {
		return "", fmt.Errorf("output %d missing", i)
	}
	s, ok := out[i].(string)
	if !ok {
		return "", fmt.Errorf("output %d: want string, got %T", i, out[i])
	}
	return s, nil
}

func OutStrings(out []any, i int) ([]string, error) {
	if i >= len(out) {
		return nil, fmt.Errorf("output %d missing", i)
	}
	s, ok := out[i].([]string)
	if !ok {
		return nil, fmt.Errorf("output %d: want []string, got %T", i, out[i])
	}
	return s, nil
}

func OutBig(out []any, i int) (*big.Int, error) {
	if i >= len(out) {
		return nil, fmt.Errorf("output %d missing", i)
	}
	n, ok := out[i].(*big.Int)
	if !ok || n == nil {
		return nil, fmt.Errorf("output %d: want uint256, got %T", i, out[i])
	}
	return n, nil
}

func OutUint64(out []any, i int) (uint64, error) {
	n, err := OutBig(out, i)
	if err != nil {
		return 0, err
	}
	if n.Sign() < 0 || !n.IsUint64() {
		return 0, fmt.Errorf("output %d: %s overflows uint64", i, n)
	}
	return n.Uint64(), nil
}

func OutUint64s(out []any, i int) ([]uint64, error) {
	if i >= len(out) {
		return nil, fmt.Errorf("output %d missing", i)
	}
	ns, ok := out[i].([]*big.Int)
	if !ok {
		return nil, fmt.Errorf("output %d: want uint256[], got %T", i, out[i])
	}
	res := make([]uint64, len(ns))
	for j, n := range ns {
		if n == nil || n.Sign() < 0 || !n.IsUint64() {
			return nil, fmt.Errorf("output %d[%d] overflows uint64", i, j)
		}
		res[j] = n.Uint64()
	}
	return res, nil
}

func OutAddress(out []any, i int) (common.Address, error) {
	if i >= len(out) {
		return common.Address{}, fmt.Errorf("output %d missing", i)
	}
	a, ok := out[i].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("output %d: want address, got %T", i, out[i])
	}
	return a, nil
}

func OutAddresses(out []any, i int) ([]common.Address, error) {
	if i >= len(out) {
		return nil, fmt.Errorf("output %d missing", i)
	}
	a, ok := out[i].([]common.Address)
	if !ok {
		return nil, fmt.Errorf("output %d: want address[], got %T", i, out[i])
	}
	return a, nil
}

// U256 converts a domain integer into a contract argument.
func U256(v uint64) *big.Int { return new(big.Int).SetUint64(v) }

// U256s converts a slice of domain integers into a uint256[] argument.
func U256s(vs []uint64) []*big.Int {
	out := make([]*big.Int, len(vs))
	for i, v := range vs {
		out[i] = U256(v)
	}
	return out
}
