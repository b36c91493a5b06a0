// Copyright 2022 The AmazeChain Authors
// This file is part of the AmazeChain library.
//
// The AmazeChain library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The AmazeChain library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the AmazeChain library. If not, see <http://www.gnu.org/licenses/>.

// Package secretsharing splits in values into Shamir shares and moves them between
// miners in encrypted form, so that the in value of a miner that stops producing can
// still be recovered by the others.
package secretsharing

import (
	"errors"
	"fmt"
	"io"
	"math/big"

	"github.com/amazechain/aedpos/common/types"
	"github.com/cloudflare/circl/group"
	"github.com/cloudflare/circl/secretsharing"
	"github.com/ethereum/go-ethereum/rlp"
)

var (
	ErrNotEnoughShares  = errors.New("not enough shares to recover the secret")
	ErrInvalidThreshold = errors.New("invalid secret sharing threshold")
	ErrSecretTooLarge   = errors.New("recovered secret does not fit in a hash")
)

// suite is large enough to hold any 32 byte value as a scalar.
var suite = group.P384

type encodedShare struct {
	ID    []byte
	Value []byte
}

// Split cuts secret into total shares, any threshold of which recover it. The i-th
// share is meant for the miner with index i of the sorted miner list.
func Split(rand io.Reader, secret types.Hash, threshold, total int) ([][]byte, error) {
	if threshold < 1 || total < threshold {
		return nil, fmt.Errorf("%w: %d of %d", ErrInvalidThreshold, threshold, total)
	}
	s := suite.NewScalar().SetBigInt(new(big.Int).SetBytes(secret[:]))
	ss := secretsharing.New(rand, uint(threshold-1), s)

	shares := ss.Share(uint(total))
	out := make([][]byte, 0, len(shares))
	for _, share := range shares {
		b, err := marshalShare(share)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

// Combine recovers the secret from at least threshold shares produced by Split.
func Combine(shares [][]byte, threshold int) (types.Hash, error) {
	if threshold < 1 {
		return types.EmptyHash, fmt.Errorf("%w: %d", ErrInvalidThreshold, threshold)
	}
	if len(shares) < threshold {
		return types.EmptyHash, fmt.Errorf("%w: have %d, need %d", ErrNotEnoughShares, len(shares), threshold)
	}
	decoded := make([]secretsharing.Share, 0, len(shares))
	for _, b := range shares {
		share, err := unmarshalShare(b)
		if err != nil {
			return types.EmptyHash, err
		}
		decoded = append(decoded, share)
	}
	secret, err := secretsharing.Recover(uint(threshold-1), decoded)
	if err != nil {
		return types.EmptyHash, err
	}
	raw, err := secret.MarshalBinary()
	if err != nil {
		return types.EmptyHash, err
	}
	v := new(big.Int).SetBytes(raw)
	if v.BitLen() > types.HashLength*8 {
		return types.EmptyHash, ErrSecretTooLarge
	}
	var h types.Hash
	v.FillBytes(h[:])
	return h, nil
}

func marshalShare(share secretsharing.Share) ([]byte, error) {
	id, err := share.ID.MarshalBinary()
	if err != nil {
		return nil, err
	}
	value, err := share.Value.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return rlp.EncodeToBytes(&encodedShare{ID: id, Value: value})
}

func unmarshalShare(b []byte) (secretsharing.Share, error) {
	var enc encodedShare
	if err := rlp.DecodeBytes(b, &enc); err != nil {
		return secretsharing.Share{}, fmt.Errorf("decode share: %w", err)
	}
	share := secretsharing.Share{ID: suite.NewScalar(), Value: suite.NewScalar()}
	if err := share.ID.UnmarshalBinary(enc.ID); err != nil {
		return secretsharing.Share{}, fmt.Errorf("decode share id: %w", err)
	}
	if err := share.Value.UnmarshalBinary(enc.Value); err != nil {
		return secretsharing.Share{}, fmt.Errorf("decode share value: %w", err)
	}
	return share, nil
}
