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

package utils

import (
	"encoding/binary"
	"sync"

	"github.com/amazechain/aedpos/common/types"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/minio/sha256-simd"
	"golang.org/x/crypto/sha3"
)

// KeccakState wraps sha3.state. In addition to the usual hash methods, it also supports
// Read to get a variable amount of data from the hash state.
type KeccakState interface {
	Reset()
	Write([]byte) (int, error)
	Read([]byte) (int, error)
}

// HasherPool holds LegacyKeccak256 hashers for rlpHash.
var HasherPool = sync.Pool{
	New: func() interface{} { return sha3.NewLegacyKeccak256() },
}

func RlpHash(x interface{}) (h types.Hash) {
	sha := HasherPool.Get().(KeccakState)
	defer HasherPool.Put(sha)
	sha.Reset()
	rlp.Encode(sha, x)
	sha.Read(h[:])
	return h
}

// Sha256 computes the commitment hash of the concatenated data.
func Sha256(data ...[]byte) types.Hash {
	d := sha256.New()
	for _, b := range data {
		d.Write(b)
	}
	var h types.Hash
	copy(h[:], d.Sum(nil))
	return h
}

// HashOf returns Sha256(h). An out value is HashOf(in value).
func HashOf(h types.Hash) types.Hash {
	return Sha256(h[:])
}

func HashFromString(s string) types.Hash {
	return Sha256([]byte(s))
}

func HashFromUint64(v uint64) types.Hash {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return Sha256(b[:])
}

// XorAndCompute hashes a XOR b.
func XorAndCompute(a, b types.Hash) types.Hash {
	x := a.Xor(b)
	return Sha256(x[:])
}

// ConcatAndCompute hashes a || b.
func ConcatAndCompute(a, b types.Hash) types.Hash {
	return Sha256(a[:], b[:])
}
