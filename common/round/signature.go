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

package round

import (
	"encoding/binary"

	"github.com/amazechain/aedpos/common/types"
	"github.com/amazechain/aedpos/utils"
)

// CalculateSignature combines inValue with the aggregated signatures of this round.
// It is called on the previous round to derive the signature of the current one.
func (r *Round) CalculateSignature(inValue types.Hash) types.Hash {
	aggregated := types.EmptyHash
	for _, m := range r.OrderedMiners() {
		aggregated = utils.XorAndCompute(aggregated, m.Signature)
	}
	return utils.XorAndCompute(inValue, aggregated)
}

// SignatureToInt64 reads the first eight bytes of a signature as a little endian int64.
func SignatureToInt64(signature types.Hash) int64 {
	return int64(binary.LittleEndian.Uint64(signature[:8]))
}

// absModulus returns |v| mod n without overflowing on math.MinInt64.
func absModulus(v int64, n uint64) uint64 {
	var abs uint64
	if v < 0 {
		abs = uint64(-(v + 1)) + 1
	} else {
		abs = uint64(v)
	}
	return abs % n
}

// SupposedOrder is the order of next round derived from a signature.
func SupposedOrder(signature types.Hash, minersCount int) uint32 {
	if minersCount <= 0 {
		return 0
	}
	return uint32(absModulus(SignatureToInt64(signature), uint64(minersCount))) + 1
}

// isFinalOrderTaken reports whether another miner than pubkey already holds order.
func (r *Round) isFinalOrderTaken(order uint32, pubkey string) bool {
	for _, m := range r.Miners {
		if m.Pubkey != pubkey && m.FinalOrderOfNextRound == order {
			return true
		}
	}
	return false
}

// ResolveFinalOrder returns supposed if no other miner holds it as final order, or the
// first free order scanning forward from it and wrapping around.
func (r *Round) ResolveFinalOrder(pubkey string, supposed uint32) uint32 {
	n := uint32(len(r.Miners))
	if !r.isFinalOrderTaken(supposed, pubkey) {
		return supposed
	}
	for i := supposed + 1; i < n*2; i++ {
		candidate := i
		if i > n {
			candidate = i % n
		}
		if !r.isFinalOrderTaken(candidate, pubkey) {
			return candidate
		}
	}
	return supposed
}

// ApplyNormalConsensusData records the out value and signature of pubkey and computes
// its order of next round. A miner whose supposed order collides with a final order
// already taken by another miner is moved to the next free order.
func (r *Round) ApplyNormalConsensusData(pubkey string, previousInValue, outValue, signature types.Hash) *Round {
	m := r.Miner(pubkey)
	if m == nil {
		return r
	}
	m.OutValue = outValue
	m.Signature = signature
	if m.PreviousInValue.IsEmpty() {
		m.PreviousInValue = previousInValue
	}
	supposed := SupposedOrder(signature, len(r.Miners))
	m.SupposedOrderOfNextRound = supposed
	m.FinalOrderOfNextRound = 0
	m.FinalOrderOfNextRound = r.ResolveFinalOrder(pubkey, supposed)
	return r
}

// NextExtraBlockProducerOrder derives the extra block producer of the next round from
// the signature of the first miner by order that carries one.
func (r *Round) NextExtraBlockProducerOrder() uint32 {
	for _, m := range r.OrderedMiners() {
		if !m.Signature.IsEmpty() {
			return SupposedOrder(m.Signature, len(r.Miners))
		}
	}
	return 1
}
