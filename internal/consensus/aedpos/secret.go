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

package aedpos

import (
	"github.com/amazechain/aedpos/common/round"
	"github.com/amazechain/aedpos/common/types"
	"github.com/amazechain/aedpos/internal/secretsharing"
	"github.com/amazechain/aedpos/log"
	"github.com/amazechain/aedpos/utils"
)

// SecretSharingThreshold is the number of pieces needed to recover an in value in a
// round of n miners.
func SecretSharingThreshold(n int) int {
	t := n * 2 / 3
	if n > 1 && t > n-1 {
		t = n - 1
	}
	if t < 1 {
		t = 1
	}
	return t
}

// RevealSharedInValues recovers the in values previous miners committed but did not
// reveal in current, from the pieces decrypted by the other miners. Only values that
// hash to the committed out value are returned.
func RevealSharedInValues(current, previous *round.Round) map[string]types.Hash {
	if current.IsEmpty() || previous.IsEmpty() {
		return nil
	}
	threshold := SecretSharingThreshold(previous.Len())
	revealed := make(map[string]types.Hash)
	for _, owner := range previous.OrderedMiners() {
		if owner.OutValue.IsEmpty() || len(owner.EncryptedPieces) < threshold {
			continue
		}
		target := current.Miner(owner.Pubkey)
		if target == nil || !target.PreviousInValue.IsEmpty() || len(target.DecryptedPieces) < threshold {
			continue
		}
		shares := make([][]byte, 0, len(target.DecryptedPieces))
		for _, p := range target.DecryptedPieces {
			encrypted, ok := owner.EncryptedPiece(p.Pubkey)
			if !ok || encrypted.Digest != utils.Sha256(p.Data) {
				continue
			}
			shares = append(shares, p.Data)
		}
		if len(shares) < threshold {
			continue
		}
		inValue, err := secretsharing.Combine(shares, threshold)
		if err != nil {
			log.Debug("Failed to combine shared pieces", "owner", owner.Pubkey, "err", err)
			continue
		}
		if utils.HashOf(inValue) != owner.OutValue {
			log.Warn("Recovered in value does not match out value", "owner", owner.Pubkey, "round", previous.RoundNumber)
			continue
		}
		revealed[owner.Pubkey] = inValue
	}
	return revealed
}

// fakePreviousInValue stands in for an in value nobody can reveal.
func fakePreviousInValue(pubkey string, height uint64) types.Hash {
	return utils.ConcatAndCompute(utils.HashFromString(pubkey), utils.HashFromUint64(height))
}

// SupplyCurrentRoundInformation fills the previous in value and signature of the
// miners that did not mine in current, so the signatures of the next round aggregate
// over every miner.
func SupplyCurrentRoundInformation(current, previous *round.Round, height uint64) {
	base := previous
	if base.IsEmpty() {
		base = current
	}
	for _, m := range current.NotMinedMiners() {
		if !m.Signature.IsEmpty() {
			continue
		}
		if m.PreviousInValue.IsEmpty() {
			m.PreviousInValue = fakePreviousInValue(m.Pubkey, height)
		}
		m.Signature = base.CalculateSignature(m.PreviousInValue)
	}
}
