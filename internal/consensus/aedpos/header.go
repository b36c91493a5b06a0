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
	"fmt"

	"github.com/amazechain/aedpos/common/round"
	"github.com/amazechain/aedpos/common/types"
	"github.com/amazechain/aedpos/internal/consensus"
	"github.com/ethereum/go-ethereum/rlp"
)

// HeaderInformation is the consensus data a block carries in its header. Round is the
// part of the round the behaviour changes: the whole next round for transitions, the
// record of the sender plus what it revealed for others for updates.
type HeaderInformation struct {
	SenderPubkey string
	Behaviour    consensus.Behaviour
	Round        *round.Round
}

func (h *HeaderInformation) Encode() ([]byte, error) {
	return rlp.EncodeToBytes(h)
}

// DecodeHeaderInformation parses header consensus data.
func DecodeHeaderInformation(data []byte) (*HeaderInformation, error) {
	h := new(HeaderInformation)
	if err := rlp.DecodeBytes(data, h); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidHeaderInformation, err)
	}
	if h.Round == nil || h.SenderPubkey == "" {
		return nil, ErrInvalidHeaderInformation
	}
	return h, nil
}

// RevealedInValue is an in value of the previous round another miner recovered from
// secret sharing pieces.
type RevealedInValue struct {
	Pubkey  string
	InValue types.Hash
}

// TriggerInformation is what the producing node knows and the state does not: its in
// values and the secret sharing pieces it built or decrypted.
type TriggerInformation struct {
	Pubkey          string
	Behaviour       consensus.Behaviour
	InValue         types.Hash
	PreviousInValue types.Hash

	// EncryptedPieces of InValue, keyed by recipient.
	EncryptedPieces []round.Piece
	// DecryptedPieces of the previous round addressed to Pubkey, keyed by the owner
	// of the secret.
	DecryptedPieces []round.Piece

	RevealedInValues []RevealedInValue
}

func (t *TriggerInformation) Encode() ([]byte, error) {
	return rlp.EncodeToBytes(t)
}

func DecodeTriggerInformation(data []byte) (*TriggerInformation, error) {
	t := new(TriggerInformation)
	if err := rlp.DecodeBytes(data, t); err != nil {
		return nil, fmt.Errorf("decode trigger information: %w", err)
	}
	return t, nil
}
