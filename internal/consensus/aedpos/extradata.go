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
	"context"
	"fmt"

	"github.com/amazechain/aedpos/common/round"
	"github.com/amazechain/aedpos/common/types"
	"github.com/amazechain/aedpos/internal/consensus"
	"github.com/amazechain/aedpos/utils"
)

// GetConsensusExtraData builds the header consensus data of a block the local miner
// produces. trigger is an encoded TriggerInformation.
func (e *AEDPoS) GetConsensusExtraData(ctx context.Context, block consensus.BlockContext, trigger []byte) ([]byte, error) {
	t, err := DecodeTriggerInformation(trigger)
	if err != nil {
		return nil, err
	}
	header, err := e.ExtraData(ctx, block, t)
	if err != nil {
		return nil, err
	}
	return header.Encode()
}

// ExtraData is GetConsensusExtraData without the encoding.
func (e *AEDPoS) ExtraData(ctx context.Context, block consensus.BlockContext, t *TriggerInformation) (*HeaderInformation, error) {
	if t == nil || t.Pubkey == "" {
		return nil, fmt.Errorf("%w: empty trigger", ErrInvalidHeaderInformation)
	}
	var header *HeaderInformation
	err := e.view(ctx, func(r StateReader) error {
		current, err := e.currentRound(r)
		if err != nil {
			return err
		}
		if !current.IsInMinerList(t.Pubkey) {
			return fmt.Errorf("%w: %s", ErrNotMiner, t.Pubkey)
		}
		var provided *round.Round
		switch t.Behaviour {
		case consensus.UpdateValue:
			provided, err = e.updateValueRound(r, current, block, t)
		case consensus.TinyBlock:
			provided, err = tinyBlockRound(current, block, t.Pubkey)
		case consensus.NextRound:
			provided, _, err = e.generateNextRound(r, current, t.Pubkey, block.Time)
		case consensus.NextTerm:
			if !e.config.IsMainChain {
				return fmt.Errorf("%w: side chains never change term", ErrInvalidHeaderInformation)
			}
			provided, err = e.generateNextTerm(r, current, t.Pubkey, block.Time)
		default:
			return fmt.Errorf("%w: behaviour %v", ErrInvalidHeaderInformation, t.Behaviour)
		}
		if err != nil {
			return err
		}
		header = &HeaderInformation{SenderPubkey: t.Pubkey, Behaviour: t.Behaviour, Round: provided}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return header, nil
}

// updateValueRound applies the values of the trigger to a copy of current and cuts
// out what the header carries.
func (e *AEDPoS) updateValueRound(r StateReader, current *round.Round, block consensus.BlockContext, t *TriggerInformation) (*round.Round, error) {
	if t.InValue.IsEmpty() {
		return nil, fmt.Errorf("%w: empty in value", ErrInvalidOutValue)
	}
	previous, err := e.previousRound(r, current)
	if err != nil {
		return nil, err
	}
	updated := current.Clone()
	pubkey := t.Pubkey

	previousInValue := t.PreviousInValue
	if !previousInValue.IsEmpty() && !isPreviousInValueValid(previous, pubkey, previousInValue) {
		e.log.Warn("Drop previous in value not matching the committed out value", "pubkey", pubkey, "round", current.RoundNumber)
		previousInValue = types.EmptyHash
	}
	// another miner may have revealed it already
	if previousInValue.IsEmpty() {
		previousInValue = current.Miner(pubkey).PreviousInValue
	}
	signatureSource := previousInValue
	if signatureSource.IsEmpty() {
		signatureSource = fakePreviousInValue(pubkey, block.Height)
	}
	base := previous
	if base.IsEmpty() {
		base = current
	}
	signature := base.CalculateSignature(signatureSource)
	updated.ApplyNormalConsensusData(pubkey, previousInValue, utils.HashOf(t.InValue), signature)

	m := updated.Miner(pubkey)
	m.ActualMiningTimes = append(m.ActualMiningTimes, block.Time)
	m.ProducedBlocks++
	m.ProducedTinyBlocks++
	m.ImpliedIrreversibleBlockHeight = block.Height

	if e.config.IsSecretSharingEnabled {
		for _, p := range t.EncryptedPieces {
			if p.Pubkey == pubkey || !updated.IsInMinerList(p.Pubkey) {
				continue
			}
			m.SetEncryptedPiece(round.Piece{Pubkey: p.Pubkey, Data: utils.Copy(p.Data), Digest: p.Digest})
		}
		for _, p := range t.DecryptedPieces {
			owner := updated.Miner(p.Pubkey)
			if owner == nil || owner.Pubkey == pubkey || !isDecryptedPieceValid(previous, p.Pubkey, pubkey, p.Data) {
				continue
			}
			owner.SetDecryptedPiece(round.Piece{Pubkey: pubkey, Data: utils.Copy(p.Data), Digest: utils.Sha256(p.Data)})
		}
		for _, v := range t.RevealedInValues {
			target := updated.Miner(v.Pubkey)
			if target == nil || v.Pubkey == pubkey || !target.PreviousInValue.IsEmpty() {
				continue
			}
			if isPreviousInValueValid(previous, v.Pubkey, v.InValue) {
				target.PreviousInValue = v.InValue
			}
		}
	}
	return updated.GetUpdateValueRound(pubkey), nil
}

func tinyBlockRound(current *round.Round, block consensus.BlockContext, pubkey string) (*round.Round, error) {
	updated := current.Clone()
	m := updated.Miner(pubkey)
	if m == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotMiner, pubkey)
	}
	m.ActualMiningTimes = append(m.ActualMiningTimes, block.Time)
	m.ProducedBlocks++
	m.ProducedTinyBlocks++
	return updated.GetTinyBlockRound(pubkey), nil
}

// isPreviousInValueValid checks v against the out value pubkey committed in previous.
func isPreviousInValueValid(previous *round.Round, pubkey string, v types.Hash) bool {
	if previous.IsEmpty() {
		return false
	}
	m := previous.Miner(pubkey)
	if m == nil || m.OutValue.IsEmpty() {
		return false
	}
	return utils.HashOf(v) == m.OutValue
}

// isDecryptedPieceValid checks that data is the share owner encrypted for decryptor
// in previous.
func isDecryptedPieceValid(previous *round.Round, owner, decryptor string, data []byte) bool {
	if previous.IsEmpty() {
		return false
	}
	m := previous.Miner(owner)
	if m == nil {
		return false
	}
	encrypted, ok := m.EncryptedPiece(decryptor)
	return ok && encrypted.Digest == utils.Sha256(data)
}
