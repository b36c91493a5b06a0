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
	"github.com/amazechain/aedpos/internal/consensus"
)

// ValidateConsensusAfterExecution compares the state a block left behind with the
// consensus data in its header.
func (e *AEDPoS) ValidateConsensusAfterExecution(ctx context.Context, block consensus.BlockContext, extraData []byte) consensus.ValidationResult {
	header, err := DecodeHeaderInformation(extraData)
	if err != nil {
		validationFailureMeter.Mark(1)
		return consensus.Invalid(err)
	}
	return e.ValidateAfterExecution(ctx, block, header)
}

// ValidateAfterExecution is ValidateConsensusAfterExecution for decoded header
// information.
func (e *AEDPoS) ValidateAfterExecution(ctx context.Context, block consensus.BlockContext, header *HeaderInformation) consensus.ValidationResult {
	err := e.view(ctx, func(r StateReader) error {
		current, err := e.currentRound(r)
		if err != nil {
			return err
		}
		return verifyExecutedRound(current, header)
	})
	if err != nil {
		validationFailureMeter.Mark(1)
		e.log.Warn("Consensus state differs from header", "height", block.Height, "sender", header.SenderPubkey, "behaviour", header.Behaviour, "err", err)
		return consensus.Invalid(err)
	}
	return consensus.Valid()
}

// verifyExecutedRound compares the persisted round with the header round. Updates are
// merged into a copy of the persisted round first, so the comparison never runs
// against a round the merge already changed.
func verifyExecutedRound(persisted *round.Round, header *HeaderInformation) error {
	if header.Round.RoundNumber != persisted.RoundNumber {
		return fmt.Errorf("%w: header round %d, current round %d", ErrRoundHashMismatch, header.Round.RoundNumber, persisted.RoundNumber)
	}
	includePreviousInValue := !persisted.IsMinerListJustChanged
	switch header.Behaviour {
	case consensus.UpdateValue:
		recovered := persisted.Clone().RecoverFromUpdateValue(header.Round, header.SenderPubkey)
		if recovered.Hash(includePreviousInValue) != persisted.Hash(includePreviousInValue) {
			return ErrRoundHashMismatch
		}
	case consensus.TinyBlock:
		recovered := persisted.Clone().RecoverFromTinyBlock(header.Round, header.SenderPubkey)
		if recovered.Hash(includePreviousInValue) != persisted.Hash(includePreviousInValue) {
			return ErrRoundHashMismatch
		}
	case consensus.NextRound, consensus.NextTerm:
		if header.Round.Hash(includePreviousInValue) != persisted.Hash(includePreviousInValue) {
			return ErrRoundHashMismatch
		}
	default:
		return fmt.Errorf("%w: behaviour %v", ErrInvalidHeaderInformation, header.Behaviour)
	}
	return nil
}
