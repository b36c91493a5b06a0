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
	"errors"
	"fmt"

	"github.com/amazechain/aedpos/common/round"
	"github.com/amazechain/aedpos/internal/consensus"
	"github.com/amazechain/aedpos/utils"
	mapset "github.com/deckarep/golang-set/v2"
)

// validationContext is what every header check looks at.
type validationContext struct {
	block    consensus.BlockContext
	header   *HeaderInformation
	sender   string
	current  *round.Round // state before the block
	previous *round.Round
	provided *round.Round // round carried by the header

	reader StateReader
}

// validator is one link of the header validation chain.
type validator func(c *validationContext) error

// validators returns the checks of behaviour in the order they run. The first
// failure stops the chain.
func (e *AEDPoS) validators(behaviour consensus.Behaviour) []validator {
	switch behaviour {
	case consensus.UpdateValue:
		return []validator{
			e.verifyRoundID,
			e.verifyMiningPermission,
			e.verifyTimeSlot,
			e.verifyContinuousBlocks,
			e.verifyUpdateValue,
			e.verifyLibInformation,
		}
	case consensus.TinyBlock:
		return []validator{
			e.verifyRoundID,
			e.verifyMiningPermission,
			e.verifyTimeSlot,
			e.verifyContinuousBlocks,
			e.verifyTinyBlock,
		}
	case consensus.NextRound, consensus.NextTerm:
		return []validator{
			e.verifyMiningPermission,
			e.verifyTimeSlot,
			e.verifyContinuousBlocks,
			e.verifyRoundTerminate,
		}
	}
	return nil
}

// ValidateConsensusBeforeExecution checks the consensus data of a block against the
// state it is built on.
func (e *AEDPoS) ValidateConsensusBeforeExecution(ctx context.Context, block consensus.BlockContext, extraData []byte) consensus.ValidationResult {
	header, err := DecodeHeaderInformation(extraData)
	if err != nil {
		validationFailureMeter.Mark(1)
		return consensus.Invalid(err)
	}
	return e.ValidateBeforeExecution(ctx, block, header)
}

// ValidateBeforeExecution is ValidateConsensusBeforeExecution for decoded header
// information.
func (e *AEDPoS) ValidateBeforeExecution(ctx context.Context, block consensus.BlockContext, header *HeaderInformation) consensus.ValidationResult {
	err := e.view(ctx, func(r StateReader) error {
		if block.Producer != "" && block.Producer != header.SenderPubkey {
			return fmt.Errorf("%w: produced by %s, signed for %s", ErrInvalidHeaderInformation, block.Producer, header.SenderPubkey)
		}
		current, err := e.currentRound(r)
		if err != nil {
			return err
		}
		previous, err := e.previousRound(r, current)
		if err != nil {
			return err
		}
		c := &validationContext{
			block:    block,
			header:   header,
			sender:   header.SenderPubkey,
			current:  current,
			previous: previous,
			provided: header.Round,
			reader:   r,
		}
		checks := e.validators(header.Behaviour)
		if checks == nil {
			return fmt.Errorf("%w: behaviour %v", ErrInvalidHeaderInformation, header.Behaviour)
		}
		for _, check := range checks {
			if err := check(c); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		validationFailureMeter.Mark(1)
		if errors.Is(err, ErrStaleRound) {
			staleRoundMeter.Mark(1)
		}
		e.log.Debug("Consensus validation failed", "height", block.Height, "sender", header.SenderPubkey, "behaviour", header.Behaviour, "err", err)
		return consensus.Invalid(err)
	}
	return consensus.Valid()
}

// verifyRoundID binds update data to the round it was generated for. It runs first so
// that data of a past round is reported as stale, whatever else changed since.
func (e *AEDPoS) verifyRoundID(c *validationContext) error {
	if c.provided.RoundNumber != c.current.RoundNumber || c.provided.RoundIDForValidation != c.current.RoundID() {
		return fmt.Errorf("%w: generated for round %d (id %d), current round %d (id %d)", ErrStaleRound,
			c.provided.RoundNumber, c.provided.RoundIDForValidation, c.current.RoundNumber, c.current.RoundID())
	}
	return nil
}

// verifyMiningPermission requires the sender to be a current miner that is not banned.
func (e *AEDPoS) verifyMiningPermission(c *validationContext) error {
	if !c.current.IsInMinerList(c.sender) {
		return fmt.Errorf("%w: %s", ErrNotMiner, c.sender)
	}
	if e.election.IsBanned(c.sender) {
		return fmt.Errorf("%w: %s", ErrBanned, c.sender)
	}
	return nil
}

// verifyTimeSlot checks the block time against the slot of the sender. Transitions
// must not come before the round is over.
func (e *AEDPoS) verifyTimeSlot(c *validationContext) error {
	if c.header.Behaviour.IsRoundTransition() {
		return verifyTerminationTime(c)
	}
	provided := c.provided.Miner(c.sender)
	if provided == nil {
		return fmt.Errorf("%w: no record of sender", ErrInvalidHeaderInformation)
	}
	if provided.LatestActualMiningTime() != c.block.Time {
		return fmt.Errorf("%w: actual mining time %d, block time %d", ErrTimeSlot, provided.LatestActualMiningTime(), c.block.Time)
	}
	blockTime := c.block.Time
	if c.current.RoundNumber == 1 {
		if c.current.IsTimeSlotPassed(c.sender, blockTime) {
			return fmt.Errorf("%w: slot of %s in round 1", ErrTimeSlot, c.sender)
		}
		return nil
	}
	m := c.current.Miner(c.sender)
	interval := c.current.MiningInterval()
	if blockTime < m.ExpectedMiningTime {
		// tiny blocks of the previous extra block producer before the round starts
		if c.header.Behaviour == consensus.TinyBlock && c.current.ExtraBlockProducerOfPreviousRound == c.sender &&
			blockTime < c.current.RoundStartTime() {
			return nil
		}
		return fmt.Errorf("%w: block at %d before slot at %d", ErrTimeSlot, blockTime, m.ExpectedMiningTime)
	}
	if blockTime >= m.ExpectedMiningTime+interval {
		return fmt.Errorf("%w: block at %d after slot ended at %d", ErrTimeSlot, blockTime, m.ExpectedMiningTime+interval)
	}
	return nil
}

// verifyTerminationTime accepts a transition from the extra block producer once the
// extra block slot opened, and from anybody else once the whole round is over.
func verifyTerminationTime(c *validationContext) error {
	if err := c.provided.CheckRoundTimeSlots(); err != nil {
		return fmt.Errorf("%w: %v", ErrTimeSlot, err)
	}
	if start := c.provided.RoundStartTime(); start != c.block.Time+c.provided.MiningInterval() {
		return fmt.Errorf("%w: new round starts at %d for block at %d", ErrTimeSlot, start, c.block.Time)
	}
	legitimate := c.current.ExpectedEndTime()
	if ebp := c.current.ExtraBlockProducer(); ebp != nil && ebp.Pubkey == c.sender {
		legitimate = c.current.ExtraBlockMiningTime()
	}
	if c.block.Time < legitimate {
		return fmt.Errorf("%w: round %d terminated at %d, not before %d", ErrPrematureTransition, c.current.RoundNumber, c.block.Time, legitimate)
	}
	return nil
}

// verifyContinuousBlocks stops a miner from producing more blocks in a row than its
// budget allows.
func (e *AEDPoS) verifyContinuousBlocks(c *validationContext) error {
	if c.current.RoundNumber <= 2 || c.current.Len() == 1 {
		return nil
	}
	latest, err := c.reader.LatestPubkeyToTinyBlocksCount()
	if err != nil {
		return err
	}
	if latest != nil && latest.Pubkey == c.sender && latest.BlocksCount < 0 {
		return fmt.Errorf("%w: %s", ErrContinuousBlocks, c.sender)
	}
	return nil
}

// verifyTinyBlock lets a tiny block move the counters of its sender by exactly one
// block and nothing else.
func (e *AEDPoS) verifyTinyBlock(c *validationContext) error {
	provided, state := c.provided.Miner(c.sender), c.current.Miner(c.sender)
	if provided == nil {
		return fmt.Errorf("%w: no record of %s", ErrInvalidHeaderInformation, c.sender)
	}
	if provided.ProducedBlocks != state.ProducedBlocks+1 || provided.ProducedTinyBlocks != state.ProducedTinyBlocks+1 {
		return fmt.Errorf("%w: produced blocks %d tiny %d after %d tiny %d", ErrInvalidHeaderInformation,
			provided.ProducedBlocks, provided.ProducedTinyBlocks, state.ProducedBlocks, state.ProducedTinyBlocks)
	}
	if provided.ImpliedIrreversibleBlockHeight != state.ImpliedIrreversibleBlockHeight {
		return fmt.Errorf("%w: tiny block moved implied height %d to %d", ErrInvalidLibInformation,
			state.ImpliedIrreversibleBlockHeight, provided.ImpliedIrreversibleBlockHeight)
	}
	if n := len(provided.ActualMiningTimes); n == 0 || provided.ActualMiningTimes[n-1] != c.block.Time {
		return fmt.Errorf("%w: tiny block time not reported", ErrInvalidHeaderInformation)
	}
	return nil
}

// verifyUpdateValue checks the values the sender publishes and every value it sets on
// behalf of other miners.
func (e *AEDPoS) verifyUpdateValue(c *validationContext) error {
	provided := c.provided.Miner(c.sender)
	if provided == nil || provided.OutValue.IsEmpty() || provided.Signature.IsEmpty() {
		return ErrInvalidOutValue
	}
	if !provided.InValue.IsEmpty() {
		return fmt.Errorf("%w: sender in value", ErrInValueLeaked)
	}
	state := c.current.Miner(c.sender)
	if !state.OutValue.IsEmpty() {
		return fmt.Errorf("%w: out value already published", ErrInvalidOutValue)
	}
	if provided.ProducedBlocks != state.ProducedBlocks+1 || provided.ProducedTinyBlocks != state.ProducedTinyBlocks+1 {
		return fmt.Errorf("%w: produced blocks %d after %d", ErrInvalidHeaderInformation, provided.ProducedBlocks, state.ProducedBlocks)
	}

	if !provided.PreviousInValue.IsEmpty() {
		if !state.PreviousInValue.IsEmpty() && state.PreviousInValue != provided.PreviousInValue {
			return fmt.Errorf("%w: %s", ErrInvalidPreviousInValue, c.sender)
		}
		if !isPreviousInValueValid(c.previous, c.sender, provided.PreviousInValue) {
			return fmt.Errorf("%w: %s", ErrInvalidPreviousInValue, c.sender)
		}
		base := c.previous
		if base.IsEmpty() {
			base = c.current
		}
		if base.CalculateSignature(provided.PreviousInValue) != provided.Signature {
			return fmt.Errorf("%w: %s", ErrInvalidSignature, c.sender)
		}
	}

	supposed := round.SupposedOrder(provided.Signature, c.current.Len())
	if provided.SupposedOrderOfNextRound != supposed {
		return fmt.Errorf("%w: supposed order %d, want %d", ErrInvalidOrder, provided.SupposedOrderOfNextRound, supposed)
	}
	if final := c.current.ResolveFinalOrder(c.sender, supposed); provided.FinalOrderOfNextRound != final {
		return fmt.Errorf("%w: final order %d, want %d", ErrInvalidOrder, provided.FinalOrderOfNextRound, final)
	}

	for _, p := range provided.EncryptedPieces {
		if p.Pubkey == c.sender || !c.current.IsInMinerList(p.Pubkey) || p.Digest.IsEmpty() {
			return fmt.Errorf("%w: encrypted piece for %s", ErrInvalidPiece, p.Pubkey)
		}
	}
	return e.verifyThirdPartyValues(c)
}

// verifyThirdPartyValues checks what the sender claims for the other miners: revealed
// previous in values and decrypted pieces must match what those miners committed.
func (e *AEDPoS) verifyThirdPartyValues(c *validationContext) error {
	for _, info := range c.provided.Miners {
		if info.Pubkey == c.sender {
			continue
		}
		state := c.current.Miner(info.Pubkey)
		if state == nil {
			return fmt.Errorf("%w: %s is not a miner", ErrInvalidHeaderInformation, info.Pubkey)
		}
		if !info.InValue.IsEmpty() {
			return fmt.Errorf("%w: in value of %s", ErrInValueLeaked, info.Pubkey)
		}
		if !info.PreviousInValue.IsEmpty() && info.PreviousInValue != state.PreviousInValue {
			if !state.PreviousInValue.IsEmpty() || !isPreviousInValueValid(c.previous, info.Pubkey, info.PreviousInValue) {
				return fmt.Errorf("%w: revealed for %s", ErrInvalidPreviousInValue, info.Pubkey)
			}
		}
		for _, p := range info.DecryptedPieces {
			if p.Pubkey != c.sender {
				return fmt.Errorf("%w: piece of %s decrypted by %s", ErrInvalidPiece, info.Pubkey, p.Pubkey)
			}
			if p.Digest != utils.Sha256(p.Data) || !isDecryptedPieceValid(c.previous, info.Pubkey, c.sender, p.Data) {
				return fmt.Errorf("%w: piece of %s", ErrInvalidPiece, info.Pubkey)
			}
		}
	}
	return nil
}

// impliedHeightLagTolerance is how far an implied irreversible height may trail the
// block carrying it.
func (e *AEDPoS) impliedHeightLagTolerance(n int) uint64 {
	if e.config.ImpliedHeightLagTolerance > 0 {
		return e.config.ImpliedHeightLagTolerance
	}
	return uint64(n) * e.config.MaximumTinyBlocksCount
}

// verifyLibInformation keeps the LIB data of the header moving forward and close to the
// head of the chain.
func (e *AEDPoS) verifyLibInformation(c *validationContext) error {
	if c.provided.ConfirmedIrreversibleBlockHeight < c.current.ConfirmedIrreversibleBlockHeight ||
		c.provided.ConfirmedIrreversibleBlockRoundNumber < c.current.ConfirmedIrreversibleBlockRoundNumber {
		return fmt.Errorf("%w: confirmed lib %d went back from %d", ErrInvalidLibInformation,
			c.provided.ConfirmedIrreversibleBlockHeight, c.current.ConfirmedIrreversibleBlockHeight)
	}
	implied := c.provided.Miner(c.sender).ImpliedIrreversibleBlockHeight
	if implied == 0 {
		return nil
	}
	reported := c.current.Miner(c.sender).ImpliedIrreversibleBlockHeight
	if !c.previous.IsEmpty() {
		if m := c.previous.Miner(c.sender); m != nil && m.ImpliedIrreversibleBlockHeight > reported {
			reported = m.ImpliedIrreversibleBlockHeight
		}
	}
	if implied < reported {
		return fmt.Errorf("%w: implied height %d went back from %d", ErrInvalidLibInformation, implied, reported)
	}
	if implied > c.block.Height {
		return fmt.Errorf("%w: implied height %d above block %d", ErrInvalidLibInformation, implied, c.block.Height)
	}
	if lag := c.block.Height - implied; lag > e.impliedHeightLagTolerance(c.current.Len()) {
		return fmt.Errorf("%w: implied height %d lags %d blocks behind", ErrInvalidLibInformation, implied, lag)
	}
	return nil
}

// verifyRoundTerminate checks a new round or term against the one the state expects.
func (e *AEDPoS) verifyRoundTerminate(c *validationContext) error {
	behaviour := c.header.Behaviour
	if behaviour == consensus.NextTerm && !e.config.IsMainChain {
		return fmt.Errorf("%w: side chains never change term", ErrInvalidHeaderInformation)
	}
	if err := checkNewRound(c.current, c.provided, behaviour); err != nil {
		return err
	}
	for _, m := range c.provided.Miners {
		if !m.InValue.IsEmpty() {
			return fmt.Errorf("%w: %s", ErrInValueLeaked, m.Pubkey)
		}
	}

	// distinct numeric final orders among the miners that mined
	mined := c.current.MinedMiners()
	orders := mapset.NewThreadUnsafeSet[uint32]()
	for _, m := range mined {
		if m.FinalOrderOfNextRound > 0 {
			orders.Add(m.FinalOrderOfNextRound)
		}
	}
	if orders.Cardinality() != len(mined) {
		return fmt.Errorf("%w: %d distinct orders for %d miners", ErrDuplicateFinalOrder, orders.Cardinality(), len(mined))
	}

	expected, err := e.expectedNextRound(c.reader, c.current, behaviour, c.sender, c.block.Time)
	if err != nil {
		return err
	}
	want := mapset.NewThreadUnsafeSet[string](expected.Pubkeys()...)
	got := mapset.NewThreadUnsafeSet[string](c.provided.Pubkeys()...)
	if !want.Equal(got) {
		return fmt.Errorf("%w: unexpected %v, missing %v", ErrInvalidMinerList,
			got.Difference(want).ToSlice(), want.Difference(got).ToSlice())
	}
	return compareTransition(expected, c.provided)
}
