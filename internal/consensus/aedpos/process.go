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
	"github.com/amazechain/aedpos/modules/rawdb"
)

// transition is what one block changes beside the store: rounds to cache, rounds to
// evict and the events to send once the store transaction committed.
type transition struct {
	written []*round.Round
	pruned  []uint64
	events  pendingEvents
}

// putRound stores r. Opening a new round drops the one KeepRounds behind it.
func (t *transition) putRound(w StateWriter, r *round.Round, keep uint64, isNew bool) error {
	if err := w.PutRound(r); err != nil {
		return err
	}
	t.written = append(t.written, r)
	if isNew && r.RoundNumber > keep {
		stale := r.RoundNumber - keep
		if err := w.DeleteRound(stale); err != nil {
			return err
		}
		t.pruned = append(t.pruned, stale)
	}
	return nil
}

// FirstRound initialises the consensus state with round one of term one.
func (e *AEDPoS) FirstRound(ctx context.Context, first *round.Round, startTimestamp uint64) error {
	if first.IsEmpty() {
		return ErrEmptyMinerList
	}
	if first.RoundNumber != 1 || first.TermNumber != 1 {
		return fmt.Errorf("%w: first round is %d of term %d", ErrInvalidRoundNumber, first.RoundNumber, first.TermNumber)
	}
	if err := first.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMinerList, err)
	}
	first = first.Clone()
	miners := first.Pubkeys()

	e.lock.Lock()
	err := e.db.Update(ctx, func(w StateWriter) error {
		number, err := w.CurrentRoundNumber()
		if err != nil {
			return err
		}
		if number != 0 {
			return ErrAlreadyInitialized
		}
		if err := w.PutRound(first); err != nil {
			return err
		}
		if err := w.SetCurrentRoundNumber(1); err != nil {
			return err
		}
		if err := w.SetCurrentTermNumber(1); err != nil {
			return err
		}
		if err := w.SetBlockchainStartTimestamp(startTimestamp); err != nil {
			return err
		}
		if err := w.SetFirstRoundNumberOfTerm(1, 1); err != nil {
			return err
		}
		return w.SetMinerList(1, miners)
	})
	if err == nil {
		e.rounds.Add(uint64(1), first.Clone())
	}
	e.lock.Unlock()
	if err != nil {
		return err
	}

	e.election.SetMinerList(1, miners)
	roundNumberGauge.Update(1)
	e.log.Info("Consensus initialized", "miners", len(miners), "start", startTimestamp)
	return nil
}

// ProcessConsensusInformation applies the consensus data of an accepted block.
func (e *AEDPoS) ProcessConsensusInformation(ctx context.Context, block consensus.BlockContext, extraData []byte) error {
	header, err := DecodeHeaderInformation(extraData)
	if err != nil {
		return err
	}
	return e.Process(ctx, block, header)
}

// Process is ProcessConsensusInformation for decoded header information. Nothing is
// written unless the whole block applies.
func (e *AEDPoS) Process(ctx context.Context, block consensus.BlockContext, header *HeaderInformation) error {
	if block.Producer != "" && block.Producer != header.SenderPubkey {
		return fmt.Errorf("%w: produced by %s, signed for %s", ErrInvalidHeaderInformation, block.Producer, header.SenderPubkey)
	}
	var t *transition

	e.lock.Lock()
	err := e.db.Update(ctx, func(w StateWriter) error {
		t = new(transition)
		current, err := e.currentRound(w)
		if err != nil {
			return err
		}
		switch header.Behaviour {
		case consensus.UpdateValue:
			return e.processUpdateValue(w, t, current, block, header)
		case consensus.TinyBlock:
			return e.processTinyBlock(w, t, current, block, header)
		case consensus.NextRound:
			return e.processNextRound(w, t, current, block, header)
		case consensus.NextTerm:
			return e.processNextTerm(w, t, current, block, header)
		}
		return fmt.Errorf("%w: behaviour %v", ErrInvalidHeaderInformation, header.Behaviour)
	})
	if err == nil {
		for _, number := range t.pruned {
			e.rounds.Remove(number)
		}
		for _, r := range t.written {
			e.rounds.Add(r.RoundNumber, r.Clone())
		}
	}
	e.lock.Unlock()
	if err != nil {
		e.log.Debug("Failed to process consensus information", "height", block.Height, "sender", header.SenderPubkey, "behaviour", header.Behaviour, "err", err)
		return err
	}

	processedBlocksMeter.Mark(1)
	e.apply(&t.events)
	return nil
}

func (e *AEDPoS) processUpdateValue(w StateWriter, t *transition, current *round.Round, block consensus.BlockContext, header *HeaderInformation) error {
	sender := header.SenderPubkey
	if header.Round.RoundNumber != current.RoundNumber {
		return fmt.Errorf("%w: header round %d, current round %d", ErrStaleRound, header.Round.RoundNumber, current.RoundNumber)
	}
	if !current.IsInMinerList(sender) {
		return fmt.Errorf("%w: %s", ErrNotMiner, sender)
	}
	updated := current.Clone().RecoverFromUpdateValue(header.Round, sender)

	previous, err := e.previousRound(w, current)
	if err != nil {
		return err
	}
	if lib, ok := CalculateLastIrreversibleBlockHeight(updated, previous); ok && lib > updated.ConfirmedIrreversibleBlockHeight {
		updated.ConfirmedIrreversibleBlockHeight = lib
		updated.ConfirmedIrreversibleBlockRoundNumber = updated.RoundNumber - 1
		t.events.irreversible = append(t.events.irreversible, IrreversibleBlockFound{
			IrreversibleBlockHeight: lib,
			RoundNumber:             updated.RoundNumber,
		})
		libHeightGauge.Update(int64(lib))
	}
	if err := t.putRound(w, updated, e.config.KeepRounds, false); err != nil {
		return err
	}
	return e.updateMiningStatus(w, updated, sender, block.Height, &t.events)
}

func (e *AEDPoS) processTinyBlock(w StateWriter, t *transition, current *round.Round, block consensus.BlockContext, header *HeaderInformation) error {
	sender := header.SenderPubkey
	if header.Round.RoundNumber != current.RoundNumber {
		return fmt.Errorf("%w: header round %d, current round %d", ErrStaleRound, header.Round.RoundNumber, current.RoundNumber)
	}
	if !current.IsInMinerList(sender) {
		return fmt.Errorf("%w: %s", ErrNotMiner, sender)
	}
	updated := current.Clone().RecoverFromTinyBlock(header.Round, sender)
	if err := t.putRound(w, updated, e.config.KeepRounds, false); err != nil {
		return err
	}
	tinyBlocksMeter.Mark(1)
	return e.updateMiningStatus(w, updated, sender, block.Height, &t.events)
}

// checkNewRound rejects structurally broken transitions before anything is written.
func checkNewRound(current, next *round.Round, behaviour consensus.Behaviour) error {
	if next.IsEmpty() {
		return ErrEmptyMinerList
	}
	if next.RoundNumber != current.RoundNumber+1 {
		return fmt.Errorf("%w: round %d after %d", ErrInvalidRoundNumber, next.RoundNumber, current.RoundNumber)
	}
	term := current.TermNumber
	if behaviour == consensus.NextTerm {
		term++
	}
	if next.TermNumber != term {
		return fmt.Errorf("%w: term %d after %d", ErrInvalidRoundNumber, next.TermNumber, current.TermNumber)
	}
	if err := next.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMinerList, err)
	}
	return nil
}

// closeRound reveals what can be revealed of the ending round and fills the records of
// the miners that missed it, then stores it.
func (e *AEDPoS) closeRound(w StateWriter, t *transition, current *round.Round, height uint64) (*round.Round, error) {
	ended := current.Clone()
	previous, err := e.previousRound(w, current)
	if err != nil {
		return nil, err
	}
	if e.config.IsSecretSharingEnabled {
		for pubkey, inValue := range RevealSharedInValues(ended, previous) {
			ended.Miner(pubkey).PreviousInValue = inValue
			revealedCounter.Inc(1)
		}
	}
	SupplyCurrentRoundInformation(ended, previous, height)
	if err := t.putRound(w, ended, e.config.KeepRounds, false); err != nil {
		return nil, err
	}
	return ended, nil
}

// openRound stores next as the current round.
func (e *AEDPoS) openRound(w StateWriter, t *transition, ended, next *round.Round) error {
	if next.ConfirmedIrreversibleBlockHeight < ended.ConfirmedIrreversibleBlockHeight {
		next.ConfirmedIrreversibleBlockHeight = ended.ConfirmedIrreversibleBlockHeight
		next.ConfirmedIrreversibleBlockRoundNumber = ended.ConfirmedIrreversibleBlockRoundNumber
	}
	if err := t.putRound(w, next, e.config.KeepRounds, true); err != nil {
		return err
	}
	if err := w.SetCurrentRoundNumber(next.RoundNumber); err != nil {
		return err
	}
	if e.config.IsSecretSharingEnabled {
		t.events.secrets = append(t.events.secrets, SecretSharingInformation{
			PreviousRound:      ended.Clone(),
			CurrentRoundNumber: next.RoundNumber,
		})
	}
	roundsCounter.Inc(1)
	roundNumberGauge.Update(int64(next.RoundNumber))
	return nil
}

func (e *AEDPoS) processNextRound(w StateWriter, t *transition, current *round.Round, block consensus.BlockContext, header *HeaderInformation) error {
	sender := header.SenderPubkey
	if !current.IsInMinerList(sender) {
		return fmt.Errorf("%w: %s", ErrNotMiner, sender)
	}
	if err := checkNewRound(current, header.Round, consensus.NextRound); err != nil {
		return err
	}
	// the stored round is always the regenerated one, never the header copy
	next, applied, err := e.generateNextRound(w, current, sender, block.Time)
	if err != nil {
		return err
	}
	if err := compareTransition(next, header.Round); err != nil {
		return err
	}
	ended, err := e.closeRound(w, t, current, block.Height)
	if err != nil {
		return err
	}

	if len(applied) > 0 {
		if err := e.recordReplacements(w, t, current.TermNumber, applied, true); err != nil {
			return err
		}
		if err := w.SetMinerList(current.TermNumber, next.Pubkeys()); err != nil {
			return err
		}
	}
	if err := e.openRound(w, t, ended, next); err != nil {
		return err
	}
	if e.config.IsMainChain {
		t.events.evil = append(t.events.evil, e.detectEvilMiners(next)...)
	}
	e.log.Debug("Next round", "round", next.RoundNumber, "term", next.TermNumber, "sender", sender, "replaced", len(applied))
	return e.updateMiningStatus(w, next, sender, block.Height, &t.events)
}

func (e *AEDPoS) processNextTerm(w StateWriter, t *transition, current *round.Round, block consensus.BlockContext, header *HeaderInformation) error {
	sender := header.SenderPubkey
	if !e.config.IsMainChain {
		return fmt.Errorf("%w: side chains never change term", ErrInvalidHeaderInformation)
	}
	if !current.IsInMinerList(sender) {
		return fmt.Errorf("%w: %s", ErrNotMiner, sender)
	}
	if err := checkNewRound(current, header.Round, consensus.NextTerm); err != nil {
		return err
	}
	next, err := e.generateNextTerm(w, current, sender, block.Time)
	if err != nil {
		return err
	}
	if err := compareTransition(next, header.Round); err != nil {
		return err
	}
	ended, err := e.closeRound(w, t, current, block.Height)
	if err != nil {
		return err
	}

	summary, err := termSummary(w, ended)
	if err != nil {
		return err
	}
	if err := w.PutTermSnapshot(&rawdb.TermSnapshot{
		TermNumber:     summary.TermNumber,
		EndRoundNumber: summary.EndRoundNumber,
		MinedBlocks:    ended.MinedBlocks(),
		ElectionResult: summary.ProducedBlocks,
	}); err != nil {
		return err
	}
	t.events.summary = summary

	miners := next.Pubkeys()
	if err := w.SetCurrentTermNumber(next.TermNumber); err != nil {
		return err
	}
	if err := w.SetFirstRoundNumberOfTerm(next.TermNumber, next.RoundNumber); err != nil {
		return err
	}
	if err := w.SetMinerList(next.TermNumber, miners); err != nil {
		return err
	}
	t.events.minerList = &termMinerList{term: next.TermNumber, miners: miners}
	if err := e.openRound(w, t, ended, next); err != nil {
		return err
	}
	termsCounter.Inc(1)
	e.log.Info("Next term", "term", next.TermNumber, "round", next.RoundNumber, "miners", len(miners), "sender", sender)
	return e.updateMiningStatus(w, next, sender, block.Height, &t.events)
}

// termSummary collects what the treasury needs to know about the term ending with
// ended.
func termSummary(r StateReader, ended *round.Round) (*TermSummary, error) {
	stored, err := r.MinerReplacements(ended.TermNumber)
	if err != nil {
		return nil, err
	}
	summary := &TermSummary{
		TermNumber:     ended.TermNumber,
		EndRoundNumber: ended.RoundNumber,
		Miners:         ended.Pubkeys(),
		ProducedBlocks: make(map[string]uint64, ended.Len()),
	}
	for _, m := range ended.Miners {
		summary.ProducedBlocks[m.Pubkey] = m.ProducedBlocks
	}
	for _, rep := range stored {
		summary.Replacements = append(summary.Replacements, MinerReplacement{
			OldPubkey: rep.OldPubkey,
			NewPubkey: rep.NewPubkey,
			IsEvil:    rep.IsEvil,
		})
	}
	return summary, nil
}

func (e *AEDPoS) recordReplacements(w StateWriter, t *transition, term uint64, pairs []replacement, isEvil bool) error {
	stored, err := w.MinerReplacements(term)
	if err != nil {
		return err
	}
	for _, p := range pairs {
		stored = append(stored, rawdb.MinerReplacement{OldPubkey: p.evil, NewPubkey: p.alternative, IsEvil: isEvil})
		t.events.replaced = append(t.events.replaced, MinerReplaced{
			TermNumber: term,
			OldPubkey:  p.evil,
			NewPubkey:  p.alternative,
			IsEvil:     isEvil,
		})
	}
	return w.SetMinerReplacements(term, stored)
}

// RecordCandidateReplacement swaps oldPubkey for newPubkey in the current round, as
// decided outside of the consensus, for instance when a candidate changes its key.
func (e *AEDPoS) RecordCandidateReplacement(ctx context.Context, oldPubkey, newPubkey string) error {
	if oldPubkey == "" || newPubkey == "" || oldPubkey == newPubkey {
		return fmt.Errorf("%w: replace %q with %q", ErrInvalidMinerList, oldPubkey, newPubkey)
	}
	var t *transition

	e.lock.Lock()
	err := e.db.Update(ctx, func(w StateWriter) error {
		t = new(transition)
		current, err := e.currentRound(w)
		if err != nil {
			return err
		}
		old := current.Miner(oldPubkey)
		if old == nil {
			return fmt.Errorf("%w: %s", ErrNotMiner, oldPubkey)
		}
		if current.IsInMinerList(newPubkey) {
			return fmt.Errorf("%w: %s already mines", ErrInvalidMinerList, newPubkey)
		}
		replaced := old.Clone()
		replaced.Pubkey = newPubkey
		replaced.PreviousInValue = types.EmptyHash
		replaced.EncryptedPieces = nil
		replaced.DecryptedPieces = nil
		current.RemoveMiner(oldPubkey)
		if err := current.AddMiner(replaced); err != nil {
			return err
		}
		if current.ExtraBlockProducerOfPreviousRound == oldPubkey {
			current.ExtraBlockProducerOfPreviousRound = newPubkey
		}
		current.IsMinerListJustChanged = true
		if err := t.putRound(w, current, e.config.KeepRounds, false); err != nil {
			return err
		}
		if err := w.SetMinerList(current.TermNumber, current.Pubkeys()); err != nil {
			return err
		}
		return e.recordReplacements(w, t, current.TermNumber, []replacement{{evil: oldPubkey, alternative: newPubkey}}, false)
	})
	if err == nil {
		for _, r := range t.written {
			e.rounds.Add(r.RoundNumber, r.Clone())
		}
	}
	e.lock.Unlock()
	if err != nil {
		return err
	}
	e.apply(&t.events)
	return nil
}

// ResetToRound re-initialises the state from a snapshot of an earlier round, dropping
// every round after it. It backs the rollback the chain performs when the LIB stalls.
func (e *AEDPoS) ResetToRound(ctx context.Context, snapshot *round.Round) error {
	if snapshot.IsEmpty() {
		return ErrEmptyMinerList
	}
	if err := snapshot.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMinerList, err)
	}
	snapshot = snapshot.Clone()

	e.lock.Lock()
	defer e.lock.Unlock()
	err := e.db.Update(ctx, func(w StateWriter) error {
		number, err := w.CurrentRoundNumber()
		if err != nil {
			return err
		}
		if number == 0 {
			return ErrNotInitialized
		}
		if err := w.TruncateRounds(snapshot.RoundNumber + 1); err != nil {
			return err
		}
		if err := w.PutRound(snapshot); err != nil {
			return err
		}
		if err := w.SetCurrentRoundNumber(snapshot.RoundNumber); err != nil {
			return err
		}
		if err := w.SetCurrentTermNumber(snapshot.TermNumber); err != nil {
			return err
		}
		if _, ok, err := w.FirstRoundNumberOfTerm(snapshot.TermNumber); err != nil {
			return err
		} else if !ok {
			if err := w.SetFirstRoundNumberOfTerm(snapshot.TermNumber, snapshot.RoundNumber); err != nil {
				return err
			}
		}
		if err := w.SetLatestPubkeyToTinyBlocksCount(nil); err != nil {
			return err
		}
		return w.SetPreviousBlockInSevereStatus(false)
	})
	if err != nil {
		return err
	}
	e.rounds.Purge()
	roundNumberGauge.Update(int64(snapshot.RoundNumber))
	e.log.Warn("Consensus state reset", "round", snapshot.RoundNumber, "term", snapshot.TermNumber)
	return nil
}
