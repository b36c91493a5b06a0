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

// Package aedpos implements the AEDPoS consensus engine: miners take turns in rounds
// whose order is drawn from commit/reveal randomness, a round is closed by its extra
// block producer, and miners that keep missing their slots are replaced.
package aedpos

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/amazechain/aedpos/common/round"
	"github.com/amazechain/aedpos/internal/consensus"
	"github.com/amazechain/aedpos/log"
	"github.com/amazechain/aedpos/params"
	lru "github.com/hashicorp/golang-lru"
)

const (
	// tinyBlockMinimumInterval separates two tiny blocks of the same slot (ms).
	tinyBlockMinimumInterval = 50

	// abnormalThresholdRounds is how far the LIB round may lag before the tiny block
	// budget starts to shrink.
	abnormalThresholdRounds = 2

	// severeThresholdRounds is the lag at which only one block per slot is allowed.
	severeThresholdRounds = 8
)

// Various error messages to mark consensus data invalid. Validation results carry
// them in ValidationResult.Err.
var (
	// ErrNotInitialized is returned before the first round has been stored.
	ErrNotInitialized = errors.New("consensus state not initialized")

	// ErrAlreadyInitialized is returned when the first round is set twice.
	ErrAlreadyInitialized = errors.New("consensus state already initialized")

	// ErrInvalidHeaderInformation is returned if consensus data can't be decoded or
	// does not belong to the block producer.
	ErrInvalidHeaderInformation = errors.New("invalid consensus header information")

	// ErrNotMiner is returned if the sender is not a miner of the current round.
	ErrNotMiner = errors.New("sender is not a miner")

	// ErrBanned is returned if the sender has been marked evil.
	ErrBanned = errors.New("sender is banned")

	// ErrStaleRound is returned if update data was generated for another round than
	// the current one. The producer should regenerate it against the new round.
	ErrStaleRound = errors.New("consensus data generated for a stale round")

	// ErrTimeSlot is returned if a block is produced outside the slot of its sender.
	ErrTimeSlot = errors.New("time slot already passed before execution")

	// ErrPrematureTransition is returned if a round is terminated before its
	// extra block slot.
	ErrPrematureTransition = errors.New("round terminated before its end")

	// ErrContinuousBlocks is returned if a miner produced too many blocks in a row.
	ErrContinuousBlocks = errors.New("sender produced too many continuous blocks")

	// ErrInvalidOutValue is returned for an update without out value or signature.
	ErrInvalidOutValue = errors.New("incorrect new consensus information")

	// ErrInvalidPreviousInValue is returned if a revealed in value does not hash to
	// the out value committed in the previous round.
	ErrInvalidPreviousInValue = errors.New("incorrect previous in value")

	// ErrInvalidSignature is returned if a signature does not follow from the
	// previous in value.
	ErrInvalidSignature = errors.New("incorrect signature")

	// ErrInvalidOrder is returned if an order of next round was not derived from
	// the signature of its miner.
	ErrInvalidOrder = errors.New("incorrect order of next round")

	// ErrInvalidPiece is returned if a decrypted piece does not match the digest
	// committed with its encrypted counterpart.
	ErrInvalidPiece = errors.New("incorrect decrypted piece")

	// ErrInvalidRoundNumber is returned if a transition skips or repeats a round or term.
	ErrInvalidRoundNumber = errors.New("incorrect round number")

	// ErrInValueLeaked is returned if a new round carries a committed in value.
	ErrInValueLeaked = errors.New("in value published in new round")

	// ErrDuplicateFinalOrder is returned if two miners hold the same order of next round.
	ErrDuplicateFinalOrder = errors.New("invalid final order of next round")

	// ErrEmptyMinerList is returned for a new round without miners.
	ErrEmptyMinerList = errors.New("empty miner list")

	// ErrInvalidMinerList is returned if the miners of a new round are not the
	// expected ones.
	ErrInvalidMinerList = errors.New("incorrect miner list of new round")

	// ErrInvalidLibInformation is returned if LIB data goes backwards or lags too far.
	ErrInvalidLibInformation = errors.New("incorrect lib information")

	// ErrRoundHashMismatch is returned if the state after execution differs from the
	// consensus data of the header.
	ErrRoundHashMismatch = errors.New("current round information is different with consensus extra data")

	// ErrUnknownRound is returned when a requested round is not in state.
	ErrUnknownRound = errors.New("unknown round")
)

// AEDPoS is the consensus engine. Every state transition runs in one store
// transaction under the engine lock; reads share the lock.
type AEDPoS struct {
	config   params.AEDPoSConfig
	db       Database
	election ElectionRegistry
	treasury Treasury

	rounds *lru.ARCCache // round number -> *round.Round, committed rounds only
	lock   sync.RWMutex

	feeds feeds
	log   log.Logger
}

var _ consensus.Engine = (*AEDPoS)(nil)

// New creates an AEDPoS engine. A nil treasury disables term summaries, a nil
// election registry keeps the miner list fixed.
func New(config params.AEDPoSConfig, db Database, election ElectionRegistry, treasury Treasury) (*AEDPoS, error) {
	conf := config.WithDefaults()
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	if db == nil {
		return nil, errors.New("aedpos: nil database")
	}
	rounds, err := lru.NewARC(conf.InmemoryRounds)
	if err != nil {
		return nil, err
	}
	if election == nil {
		election = staticRegistry{}
	}
	return &AEDPoS{
		config:   conf,
		db:       db,
		election: election,
		treasury: treasury,
		rounds:   rounds,
		log:      log.New("module", "aedpos"),
	}, nil
}

// Config returns the effective engine parameters.
func (e *AEDPoS) Config() params.AEDPoSConfig {
	return e.config
}

// Close unsubscribes every event subscriber.
func (e *AEDPoS) Close() {
	e.feeds.scope.Close()
}

// view runs f against a consistent snapshot of the state.
func (e *AEDPoS) view(ctx context.Context, f func(StateReader) error) error {
	e.lock.RLock()
	defer e.lock.RUnlock()
	return e.db.View(ctx, f)
}

// getRound reads a committed round through the cache. Callers get their own copy.
func (e *AEDPoS) getRound(r StateReader, number uint64) (*round.Round, error) {
	if number == 0 {
		return nil, nil
	}
	if cached, ok := e.rounds.Get(number); ok {
		return cached.(*round.Round).Clone(), nil
	}
	stored, err := r.Round(number)
	if err != nil || stored == nil {
		return nil, err
	}
	e.rounds.Add(number, stored.Clone())
	return stored, nil
}

// currentRound returns the current round, ErrNotInitialized before the first one.
func (e *AEDPoS) currentRound(r StateReader) (*round.Round, error) {
	number, err := r.CurrentRoundNumber()
	if err != nil {
		return nil, err
	}
	if number == 0 {
		return nil, ErrNotInitialized
	}
	current, err := e.getRound(r, number)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, fmt.Errorf("%w: current round %d", ErrUnknownRound, number)
	}
	return current, nil
}

// previousRound returns the round before current, nil if it was never stored.
func (e *AEDPoS) previousRound(r StateReader, current *round.Round) (*round.Round, error) {
	if current.RoundNumber <= 1 {
		return nil, nil
	}
	return e.getRound(r, current.RoundNumber-1)
}

// isFirstRoundOfCurrentTerm reports whether current opened its term.
func isFirstRoundOfCurrentTerm(r StateReader, current *round.Round) (bool, error) {
	if current.RoundNumber == 1 {
		return true, nil
	}
	first, ok, err := r.FirstRoundNumberOfTerm(current.TermNumber)
	if err != nil {
		return false, err
	}
	return ok && first == current.RoundNumber, nil
}

// staticRegistry bans nobody and keeps the miner list.
type staticRegistry struct{}

func (staticRegistry) IsBanned(string) bool { return false }

func (staticRegistry) GetMinerReplacementInformation([]string) ([]string, []string) { return nil, nil }

func (staticRegistry) MarkEvil(string) {}

func (staticRegistry) RecordMinerReplacement(string, string, uint64, bool) {}

func (staticRegistry) GetVictories([]string) []string { return nil }

func (staticRegistry) SetMinerList(uint64, []string) {}
