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
	"github.com/amazechain/aedpos/modules/rawdb"
)

// API is a read only view of the consensus state for nodes and tools.
type API struct {
	engine *AEDPoS
}

// API returns the read only view of e.
func (e *AEDPoS) API() *API {
	return &API{engine: e}
}

// GetCurrentRoundInformation retrieves the round being mined.
func (api *API) GetCurrentRoundInformation(ctx context.Context) (*round.Round, error) {
	var current *round.Round
	err := api.engine.view(ctx, func(r StateReader) (err error) {
		current, err = api.engine.currentRound(r)
		return err
	})
	return current, err
}

// GetRoundInformation retrieves a stored round. Pruned rounds are unknown.
func (api *API) GetRoundInformation(ctx context.Context, number uint64) (*round.Round, error) {
	var rd *round.Round
	err := api.engine.view(ctx, func(r StateReader) (err error) {
		rd, err = api.engine.getRound(r, number)
		return err
	})
	if err != nil {
		return nil, err
	}
	if rd == nil {
		return nil, fmt.Errorf("%w: %d", ErrUnknownRound, number)
	}
	return rd, nil
}

func (api *API) GetCurrentRoundNumber(ctx context.Context) (uint64, error) {
	var number uint64
	err := api.engine.view(ctx, func(r StateReader) (err error) {
		number, err = r.CurrentRoundNumber()
		return err
	})
	return number, err
}

func (api *API) GetCurrentTermNumber(ctx context.Context) (uint64, error) {
	var number uint64
	err := api.engine.view(ctx, func(r StateReader) (err error) {
		number, err = r.CurrentTermNumber()
		return err
	})
	return number, err
}

// GetCurrentMinerList returns the miners of the current round ordered by pubkey.
func (api *API) GetCurrentMinerList(ctx context.Context) ([]string, error) {
	current, err := api.GetCurrentRoundInformation(ctx)
	if err != nil {
		return nil, err
	}
	return current.SortedPubkeys(), nil
}

// GetMinerListByTerm returns the miner list a term started with.
func (api *API) GetMinerListByTerm(ctx context.Context, term uint64) ([]string, error) {
	var miners []string
	err := api.engine.view(ctx, func(r StateReader) (err error) {
		miners, err = r.MinerList(term)
		return err
	})
	return miners, err
}

// GetTermSnapshot returns the summary of a finished term, nil if it is unknown.
func (api *API) GetTermSnapshot(ctx context.Context, term uint64) (*rawdb.TermSnapshot, error) {
	var snapshot *rawdb.TermSnapshot
	err := api.engine.view(ctx, func(r StateReader) (err error) {
		snapshot, err = r.TermSnapshot(term)
		return err
	})
	return snapshot, err
}

// IsCurrentMiner reports whether pubkey mines in the current round and is not banned.
func (api *API) IsCurrentMiner(ctx context.Context, pubkey string) (bool, error) {
	current, err := api.GetCurrentRoundInformation(ctx)
	if err != nil {
		return false, err
	}
	return current.IsInMinerList(pubkey) && !api.engine.election.IsBanned(pubkey), nil
}

// GetNextMiningTime returns when pubkey is expected to produce its next block, false
// if it should not produce at all.
func (api *API) GetNextMiningTime(ctx context.Context, pubkey string, now uint64) (uint64, bool, error) {
	cmd, err := api.engine.GetConsensusCommand(ctx, pubkey, now)
	if err != nil {
		return 0, false, err
	}
	if !cmd.IsValid() {
		return 0, false, nil
	}
	return cmd.ArrangedMiningTime, true, nil
}

// GetCurrentMiningStatus grades the LIB lag and reports the per slot block budget.
func (api *API) GetCurrentMiningStatus(ctx context.Context) (MiningStatus, uint64, error) {
	var (
		status  MiningStatus
		maximum uint64
	)
	err := api.engine.view(ctx, func(r StateReader) error {
		current, err := api.engine.currentRound(r)
		if err != nil {
			return err
		}
		maximum, status, err = api.engine.maximumBlocksCount(r, current)
		return err
	})
	return status, maximum, err
}

// GetMinerReplacements lists the miners swapped out during term.
func (api *API) GetMinerReplacements(ctx context.Context, term uint64) ([]rawdb.MinerReplacement, error) {
	var replacements []rawdb.MinerReplacement
	err := api.engine.view(ctx, func(r StateReader) (err error) {
		replacements, err = r.MinerReplacements(term)
		return err
	})
	return replacements, err
}
