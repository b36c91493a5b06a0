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

// Package consensus defines what a block producing node asks from a consensus engine.
package consensus

import (
	"context"
	"fmt"
	"math"
)

// Behaviour is the kind of block a miner is told to produce.
type Behaviour uint8

const (
	Nothing Behaviour = iota
	UpdateValue
	TinyBlock
	NextRound
	NextTerm
)

func (b Behaviour) String() string {
	switch b {
	case Nothing:
		return "Nothing"
	case UpdateValue:
		return "UpdateValue"
	case TinyBlock:
		return "TinyBlock"
	case NextRound:
		return "NextRound"
	case NextTerm:
		return "NextTerm"
	}
	return fmt.Sprintf("Behaviour(%d)", uint8(b))
}

// IsRoundTransition reports whether b ends the current round.
func (b Behaviour) IsRoundTransition() bool {
	return b == NextRound || b == NextTerm
}

// Command tells a miner when to produce its next block. Times are unix milliseconds.
type Command struct {
	Behaviour                      Behaviour
	ArrangedMiningTime             uint64
	MiningDueTime                  uint64
	LimitMillisecondsOfMiningBlock uint64
}

// InvalidCommand is handed out when the miner must not produce anything.
var InvalidCommand = Command{
	Behaviour:          Nothing,
	ArrangedMiningTime: math.MaxUint64,
	MiningDueTime:      math.MaxUint64,
}

// IsValid reports whether the command allows producing a block.
func (c *Command) IsValid() bool {
	return c != nil && c.Behaviour != Nothing && c.ArrangedMiningTime != math.MaxUint64
}

func (c *Command) String() string {
	return fmt.Sprintf("{%v at %d, due %d, limit %dms}", c.Behaviour, c.ArrangedMiningTime, c.MiningDueTime, c.LimitMillisecondsOfMiningBlock)
}

// BlockContext is the host block a consensus call refers to.
type BlockContext struct {
	Height   uint64
	Time     uint64 // unix milliseconds
	Producer string // pubkey of the block producer
}

// ValidationResult reports whether header consensus data is acceptable. Err carries
// the sentinel of the first failed check.
type ValidationResult struct {
	Success bool
	Message string
	Err     error
}

func Valid() ValidationResult {
	return ValidationResult{Success: true}
}

// Invalid wraps err into a failed result.
func Invalid(err error) ValidationResult {
	return ValidationResult{Message: err.Error(), Err: err}
}

// Engine is the contract between a chain and its consensus. Trigger and header
// information travel as opaque bytes.
type Engine interface {
	// GetConsensusCommand returns when pubkey should mine next.
	GetConsensusCommand(ctx context.Context, pubkey string, now uint64) (*Command, error)

	// GetConsensusExtraData builds the consensus data of a block being produced.
	GetConsensusExtraData(ctx context.Context, block BlockContext, trigger []byte) ([]byte, error)

	// ValidateConsensusBeforeExecution checks header data against the current state.
	ValidateConsensusBeforeExecution(ctx context.Context, block BlockContext, extraData []byte) ValidationResult

	// ProcessConsensusInformation applies a block to the consensus state.
	ProcessConsensusInformation(ctx context.Context, block BlockContext, extraData []byte) error

	// ValidateConsensusAfterExecution checks header data against the updated state.
	ValidateConsensusAfterExecution(ctx context.Context, block BlockContext, extraData []byte) ValidationResult
}
