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
	"github.com/ethereum/go-ethereum/event"
)

// IrreversibleBlockFound is sent when the confirmed LIB moves forward.
type IrreversibleBlockFound struct {
	IrreversibleBlockHeight uint64
	RoundNumber             uint64
}

// IrreversibleBlockHeightUnacceptable is sent while the LIB lags far behind the head.
// A zero distance tells the chain it recovered.
type IrreversibleBlockHeightUnacceptable struct {
	DistanceToIrreversibleBlockHeight uint64
}

// MinerReplaced is sent when a miner leaves the miner list inside a term.
type MinerReplaced struct {
	TermNumber uint64
	OldPubkey  string
	NewPubkey  string
	IsEvil     bool
}

// SecretSharingInformation is sent when a round ends, so miners can decrypt the
// pieces addressed to them.
type SecretSharingInformation struct {
	PreviousRound      *round.Round
	CurrentRoundNumber uint64
}

type feeds struct {
	irreversible event.Feed
	unacceptable event.Feed
	replaced     event.Feed
	secrets      event.Feed
	scope        event.SubscriptionScope
}

func (e *AEDPoS) SubscribeIrreversibleBlockFound(ch chan<- IrreversibleBlockFound) event.Subscription {
	return e.feeds.scope.Track(e.feeds.irreversible.Subscribe(ch))
}

func (e *AEDPoS) SubscribeIrreversibleBlockHeightUnacceptable(ch chan<- IrreversibleBlockHeightUnacceptable) event.Subscription {
	return e.feeds.scope.Track(e.feeds.unacceptable.Subscribe(ch))
}

func (e *AEDPoS) SubscribeMinerReplaced(ch chan<- MinerReplaced) event.Subscription {
	return e.feeds.scope.Track(e.feeds.replaced.Subscribe(ch))
}

func (e *AEDPoS) SubscribeSecretSharing(ch chan<- SecretSharingInformation) event.Subscription {
	return e.feeds.scope.Track(e.feeds.secrets.Subscribe(ch))
}

// pendingEvents collects what a transition wants to announce. Nothing is sent unless
// the transition commits.
type pendingEvents struct {
	irreversible []IrreversibleBlockFound
	unacceptable []IrreversibleBlockHeightUnacceptable
	replaced     []MinerReplaced
	secrets      []SecretSharingInformation
	evil         []string
	minerList    *termMinerList
	summary      *TermSummary
}

type termMinerList struct {
	term   uint64
	miners []string
}

func (e *AEDPoS) emit(p *pendingEvents) {
	for _, ev := range p.irreversible {
		e.feeds.irreversible.Send(ev)
	}
	for _, ev := range p.unacceptable {
		e.feeds.unacceptable.Send(ev)
	}
	for _, ev := range p.replaced {
		e.feeds.replaced.Send(ev)
	}
	for _, ev := range p.secrets {
		e.feeds.secrets.Send(ev)
	}
}
