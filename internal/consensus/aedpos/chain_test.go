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
	"crypto/rand"
	"sync"
	"testing"

	"github.com/amazechain/aedpos/common/round"
	"github.com/amazechain/aedpos/internal/consensus"
	"github.com/amazechain/aedpos/internal/secretsharing"
	"github.com/amazechain/aedpos/params"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/ethereum/go-ethereum/event"
	"github.com/stretchr/testify/require"
)

const (
	testInterval = 4000
	testStart    = 1_700_000_000_000
)

func testConfig() params.AEDPoSConfig {
	c := params.DefaultAEDPoSConfig
	c.MiningInterval = testInterval
	c.KeepRounds = 64
	c.InmemoryRounds = 16
	return c
}

// testChain drives an engine through whole rounds with real miners.
type testChain struct {
	t        *testing.T
	engine   *AEDPoS
	miners   map[string]*Miner
	genesis  []string
	height   uint64
	registry *testRegistry
	treasury *testTreasury

	secrets chan SecretSharingInformation
	sub     event.Subscription
}

func newTestChain(t *testing.T, n int, config params.AEDPoSConfig) *testChain {
	return newTestChainWithDatabase(t, n, config, NewMemoryDatabase())
}

func newTestChainWithDatabase(t *testing.T, n int, config params.AEDPoSConfig, db Database) *testChain {
	registry, treasury := newTestRegistry(), new(testTreasury)
	engine, err := New(config, db, registry, treasury)
	require.NoError(t, err)

	c := &testChain{
		t:        t,
		engine:   engine,
		miners:   make(map[string]*Miner),
		registry: registry,
		treasury: treasury,
		secrets:  make(chan SecretSharingInformation, 16),
	}
	for i := 0; i < n; i++ {
		c.genesis = append(c.genesis, c.newMiner().Pubkey())
	}
	first := round.GenerateFirstRound(c.genesis, testInterval, testStart)
	require.NoError(t, engine.FirstRound(context.Background(), first, testStart))
	c.sub = engine.SubscribeSecretSharing(c.secrets)
	t.Cleanup(func() {
		c.sub.Unsubscribe()
		engine.Close()
	})
	return c
}

func (c *testChain) newMiner() *Miner {
	key, err := secretsharing.GenerateKey(rand.Reader)
	require.NoError(c.t, err)
	m, err := NewMiner(c.engine, key)
	require.NoError(c.t, err)
	c.miners[m.Pubkey()] = m
	return m
}

func (c *testChain) current() *round.Round {
	r, err := c.engine.API().GetCurrentRoundInformation(context.Background())
	require.NoError(c.t, err)
	return r
}

func (c *testChain) round(number uint64) *round.Round {
	r, err := c.engine.API().GetRoundInformation(context.Background(), number)
	require.NoError(c.t, err)
	return r
}

func (c *testChain) block(pubkey string, blockTime uint64) consensus.BlockContext {
	return consensus.BlockContext{Height: c.height + 1, Time: blockTime, Producer: pubkey}
}

// header builds the consensus data pubkey would put into its next block.
func (c *testChain) header(pubkey string, behaviour consensus.Behaviour, blockTime uint64) *HeaderInformation {
	c.t.Helper()
	data, err := c.miners[pubkey].Produce(context.Background(), c.block(pubkey, blockTime), behaviour)
	require.NoError(c.t, err)
	header, err := DecodeHeaderInformation(data)
	require.NoError(c.t, err)
	return header
}

// apply runs a header through validation, processing and the after execution check.
func (c *testChain) apply(header *HeaderInformation, blockTime uint64) error {
	ctx := context.Background()
	block := c.block(header.SenderPubkey, blockTime)
	if res := c.engine.ValidateBeforeExecution(ctx, block, header); !res.Success {
		return res.Err
	}
	if err := c.engine.Process(ctx, block, header); err != nil {
		return err
	}
	if res := c.engine.ValidateAfterExecution(ctx, block, header); !res.Success {
		return res.Err
	}
	c.height++
	c.drain()
	return nil
}

func (c *testChain) produce(pubkey string, behaviour consensus.Behaviour, blockTime uint64) {
	c.t.Helper()
	header := c.header(pubkey, behaviour, blockTime)
	if err := c.apply(header, blockTime); err != nil {
		c.t.Fatalf("%v block of %s at %d failed: %v", behaviour, pubkey[:8], blockTime, err)
	}
}

// drain hands ended rounds to every miner before the next block is built.
func (c *testChain) drain() {
	for {
		select {
		case info := <-c.secrets:
			for _, m := range c.miners {
				m.HandleSecretSharing(info)
			}
		default:
			return
		}
	}
}

// mineRound lets every miner but absent publish its value in its slot, then closes the
// round. The extra block producer closes it unless it is absent.
func (c *testChain) mineRound(absent ...string) *round.Round {
	c.t.Helper()
	return c.mineRoundWith(consensus.NextRound, absent...)
}

func (c *testChain) mineRoundWith(behaviour consensus.Behaviour, absent ...string) *round.Round {
	c.t.Helper()
	skip := mapset.NewThreadUnsafeSet[string](absent...)
	current := c.current()
	var terminator string
	for _, m := range current.OrderedMiners() {
		if skip.Contains(m.Pubkey) {
			continue
		}
		c.produce(m.Pubkey, consensus.UpdateValue, m.ExpectedMiningTime)
		if terminator == "" {
			terminator = m.Pubkey
		}
	}
	require.NotEmpty(c.t, terminator, "nobody mined round %d", current.RoundNumber)
	closeTime := current.ExpectedEndTime()
	if ebp := current.ExtraBlockProducer(); !skip.Contains(ebp.Pubkey) {
		terminator, closeTime = ebp.Pubkey, current.ExtraBlockMiningTime()
	}
	c.produce(terminator, behaviour, closeTime)
	return c.current()
}

// testRegistry bans whoever the engine reports and replaces banned miners with the
// queued candidates.
type testRegistry struct {
	lock       sync.Mutex
	banned     mapset.Set[string]
	candidates []string
	replaced   []MinerReplacement
	victories  []string
	minerLists map[uint64][]string
}

func newTestRegistry() *testRegistry {
	return &testRegistry{
		banned:     mapset.NewSet[string](),
		minerLists: make(map[uint64][]string),
	}
}

func (r *testRegistry) IsBanned(pubkey string) bool {
	return r.banned.Contains(pubkey)
}

func (r *testRegistry) GetMinerReplacementInformation(current []string) ([]string, []string) {
	r.lock.Lock()
	defer r.lock.Unlock()
	var evil, alternatives []string
	next := 0
	for _, pubkey := range current {
		if !r.banned.Contains(pubkey) || next >= len(r.candidates) {
			continue
		}
		evil = append(evil, pubkey)
		alternatives = append(alternatives, r.candidates[next])
		next++
	}
	return evil, alternatives
}

func (r *testRegistry) MarkEvil(pubkey string) {
	r.banned.Add(pubkey)
}

func (r *testRegistry) RecordMinerReplacement(oldPubkey, newPubkey string, term uint64, isEvil bool) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.replaced = append(r.replaced, MinerReplacement{OldPubkey: oldPubkey, NewPubkey: newPubkey, IsEvil: isEvil})
	for i, c := range r.candidates {
		if c == newPubkey {
			r.candidates = append(r.candidates[:i], r.candidates[i+1:]...)
			break
		}
	}
}

func (r *testRegistry) GetVictories([]string) []string {
	r.lock.Lock()
	defer r.lock.Unlock()
	return append([]string(nil), r.victories...)
}

func (r *testRegistry) SetMinerList(term uint64, miners []string) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.minerLists[term] = append([]string(nil), miners...)
}

type testTreasury struct {
	summaries []*TermSummary
}

func (t *testTreasury) RecordTermSummary(summary *TermSummary) error {
	t.summaries = append(t.summaries, summary)
	return nil
}
