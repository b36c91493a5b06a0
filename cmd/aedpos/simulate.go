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

package main

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/amazechain/aedpos/common/round"
	"github.com/amazechain/aedpos/conf"
	"github.com/amazechain/aedpos/internal/consensus"
	"github.com/amazechain/aedpos/internal/consensus/aedpos"
	"github.com/amazechain/aedpos/internal/election"
	"github.com/amazechain/aedpos/internal/secretsharing"
	"github.com/amazechain/aedpos/internal/treasury"
	"github.com/amazechain/aedpos/log"
	"github.com/amazechain/aedpos/modules/rawdb"
	"github.com/amazechain/aedpos/params"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/ethereum/go-ethereum/event"
	"github.com/holiman/uint256"
	"github.com/ledgerwatch/erigon-lib/kv"
	"github.com/urfave/cli/v2"
)

var simulateCommand = &cli.Command{
	Name:   "simulate",
	Usage:  "Run local miners through a virtual clock",
	Flags:  simulatorFlags,
	Action: simulate,
	Description: `
The simulate command starts the configured number of miners in one process and
lets them produce blocks on a virtual clock until the requested round is
reached. Offline miners never produce, so they end up supplied, then banned
and replaced once they missed enough time slots.`,
}

// rewardPerBlock is what the simulated treasury pays for one block.
var rewardPerBlock = uint256.NewInt(1_000_000)

var errStalled = errors.New("no miner can produce")

func simulate(ctx *cli.Context) error {
	if err := setup(); err != nil {
		return err
	}
	if indexes := ctx.IntSlice("sim.offline"); len(indexes) > 0 {
		DefaultConfig.SimulatorCfg.Offline = indexes
	}
	if err := DefaultConfig.Validate(); err != nil {
		return err
	}
	db, err := openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()
	if err := storeChainConfig(ctx.Context, db, DefaultConfig.GenesisCfg.Chain); err != nil {
		return err
	}

	sim, err := newSimulator(db, *DefaultConfig.GenesisCfg.Chain.AEDPoS, DefaultConfig.SimulatorCfg, os.Stdout)
	if err != nil {
		return err
	}
	defer sim.close()

	start := DefaultConfig.GenesisCfg.Timestamp
	if start == 0 {
		start = uint64(time.Now().UnixMilli())
	}
	if err := sim.init(ctx.Context, start); err != nil {
		return err
	}
	if err := sim.run(ctx.Context, DefaultConfig.SimulatorCfg.Rounds); err != nil {
		return err
	}
	return sim.report(ctx.Context)
}

// storeChainConfig records the chain config of a fresh database and refuses to
// simulate another chain on top of a stored one.
func storeChainConfig(ctx context.Context, db kv.RwDB, chain *params.ChainConfig) error {
	return db.Update(ctx, func(tx kv.RwTx) error {
		stored, err := rawdb.ReadChainConfig(tx, chain.ChainName)
		if err != nil {
			return err
		}
		if stored == nil {
			return rawdb.WriteChainConfig(tx, chain)
		}
		if stored.ChainID != chain.ChainID {
			return fmt.Errorf("database holds chain %d, not %d", stored.ChainID, chain.ChainID)
		}
		return nil
	})
}

type simulator struct {
	engine   *aedpos.AEDPoS
	registry *election.Registry
	treasury *treasury.Treasury
	config   params.AEDPoSConfig

	miners  []*aedpos.Miner
	genesis []string
	offline mapset.Set[string]
	tiny    int

	now        uint64
	height     uint64
	slotRound  uint64
	slotBlocks map[string]int

	secrets      chan aedpos.SecretSharingInformation
	irreversible chan aedpos.IrreversibleBlockFound
	unacceptable chan aedpos.IrreversibleBlockHeightUnacceptable
	replaced     chan aedpos.MinerReplaced
	subs         []event.Subscription

	out io.Writer
	log log.Logger
}

func newSimulator(db kv.RwDB, config params.AEDPoSConfig, cfg conf.SimulatorConfig, out io.Writer) (*simulator, error) {
	if cfg.Miners <= 0 {
		return nil, fmt.Errorf("invalid miners count %d", cfg.Miners)
	}
	config = config.WithDefaults()
	// the genesis list is never cut down by a new term
	if config.SupposedMinersCount < cfg.Miners {
		config.SupposedMinersCount = cfg.Miners
	}
	if config.MaximumMinersCount < config.SupposedMinersCount {
		config.MaximumMinersCount = config.SupposedMinersCount
	}
	s := &simulator{
		config:       config,
		offline:      mapset.NewSet[string](),
		tiny:         cfg.TinyBlocks,
		slotBlocks:   make(map[string]int),
		secrets:      make(chan aedpos.SecretSharingInformation, 16),
		irreversible: make(chan aedpos.IrreversibleBlockFound, 16),
		unacceptable: make(chan aedpos.IrreversibleBlockHeightUnacceptable, 16),
		replaced:     make(chan aedpos.MinerReplaced, 16),
		out:          out,
		log:          log.New("module", "simulator"),
	}

	keys := make([]*secretsharing.KeyPair, 0, cfg.Miners+len(cfg.Offline))
	// one spare candidate for every offline miner
	for i := 0; i < cfg.Miners+len(cfg.Offline); i++ {
		key, err := secretsharing.GenerateKey(rand.Reader)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	for _, key := range keys[:cfg.Miners] {
		s.genesis = append(s.genesis, key.Pubkey())
	}
	for _, i := range cfg.Offline {
		if i < 0 || i >= cfg.Miners {
			return nil, fmt.Errorf("offline miner %d out of range", i)
		}
		s.offline.Add(s.genesis[i])
	}

	registry, err := election.NewRegistry(db, s.genesis, cfg.Miners)
	if err != nil {
		return nil, err
	}
	s.registry = registry
	s.treasury = treasury.New(db, rewardPerBlock, registry)
	engine, err := aedpos.New(config, aedpos.NewKVDatabase(db), registry, s.treasury)
	if err != nil {
		return nil, err
	}
	s.engine = engine

	for i, key := range keys {
		m, err := aedpos.NewMiner(engine, key)
		if err != nil {
			return nil, err
		}
		s.miners = append(s.miners, m)
		if i >= cfg.Miners {
			if err := registry.AnnounceCandidate(m.Pubkey()); err != nil {
				return nil, err
			}
			if err := registry.Vote(m.Pubkey(), uint64(len(keys)-i)); err != nil {
				return nil, err
			}
		}
	}
	s.subs = append(s.subs,
		engine.SubscribeSecretSharing(s.secrets),
		engine.SubscribeIrreversibleBlockFound(s.irreversible),
		engine.SubscribeIrreversibleBlockHeightUnacceptable(s.unacceptable),
		engine.SubscribeMinerReplaced(s.replaced),
	)
	return s, nil
}

func (s *simulator) close() {
	for _, sub := range s.subs {
		sub.Unsubscribe()
	}
	s.engine.Close()
}

// init writes the first round, unless the database already holds a chain.
func (s *simulator) init(ctx context.Context, start uint64) error {
	first := round.GenerateFirstRound(s.genesis, s.config.MiningInterval, start)
	err := s.engine.FirstRound(ctx, first, start)
	if errors.Is(err, aedpos.ErrAlreadyInitialized) {
		return fmt.Errorf("database already holds a chain, use a fresh data dir or --db.memory")
	}
	if err != nil {
		return err
	}
	s.now = start
	fmt.Fprint(s.out, first)
	return nil
}

// next picks the miner whose command comes first. Miners that used up their tiny
// blocks are asked again for the time after their slot.
func (s *simulator) next(ctx context.Context) (*aedpos.Miner, *consensus.Command, error) {
	var (
		best    *aedpos.Miner
		bestCmd *consensus.Command
	)
	for _, m := range s.miners {
		if s.offline.Contains(m.Pubkey()) {
			continue
		}
		cmd, err := m.Command(ctx, s.now)
		if err != nil {
			return nil, nil, err
		}
		if cmd.IsValid() && cmd.Behaviour == consensus.TinyBlock && s.slotBlocks[m.Pubkey()] > s.tiny {
			if cmd, err = m.Command(ctx, cmd.MiningDueTime+1); err != nil {
				return nil, nil, err
			}
			if cmd.Behaviour == consensus.TinyBlock {
				continue
			}
		}
		if !cmd.IsValid() {
			continue
		}
		if bestCmd == nil || cmd.ArrangedMiningTime < bestCmd.ArrangedMiningTime {
			best, bestCmd = m, cmd
		}
	}
	return best, bestCmd, nil
}

func (s *simulator) run(ctx context.Context, rounds uint64) error {
	api := s.engine.API()
	idle := 0
	for {
		current, err := api.GetCurrentRoundInformation(ctx)
		if err != nil {
			return err
		}
		if current.RoundNumber > rounds {
			return nil
		}
		if current.RoundNumber != s.slotRound {
			s.slotRound = current.RoundNumber
			s.slotBlocks = make(map[string]int)
		}
		m, cmd, err := s.next(ctx)
		if err != nil {
			return err
		}
		if cmd == nil {
			if idle++; idle > current.Len()+2 {
				return fmt.Errorf("%w in round %d", errStalled, current.RoundNumber)
			}
			s.now += s.config.MiningInterval
			continue
		}
		idle = 0
		if cmd.ArrangedMiningTime > s.now {
			s.now = cmd.ArrangedMiningTime
		}
		if err := s.produce(ctx, m, cmd.Behaviour); err != nil {
			return err
		}
		if cmd.Behaviour.IsRoundTransition() {
			next, err := api.GetCurrentRoundInformation(ctx)
			if err != nil {
				return err
			}
			fmt.Fprint(s.out, next)
		}
	}
}

func (s *simulator) produce(ctx context.Context, m *aedpos.Miner, behaviour consensus.Behaviour) error {
	block := consensus.BlockContext{Height: s.height + 1, Time: s.now, Producer: m.Pubkey()}
	extra, err := m.Produce(ctx, block, behaviour)
	if err != nil {
		return fmt.Errorf("produce %v at %d: %w", behaviour, block.Height, err)
	}
	if res := s.engine.ValidateConsensusBeforeExecution(ctx, block, extra); !res.Success {
		return fmt.Errorf("block %d of %s: %w", block.Height, m.Pubkey(), res.Err)
	}
	if err := s.engine.ProcessConsensusInformation(ctx, block, extra); err != nil {
		return fmt.Errorf("process block %d: %w", block.Height, err)
	}
	if res := s.engine.ValidateConsensusAfterExecution(ctx, block, extra); !res.Success {
		return fmt.Errorf("block %d of %s: %w", block.Height, m.Pubkey(), res.Err)
	}
	s.height++
	if behaviour == consensus.UpdateValue || behaviour == consensus.TinyBlock {
		s.slotBlocks[m.Pubkey()]++
	}
	s.log.Debug("Block produced", "height", block.Height, "miner", m.Pubkey(), "behaviour", behaviour, "time", block.Time)
	s.drain()
	return nil
}

// drain delivers the events of the last block before the next one is built.
func (s *simulator) drain() {
	for {
		select {
		case info := <-s.secrets:
			for _, m := range s.miners {
				if !s.offline.Contains(m.Pubkey()) {
					m.HandleSecretSharing(info)
				}
			}
		case ev := <-s.irreversible:
			fmt.Fprintf(s.out, "LIB %d confirmed in round %d\n", ev.IrreversibleBlockHeight, ev.RoundNumber)
		case ev := <-s.unacceptable:
			if ev.DistanceToIrreversibleBlockHeight == 0 {
				fmt.Fprintln(s.out, "LIB caught up")
			} else {
				fmt.Fprintf(s.out, "LIB lags %d blocks behind\n", ev.DistanceToIrreversibleBlockHeight)
			}
		case ev := <-s.replaced:
			fmt.Fprintf(s.out, "term %d: %s replaced by %s (evil %v)\n", ev.TermNumber, ev.OldPubkey, ev.NewPubkey, ev.IsEvil)
		default:
			return
		}
	}
}

func (s *simulator) report(ctx context.Context) error {
	api := s.engine.API()
	term, err := api.GetCurrentTermNumber(ctx)
	if err != nil {
		return err
	}
	status, maximum, err := api.GetCurrentMiningStatus(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "height %d, term %d, mining status %v, %d blocks per slot\n", s.height, term, status, maximum)

	pubkeys := make([]string, 0, len(s.miners))
	for _, m := range s.miners {
		pubkeys = append(pubkeys, m.Pubkey())
	}
	sort.Strings(pubkeys)
	for _, pubkey := range pubkeys {
		reward, err := s.treasury.AccountReward(pubkey)
		if err != nil {
			return err
		}
		if reward.IsZero() && !s.registry.IsBanned(pubkey) {
			continue
		}
		fmt.Fprintf(s.out, "%s reward %s banned %v\n", pubkey[:16], reward.ToBig(), s.registry.IsBanned(pubkey))
	}
	return nil
}
