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

// Package election is a reference candidate registry for the consensus engine. It
// keeps announced candidates with their votes, bans evil miners and picks the
// alternatives that replace them. Candidates are persisted in the Election table
// when a database is given.
package election

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/amazechain/aedpos/internal/consensus/aedpos"
	"github.com/amazechain/aedpos/log"
	"github.com/amazechain/aedpos/modules/rawdb"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/ledgerwatch/erigon-lib/kv"
)

var (
	// ErrCandidateExists is returned when a pubkey announces itself twice.
	ErrCandidateExists = errors.New("candidate already announced")

	// ErrUnknownCandidate is returned when votes go to a pubkey that never announced.
	ErrUnknownCandidate = errors.New("unknown candidate")

	// ErrBannedCandidate is returned when an evil pubkey tries to run again.
	ErrBannedCandidate = errors.New("candidate is banned")
)

var _ aedpos.ElectionRegistry = (*Registry)(nil)

// Registry implements aedpos.ElectionRegistry.
type Registry struct {
	lock sync.RWMutex
	db   kv.RwDB

	minersCount   int
	initialMiners []string
	candidates    map[string]*rawdb.Candidate
	banned        mapset.Set[string]
	minerLists    map[uint64][]string
	replacements  map[uint64][]aedpos.MinerReplacement

	log log.Logger
}

// NewRegistry opens a registry for minersCount miners. A nil db keeps everything in
// memory, otherwise the stored candidates are loaded.
func NewRegistry(db kv.RwDB, initialMiners []string, minersCount int) (*Registry, error) {
	if minersCount <= 0 {
		minersCount = len(initialMiners)
	}
	r := &Registry{
		db:            db,
		minersCount:   minersCount,
		initialMiners: append([]string(nil), initialMiners...),
		candidates:    make(map[string]*rawdb.Candidate),
		banned:        mapset.NewSet[string](),
		minerLists:    make(map[uint64][]string),
		replacements:  make(map[uint64][]aedpos.MinerReplacement),
		log:           log.New("module", "election"),
	}
	if db == nil {
		return r, nil
	}
	err := db.View(context.Background(), func(tx kv.Tx) error {
		stored, err := rawdb.ReadCandidates(tx)
		if err != nil {
			return err
		}
		for _, c := range stored {
			r.candidates[c.Pubkey] = c
			if c.IsEvil {
				r.banned.Add(c.Pubkey)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load candidates: %w", err)
	}
	return r, nil
}

// save writes the candidate records of pubkeys. Callers hold the lock.
func (r *Registry) save(pubkeys ...string) error {
	if r.db == nil {
		return nil
	}
	return r.db.Update(context.Background(), func(tx kv.RwTx) error {
		for _, pubkey := range pubkeys {
			c, ok := r.candidates[pubkey]
			if !ok {
				continue
			}
			if err := rawdb.WriteCandidate(tx, c); err != nil {
				return err
			}
		}
		return nil
	})
}

// candidate returns the record of pubkey, creating an empty one for miners that
// never announced, such as the initial miners.
func (r *Registry) candidate(pubkey string) *rawdb.Candidate {
	c, ok := r.candidates[pubkey]
	if !ok {
		c = &rawdb.Candidate{Pubkey: pubkey}
		r.candidates[pubkey] = c
	}
	return c
}

// AnnounceCandidate registers pubkey for the next elections.
func (r *Registry) AnnounceCandidate(pubkey string) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	if r.banned.Contains(pubkey) {
		return fmt.Errorf("%w: %s", ErrBannedCandidate, pubkey)
	}
	if _, ok := r.candidates[pubkey]; ok {
		return fmt.Errorf("%w: %s", ErrCandidateExists, pubkey)
	}
	r.candidates[pubkey] = &rawdb.Candidate{Pubkey: pubkey}
	return r.save(pubkey)
}

// Vote adds votes to an announced candidate.
func (r *Registry) Vote(pubkey string, votes uint64) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	c, ok := r.candidates[pubkey]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCandidate, pubkey)
	}
	c.Votes += votes
	return r.save(pubkey)
}

// Candidate returns a copy of the record of pubkey, nil if it is unknown.
func (r *Registry) Candidate(pubkey string) *rawdb.Candidate {
	r.lock.RLock()
	defer r.lock.RUnlock()

	c, ok := r.candidates[pubkey]
	if !ok {
		return nil
	}
	cpy := *c
	return &cpy
}

func (r *Registry) IsBanned(pubkey string) bool {
	return r.banned.Contains(pubkey)
}

func (r *Registry) MarkEvil(pubkey string) {
	r.lock.Lock()
	defer r.lock.Unlock()

	if !r.banned.Add(pubkey) {
		return
	}
	r.candidate(pubkey).IsEvil = true
	if err := r.save(pubkey); err != nil {
		r.log.Error("Failed to store evil miner", "pubkey", pubkey, "err", err)
	}
	r.log.Warn("Miner banned", "pubkey", pubkey)
}

// ranked returns the candidates that may still be elected, most votes first.
func (r *Registry) ranked(exclude mapset.Set[string]) []*rawdb.Candidate {
	var ranked []*rawdb.Candidate
	for pubkey, c := range r.candidates {
		if r.banned.Contains(pubkey) || exclude.Contains(pubkey) || c.Votes == 0 {
			continue
		}
		ranked = append(ranked, c)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Votes != ranked[j].Votes {
			return ranked[i].Votes > ranked[j].Votes
		}
		return ranked[i].Pubkey < ranked[j].Pubkey
	})
	return ranked
}

// GetMinerReplacementInformation pairs the banned miners of currentMiners with the
// best voted candidates outside the miner list. Initial miners fill in when there are
// not enough candidates, and evil miners without an alternative stay in place.
func (r *Registry) GetMinerReplacementInformation(currentMiners []string) ([]string, []string) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	var evil []string
	for _, pubkey := range currentMiners {
		if r.banned.Contains(pubkey) {
			evil = append(evil, pubkey)
		}
	}
	if len(evil) == 0 {
		return nil, nil
	}

	current := mapset.NewThreadUnsafeSet[string](currentMiners...)
	initial := mapset.NewThreadUnsafeSet[string](r.initialMiners...)
	alternatives := make([]string, 0, len(evil))
	for _, c := range r.ranked(current.Union(initial)) {
		if len(alternatives) == len(evil) {
			break
		}
		alternatives = append(alternatives, c.Pubkey)
	}
	for _, pubkey := range r.initialMiners {
		if len(alternatives) == len(evil) {
			break
		}
		if r.banned.Contains(pubkey) || current.Contains(pubkey) {
			continue
		}
		alternatives = append(alternatives, pubkey)
	}
	if len(alternatives) < len(evil) {
		r.log.Warn("Not enough alternatives for evil miners", "evil", len(evil), "alternatives", len(alternatives))
		evil = evil[:len(alternatives)]
	}
	return evil, alternatives
}

func (r *Registry) RecordMinerReplacement(oldPubkey, newPubkey string, term uint64, isEvil bool) {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.replacements[term] = append(r.replacements[term], aedpos.MinerReplacement{
		OldPubkey: oldPubkey,
		NewPubkey: newPubkey,
		IsEvil:    isEvil,
	})
	r.candidate(oldPubkey).ReplacedBy = newPubkey
	if err := r.save(oldPubkey); err != nil {
		r.log.Error("Failed to store miner replacement", "old", oldPubkey, "new", newPubkey, "err", err)
	}
}

// Replacements returns the replacements recorded during term.
func (r *Registry) Replacements(term uint64) []aedpos.MinerReplacement {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return append([]aedpos.MinerReplacement(nil), r.replacements[term]...)
}

// GetVictories elects the next miner list: the best voted candidates, topped up with
// the current miners and then the initial miners while seats are left. It returns nil
// when nobody received votes, which keeps the current list.
func (r *Registry) GetVictories(currentMiners []string) []string {
	r.lock.RLock()
	defer r.lock.RUnlock()

	ranked := r.ranked(mapset.NewThreadUnsafeSet[string]())
	if len(ranked) == 0 {
		return nil
	}
	elected := mapset.NewThreadUnsafeSet[string]()
	var victories []string
	add := func(pubkey string) {
		if len(victories) >= r.minersCount || r.banned.Contains(pubkey) || !elected.Add(pubkey) {
			return
		}
		victories = append(victories, pubkey)
	}
	for _, c := range ranked {
		add(c.Pubkey)
	}
	for _, pubkey := range currentMiners {
		add(pubkey)
	}
	for _, pubkey := range r.initialMiners {
		add(pubkey)
	}
	return victories
}

func (r *Registry) SetMinerList(term uint64, miners []string) {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.minerLists[term] = append([]string(nil), miners...)
	r.log.Info("New miner list", "term", term, "miners", len(miners))
}

// MinerList returns the list registered for term.
func (r *Registry) MinerList(term uint64) []string {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return append([]string(nil), r.minerLists[term]...)
}
