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

// Package round holds the AEDPoS round data model: the Round scheduled for a set of
// miners and the per-miner MinerInRound records, together with the pure arithmetic
// that derives time slots, mining orders and the next round from them.
package round

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/amazechain/aedpos/common/types"
	"github.com/amazechain/aedpos/utils"
)

const (
	// MaximumTinyBlocksCount is the number of blocks a miner may produce in one time slot.
	MaximumTinyBlocksCount = 8

	// TolerableMissedTimeSlotsCount marks a miner as evil, about three days of slots.
	TolerableMissedTimeSlotsCount = 4320

	// KeepRounds bounds the number of historical rounds kept in state.
	KeepRounds = 40960

	// SingleMinerMiningInterval is the mining interval of a round with one miner (ms).
	SingleMinerMiningInterval = 4000
)

var (
	// ErrEmptyPubkey is returned when a miner record carries no public key.
	ErrEmptyPubkey = errors.New("empty miner pubkey")

	// ErrDuplicateMiner is returned when a pubkey is added to a round twice.
	ErrDuplicateMiner = errors.New("duplicate miner in round")

	// ErrEmptyRound is returned when a round has no miners at all.
	ErrEmptyRound = errors.New("round has no miners")

	// ErrInvalidOrder is returned when the orders of a round are not a permutation of 1..N.
	ErrInvalidOrder = errors.New("miner orders are not a permutation")

	// ErrMinerNotFound is returned when a pubkey is not a miner of the round.
	ErrMinerNotFound = errors.New("miner not found in round")
)

// Piece is one secret sharing share exchanged between two miners. For encrypted pieces
// Pubkey is the recipient and Digest commits to the plain share; for decrypted pieces
// Pubkey is the miner that decrypted it.
type Piece struct {
	Pubkey string
	Data   []byte
	Digest types.Hash
}

// MinerInRound is the state of a single miner within one round. Times are unix
// milliseconds.
type MinerInRound struct {
	Pubkey               string
	Order                uint32
	IsExtraBlockProducer bool

	InValue         types.Hash
	OutValue        types.Hash
	Signature       types.Hash
	PreviousInValue types.Hash

	ExpectedMiningTime uint64
	ProducedBlocks     uint64
	ProducedTinyBlocks uint64
	MissedTimeSlots    uint64

	SupposedOrderOfNextRound uint32
	FinalOrderOfNextRound    uint32

	ActualMiningTimes []uint64
	EncryptedPieces   []Piece
	DecryptedPieces   []Piece

	ImpliedIrreversibleBlockHeight uint64
}

// Round is one rotation of all miners. Miners is the single source of truth for miner
// records; lookups by pubkey go through an index derived from it.
type Round struct {
	RoundNumber uint64
	TermNumber  uint64
	Miners      []*MinerInRound

	ExtraBlockProducerOfPreviousRound string

	BlockchainAge                         uint64
	ConfirmedIrreversibleBlockHeight      uint64
	ConfirmedIrreversibleBlockRoundNumber uint64
	IsMinerListJustChanged                bool
	RoundIDForValidation                  uint64

	index map[string]int
}

func NewRound(roundNumber, termNumber uint64) *Round {
	return &Round{
		RoundNumber: roundNumber,
		TermNumber:  termNumber,
		Miners:      make([]*MinerInRound, 0),
	}
}

func (r *Round) reindex() {
	r.index = make(map[string]int, len(r.Miners))
	for i, m := range r.Miners {
		r.index[m.Pubkey] = i
	}
}

// Miner returns the record of pubkey or nil.
func (r *Round) Miner(pubkey string) *MinerInRound {
	if i, ok := r.index[pubkey]; ok && i < len(r.Miners) && r.Miners[i].Pubkey == pubkey {
		return r.Miners[i]
	}
	r.reindex()
	if i, ok := r.index[pubkey]; ok {
		return r.Miners[i]
	}
	return nil
}

// IsInMinerList reports whether pubkey is a miner of this round.
func (r *Round) IsInMinerList(pubkey string) bool {
	return r.Miner(pubkey) != nil
}

// AddMiner appends m. The pubkey of the record is its only key.
func (r *Round) AddMiner(m *MinerInRound) error {
	if m == nil || m.Pubkey == "" {
		return ErrEmptyPubkey
	}
	if r.Miner(m.Pubkey) != nil {
		return fmt.Errorf("%w: %s", ErrDuplicateMiner, m.Pubkey)
	}
	r.Miners = append(r.Miners, m)
	r.index[m.Pubkey] = len(r.Miners) - 1
	return nil
}

// RemoveMiner drops pubkey from the round and reports whether it was present.
func (r *Round) RemoveMiner(pubkey string) bool {
	m := r.Miner(pubkey)
	if m == nil {
		return false
	}
	i := r.index[pubkey]
	r.Miners = append(r.Miners[:i], r.Miners[i+1:]...)
	r.reindex()
	return true
}

func (r *Round) Len() int { return len(r.Miners) }

// IsEmpty reports whether r is nil or carries no miners.
func (r *Round) IsEmpty() bool { return r == nil || len(r.Miners) == 0 }

// OrderedMiners returns the miner records sorted by order.
func (r *Round) OrderedMiners() []*MinerInRound {
	miners := make([]*MinerInRound, len(r.Miners))
	copy(miners, r.Miners)
	sort.SliceStable(miners, func(i, j int) bool { return miners[i].Order < miners[j].Order })
	return miners
}

// Pubkeys returns the miner list ordered by order.
func (r *Round) Pubkeys() []string {
	pubkeys := make([]string, 0, len(r.Miners))
	for _, m := range r.OrderedMiners() {
		pubkeys = append(pubkeys, m.Pubkey)
	}
	return pubkeys
}

// SortedPubkeys returns the miner list sorted lexically.
func (r *Round) SortedPubkeys() []string {
	pubkeys := make([]string, 0, len(r.Miners))
	for _, m := range r.Miners {
		pubkeys = append(pubkeys, m.Pubkey)
	}
	sort.Strings(pubkeys)
	return pubkeys
}

func (r *Round) MinerByOrder(order uint32) *MinerInRound {
	for _, m := range r.Miners {
		if m.Order == order {
			return m
		}
	}
	return nil
}

// FirstMiner returns the miner of order 1, falling back to the lowest order.
func (r *Round) FirstMiner() *MinerInRound {
	if m := r.MinerByOrder(1); m != nil {
		return m
	}
	if ordered := r.OrderedMiners(); len(ordered) > 0 {
		return ordered[0]
	}
	return nil
}

// ExtraBlockProducer returns the miner flagged as extra block producer, or the first miner.
func (r *Round) ExtraBlockProducer() *MinerInRound {
	for _, m := range r.Miners {
		if m.IsExtraBlockProducer {
			return m
		}
	}
	return r.FirstMiner()
}

// MinersCountOfConsent is the byzantine quorum ⌊2N/3⌋+1.
func (r *Round) MinersCountOfConsent() int {
	return len(r.Miners)*2/3 + 1
}

// MinedMiners returns miners that published a value this round, ordered by order.
func (r *Round) MinedMiners() []*MinerInRound {
	var mined []*MinerInRound
	for _, m := range r.OrderedMiners() {
		if m.SupposedOrderOfNextRound != 0 {
			mined = append(mined, m)
		}
	}
	return mined
}

// NotMinedMiners returns miners that did not publish a value this round, ordered by order.
func (r *Round) NotMinedMiners() []*MinerInRound {
	var missed []*MinerInRound
	for _, m := range r.OrderedMiners() {
		if m.SupposedOrderOfNextRound == 0 {
			missed = append(missed, m)
		}
	}
	return missed
}

// RoundID is the sum of expected mining times. Rounds with an unset expected time
// fall back to RoundIDForValidation.
func (r *Round) RoundID() uint64 {
	var sum uint64
	for _, m := range r.Miners {
		if m.ExpectedMiningTime == 0 {
			return r.RoundIDForValidation
		}
		sum += m.ExpectedMiningTime
	}
	return sum
}

// MinedBlocks is the total number of blocks produced by the miners of this round.
func (r *Round) MinedBlocks() uint64 {
	var total uint64
	for _, m := range r.Miners {
		total += m.ProducedBlocks
	}
	return total
}

// Validate checks the structural invariants of a round.
func (r *Round) Validate() error {
	if r.IsEmpty() {
		return ErrEmptyRound
	}
	seen := make(map[string]struct{}, len(r.Miners))
	orders := make(map[uint32]struct{}, len(r.Miners))
	n := uint32(len(r.Miners))
	for _, m := range r.Miners {
		if m.Pubkey == "" {
			return ErrEmptyPubkey
		}
		if _, ok := seen[m.Pubkey]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateMiner, m.Pubkey)
		}
		seen[m.Pubkey] = struct{}{}
		if m.Order < 1 || m.Order > n {
			return fmt.Errorf("%w: order %d out of 1..%d", ErrInvalidOrder, m.Order, n)
		}
		if _, ok := orders[m.Order]; ok {
			return fmt.Errorf("%w: order %d assigned twice", ErrInvalidOrder, m.Order)
		}
		orders[m.Order] = struct{}{}
	}
	return nil
}

// Clone returns a deep copy of r.
func (r *Round) Clone() *Round {
	if r == nil {
		return nil
	}
	c := *r
	c.index = nil
	c.Miners = make([]*MinerInRound, len(r.Miners))
	for i, m := range r.Miners {
		c.Miners[i] = m.Clone()
	}
	c.reindex()
	return &c
}

func (m *MinerInRound) Clone() *MinerInRound {
	c := *m
	c.ActualMiningTimes = append([]uint64(nil), m.ActualMiningTimes...)
	c.EncryptedPieces = clonePieces(m.EncryptedPieces)
	c.DecryptedPieces = clonePieces(m.DecryptedPieces)
	return &c
}

func clonePieces(pieces []Piece) []Piece {
	if pieces == nil {
		return nil
	}
	c := make([]Piece, len(pieces))
	for i, p := range pieces {
		c[i] = Piece{Pubkey: p.Pubkey, Data: utils.Copy(p.Data), Digest: p.Digest}
	}
	return c
}

// LatestActualMiningTime returns the last recorded mining time or 0.
func (m *MinerInRound) LatestActualMiningTime() uint64 {
	var latest uint64
	for _, t := range m.ActualMiningTimes {
		if t > latest {
			latest = t
		}
	}
	return latest
}

func findPiece(pieces []Piece, pubkey string) (Piece, bool) {
	for _, p := range pieces {
		if p.Pubkey == pubkey {
			return p, true
		}
	}
	return Piece{}, false
}

// setPiece inserts or replaces the piece of p.Pubkey keeping pieces sorted by pubkey.
func setPiece(pieces []Piece, p Piece) []Piece {
	i := sort.Search(len(pieces), func(i int) bool { return pieces[i].Pubkey >= p.Pubkey })
	if i < len(pieces) && pieces[i].Pubkey == p.Pubkey {
		pieces[i] = p
		return pieces
	}
	pieces = append(pieces, Piece{})
	copy(pieces[i+1:], pieces[i:])
	pieces[i] = p
	return pieces
}

func (m *MinerInRound) EncryptedPiece(recipient string) (Piece, bool) {
	return findPiece(m.EncryptedPieces, recipient)
}

func (m *MinerInRound) SetEncryptedPiece(p Piece) {
	m.EncryptedPieces = setPiece(m.EncryptedPieces, p)
}

func (m *MinerInRound) DecryptedPiece(decryptor string) (Piece, bool) {
	return findPiece(m.DecryptedPieces, decryptor)
}

func (m *MinerInRound) SetDecryptedPiece(p Piece) {
	m.DecryptedPieces = setPiece(m.DecryptedPieces, p)
}

func (r *Round) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "round %d term %d age %d lib %d@%d\n", r.RoundNumber, r.TermNumber, r.BlockchainAge,
		r.ConfirmedIrreversibleBlockHeight, r.ConfirmedIrreversibleBlockRoundNumber)
	for _, m := range r.OrderedMiners() {
		ebp := ""
		if m.IsExtraBlockProducer {
			ebp = " (ebp)"
		}
		fmt.Fprintf(&b, "  %d %s%s expected=%d produced=%d missed=%d next=%d/%d\n", m.Order, shortKey(m.Pubkey), ebp,
			m.ExpectedMiningTime, m.ProducedBlocks, m.MissedTimeSlots, m.SupposedOrderOfNextRound, m.FinalOrderOfNextRound)
	}
	return b.String()
}

func shortKey(pubkey string) string {
	if len(pubkey) <= 10 {
		return pubkey
	}
	return pubkey[:10]
}

// firstByteOf returns the first byte of a hex pubkey, or of its raw bytes when it is
// not hex encoded.
func firstByteOf(pubkey string) byte {
	if b, ok := decodeHexPrefix(pubkey); ok {
		return b
	}
	return pubkey[0]
}

func decodeHexPrefix(pubkey string) (byte, bool) {
	if len(pubkey) < 2 {
		return 0, false
	}
	var v byte
	for _, c := range []byte(pubkey[:2]) {
		switch {
		case c >= '0' && c <= '9':
			v = v<<4 | (c - '0')
		case c >= 'a' && c <= 'f':
			v = v<<4 | (c - 'a' + 10)
		case c >= 'A' && c <= 'F':
			v = v<<4 | (c - 'A' + 10)
		default:
			return 0, false
		}
	}
	return v, true
}
