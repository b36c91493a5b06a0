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
	"io"
	"sync"

	"github.com/amazechain/aedpos/common/round"
	"github.com/amazechain/aedpos/common/types"
	"github.com/amazechain/aedpos/internal/consensus"
	"github.com/amazechain/aedpos/internal/secretsharing"
	"github.com/amazechain/aedpos/log"
	"github.com/amazechain/aedpos/utils"
	"github.com/ethereum/go-ethereum/event"
	lru "github.com/hashicorp/golang-lru"
)

const (
	inmemoryInValues    = 16
	inmemoryPieceRounds = 4
)

// Miner is the node side of a miner: it draws the in values the miner commits to,
// remembers them until they are revealed and decrypts the pieces other miners share
// with it.
type Miner struct {
	engine *AEDPoS
	key    *secretsharing.KeyPair
	pubkey string
	rand   io.Reader

	inValues  *lru.Cache // round number -> types.Hash
	decrypted *lru.Cache // round number -> map[string][]byte, plain shares by owner
	lock      sync.Mutex

	sub  event.Subscription
	quit chan struct{}
	wg   sync.WaitGroup
	log  log.Logger
}

// NewMiner creates the miner holding key. Its pubkey is the hex of the public key.
func NewMiner(engine *AEDPoS, key *secretsharing.KeyPair) (*Miner, error) {
	inValues, err := lru.New(inmemoryInValues)
	if err != nil {
		return nil, err
	}
	decrypted, err := lru.New(inmemoryPieceRounds)
	if err != nil {
		return nil, err
	}
	pubkey := key.Pubkey()
	return &Miner{
		engine:    engine,
		key:       key,
		pubkey:    pubkey,
		rand:      rand.Reader,
		inValues:  inValues,
		decrypted: decrypted,
		log:       log.New("miner", pubkey[:8]),
	}, nil
}

func (m *Miner) Pubkey() string {
	return m.pubkey
}

// Start decrypts shared pieces in the background whenever a round ends.
func (m *Miner) Start() {
	ch := make(chan SecretSharingInformation, 4)
	m.sub = m.engine.SubscribeSecretSharing(ch)
	m.quit = make(chan struct{})
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		for {
			select {
			case info := <-ch:
				m.HandleSecretSharing(info)
			case <-m.sub.Err():
				return
			case <-m.quit:
				return
			}
		}
	}()
}

func (m *Miner) Stop() {
	if m.quit == nil {
		return
	}
	close(m.quit)
	m.sub.Unsubscribe()
	m.wg.Wait()
	m.quit = nil
}

// Command asks the engine what to produce next.
func (m *Miner) Command(ctx context.Context, now uint64) (*consensus.Command, error) {
	return m.engine.GetConsensusCommand(ctx, m.pubkey, now)
}

// Produce builds the consensus data of a block for behaviour.
func (m *Miner) Produce(ctx context.Context, block consensus.BlockContext, behaviour consensus.Behaviour) ([]byte, error) {
	trigger, err := m.Trigger(ctx, behaviour)
	if err != nil {
		return nil, err
	}
	data, err := trigger.Encode()
	if err != nil {
		return nil, err
	}
	block.Producer = m.pubkey
	return m.engine.GetConsensusExtraData(ctx, block, data)
}

// Trigger collects what the engine needs from the miner to build a block of behaviour.
func (m *Miner) Trigger(ctx context.Context, behaviour consensus.Behaviour) (*TriggerInformation, error) {
	trigger := &TriggerInformation{Pubkey: m.pubkey, Behaviour: behaviour}
	if behaviour != consensus.UpdateValue {
		return trigger, nil
	}
	var current, previous *round.Round
	err := m.engine.view(ctx, func(r StateReader) (err error) {
		if current, err = m.engine.currentRound(r); err != nil {
			return err
		}
		previous, err = m.engine.previousRound(r, current)
		return err
	})
	if err != nil {
		return nil, err
	}

	m.lock.Lock()
	defer m.lock.Unlock()
	inValue, err := m.inValue(current.RoundNumber)
	if err != nil {
		return nil, err
	}
	trigger.InValue = inValue
	if v, ok := m.inValues.Get(current.RoundNumber - 1); ok {
		trigger.PreviousInValue = v.(types.Hash)
	}
	if !m.engine.config.IsSecretSharingEnabled {
		return trigger, nil
	}
	trigger.EncryptedPieces = m.encryptPieces(current, inValue)
	if v, ok := m.decrypted.Get(current.RoundNumber - 1); ok {
		for owner, share := range v.(map[string][]byte) {
			trigger.DecryptedPieces = append(trigger.DecryptedPieces, round.Piece{
				Pubkey: owner,
				Data:   utils.Copy(share),
				Digest: utils.Sha256(share),
			})
		}
	}
	for owner, inValue := range RevealSharedInValues(current, previous) {
		trigger.RevealedInValues = append(trigger.RevealedInValues, RevealedInValue{Pubkey: owner, InValue: inValue})
	}
	return trigger, nil
}

// inValue returns the in value of roundNumber, drawing it on first use.
func (m *Miner) inValue(roundNumber uint64) (types.Hash, error) {
	if v, ok := m.inValues.Get(roundNumber); ok {
		return v.(types.Hash), nil
	}
	var h types.Hash
	if _, err := io.ReadFull(m.rand, h[:]); err != nil {
		return types.EmptyHash, err
	}
	m.inValues.Add(roundNumber, h)
	return h, nil
}

// encryptPieces shares inValue with the other miners of current. A piece that cannot
// be encrypted is left out, its recipient simply cannot help revealing.
func (m *Miner) encryptPieces(current *round.Round, inValue types.Hash) []round.Piece {
	miners := current.SortedPubkeys()
	if len(miners) < 2 {
		return nil
	}
	shares, err := secretsharing.Split(m.rand, inValue, SecretSharingThreshold(len(miners)), len(miners))
	if err != nil {
		m.log.Warn("Failed to split in value", "round", current.RoundNumber, "err", err)
		return nil
	}
	pieces := make([]round.Piece, 0, len(miners)-1)
	for i, recipient := range miners {
		if recipient == m.pubkey {
			continue
		}
		ciphertext, err := secretsharing.Encrypt(m.rand, shares[i], recipient, m.key)
		if err != nil {
			m.log.Debug("Failed to encrypt piece", "recipient", recipient, "err", err)
			continue
		}
		pieces = append(pieces, round.Piece{Pubkey: recipient, Data: ciphertext, Digest: utils.Sha256(shares[i])})
	}
	return pieces
}

// HandleSecretSharing decrypts the pieces of the ended round addressed to this miner.
// They are published with its next update.
func (m *Miner) HandleSecretSharing(info SecretSharingInformation) {
	ended := info.PreviousRound
	if ended.IsEmpty() || !ended.IsInMinerList(m.pubkey) {
		return
	}
	shares := make(map[string][]byte)
	for _, owner := range ended.Miners {
		if owner.Pubkey == m.pubkey {
			continue
		}
		piece, ok := owner.EncryptedPiece(m.pubkey)
		if !ok {
			continue
		}
		share, err := secretsharing.Decrypt(piece.Data, owner.Pubkey, m.key)
		if err != nil {
			m.log.Debug("Failed to decrypt piece", "owner", owner.Pubkey, "round", ended.RoundNumber, "err", err)
			continue
		}
		if utils.Sha256(share) != piece.Digest {
			m.log.Warn("Decrypted piece does not match its digest", "owner", owner.Pubkey, "round", ended.RoundNumber)
			continue
		}
		shares[owner.Pubkey] = share
	}
	m.lock.Lock()
	m.decrypted.Add(ended.RoundNumber, shares)
	m.lock.Unlock()
	m.log.Trace("Decrypted shared pieces", "round", ended.RoundNumber, "pieces", len(shares))
}
