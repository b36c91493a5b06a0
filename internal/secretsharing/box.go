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

package secretsharing

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/box"
)

const nonceLength = 24

var (
	ErrInvalidPubkey     = errors.New("invalid secret sharing pubkey")
	ErrInvalidCiphertext = errors.New("invalid encrypted piece")
)

// KeyPair is the curve25519 key pair a miner uses to exchange pieces.
type KeyPair struct {
	Public  *[32]byte
	Private *[32]byte
}

func GenerateKey(rand io.Reader) (*KeyPair, error) {
	pub, priv, err := box.GenerateKey(rand)
	if err != nil {
		return nil, err
	}
	return &KeyPair{Public: pub, Private: priv}, nil
}

// Pubkey is the hex form of the public key, used as the miner pubkey.
func (k *KeyPair) Pubkey() string {
	return hex.EncodeToString(k.Public[:])
}

// ParsePubkey decodes a hex miner pubkey into a box public key.
func ParsePubkey(pubkey string) (*[32]byte, error) {
	b, err := hex.DecodeString(pubkey)
	if err != nil || len(b) != 32 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPubkey, pubkey)
	}
	var key [32]byte
	copy(key[:], b)
	return &key, nil
}

// Encrypt seals msg for recipient. The random nonce is prepended to the ciphertext.
func Encrypt(rand io.Reader, msg []byte, recipient string, sender *KeyPair) ([]byte, error) {
	recipientKey, err := ParsePubkey(recipient)
	if err != nil {
		return nil, err
	}
	var nonce [nonceLength]byte
	if _, err := io.ReadFull(rand, nonce[:]); err != nil {
		return nil, err
	}
	return box.Seal(nonce[:], msg, &nonce, recipientKey, sender.Private), nil
}

// Decrypt opens a piece sealed by sender for the owner of recipient.
func Decrypt(ciphertext []byte, sender string, recipient *KeyPair) ([]byte, error) {
	senderKey, err := ParsePubkey(sender)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) <= nonceLength {
		return nil, ErrInvalidCiphertext
	}
	var nonce [nonceLength]byte
	copy(nonce[:], ciphertext[:nonceLength])
	msg, ok := box.Open(nil, ciphertext[nonceLength:], &nonce, senderKey, recipient.Private)
	if !ok {
		return nil, ErrInvalidCiphertext
	}
	return msg, nil
}
