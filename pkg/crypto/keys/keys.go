// Package keys implements a secp256k1/BIP-340 signer.I built on the
// upstream decred secp256k1 library.
package keys

import (
	"crypto/rand"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/schnorr"

	"relaycap.dev/pkg/interfaces/signer"
)

// Signer implements signer.I over secp256k1 with BIP-340 schnorr
// signatures, the identity primitive every provider and this aggregator
// itself use.
type Signer struct {
	sec *secp256k1.PrivateKey
	pub *secp256k1.PublicKey
	skb []byte
	pkb []byte
}

var _ signer.I = (*Signer)(nil)

// Generate creates a fresh random keypair.
func (s *Signer) Generate() (err error) {
	var skb [32]byte
	if _, err = rand.Read(skb[:]); err != nil {
		return err
	}
	return s.InitSec(skb[:])
}

// InitSec initialises the signer from a raw 32-byte secret key.
func (s *Signer) InitSec(sec []byte) (err error) {
	if len(sec) != 32 {
		return fmt.Errorf("keys: secret key must be 32 bytes, got %d", len(sec))
	}
	s.skb = append([]byte(nil), sec...)
	s.sec = secp256k1.PrivKeyFromBytes(sec)
	s.pub = s.sec.PubKey()
	s.pkb = schnorrPubBytes(s.pub)
	return nil
}

// InitPub initialises a verify-only signer from a raw 32-byte BIP-340
// public key.
func (s *Signer) InitPub(pub []byte) (err error) {
	parsed, err := schnorr.ParsePubKey(pub)
	if err != nil {
		return fmt.Errorf("keys: parse pubkey: %w", err)
	}
	s.pub = parsed
	s.pkb = append([]byte(nil), pub...)
	return nil
}

// Sec returns the raw secret key bytes, or nil if none is held.
func (s *Signer) Sec() []byte {
	if s == nil {
		return nil
	}
	return s.skb
}

// Pub returns the raw 32-byte BIP-340 public key.
func (s *Signer) Pub() []byte {
	if s == nil {
		return nil
	}
	return s.pkb
}

// Sign signs msg with BIP-340 schnorr. Requires an initialised secret key.
func (s *Signer) Sign(msg []byte) (sig []byte, err error) {
	if s.sec == nil {
		return nil, fmt.Errorf("keys: signer has no secret key")
	}
	si, err := schnorr.Sign(s.sec, msg)
	if err != nil {
		return nil, err
	}
	return si.Serialize(), nil
}

// Verify checks a BIP-340 schnorr signature over msg against the held
// public key.
func (s *Signer) Verify(msg, sig []byte) (valid bool, err error) {
	if s.pub == nil {
		return false, fmt.Errorf("keys: signer has no public key")
	}
	si, err := schnorr.ParseSignature(sig)
	if err != nil {
		return false, fmt.Errorf("keys: parse signature: %w", err)
	}
	return si.Verify(msg, s.pub), nil
}

// ECDH derives a shared secret with a peer's raw 32-byte public key. The
// peer key is assumed even-y (BIP-340 convention) and reconstructed with
// the 0x02 prefix before the standard ECDH point-multiply.
func (s *Signer) ECDH(pubkeyBytes []byte) (secret []byte, err error) {
	if s.sec == nil {
		return nil, fmt.Errorf("keys: signer has no secret key")
	}
	compressed := append([]byte{0x02}, pubkeyBytes...)
	pub, err := secp256k1.ParsePubKey(compressed)
	if err != nil {
		return nil, fmt.Errorf("keys: parse peer pubkey: %w", err)
	}
	var point secp256k1.JacobianPoint
	pub.AsJacobian(&point)
	var result secp256k1.JacobianPoint
	secp256k1.ScalarMultNonConst(&s.sec.Key, &point, &result)
	result.ToAffine()
	x := result.X.Bytes()
	return x[:], nil
}

// Zero wipes the secret key material.
func (s *Signer) Zero() {
	if s == nil {
		return
	}
	if s.sec != nil {
		s.sec.Zero()
	}
	for i := range s.skb {
		s.skb[i] = 0
	}
}

func schnorrPubBytes(pub *secp256k1.PublicKey) []byte {
	b := pub.SerializeCompressed()
	return b[1:]
}
