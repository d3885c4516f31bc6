// Package signer defines the contract every identity implementation in
// this module satisfies: the Key Manager's own secp256k1/schnorr signer,
// and any verify-only signer constructed from a peer's public key.
package signer

// I is satisfied by anything that can hold a keypair (or just a public
// key), sign, verify, and derive an ECDH shared secret with a peer's
// public key.
type I interface {
	// Generate creates a fresh random keypair.
	Generate() (err error)
	// InitSec initialises the signer from a raw 32-byte secret key.
	InitSec(sec []byte) (err error)
	// InitPub initialises a verify-only signer from a raw public key.
	InitPub(pub []byte) (err error)
	// Sec returns the raw secret key bytes, or nil if none is held.
	Sec() (b []byte)
	// Pub returns the raw public key bytes.
	Pub() (b []byte)
	// Sign signs msg and returns the signature.
	Sign(msg []byte) (sig []byte, err error)
	// Verify checks a signature over msg against the held public key.
	Verify(msg, sig []byte) (valid bool, err error)
	// ECDH derives a shared secret with a peer's raw public key bytes.
	ECDH(pubkeyBytes []byte) (secret []byte, err error)
	// Zero wipes the secret key material.
	Zero()
}
