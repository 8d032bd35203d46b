// Package keys implements the public key cryptography used throughout the
// consensus core.
//
// Every miner owns a cryptographic key-pair. The public key identifies the
// miner in the round schedule, while the private key signs commitments and
// decrypts the secret-sharing pieces addressed to the miner.
//
// We use elliptic curve cryptography (ECDSA) with the secp256k1 curve because
// it is also used by Bitcoin and Ethereum, which means existing wallet keys
// can operate a miner.
package keys
