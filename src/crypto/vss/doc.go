// Package vss implements the threshold secret-sharing scheme used by miners
// to reveal each other's committed in-values.
//
// A miner splits its in-value into one share per peer with Shamir's scheme
// over the secp256k1 group order, encrypts each share for its addressee with
// an ECDH-derived AES-GCM key, and publishes the encrypted pieces. One round
// later, once a super-majority of peers has published their decryptions, the
// original in-value can be reconstructed by anyone. The reconstruction is
// verifiable: a candidate in-value is only accepted if it hashes to the
// out-value the miner committed to.
package vss
