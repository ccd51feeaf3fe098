// Package attest builds and signs domain-separated attestations of
// contribution scores.
//
// An attestation is a typed-data structure hashed with keccak256 under a
// domain separator {name, version, chainId, verifyingContract} and signed
// with the evaluator's secp256k1 key. Verification recovers the signing
// address from the compact signature; the pipeline never submits an
// attestation whose recovered signer it cannot confirm itself.
package attest

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	secpecdsa "github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"golang.org/x/crypto/sha3"
)

// Type strings hashed into the typed-data encoding.
const (
	feedbackTypeDef = "ContributionFeedback(address contributor,string repo,string commitSha,uint256 score,bytes32 feedbackHash,uint256 timestamp,uint256 nonce)"
	domainTypeDef   = "EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"
)

// Domain separates attestations of one deployment from every other.
type Domain struct {
	Name              string
	Version           string
	ChainID           uint64
	VerifyingContract string
}

// Feedback is the attested statement of a contribution's score.
type Feedback struct {
	Contributor  string   `json:"contributor"` // 0x-prefixed recipient address
	Repo         string   `json:"repo"`
	CommitSHA    string   `json:"commit_sha"`
	Score        uint64   `json:"score"`
	FeedbackHash [32]byte `json:"-"`
	Timestamp    uint64   `json:"timestamp"`
	Nonce        uint64   `json:"nonce"`
}

// NewFeedback assembles a feedback struct with its content hash filled in.
func NewFeedback(contributor, repo, commitSHA string, score, timestamp, nonce uint64) Feedback {
	return Feedback{
		Contributor:  contributor,
		Repo:         repo,
		CommitSHA:    commitSHA,
		Score:        score,
		FeedbackHash: FeedbackHash(repo, commitSHA, score, timestamp),
		Timestamp:    timestamp,
		Nonce:        nonce,
	}
}

// FeedbackHash computes the content hash over {repo, commitSha, score,
// timestamp} with length-prefixed string encoding, so tampering with any
// field invalidates the hash independently of the signature.
func FeedbackHash(repo, commitSHA string, score, timestamp uint64) [32]byte {
	h := sha3.NewLegacyKeccak256()
	writeLengthPrefixed(h, []byte(repo))
	writeLengthPrefixed(h, []byte(commitSHA))
	writeUint64(h, score)
	writeUint64(h, timestamp)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// Signer signs and verifies contribution feedback. The evaluator key is
// injected at construction and never exposed or logged.
type Signer struct {
	key       *secp256k1.PrivateKey
	evaluator string
	domain    Domain
	domainSep [32]byte
}

// NewSigner creates a signer from a hex-encoded evaluator private key and
// the attestation domain.
func NewSigner(privateKeyHex string, domain Domain) (*Signer, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("decode evaluator key: %w", ErrInvalidKey)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("evaluator key must be 32 bytes, got %d: %w", len(raw), ErrInvalidKey)
	}

	key := secp256k1.PrivKeyFromBytes(raw)
	if key.Key.IsZero() {
		return nil, fmt.Errorf("evaluator key is zero: %w", ErrInvalidKey)
	}

	sep, err := domainSeparator(domain)
	if err != nil {
		return nil, err
	}

	return &Signer{
		key:       key,
		evaluator: AddressFromPubKey(key.PubKey()),
		domain:    domain,
		domainSep: sep,
	}, nil
}

// Evaluator returns the 0x-prefixed address corresponding to the signing key.
func (s *Signer) Evaluator() string { return s.evaluator }

// Domain returns the attestation domain.
func (s *Signer) Domain() Domain { return s.domain }

// Digest computes the domain-separated typed-data digest of fb.
func (s *Signer) Digest(fb Feedback) ([32]byte, error) {
	structHash, err := hashFeedback(fb)
	if err != nil {
		return [32]byte{}, err
	}

	h := sha3.NewLegacyKeccak256()
	h.Write([]byte{0x19, 0x01})
	h.Write(s.domainSep[:])
	h.Write(structHash[:])
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out, nil
}

// Sign produces a 65-byte compact recoverable signature over fb.
func (s *Signer) Sign(fb Feedback) ([]byte, error) {
	digest, err := s.Digest(fb)
	if err != nil {
		return nil, err
	}
	return secpecdsa.SignCompact(s.key, digest[:], false), nil
}

// RecoverSigner recovers the 0x-prefixed address that produced sig over fb.
func (s *Signer) RecoverSigner(fb Feedback, sig []byte) (string, error) {
	digest, err := s.Digest(fb)
	if err != nil {
		return "", err
	}
	pub, _, err := secpecdsa.RecoverCompact(sig, digest[:])
	if err != nil {
		return "", fmt.Errorf("recover signer: %w", err)
	}
	return AddressFromPubKey(pub), nil
}

// Verify checks that fb's content hash is intact and that sig recovers the
// evaluator address. Any mismatch is fatal for submission.
func (s *Signer) Verify(fb Feedback, sig []byte) error {
	if FeedbackHash(fb.Repo, fb.CommitSHA, fb.Score, fb.Timestamp) != fb.FeedbackHash {
		return fmt.Errorf("feedback hash does not cover fields: %w", ErrSignerMismatch)
	}

	recovered, err := s.RecoverSigner(fb, sig)
	if err != nil {
		return fmt.Errorf("%v: %w", err, ErrSignerMismatch)
	}
	if !strings.EqualFold(recovered, s.evaluator) {
		return fmt.Errorf("recovered %s, expected %s: %w", recovered, s.evaluator, ErrSignerMismatch)
	}
	return nil
}

// AddressFromPubKey derives the 0x-prefixed account address from an
// uncompressed secp256k1 public key: keccak256(pubkey)[12:].
func AddressFromPubKey(pub *secp256k1.PublicKey) string {
	ser := pub.SerializeUncompressed()
	h := sha3.NewLegacyKeccak256()
	h.Write(ser[1:]) // drop the 0x04 prefix byte
	sum := h.Sum(nil)
	return "0x" + hex.EncodeToString(sum[12:])
}

func hashFeedback(fb Feedback) ([32]byte, error) {
	contributor, err := encodeAddress(fb.Contributor)
	if err != nil {
		return [32]byte{}, err
	}

	h := sha3.NewLegacyKeccak256()
	h.Write(keccak([]byte(feedbackTypeDef)))
	h.Write(contributor[:])
	h.Write(keccak([]byte(fb.Repo)))
	h.Write(keccak([]byte(fb.CommitSHA)))
	h.Write(encodeUint256(fb.Score))
	h.Write(fb.FeedbackHash[:])
	h.Write(encodeUint256(fb.Timestamp))
	h.Write(encodeUint256(fb.Nonce))
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out, nil
}

func domainSeparator(d Domain) ([32]byte, error) {
	contract, err := encodeAddress(d.VerifyingContract)
	if err != nil {
		return [32]byte{}, err
	}

	h := sha3.NewLegacyKeccak256()
	h.Write(keccak([]byte(domainTypeDef)))
	h.Write(keccak([]byte(d.Name)))
	h.Write(keccak([]byte(d.Version)))
	h.Write(encodeUint256(d.ChainID))
	h.Write(contract[:])
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out, nil
}

func keccak(data []byte) []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write(data)
	return h.Sum(nil)
}

// encodeAddress left-pads a 20-byte hex address into a 32-byte word.
func encodeAddress(addr string) ([32]byte, error) {
	var out [32]byte
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.ToLower(addr), "0x"))
	if err != nil {
		return out, fmt.Errorf("address %q: %w", addr, ErrInvalidAddress)
	}
	if len(raw) != 20 {
		return out, fmt.Errorf("address %q must be 20 bytes: %w", addr, ErrInvalidAddress)
	}
	copy(out[12:], raw)
	return out, nil
}

func encodeUint256(v uint64) []byte {
	out := make([]byte, 32)
	binary.BigEndian.PutUint64(out[24:], v)
	return out
}

func writeLengthPrefixed(h interface{ Write([]byte) (int, error) }, data []byte) {
	writeUint64(h, uint64(len(data)))
	h.Write(data)
}

func writeUint64(h interface{ Write([]byte) (int, error) }, v uint64) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	h.Write(buf[:])
}
