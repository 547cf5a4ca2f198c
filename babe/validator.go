// Package babe implements the BABE block-authoring lottery: BlockValidator
// verifies a header's consensus seal before execution, and BabeProducer
// drives the per-slot authoring loop.
package babe

import (
	"math"
	"math/big"

	"github.com/cockroachdb/errors"

	"github.com/vanguardchain/vanguard/epoch"
	"github.com/vanguardchain/vanguard/ports"
	"github.com/vanguardchain/vanguard/types"
)

// two128 is 2^128, the fixed-point scale BABE expresses thresholds in.
var two128 = new(big.Int).Lsh(big.NewInt(1), 128)

// Validator checks a block header's BABE seal: slot/authority/VRF/threshold,
// per §4.4.
type Validator struct {
	epochs   *epoch.Store
	crypto   ports.Crypto
	// C is the BABE block constant (0, 1], the per-slot leadership
	// probability at full weight share.
	C float64
	// EpochLength is the number of slots per epoch, used to derive the
	// epoch index from a slot via the configured Strategy.
	EpochLength uint64
}

// NewValidator constructs a Validator over the given epoch store and
// crypto oracle.
func NewValidator(epochs *epoch.Store, crypto ports.Crypto, c float64, epochLength uint64) *Validator {
	return &Validator{epochs: epochs, crypto: crypto, C: c, EpochLength: epochLength}
}

// Validate verifies header's trailing seal and BABE pre-digest. Returns the
// pre-digest on success so the caller can strip it before execution.
func (v *Validator) Validate(header *types.Header) (types.BABEPreDigest, error) {
	preDigest, ok := extractPreDigest(header)
	if !ok {
		return types.BABEPreDigest{}, errors.Wrap(types.ErrInvalidSeal, "babe: missing pre-runtime digest")
	}
	seal, ok := header.Seal()
	if !ok {
		return types.BABEPreDigest{}, errors.Wrap(types.ErrInvalidSeal, "babe: header carries no seal")
	}

	epochIndex, err := v.epochs.IndexForSlot(preDigest.Slot, v.EpochLength)
	if err != nil {
		return types.BABEPreDigest{}, err
	}
	descriptor, err := v.epochs.GetEpoch(epochIndex)
	if err != nil {
		return types.BABEPreDigest{}, err
	}
	if int(preDigest.AuthorityIndex) >= len(descriptor.Authorities) {
		return types.BABEPreDigest{}, errors.Wrap(types.ErrInvalidSeal, "babe: authority index out of range")
	}
	authority := descriptor.Authorities[preDigest.AuthorityIndex]

	sealMsg := header.WithoutSeal().Hash()
	if !v.crypto.VerifySignature(authority.ID, sealMsg.Bytes(), seal.Data) {
		return types.BABEPreDigest{}, types.ErrInvalidSignature
	}

	vrfMsg := vrfTranscript(descriptor.Randomness, preDigest.Slot, epochIndex)
	if !v.crypto.VRFVerify(authority.ID, vrfMsg, preDigest.VRFOutput, preDigest.VRFProof) {
		return types.BABEPreDigest{}, types.ErrInvalidVRF
	}

	total := totalWeight(descriptor.Authorities)
	t := threshold(v.C, authority.Weight, total)
	if outputInt(preDigest.VRFOutput).Cmp(t) >= 0 {
		return types.BABEPreDigest{}, types.ErrThresholdMissed
	}

	return preDigest, nil
}

func extractPreDigest(header *types.Header) (types.BABEPreDigest, bool) {
	for _, d := range header.PreSealDigests() {
		if d.Kind == types.DigestPreRuntime && d.Engine == types.EngineBABE {
			pd, err := types.DecodeBABEPreDigest(d.Data)
			if err != nil {
				return types.BABEPreDigest{}, false
			}
			return pd, true
		}
	}
	return types.BABEPreDigest{}, false
}

func vrfTranscript(randomness [32]byte, slot types.SlotNumber, epochIndex uint64) []byte {
	buf := make([]byte, 0, 32+8+8)
	buf = append(buf, randomness[:]...)
	buf = appendU64(buf, uint64(slot))
	buf = appendU64(buf, epochIndex)
	return buf
}

func appendU64(buf []byte, v uint64) []byte {
	var b [8]byte
	for i := 7; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
	return append(buf, b[:]...)
}

func totalWeight(authorities []types.Authority) uint64 {
	var total uint64
	for _, a := range authorities {
		total += a.Weight
	}
	return total
}

// threshold computes T_i = floor(2^128 * (1 - (1-c)^(w_i/W))).
func threshold(c float64, w, total uint64) *big.Int {
	if total == 0 {
		return big.NewInt(0)
	}
	p := 1 - math.Pow(1-c, float64(w)/float64(total))
	f := new(big.Float).Mul(new(big.Float).SetInt(two128), big.NewFloat(p))
	out, _ := f.Int(nil)
	return out
}

// outputInt interprets a VRF output as a big-endian unsigned integer in the
// same 2^128 domain the threshold is expressed in (the low 16 bytes).
func outputInt(output [32]byte) *big.Int {
	return new(big.Int).SetBytes(output[16:])
}
