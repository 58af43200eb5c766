// Copyright (c) 2025 Fraunhofer AISEC
// Fraunhofer-Gesellschaft zur Foerderung der angewandten Forschung e.V.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package attestationreport

import (
	"crypto/rsa"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"math/big"

	"github.com/geid-rewards/geidpot/internal"
)

// Intel IAS root CA public key
const (
	iasRootModulusHex = "9F3C647EB5773CBB512D2732C0D7415EBB55A0FA9EDE2E649199E6821DB910D5" +
		"3177370977466A6A5E4786CCD2DDEBD4149D6A2F6325529DD10CC98737B0779C" +
		"1A07E29C47A1AE004948476C489F45A5A15D7AC8ECC6ACC645ADB43D87679DF5" +
		"9C093BC5A2E9696C5478541B979E754B573914BE55D32FF4C09DDF27219934CD" +
		"990527B3F92ED78FBF29246ABECB71240EF39C2D7107B447545A7FFB10EB060A" +
		"68A98580219E36910952683892D6A5E2A80803193E407531404E36B315623799" +
		"AA825074409754A2DFE8F5AFD5FE631E1FC2AF3808906F28A790D9DD9FE06093" +
		"9B125790C5805D037DF56A99531B96DE69DE33ED226CC1207D1042B5C9AB7F40" +
		"4FC711C0FE4769FB9578B1DC0EC469EA1A25E0FF9914886EF2699B235BB4847D" +
		"D6FF40B606E6170793C2FB98B314587F9CFD257362DFEAB10B3BD2D97673A1A4" +
		"BD44C453AAF47FC1F2D3D0F384F74A06F89C089F0DA6CDB7FCEEE8C9821A8E54" +
		"F25C0416D18C46839A5F8012FBDD3DC74D256279ADC2C0D55AFF6F0622425D1B"
	iasRootExponentHex = "010001"
)

// DER encoded DigestInfo prefix for SHA-256 (RFC 8017 section 9.2)
var sha256DigestInfoPrefix = []byte{
	0x30, 0x31, 0x30, 0x0d, 0x06, 0x09, 0x60, 0x86, 0x48, 0x01,
	0x65, 0x03, 0x04, 0x02, 0x01, 0x05, 0x00, 0x04, 0x20,
}

// RecoverSignatureDigest computes signature^exponent mod modulus on unsigned
// big-endian integers and returns the result big-endian without leading zeros.
// No padding is checked or removed. A zero modulus yields an empty result
func RecoverSignatureDigest(signature, exponent, modulus []byte) []byte {
	m := new(big.Int).SetBytes(modulus)
	if m.Sign() == 0 {
		return []byte{}
	}
	s := new(big.Int).SetBytes(signature)
	e := new(big.Int).SetBytes(exponent)
	return new(big.Int).Exp(s, e, m).Bytes()
}

// TrustAnchor is the RSA public key IAS report signatures are checked against
type TrustAnchor struct {
	Modulus  []byte
	Exponent []byte
}

// IasRootTrustAnchor returns the embedded Intel IAS root key
func IasRootTrustAnchor() TrustAnchor {
	m, _ := hex.DecodeString(iasRootModulusHex)
	e, _ := hex.DecodeString(iasRootExponentHex)
	return TrustAnchor{
		Modulus:  m,
		Exponent: e,
	}
}

func TrustAnchorFromPublicKey(pub *rsa.PublicKey) TrustAnchor {
	return TrustAnchor{
		Modulus:  pub.N.Bytes(),
		Exponent: big.NewInt(int64(pub.E)).Bytes(),
	}
}

// ParseTrustAnchor reads an RSA trust anchor from a PEM or DER encoded
// certificate or public key, e.g. the IAS Report Signing Certificate
func ParseTrustAnchor(data []byte) (TrustAnchor, error) {
	key, err := internal.ParsePublicKey(data)
	if err != nil {
		return TrustAnchor{}, fmt.Errorf("failed to parse trust anchor: %w", err)
	}
	pub, ok := key.(*rsa.PublicKey)
	if !ok {
		return TrustAnchor{}, fmt.Errorf("unsupported trust anchor key type %T", key)
	}
	return TrustAnchorFromPublicKey(pub), nil
}

// Size returns the modulus length in bytes
func (t TrustAnchor) Size() int {
	return (new(big.Int).SetBytes(t.Modulus).BitLen() + 7) / 8
}

// Recover returns the raw signature block for the signature
func (t TrustAnchor) Recover(signature []byte) []byte {
	return RecoverSignatureDigest(signature, t.Exponent, t.Modulus)
}

// VerifyDigest checks that the recovered signature block is the PKCS#1 v1.5
// encoding of the SHA-256 digest
func (t TrustAnchor) VerifyDigest(signature, digest []byte) error {
	k := t.Size()
	expected, err := encodePkcs1v15Sha256(digest, k)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAttestationInvalid, err)
	}

	recovered := t.Recover(signature)
	if len(recovered) > k {
		return fmt.Errorf("%w: recovered block exceeds modulus size", ErrAttestationInvalid)
	}
	block := make([]byte, k)
	copy(block[k-len(recovered):], recovered)

	log.Tracef("Recovered signature block: %v", hex.EncodeToString(block))

	if subtle.ConstantTimeCompare(block, expected) != 1 {
		return fmt.Errorf("%w: report signature does not match report digest", ErrAttestationInvalid)
	}
	return nil
}

// encodePkcs1v15Sha256 returns EMSA-PKCS1-v1_5 (RFC 8017 section 9.2):
// 0x00 || 0x01 || 0xff.. || 0x00 || DigestInfo || digest
func encodePkcs1v15Sha256(digest []byte, k int) ([]byte, error) {
	if len(digest) != 32 {
		return nil, fmt.Errorf("invalid SHA-256 digest length %v", len(digest))
	}
	tLen := len(sha256DigestInfoPrefix) + len(digest)
	if k < tLen+11 {
		return nil, fmt.Errorf("modulus too short (%v bytes)", k)
	}
	em := make([]byte, k)
	em[1] = 0x01
	for i := 2; i < k-tLen-1; i++ {
		em[i] = 0xff
	}
	copy(em[k-tLen:], sha256DigestInfoPrefix)
	copy(em[k-len(digest):], digest)
	return em, nil
}
