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
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"testing"

	"github.com/geid-rewards/geidpot/internal"
	"github.com/geid-rewards/geidpot/internal/testutil"
)

// Raw block recovered from the signature of the sample report with the
// embedded IAS root key
const sampleRecoveredHex = "78df518685fe0c99288f0a15dae5fdb36eabcb735082177fa28acb43db5e51f3" +
	"6da889b54f3fbfbcf174dbbce457b0f48416cfc33d6e9d773b0cc9b6527c84c7" +
	"c914ae982fa8dca86e0bcad2f14eb739f78666eb3928846b3717dde4812c5b6a" +
	"a5537e51c3740d8bd0d9b0c773a9c60a95a4150861eb063935b0cef1b185fe1b" +
	"e2712680b40dcc9629e8d1650e9fbff9f9d7d7ce072a6f9c07466b0c48faaab0" +
	"db1d078146addde2ee6c122d4d0969f39fba5deb3486e8d314f4208591858c88" +
	"b29b08bfcd71def4acf0783756186eb4b991802c04fc08bc73260eff5165a403" +
	"6eb8517a16081693672597f4b69e774917ec10d19d1f11b213b9ecd8b300ca46" +
	"856fbcf61c7058be15d916842e49cec408bfb497a950b7dd514afbf8146bf0d1" +
	"a8fea5ff1e6bb45244490855fb02346daffc22ec3714408d75d06ff633f49a3e" +
	"db658b172c392412535083f577ee0444988b7bb6a4c0298fa57de660349e44a7" +
	"ed08a0da747deadbb163ff72afb9602c024df06c86c3fb444c86b1301090cb5b"

func TestRecoverSignatureDigest(t *testing.T) {
	type args struct {
		signature []byte
		exponent  []byte
		modulus   []byte
	}
	tests := []struct {
		name string
		args args
		want []byte
	}{
		{
			name: "Textbook RSA",
			args: args{[]byte{0x0a, 0xe6}, []byte{0x11}, []byte{0x0c, 0xa1}},
			want: []byte{0x05, 0xac},
		},
		{
			name: "Textbook RSA Small Signature",
			args: args{[]byte{0x41}, []byte{0x11}, []byte{0x0c, 0xa1}},
			want: []byte{0x0a, 0xe6},
		},
		{
			name: "Leading Zeros Ignored",
			args: args{[]byte{0x00, 0x00, 0x41}, []byte{0x00, 0x11}, []byte{0x00, 0x0c, 0xa1}},
			want: []byte{0x0a, 0xe6},
		},
		{
			name: "Signature Larger Than Modulus",
			args: args{[]byte{0x0c, 0xe2}, []byte{0x11}, []byte{0x0c, 0xa1}},
			want: []byte{0x0a, 0xe6},
		},
		{
			name: "Exponent 3",
			args: args{[]byte{0x12, 0x34}, []byte{0x03}, []byte{0x01, 0x00, 0x01}},
			want: []byte{0xf5, 0xac},
		},
		{
			name: "Zero Signature",
			args: args{[]byte{0x00}, []byte{0x01, 0x00, 0x01}, []byte{0x0c, 0xa1}},
			want: []byte{},
		},
		{
			name: "Zero Modulus",
			args: args{[]byte{0x41}, []byte{0x11}, []byte{0x00}},
			want: []byte{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RecoverSignatureDigest(tt.args.signature, tt.args.exponent, tt.args.modulus)
			if !bytes.Equal(got, tt.want) {
				t.Errorf("RecoverSignatureDigest() = %x, want %x", got, tt.want)
			}
		})
	}
}

func TestRecoverSampleSignature(t *testing.T) {
	report, err := ParseAttestationReport([]byte(testutil.SampleReport))
	if err != nil {
		t.Fatalf("ParseAttestationReport() error = %v", err)
	}
	sig, err := report.Signature()
	if err != nil {
		t.Fatalf("Signature() error = %v", err)
	}

	anchor := IasRootTrustAnchor()
	if anchor.Size() != 384 {
		t.Errorf("Size() = %v, want 384", anchor.Size())
	}

	want, _ := hex.DecodeString(sampleRecoveredHex)
	for i := 0; i < 2; i++ {
		got := anchor.Recover(sig)
		if !bytes.Equal(got, want) {
			t.Fatalf("Recover() = %x, want %x", got, want)
		}
	}

	// The sample was signed by the report signing key, not the root key
	digest := report.BodyDigest()
	if err := anchor.VerifyDigest(sig, digest[:]); !errors.Is(err, ErrAttestationInvalid) {
		t.Errorf("VerifyDigest() error = %v, want %v", err, ErrAttestationInvalid)
	}
}

func TestVerifyDigest(t *testing.T) {
	key := testutil.SigningKey(t)
	anchor := TrustAnchorFromPublicKey(&key.PublicKey)

	body := testutil.SampleReportBody(t)
	report, err := ParseAttestationReport(testutil.Sign(t, key, body))
	if err != nil {
		t.Fatalf("ParseAttestationReport() error = %v", err)
	}
	sig, err := report.Signature()
	if err != nil {
		t.Fatalf("Signature() error = %v", err)
	}
	digest := sha256.Sum256(body)

	if err := anchor.VerifyDigest(sig, digest[:]); err != nil {
		t.Errorf("VerifyDigest() error = %v", err)
	}

	// Recovered block is the PKCS#1 v1.5 encoding of the digest
	block := anchor.Recover(sig)
	if len(block) != anchor.Size()-1 || block[0] != 0x01 {
		t.Errorf("Recover() = %x, want 01ff..", block)
	}
	if !bytes.HasSuffix(block, digest[:]) {
		t.Errorf("Recover() does not end with digest")
	}

	tampered := digest
	tampered[0] ^= 0x01
	if err := anchor.VerifyDigest(sig, tampered[:]); !errors.Is(err, ErrAttestationInvalid) {
		t.Errorf("VerifyDigest() tampered digest error = %v, want %v", err, ErrAttestationInvalid)
	}

	badSig := append([]byte(nil), sig...)
	badSig[len(badSig)-1] ^= 0x01
	if err := anchor.VerifyDigest(badSig, digest[:]); !errors.Is(err, ErrAttestationInvalid) {
		t.Errorf("VerifyDigest() tampered signature error = %v, want %v", err, ErrAttestationInvalid)
	}

	if err := anchor.VerifyDigest(sig, digest[:16]); !errors.Is(err, ErrAttestationInvalid) {
		t.Errorf("VerifyDigest() short digest error = %v, want %v", err, ErrAttestationInvalid)
	}
}

func TestParseTrustAnchor(t *testing.T) {
	key := testutil.SigningKey(t)

	p, err := internal.WritePublicKeyPem(&key.PublicKey)
	if err != nil {
		t.Fatalf("WritePublicKeyPem() error = %v", err)
	}
	anchor, err := ParseTrustAnchor(p)
	if err != nil {
		t.Fatalf("ParseTrustAnchor() error = %v", err)
	}
	if !bytes.Equal(anchor.Modulus, key.N.Bytes()) {
		t.Errorf("ParseTrustAnchor() modulus mismatch")
	}
	if !bytes.Equal(anchor.Exponent, []byte{0x01, 0x00, 0x01}) {
		t.Errorf("ParseTrustAnchor() exponent = %x, want 010001", anchor.Exponent)
	}

	if _, err := ParseTrustAnchor([]byte(base64.StdEncoding.EncodeToString([]byte("no key")))); err == nil {
		t.Errorf("ParseTrustAnchor() expected error for invalid data")
	}
}
