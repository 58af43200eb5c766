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

package internal

import (
	"bytes"
	"crypto"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
)

// ParseCert parses a certificate from PEM or DER encoded data into an X.509 certificate
func ParseCert(data []byte) (*x509.Certificate, error) {
	input := data

	block, _ := pem.Decode(data)
	if block != nil {
		input = block.Bytes
	}

	cert, err := x509.ParseCertificate(input)
	if err != nil {
		return nil, fmt.Errorf("failed to parse x509 Certificate: %v", err)
	}

	return cert, nil
}

// ParsePublicKey extracts a public key from PEM or DER encoded data. Accepted are
// X.509 certificates, PKIX public keys and PKCS#1 RSA public keys. For PEM input,
// the first block is used
func ParsePublicKey(data []byte) (crypto.PublicKey, error) {
	input := data
	blockType := ""

	block, _ := pem.Decode(data)
	if block != nil {
		input = block.Bytes
		blockType = block.Type
	}

	switch blockType {
	case "CERTIFICATE":
		cert, err := ParseCert(input)
		if err != nil {
			return nil, err
		}
		return cert.PublicKey, nil
	case "PUBLIC KEY":
		return x509.ParsePKIXPublicKey(input)
	case "RSA PUBLIC KEY":
		return x509.ParsePKCS1PublicKey(input)
	case "":
		// DER: try all known encodings
		if cert, err := ParseCert(input); err == nil {
			return cert.PublicKey, nil
		}
		if key, err := x509.ParsePKIXPublicKey(input); err == nil {
			return key, nil
		}
		if key, err := x509.ParsePKCS1PublicKey(input); err == nil {
			return key, nil
		}
		return nil, errors.New("data is neither a certificate nor a public key")
	default:
		return nil, fmt.Errorf("unsupported PEM block type %q", blockType)
	}
}

func WritePublicKeyPem(key crypto.PublicKey) ([]byte, error) {
	pk, err := x509.MarshalPKIXPublicKey(key)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal PKIX public key")
	}
	p := &bytes.Buffer{}
	pem.Encode(p, &pem.Block{Type: "PUBLIC KEY", Bytes: pk})
	return p.Bytes(), nil
}
