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
	"github.com/fxamacker/cbor/v2"
)

// Core deterministic encoding, so that equal records always produce
// equal stored bytes
var cborEncMode, _ = cbor.CoreDetEncOptions().EncMode()

type CborSerializer struct{}

func (s CborSerializer) String() string {
	return "CBOR"
}

func (s CborSerializer) Marshal(v any) ([]byte, error) {
	log.Tracef("Marshalling data using %v serialization", s.String())
	return cborEncMode.Marshal(v)
}

func (s CborSerializer) Unmarshal(data []byte, v any) error {
	log.Tracef("Unmarshalling data using %v serialization", s.String())
	return cbor.Unmarshal(data, v)
}
