// Copyright 2025 Nguyen Nhat Nguyen
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

package serde

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

var (
	_ BinarySerde = (*JsonSerde)(nil)
	_ BinarySerde = (*MsgpackSerde)(nil)
)

// structTag is read by both codecs, so a payload keeps its field names when a
// namespace switches format.
const structTag = "json"

type JsonSerde struct{}

func (*JsonSerde) SerializeBinary(value any) ([]byte, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("json encode %T: %w", value, err)
	}
	return data, nil
}

func (*JsonSerde) DeserializeBinary(data []byte, valuePtr any) error {
	if err := json.Unmarshal(data, valuePtr); err != nil {
		return fmt.Errorf("json decode into %T: %w", valuePtr, err)
	}
	return nil
}

// MsgpackSerde encodes with MessagePack, naming struct fields after their
// json tags.
type MsgpackSerde struct{}

func (*MsgpackSerde) SerializeBinary(value any) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.GetEncoder()
	defer msgpack.PutEncoder(enc)

	enc.Reset(&buf)
	enc.SetCustomStructTag(structTag)
	if err := enc.Encode(value); err != nil {
		return nil, fmt.Errorf("msgpack encode %T: %w", value, err)
	}
	return buf.Bytes(), nil
}

func (*MsgpackSerde) DeserializeBinary(data []byte, valuePtr any) error {
	dec := msgpack.GetDecoder()
	defer msgpack.PutDecoder(dec)

	dec.Reset(bytes.NewReader(data))
	dec.SetCustomStructTag(structTag)
	if err := dec.Decode(valuePtr); err != nil {
		return fmt.Errorf("msgpack decode into %T: %w", valuePtr, err)
	}
	return nil
}
