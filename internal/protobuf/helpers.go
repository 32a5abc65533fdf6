// Copyright Project Helmsman Authors
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

// Package protobuf provides helpers for constructing protobuf values.
package protobuf

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/anypb"
	"google.golang.org/protobuf/types/known/durationpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// AnyTypeURLPrefix prefixes every message name packed into an Any.
const AnyTypeURLPrefix = "type.googleapis.com/"

// MarshalAny packs a message into an Any using deterministic marshaling,
// so identical inputs always produce identical bytes. anypb.New does not
// guarantee this for messages containing maps.
func MarshalAny(msg proto.Message) (*anypb.Any, error) {
	if msg == nil {
		return nil, fmt.Errorf("cannot marshal nil message")
	}
	b, err := proto.MarshalOptions{Deterministic: true}.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshaling %s: %w", msg.ProtoReflect().Descriptor().FullName(), err)
	}
	return &anypb.Any{
		TypeUrl: AnyTypeURLPrefix + string(msg.ProtoReflect().Descriptor().FullName()),
		Value:   b,
	}, nil
}

// MustMarshalAny is MarshalAny for statically-known-good messages.
func MustMarshalAny(msg proto.Message) *anypb.Any {
	a, err := MarshalAny(msg)
	if err != nil {
		panic(err.Error())
	}
	return a
}

// UInt32 wraps a uint32 in a UInt32Value.
func UInt32(val uint32) *wrapperspb.UInt32Value {
	return wrapperspb.UInt32(val)
}

// UInt32OrNil wraps a uint32 in a UInt32Value, or returns nil for zero so
// the field is omitted from the wire form.
func UInt32OrNil(val uint32) *wrapperspb.UInt32Value {
	if val == 0 {
		return nil
	}
	return wrapperspb.UInt32(val)
}

// Bool wraps a bool in a BoolValue.
func Bool(val bool) *wrapperspb.BoolValue {
	return wrapperspb.Bool(val)
}

// Duration converts a time.Duration into a durationpb.Duration.
func Duration(d time.Duration) *durationpb.Duration {
	return durationpb.New(d)
}
