// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package hostproto

import (
	"errors"
	"testing"
	"time"

	"github.com/bureau-foundation/river/lib/codec"
	"github.com/bureau-foundation/river/lib/identity"
	"github.com/bureau-foundation/river/lib/roomstate"
)

func newRoom(t *testing.T) (*roomstate.RoomState, roomstate.Parameters) {
	t.Helper()
	key, err := identity.GenerateSigningKey()
	if err != nil {
		t.Fatalf("GenerateSigningKey: %v", err)
	}
	state, params, err := roomstate.NewRoom(key, "lobby", "owner")
	if err != nil {
		t.Fatalf("NewRoom: %v", err)
	}
	delta, err := state.AuthorMessage(params, key, "hello", time.Unix(1_700_000_000, 0))
	if err != nil {
		t.Fatalf("AuthorMessage: %v", err)
	}
	if _, err := state.ApplyDelta(params, delta); err != nil {
		t.Fatalf("ApplyDelta: %v", err)
	}
	return state, params
}

func TestPutRoundTrip(t *testing.T) {
	state, params := newRoom(t)
	request, err := NewPut(params, state)
	if err != nil {
		t.Fatalf("NewPut: %v", err)
	}
	frame, err := request.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	decoded, err := DecodeRequest(frame)
	if err != nil {
		t.Fatalf("DecodeRequest: %v", err)
	}
	if decoded.ID != request.ID || decoded.Kind != Put || decoded.Key != params.Key() {
		t.Fatalf("decoded = %+v, want id %s put %s", decoded, request.ID, params.Key())
	}
	decodedParams, err := DecodeParameters(decoded.Parameters)
	if err != nil {
		t.Fatalf("DecodeParameters: %v", err)
	}
	decodedState, err := DecodeState(decoded.State)
	if err != nil {
		t.Fatalf("DecodeState: %v", err)
	}
	if err := decodedState.Verify(decodedParams); err != nil {
		t.Fatalf("decoded state does not verify: %v", err)
	}
	if len(decodedState.Messages) != 1 {
		t.Errorf("decoded messages = %d, want 1", len(decodedState.Messages))
	}
}

func TestRequestIDsAreUnique(t *testing.T) {
	var key roomstate.RoomKey
	if NewGet(key).ID == NewGet(key).ID {
		t.Fatal("two requests share an id")
	}
}

func TestDecodeResponseIgnoresUnknownFields(t *testing.T) {
	frame, err := codec.Marshal(map[int]any{
		1:  "req-1",
		2:  uint8(SubscribeResponse),
		3:  make([]byte, 32),
		6:  true,
		99: "from a newer host",
	})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	response, err := DecodeResponse(frame)
	if err != nil {
		t.Fatalf("DecodeResponse: %v", err)
	}
	if response.Kind != SubscribeResponse || !response.Accepted || response.RequestID != "req-1" {
		t.Errorf("response = %+v", response)
	}
}

func TestDecodeRejectsInvalidFrames(t *testing.T) {
	var key roomstate.RoomKey
	both := &Response{Kind: UpdateNotification, Key: key, State: []byte{1}, Delta: []byte{2}}
	bothFrame, _ := both.Encode()
	unknown := &Response{Kind: 42, Key: key}
	unknownFrame, _ := unknown.Encode()
	emptyGet := &Response{Kind: GetResponse, Key: key}
	emptyGetFrame, _ := emptyGet.Encode()

	tests := []struct {
		name  string
		frame []byte
	}{
		{"garbage", []byte{0xff, 0xff}},
		{"update with state and delta", bothFrame},
		{"unknown kind", unknownFrame},
		{"get without state", emptyGetFrame},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if _, err := DecodeResponse(test.frame); !errors.Is(err, ErrCodec) {
				t.Errorf("DecodeResponse = %v, want ErrCodec", err)
			}
		})
	}

	update := &Request{ID: "x", Kind: Update, Key: key}
	if err := update.Validate(); !errors.Is(err, ErrCodec) {
		t.Errorf("empty update Validate = %v, want ErrCodec", err)
	}
}

func TestDeltaUpdateRoundTrip(t *testing.T) {
	state, params := newRoom(t)
	delta := state.Delta(params, roomstate.StateSummary{})
	request, err := NewDeltaUpdate(params.Key(), delta)
	if err != nil {
		t.Fatalf("NewDeltaUpdate: %v", err)
	}
	if err := request.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	decoded, err := DecodeDelta(request.Delta)
	if err != nil {
		t.Fatalf("DecodeDelta: %v", err)
	}
	if len(decoded.Messages) != 1 || len(decoded.MemberInfo) != 1 {
		t.Errorf("decoded delta = %+v", decoded)
	}
}
