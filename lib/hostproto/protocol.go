// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package hostproto is the wire format between a River client and the
// network host that stores and relays room state.
//
// The client sends [Request] frames and the host answers with
// [Response] frames; both are single CBOR values, one per transport
// message. Every request carries a fresh request id, echoed by the
// responses it causes. UpdateNotification frames are unsolicited: the
// host pushes them for every room the client subscribed to.
//
// Room payloads (State, Delta) are themselves CBOR-encoded
// roomstate.RoomState and roomstate.StateDelta values, carried as raw
// bytes so a host can relay them without decoding.
package hostproto

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/bureau-foundation/river/lib/codec"
	"github.com/bureau-foundation/river/lib/roomstate"
)

// ErrCodec wraps every failure to decode a frame or its payload.
var ErrCodec = errors.New("hostproto: malformed frame")

// RequestKind is the operation a Request asks for.
type RequestKind uint8

const (
	// Put publishes a full room state together with its parameters.
	Put RequestKind = iota + 1
	// Get fetches the current state of a room.
	Get
	// Subscribe asks for UpdateNotification frames for a room.
	Subscribe
	// Update publishes a delta or full state to an existing room.
	Update
)

func (k RequestKind) String() string {
	switch k {
	case Put:
		return "put"
	case Get:
		return "get"
	case Subscribe:
		return "subscribe"
	case Update:
		return "update"
	default:
		return fmt.Sprintf("request(%d)", uint8(k))
	}
}

// ResponseKind is the type of a Response frame.
type ResponseKind uint8

const (
	PutResponse ResponseKind = iota + 1
	GetResponse
	SubscribeResponse
	UpdateResponse
	// UpdateNotification is pushed by the host for subscribed rooms.
	UpdateNotification
	// ErrorResponse reports that the request named by RequestID failed.
	ErrorResponse
)

func (k ResponseKind) String() string {
	switch k {
	case PutResponse:
		return "put-response"
	case GetResponse:
		return "get-response"
	case SubscribeResponse:
		return "subscribe-response"
	case UpdateResponse:
		return "update-response"
	case UpdateNotification:
		return "update-notification"
	case ErrorResponse:
		return "error"
	default:
		return fmt.Sprintf("response(%d)", uint8(k))
	}
}

// Request is a client-to-host frame.
type Request struct {
	ID         string            `cbor:"1,keyasint"`
	Kind       RequestKind       `cbor:"2,keyasint"`
	Key        roomstate.RoomKey `cbor:"3,keyasint"`
	Parameters []byte            `cbor:"4,keyasint,omitempty"`
	State      []byte            `cbor:"5,keyasint,omitempty"`
	Delta      []byte            `cbor:"6,keyasint,omitempty"`
}

// Response is a host-to-client frame.
type Response struct {
	RequestID string            `cbor:"1,keyasint,omitempty"`
	Kind      ResponseKind      `cbor:"2,keyasint"`
	Key       roomstate.RoomKey `cbor:"3,keyasint"`
	State     []byte            `cbor:"4,keyasint,omitempty"`
	Delta     []byte            `cbor:"5,keyasint,omitempty"`
	Accepted  bool              `cbor:"6,keyasint,omitempty"`
	Message   string            `cbor:"7,keyasint,omitempty"`
}

func newRequest(kind RequestKind, key roomstate.RoomKey) *Request {
	return &Request{ID: uuid.NewString(), Kind: kind, Key: key}
}

// NewPut builds a Put for the given room.
func NewPut(params roomstate.Parameters, state *roomstate.RoomState) (*Request, error) {
	encodedParams, err := codec.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("hostproto: encoding parameters: %w", err)
	}
	encodedState, err := codec.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("hostproto: encoding state: %w", err)
	}
	request := newRequest(Put, params.Key())
	request.Parameters = encodedParams
	request.State = encodedState
	return request, nil
}

// NewGet builds a Get for key.
func NewGet(key roomstate.RoomKey) *Request {
	return newRequest(Get, key)
}

// NewSubscribe builds a Subscribe for key.
func NewSubscribe(key roomstate.RoomKey) *Request {
	return newRequest(Subscribe, key)
}

// NewDeltaUpdate builds an Update carrying a delta.
func NewDeltaUpdate(key roomstate.RoomKey, delta *roomstate.StateDelta) (*Request, error) {
	encoded, err := codec.Marshal(delta)
	if err != nil {
		return nil, fmt.Errorf("hostproto: encoding delta: %w", err)
	}
	request := newRequest(Update, key)
	request.Delta = encoded
	return request, nil
}

// NewStateUpdate builds an Update carrying a full state.
func NewStateUpdate(key roomstate.RoomKey, state *roomstate.RoomState) (*Request, error) {
	encoded, err := codec.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("hostproto: encoding state: %w", err)
	}
	request := newRequest(Update, key)
	request.State = encoded
	return request, nil
}

// Validate checks the fields required by the request kind.
func (r *Request) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("%w: request without id", ErrCodec)
	}
	switch r.Kind {
	case Put:
		if len(r.Parameters) == 0 || len(r.State) == 0 {
			return fmt.Errorf("%w: put needs parameters and state", ErrCodec)
		}
	case Get, Subscribe:
	case Update:
		if (len(r.State) == 0) == (len(r.Delta) == 0) {
			return fmt.Errorf("%w: update needs exactly one of state or delta", ErrCodec)
		}
	default:
		return fmt.Errorf("%w: unknown request kind %d", ErrCodec, r.Kind)
	}
	return nil
}

// Validate checks the fields required by the response kind.
func (r *Response) Validate() error {
	switch r.Kind {
	case PutResponse, SubscribeResponse, UpdateResponse, ErrorResponse:
	case GetResponse:
		if len(r.State) == 0 {
			return fmt.Errorf("%w: get response without state", ErrCodec)
		}
	case UpdateNotification:
		if (len(r.State) == 0) == (len(r.Delta) == 0) {
			return fmt.Errorf("%w: update notification needs exactly one of state or delta", ErrCodec)
		}
	default:
		return fmt.Errorf("%w: unknown response kind %d", ErrCodec, r.Kind)
	}
	return nil
}

// Encode returns the frame bytes of a request.
func (r *Request) Encode() ([]byte, error) {
	return codec.Marshal(r)
}

// Encode returns the frame bytes of a response.
func (r *Response) Encode() ([]byte, error) {
	return codec.Marshal(r)
}

// DecodeRequest parses and validates a request frame.
func DecodeRequest(frame []byte) (*Request, error) {
	var request Request
	if err := codec.Unmarshal(frame, &request); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCodec, err)
	}
	if err := request.Validate(); err != nil {
		return nil, err
	}
	return &request, nil
}

// DecodeResponse parses and validates a response frame.
func DecodeResponse(frame []byte) (*Response, error) {
	var response Response
	if err := codec.Unmarshal(frame, &response); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCodec, err)
	}
	if err := response.Validate(); err != nil {
		return nil, err
	}
	return &response, nil
}

// DecodeState decodes a State payload.
func DecodeState(payload []byte) (*roomstate.RoomState, error) {
	var state roomstate.RoomState
	if err := codec.Unmarshal(payload, &state); err != nil {
		return nil, fmt.Errorf("%w: room state: %v", ErrCodec, err)
	}
	return &state, nil
}

// DecodeDelta decodes a Delta payload.
func DecodeDelta(payload []byte) (*roomstate.StateDelta, error) {
	var delta roomstate.StateDelta
	if err := codec.Unmarshal(payload, &delta); err != nil {
		return nil, fmt.Errorf("%w: room delta: %v", ErrCodec, err)
	}
	return &delta, nil
}

// DecodeParameters decodes a Parameters payload.
func DecodeParameters(payload []byte) (roomstate.Parameters, error) {
	var params roomstate.Parameters
	if err := codec.Unmarshal(payload, &params); err != nil {
		return roomstate.Parameters{}, fmt.Errorf("%w: room parameters: %v", ErrCodec, err)
	}
	return params, nil
}
