package protocol

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

const (
	requestHeaderSize  = 6
	responseHeaderSize = 5
)

// Request is a decoded request frame.
type Request struct {
	Type    RequestType
	Version byte
	Payload json.RawMessage
}

// Decode unmarshals the payload into v.
func (r *Request) Decode(v interface{}) error {
	if err := json.Unmarshal(r.Payload, v); err != nil {
		return fmt.Errorf("%w: %s payload: %v", ErrMalformedFrame, r.Type, err)
	}
	return nil
}

// Response is a decoded response frame.
type Response struct {
	Code    ResponseCode
	Payload json.RawMessage
}

// Decode unmarshals the payload into v.
func (r *Response) Decode(v interface{}) error {
	if err := json.Unmarshal(r.Payload, v); err != nil {
		return fmt.Errorf("%w: %s payload: %v", ErrMalformedFrame, r.Code, err)
	}
	return nil
}

// WriteRequest encodes payload as JSON and writes one request frame.
func WriteRequest(w io.Writer, typ RequestType, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("protocol:frame - encode %s request: %w", typ, err)
	}
	if len(body) > MaxFrameSize {
		return ErrFrameTooLarge
	}
	buf := make([]byte, requestHeaderSize+len(body))
	buf[0] = byte(typ)
	buf[1] = Version
	binary.BigEndian.PutUint32(buf[2:6], uint32(len(body)))
	copy(buf[requestHeaderSize:], body)
	_, err = w.Write(buf)
	return err
}

// ReadRequest reads one request frame. Any framing fault, including a
// truncated frame, wraps ErrMalformedFrame.
func ReadRequest(r io.Reader) (*Request, error) {
	var hdr [requestHeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, fmt.Errorf("%w: request header: %v", ErrMalformedFrame, err)
	}
	typ := RequestType(hdr[0])
	if !typ.Valid() {
		return nil, fmt.Errorf("%w: unknown request type %d", ErrMalformedFrame, hdr[0])
	}
	if hdr[1] != Version {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrMalformedFrame, hdr[1])
	}
	body, err := readBody(r, binary.BigEndian.Uint32(hdr[2:6]))
	if err != nil {
		return nil, err
	}
	return &Request{Type: typ, Version: hdr[1], Payload: body}, nil
}

// WriteResponse encodes payload as JSON and writes one response frame.
func WriteResponse(w io.Writer, code ResponseCode, payload interface{}) error {
	if !code.Valid() {
		return fmt.Errorf("protocol:frame - invalid response code %d", byte(code))
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("protocol:frame - encode %s response: %w", code, err)
	}
	if len(body) > MaxFrameSize {
		return ErrFrameTooLarge
	}
	buf := make([]byte, responseHeaderSize+len(body))
	buf[0] = byte(code)
	binary.BigEndian.PutUint32(buf[1:5], uint32(len(body)))
	copy(buf[responseHeaderSize:], body)
	_, err = w.Write(buf)
	return err
}

// ReadResponse reads one response frame and validates its payload shape.
func ReadResponse(r io.Reader) (*Response, error) {
	var hdr [responseHeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, fmt.Errorf("%w: response header: %v", ErrMalformedFrame, err)
	}
	code := ResponseCode(hdr[0])
	if !code.Valid() {
		return nil, fmt.Errorf("%w: unknown response code %d", ErrMalformedFrame, hdr[0])
	}
	body, err := readBody(r, binary.BigEndian.Uint32(hdr[1:5]))
	if err != nil {
		return nil, err
	}
	resp := &Response{Code: code, Payload: body}
	if err := resp.Validate(); err != nil {
		return nil, err
	}
	return resp, nil
}

func readBody(r io.Reader, n uint32) ([]byte, error) {
	if n > MaxFrameSize {
		return nil, ErrFrameTooLarge
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("%w: truncated payload: %v", ErrMalformedFrame, err)
	}
	return body, nil
}
