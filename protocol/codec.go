package protocol

import (
	"encoding/json"

	"github.com/pkg/errors"
)

var (
	ErrEmptyFrame   = errors.New("empty frame")
	ErrEmptyPayload = errors.New("empty payload")
)

// Encode 编码一帧；payload 为 nil 时省略
func Encode(frameType, event string, payload any) ([]byte, error) {
	if frameType == "" {
		return nil, errors.New("frame type is empty")
	}
	f := Frame{Type: frameType, Event: event}
	if payload != nil {
		pb, err := json.Marshal(payload)
		if err != nil {
			return nil, errors.Wrapf(err, "marshal %s payload", event)
		}
		f.Payload = pb
	}
	b, err := json.Marshal(f)
	return b, errors.WithStack(err)
}

func DecodeFrame(b []byte) (Frame, error) {
	if len(b) == 0 {
		return Frame{}, ErrEmptyFrame
	}
	var f Frame
	if err := json.Unmarshal(b, &f); err != nil {
		return Frame{}, errors.Wrap(err, "decode frame")
	}
	if f.Type == "" {
		return Frame{}, errors.New("frame without type")
	}
	return f, nil
}

// DecodePayload 将原始负载解码为 T
func DecodePayload[T any](raw json.RawMessage) (T, error) {
	var out T
	if len(raw) == 0 {
		return out, ErrEmptyPayload
	}
	err := json.Unmarshal(raw, &out)
	return out, errors.WithStack(err)
}
