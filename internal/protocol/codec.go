package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ProtocolError is a frame that is not a well-formed envelope of a known type.
type ProtocolError struct {
	Reason string
	Type   string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return e.Reason
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// FieldError names one payload field that failed validation.
type FieldError struct {
	Field string
	Rule  string
	Param string
}

func (f FieldError) String() string {
	switch f.Rule {
	case "required":
		return f.Field + " is required"
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", f.Field, f.Param)
	default:
		return fmt.Sprintf("%s failed %s", f.Field, f.Rule)
	}
}

// ValidationError is a known envelope whose payload is missing or has invalid fields.
type ValidationError struct {
	Type   string
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.String()
	}
	return fmt.Sprintf("invalid %s payload: %s", e.Type, strings.Join(parts, ", "))
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

var inbound = map[string]func() Request{
	TypeAuth:        func() Request { return &Auth{} },
	TypeSendMessage: func() Request { return &SendMessage{} },
	TypeTyping:      func() Request { return &Typing{} },
	TypeMessageRead: func() Request { return &MessageRead{} },
}

// Decode parses one inbound frame. It returns *ProtocolError for malformed
// frames and unknown tags, and *ValidationError for bad payload fields.
func Decode(frame []byte) (Request, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, &ProtocolError{Reason: "malformed frame", Err: err}
	}
	newReq, ok := inbound[env.Type]
	if !ok {
		return nil, &ProtocolError{Reason: "Unknown message type", Type: env.Type}
	}

	req := newReq()
	payload := bytes.TrimSpace(env.Payload)
	if len(payload) > 0 && !bytes.Equal(payload, []byte("null")) {
		if err := json.Unmarshal(payload, req); err != nil {
			return nil, &ProtocolError{Reason: "malformed payload", Type: env.Type, Err: err}
		}
	}
	if err := validate.Struct(req); err != nil {
		return nil, validationError(env.Type, err)
	}
	return req, nil
}

func validationError(typ string, err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &ProtocolError{Reason: "invalid payload", Type: typ, Err: err}
	}
	out := &ValidationError{Type: typ}
	for _, fe := range verrs {
		out.Fields = append(out.Fields, FieldError{Field: fe.Field(), Rule: fe.Tag(), Param: fe.Param()})
	}
	return out
}

// Encode wraps payload in an envelope of the given type.
func Encode(typ string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", typ, err)
	}
	return json.Marshal(Envelope{Type: typ, Payload: raw})
}

// EncodeRequest encodes an inbound request, the form clients send.
func EncodeRequest(req Request) ([]byte, error) {
	return Encode(req.Type(), req)
}

// EncodeError builds an error envelope carrying message.
func EncodeError(message string) []byte {
	frame, err := Encode(TypeError, ErrorPayload{Message: message})
	if err != nil {
		return []byte(`{"type":"error","payload":{"message":"internal error"}}`)
	}
	return frame
}
