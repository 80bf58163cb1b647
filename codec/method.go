package codec

import (
	"github.com/pkg/errors"
)

// MethodCall is a named invocation carried on a legacy method channel.
type MethodCall struct {
	Method    string
	Arguments any
}

// ErrorEnvelope is the failure half of a method channel reply.
type ErrorEnvelope struct {
	Code    string
	Message string
	Details any
}

func (e *ErrorEnvelope) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return e.Code + ": " + e.Message
}

// MethodCodec frames method calls and their replies on top of a message
// codec. A call is the method name followed by the arguments; a reply is
// a status byte (0 success, 1 error) followed by the result or by code,
// message and details.
type MethodCodec struct {
	Codec *StandardCodec
}

var StandardMethod = MethodCodec{Codec: Standard}

func (m MethodCodec) EncodeMethodCall(call MethodCall) ([]byte, error) {
	w := &writer{}
	if err := m.Codec.write(w, call.Method); err != nil {
		return nil, err
	}
	if err := m.Codec.write(w, call.Arguments); err != nil {
		return nil, err
	}
	return w.buf, nil
}

func (m MethodCodec) DecodeMethodCall(msg []byte) (MethodCall, error) {
	r := &reader{buf: msg}
	method, err := m.Codec.read(r)
	if err != nil {
		return MethodCall{}, err
	}
	name, ok := method.(string)
	if !ok {
		return MethodCall{}, errors.Errorf("codec: method name is %T, not string", method)
	}
	args, err := m.Codec.read(r)
	if err != nil {
		return MethodCall{}, err
	}
	if r.remaining() != 0 {
		return MethodCall{}, errors.Errorf("codec: %d trailing bytes after method call", r.remaining())
	}
	return MethodCall{Method: name, Arguments: args}, nil
}

func (m MethodCodec) EncodeSuccessEnvelope(result any) ([]byte, error) {
	w := &writer{}
	w.byte(0)
	if err := m.Codec.write(w, result); err != nil {
		return nil, err
	}
	return w.buf, nil
}

func (m MethodCodec) EncodeErrorEnvelope(code, message string, details any) ([]byte, error) {
	w := &writer{}
	w.byte(1)
	m.Codec.write(w, code)
	if message == "" {
		w.byte(tNull)
	} else {
		m.Codec.write(w, message)
	}
	if err := m.Codec.write(w, details); err != nil {
		return nil, err
	}
	return w.buf, nil
}

// DecodeEnvelope returns the result of a successful reply, or an
// *ErrorEnvelope for a failed one. An empty reply means the method was not
// implemented and decodes to ErrNotImplemented.
func (m MethodCodec) DecodeEnvelope(msg []byte) (any, error) {
	if len(msg) == 0 {
		return nil, ErrNotImplemented
	}
	r := &reader{buf: msg}
	status, _ := r.byte()
	switch status {
	case 0:
		v, err := m.Codec.read(r)
		if err != nil {
			return nil, err
		}
		return v, nil
	case 1:
		code, err := m.Codec.read(r)
		if err != nil {
			return nil, err
		}
		message, err := m.Codec.read(r)
		if err != nil {
			return nil, err
		}
		details, err := m.Codec.read(r)
		if err != nil {
			return nil, err
		}
		env := &ErrorEnvelope{Details: details}
		env.Code, _ = code.(string)
		env.Message, _ = message.(string)
		return nil, env
	}
	return nil, errors.Errorf("codec: bad envelope status %d", status)
}

var ErrNotImplemented = errors.New("codec: method not implemented")
