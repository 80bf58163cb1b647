package hostbridge

import (
	"github.com/pkg/errors"

	"github.com/flutterbridge/hostbridge/codec"
	"github.com/flutterbridge/hostbridge/instance"
)

// Call is one incoming Host API invocation.
type Call struct {
	Channel string
	// Method is set on method channels only.
	Method string
	Args   []any

	registrar *Registrar
}

func (c *Call) Len() int { return len(c.Args) }

// Arg returns argument i, or nil if there are not that many.
func (c *Call) Arg(i int) any {
	if i < 0 || i >= len(c.Args) {
		return nil
	}
	return c.Args[i]
}

func (c *Call) Registrar() *Registrar { return c.registrar }

func (c *Call) argError(i int, want string) error {
	return &ArgumentError{Channel: c.Channel, Index: i, Want: want, Got: c.Arg(i)}
}

func (c *Call) Int64(i int) (int64, error) {
	n, ok := codec.AsInteger[int64](c.Arg(i))
	if !ok {
		return 0, c.argError(i, "integer")
	}
	return n, nil
}

func (c *Call) Bool(i int) (bool, error) {
	b, ok := c.Arg(i).(bool)
	if !ok {
		return false, c.argError(i, "bool")
	}
	return b, nil
}

func (c *Call) String(i int) (string, error) {
	s, ok := c.Arg(i).(string)
	if !ok {
		return "", c.argError(i, "string")
	}
	return s, nil
}

// OptionalString returns "" and false for a null argument.
func (c *Call) OptionalString(i int) (string, bool, error) {
	if c.Arg(i) == nil {
		return "", false, nil
	}
	s, err := c.String(i)
	return s, err == nil, err
}

func (c *Call) Bytes(i int) ([]byte, error) {
	b, ok := c.Arg(i).([]byte)
	if !ok {
		return nil, c.argError(i, "bytes")
	}
	return b, nil
}

func (c *Call) Float64(i int) (float64, error) {
	f, ok := codec.AsFloat[float64](c.Arg(i))
	if !ok {
		return 0, c.argError(i, "float")
	}
	return f, nil
}

func (c *Call) List(i int) ([]any, error) {
	switch v := c.Arg(i).(type) {
	case []any:
		return v, nil
	case nil:
		return nil, nil
	}
	return nil, c.argError(i, "list")
}

func (c *Call) Map(i int) (map[any]any, error) {
	switch v := c.Arg(i).(type) {
	case map[any]any:
		return v, nil
	case nil:
		return nil, nil
	}
	return nil, c.argError(i, "map")
}

// Identifier returns argument i as an instance identifier.
func (c *Call) Identifier(i int) (int64, error) {
	id, err := c.Int64(i)
	if err != nil {
		return 0, err
	}
	if id < 0 {
		return 0, instanceError(errors.Wrapf(instance.ErrInvalidIdentifier, "%s: argument %d is %d", c.Channel, i, id))
	}
	return id, nil
}

// OptionalIdentifier is Identifier for a nullable argument.
func (c *Call) OptionalIdentifier(i int) (int64, bool, error) {
	if c.Arg(i) == nil {
		return 0, false, nil
	}
	id, err := c.Identifier(i)
	return id, err == nil, err
}

// Resolve returns the *T registered under the identifier in argument i. An
// unknown, collected or differently typed instance is NOT_FOUND.
func Resolve[T any](c *Call, i int) (*T, error) {
	id, err := c.Identifier(i)
	if err != nil {
		return nil, err
	}
	return Lookup[T](c.registrar, id)
}

// ResolveOptional is Resolve for a nullable argument.
func ResolveOptional[T any](c *Call, i int) (*T, error) {
	if c.Arg(i) == nil {
		return nil, nil
	}
	return Resolve[T](c, i)
}

func Lookup[T any](r *Registrar, id int64) (*T, error) {
	obj, ok := instance.Get[T](r.instances, id)
	if !ok {
		var zero T
		return nil, NotFound("no %T instance with identifier %d", &zero, id)
	}
	return obj, nil
}

// Adopt registers obj under the UI-created identifier in argument i.
func Adopt[T any](c *Call, i int, obj *T) error {
	id, err := c.Identifier(i)
	if err != nil {
		return err
	}
	return AdoptIdentifier(c.registrar, id, obj)
}

// AdoptIdentifier registers obj under the UI-created identifier id. A taken
// or out of range identifier is INVALID_ARGUMENT.
func AdoptIdentifier[T any](r *Registrar, id int64, obj *T) error {
	return instanceError(instance.AddDartCreated(r.instances, obj, id))
}

// Register gives obj a host-created identifier to return to the UI side.
func Register[T any](c *Call, obj *T) (int64, error) {
	return FlutterIdentifier(c.registrar, obj)
}
