package envconf

import (
	"encoding"
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"time"
)

var (
	ErrMissingRequired = errors.New("missing required environment variable")
	ErrUnsupportedType = errors.New("unsupported field type")
	ErrInvalid         = errors.New("invalid configuration")
)

// Validator is implemented by config structs that check cross-field rules.
// Load calls Validate after the struct and everything nested in it is filled.
type Validator interface {
	Validate() error
}

var durationType = reflect.TypeOf(time.Duration(0))

// Load fills the exported fields of the struct pointed to by dst from the
// environment. A field is bound by its `env:"NAME"` tag and is required unless
// it carries an `envDefault:"value"` tag. Untagged struct fields are loaded
// recursively. Types implementing encoding.TextUnmarshaler (slog.Level,
// decimal.Decimal) are decoded through UnmarshalText. Structs implementing
// Validator are validated innermost first; failures wrap ErrInvalid.
func Load(dst any) error {
	if dst == nil {
		return errors.New("destination is nil")
	}

	v := reflect.ValueOf(dst)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return errors.New("destination must be a non-nil pointer to a struct")
	}

	v = v.Elem()
	if v.Kind() != reflect.Struct {
		return errors.New("destination must point to a struct")
	}

	t := v.Type()
	for i := range v.NumField() {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}

		err := loadField(sf, v.Field(i))
		if err != nil {
			return err
		}
	}

	if val, ok := dst.(Validator); ok {
		err := val.Validate()
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrInvalid, t.Name(), err)
		}
	}

	return nil
}

func loadField(sf reflect.StructField, fv reflect.Value) error {
	tag := sf.Tag.Get("env")

	if tag == "-" || tag == "" {
		return loadNested(sf, fv)
	}

	raw, ok := os.LookupEnv(tag)
	if !ok {
		def, hasDef := sf.Tag.Lookup("envDefault")
		if !hasDef {
			return fmt.Errorf("%w: %s (field %q)", ErrMissingRequired, tag, sf.Name)
		}

		if def == "" {
			return nil
		}

		raw = def
	}

	err := setValue(fv, raw)
	if err != nil {
		return fmt.Errorf("parse %q for field %q: %w", tag, sf.Name, err)
	}

	return nil
}

// loadNested recurses into untagged struct and pointer-to-struct fields.
// time.Duration is an int64, so it is never treated as nested.
func loadNested(sf reflect.StructField, fv reflect.Value) error {
	var target any

	switch {
	case fv.Kind() == reflect.Struct && sf.Type != durationType:
		target = fv.Addr().Interface()
	case fv.Kind() == reflect.Pointer && fv.Type().Elem().Kind() == reflect.Struct:
		if fv.IsNil() {
			fv.Set(reflect.New(fv.Type().Elem()))
		}

		target = fv.Interface()
	default:
		return nil
	}

	err := Load(target)
	if err != nil {
		return fmt.Errorf("load recursively %q: %w", sf.Name, err)
	}

	return nil
}

//nolint:gocognit,cyclop
func setValue(fv reflect.Value, raw string) error {
	if !fv.CanSet() {
		return fmt.Errorf("field not settable: %w", ErrUnsupportedType)
	}

	// encoding.TextUnmarshaler support
	if fv.CanAddr() {
		u, ok := fv.Addr().Interface().(encoding.TextUnmarshaler)
		if ok {
			err := u.UnmarshalText([]byte(raw))
			if err != nil {
				return fmt.Errorf("unmarshal text: %w", err)
			}

			return nil
		}
	}

	switch fv.Kind() {
	case reflect.String:
		fv.SetString(raw)

		return nil
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("parse bool: %w", err)
		}

		fv.SetBool(b)

		return nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if fv.Type() == durationType {
			d, err := time.ParseDuration(raw)
			if err != nil {
				return fmt.Errorf("parse duration: %w", err)
			}

			fv.SetInt(int64(d))

			return nil
		}

		i, err := strconv.ParseInt(raw, 10, fv.Type().Bits())
		if err != nil {
			return fmt.Errorf("parse int: %w", err)
		}

		fv.SetInt(i)

		return nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(raw, 10, fv.Type().Bits())
		if err != nil {
			return fmt.Errorf("parse uint: %w", err)
		}

		fv.SetUint(u)

		return nil
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(raw, fv.Type().Bits())
		if err != nil {
			return fmt.Errorf("parse float: %w", err)
		}

		fv.SetFloat(f)

		return nil
	case reflect.Pointer:
		if fv.IsNil() {
			elem := reflect.New(fv.Type().Elem())

			err := setValue(elem.Elem(), raw)
			if err != nil {
				return fmt.Errorf("parse pointer: %w", err)
			}

			fv.Set(elem)

			return nil
		}

		err := setValue(fv.Elem(), raw)
		if err != nil {
			return fmt.Errorf("parse pointer: %w", err)
		}

		return nil
	default:
		return fmt.Errorf("unsupported type: %w", ErrUnsupportedType)
	}
}
