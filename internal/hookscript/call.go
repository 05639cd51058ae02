package hookscript

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/dop251/goja"

	"rpcdrift/internal/hooks"
)

// callObject is the JavaScript view of a hook payload. err records the first
// failure of a setter so it can be reported after handle returns.
type callObject struct {
	object *goja.Object
	err    error
}

func newCallObject(r *Runtime, event string, payload any) (*callObject, error) {
	vm := r.VM()
	c := &callObject{object: vm.NewObject()}

	method := event[strings.Index(event, ":")+1:]
	c.object.Set("event", event)
	c.object.Set("method", method)

	fail := func(err error) {
		if c.err == nil {
			c.err = err
		}
		panic(vm.ToValue(err.Error()))
	}

	switch p := payload.(type) {
	case hooks.BeforePayload:
		args, err := toJS(p.RawArgs())
		if err != nil {
			return nil, err
		}
		c.object.Set("args", args)
		c.object.Set("setArgs", func(call goja.FunctionCall) goja.Value {
			v, err := fromJS(p.ArgsType(), call.Argument(0).Export(), p.RawArgs())
			if err == nil {
				err = p.SetRawArgs(v)
			}
			if err != nil {
				fail(fmt.Errorf("setArgs: %w", err))
			}
			return goja.Undefined()
		})
		c.object.Set("resolve", func(call goja.FunctionCall) goja.Value {
			v, err := fromJS(p.ResultType(), call.Argument(0).Export(), nil)
			if err == nil {
				err = p.ResolveRaw(v)
			}
			if err != nil {
				fail(fmt.Errorf("resolve: %w", err))
			}
			return goja.Undefined()
		})
	case hooks.AfterPayload:
		args, err := toJS(p.RawArgs())
		if err != nil {
			return nil, err
		}
		result, err := toJS(p.RawResult())
		if err != nil {
			return nil, err
		}
		c.object.Set("args", args)
		c.object.Set("result", result)
		c.object.Set("setResult", func(call goja.FunctionCall) goja.Value {
			v, err := fromJS(p.ResultType(), call.Argument(0).Export(), nil)
			if err == nil {
				err = p.SetRawResult(v)
			}
			if err != nil {
				fail(fmt.Errorf("setResult: %w", err))
			}
			return goja.Undefined()
		})
	default:
		c.object.Set("payload", payload)
	}

	return c, nil
}

// toJS converts a Go value to its JSON form
func toJS(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to expose %T to script: %w", v, err)
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// fromJS converts an exported JavaScript value to t. Object patches are laid
// over the JSON form of base, and fields hidden from JSON are carried over
// from base.
func fromJS(t reflect.Type, v any, base any) (any, error) {
	if v == nil {
		return reflect.Zero(t).Interface(), nil
	}
	if reflect.TypeOf(v).AssignableTo(t) {
		return v, nil
	}

	if patch, ok := v.(map[string]any); ok && base != nil {
		merged, err := toJS(base)
		if err != nil {
			return nil, err
		}
		if m, ok := merged.(map[string]any); ok {
			for k, val := range patch {
				m[k] = val
			}
			v = m
		}
	}

	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	out := reflect.New(t)
	if err := json.Unmarshal(data, out.Interface()); err != nil {
		return nil, fmt.Errorf("cannot convert %T to %s: %w", v, t, err)
	}
	if base != nil {
		keepHiddenFields(out.Elem(), reflect.ValueOf(base))
	}
	return out.Elem().Interface(), nil
}

// keepHiddenFields copies `json:"-"` struct fields from src to dst
func keepHiddenFields(dst, src reflect.Value) {
	if dst.Kind() != reflect.Struct || src.Type() != dst.Type() {
		return
	}
	for i := 0; i < dst.NumField(); i++ {
		if dst.Type().Field(i).Tag.Get("json") == "-" && dst.Field(i).CanSet() {
			dst.Field(i).Set(src.Field(i))
		}
	}
}
