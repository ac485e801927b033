// internal/websocket/router.go
package websocket

import (
	"context"
	"fmt"
	"reflect"
	"sort"
)

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
)

// Router maps RPC method names onto methods of a handler value. Only the
// names listed in the routing table are callable.
type Router struct {
	handler interface{}
	methods map[string]reflect.Method
}

// NewRouter builds a router over handler. routes maps RPC names such as
// "versions.list" to Go method names such as "ListVersions".
func NewRouter(handler interface{}, routes map[string]string) (*Router, error) {
	r := &Router{
		handler: handler,
		methods: make(map[string]reflect.Method, len(routes)),
	}

	handlerType := reflect.TypeOf(handler)
	for rpcName, methodName := range routes {
		method, ok := handlerType.MethodByName(methodName)
		if !ok {
			return nil, fmt.Errorf("route %s: %T has no method %s", rpcName, handler, methodName)
		}
		r.methods[rpcName] = method
	}
	return r, nil
}

// Methods lists the callable RPC names
func (r *Router) Methods() []string {
	names := make([]string, 0, len(r.methods))
	for name := range r.methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Call invokes an RPC method. A leading context.Context parameter is
// filled with ctx and does not count towards params.
func (r *Router) Call(ctx context.Context, methodName string, params []interface{}) (interface{}, error) {
	method, ok := r.methods[methodName]
	if !ok {
		return nil, fmt.Errorf("method not found: %s", methodName)
	}

	methodType := method.Type
	args := []reflect.Value{reflect.ValueOf(r.handler)}
	first := 1
	if methodType.NumIn() > 1 && methodType.In(1) == contextType {
		args = append(args, reflect.ValueOf(ctx))
		first = 2
	}

	numIn := methodType.NumIn() - first
	if len(params) != numIn {
		return nil, fmt.Errorf("method %s expects %d params, got %d", methodName, numIn, len(params))
	}

	for i, param := range params {
		paramValue, err := convertParam(param, methodType.In(first+i))
		if err != nil {
			return nil, fmt.Errorf("param %d: %w", i, err)
		}
		args = append(args, paramValue)
	}

	return processResults(method.Func.Call(args))
}

// convertParam converts a decoded JSON value to the parameter type
func convertParam(param interface{}, targetType reflect.Type) (reflect.Value, error) {
	if param == nil {
		return reflect.Zero(targetType), nil
	}

	paramValue := reflect.ValueOf(param)
	if paramValue.Type().AssignableTo(targetType) {
		return paramValue, nil
	}

	// JSON numbers arrive as float64
	if paramValue.Kind() == reflect.Float64 {
		f := param.(float64)
		switch targetType.Kind() {
		case reflect.Int, reflect.Int64, reflect.Int32:
			if f != float64(int64(f)) {
				return reflect.Value{}, fmt.Errorf("%v is not an integer", f)
			}
			return reflect.ValueOf(int64(f)).Convert(targetType), nil
		}
	}

	if paramValue.Type().ConvertibleTo(targetType) && paramValue.Kind() == targetType.Kind() {
		return paramValue.Convert(targetType), nil
	}

	return reflect.Value{}, fmt.Errorf("cannot convert %T to %s", param, targetType)
}

// processResults unpacks (result, error), (error) or (result) returns
func processResults(results []reflect.Value) (interface{}, error) {
	switch len(results) {
	case 0:
		return nil, nil
	case 1:
		if results[0].Type().Implements(errorType) {
			if !results[0].IsNil() {
				return nil, results[0].Interface().(error)
			}
			return nil, nil
		}
		return results[0].Interface(), nil
	default:
		last := results[len(results)-1]
		if last.Type().Implements(errorType) && !last.IsNil() {
			return nil, last.Interface().(error)
		}
		if len(results) == 2 {
			return results[0].Interface(), nil
		}
		out := make([]interface{}, 0, len(results)-1)
		for _, v := range results[:len(results)-1] {
			out = append(out, v.Interface())
		}
		return out, nil
	}
}
