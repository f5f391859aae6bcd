package lua

import (
	"fmt"

	"github.com/aarzilli/golua/lua"
	"github.com/srg/imuble/internal/telemetry"
)

// SampleFunction is the global a sensor script must define. It is called
// once per tick with the tick number and returns a table:
//
//	function sample(tick)
//	  return {
//	    accel = {x = 0, y = 0, z = 1},
//	    mag = {21.5, -4.2, 40.1},
//	    gyro = {x = 0, y = 0, z = 0},
//	    temperature = 24.5,
//	    keys = {false, true, false},
//	  }
//	end
//
// Vectors accept named or positional components. Missing fields read as zero
// and missing keys as released.
const SampleFunction = "sample"

// CallSample invokes the script's sample function for tick.
func (e *Engine) CallSample(tick int64) (telemetry.SensorSample, telemetry.KeyState, error) {
	var (
		sample telemetry.SensorSample
		keys   telemetry.KeyState
	)

	res := e.DoWithState(func(L *lua.State) interface{} {
		L.GetGlobal(SampleFunction)
		if !L.IsFunction(-1) {
			L.Pop(1)
			return &Error{Type: "api", Message: fmt.Sprintf("function %s not defined", SampleFunction), Source: e.scriptName}
		}

		L.PushInteger(tick)
		if err := L.Call(1, 1); err != nil {
			luaErr := parseMessage("runtime", e.scriptName, err.Error())
			luaErr.Underlying = err
			e.emit("stderr", fmt.Sprintf("Lua runtime error: %s\n", luaErr.Message))
			return luaErr
		}
		defer L.Pop(1)

		if !L.IsTable(-1) {
			return &Error{Type: "api", Message: fmt.Sprintf("%s must return a table, got %s", SampleFunction, L.Typename(int(L.Type(-1)))), Source: e.scriptName}
		}

		var err error
		if sample.Accel, err = vectorField(L, "accel"); err != nil {
			return e.apiError(err)
		}
		if sample.Mag, err = vectorField(L, "mag"); err != nil {
			return e.apiError(err)
		}
		if sample.Gyro, err = vectorField(L, "gyro"); err != nil {
			return e.apiError(err)
		}
		if sample.Temperature, err = numberField(L, "temperature"); err != nil {
			return e.apiError(err)
		}
		if keys, err = keysField(L, "keys"); err != nil {
			return e.apiError(err)
		}
		return true
	})

	switch v := res.(type) {
	case *Error:
		return telemetry.SensorSample{}, telemetry.KeyState{}, v
	case nil:
		return telemetry.SensorSample{}, telemetry.KeyState{}, &Error{Type: "api", Message: "engine is closed"}
	}
	return sample, keys, nil
}

func (e *Engine) apiError(err error) *Error {
	return &Error{Type: "api", Message: err.Error(), Source: e.scriptName, Underlying: err}
}

// numberField reads t[name] where t is on top of the stack.
func numberField(L *lua.State, name string) (float64, error) {
	L.GetField(-1, name)
	defer L.Pop(1)

	switch L.Type(-1) {
	case lua.LUA_TNIL:
		return 0, nil
	case lua.LUA_TNUMBER:
		return L.ToNumber(-1), nil
	default:
		return 0, fmt.Errorf("field %s must be a number", name)
	}
}

// vectorField reads t[name] as {x=, y=, z=} or {x, y, z}.
func vectorField(L *lua.State, name string) (telemetry.Vector3, error) {
	var v telemetry.Vector3

	L.GetField(-1, name)
	defer L.Pop(1)

	switch L.Type(-1) {
	case lua.LUA_TNIL:
		return v, nil
	case lua.LUA_TTABLE:
	default:
		return v, fmt.Errorf("field %s must be a table", name)
	}

	axes := []struct {
		key string
		dst *float64
	}{{"x", &v.X}, {"y", &v.Y}, {"z", &v.Z}}

	for i, axis := range axes {
		L.GetField(-1, axis.key)
		if L.IsNil(-1) {
			L.Pop(1)
			L.PushInteger(int64(i + 1))
			L.GetTable(-2)
		}
		switch L.Type(-1) {
		case lua.LUA_TNIL:
		case lua.LUA_TNUMBER:
			*axis.dst = L.ToNumber(-1)
		default:
			L.Pop(1)
			return v, fmt.Errorf("field %s.%s must be a number", name, axis.key)
		}
		L.Pop(1)
	}
	return v, nil
}

// keysField reads t[name] as three booleans or numbers, A, B and C in order.
func keysField(L *lua.State, name string) (telemetry.KeyState, error) {
	var k telemetry.KeyState

	L.GetField(-1, name)
	defer L.Pop(1)

	switch L.Type(-1) {
	case lua.LUA_TNIL:
		return k, nil
	case lua.LUA_TTABLE:
	default:
		return k, fmt.Errorf("field %s must be a table", name)
	}

	for i := range k {
		L.PushInteger(int64(i + 1))
		L.GetTable(-2)
		switch L.Type(-1) {
		case lua.LUA_TNIL:
		case lua.LUA_TBOOLEAN:
			k[i] = L.ToBoolean(-1)
		case lua.LUA_TNUMBER:
			k[i] = L.ToNumber(-1) != 0
		default:
			L.Pop(1)
			return k, fmt.Errorf("field %s[%d] must be a boolean", name, i+1)
		}
		L.Pop(1)
	}
	return k, nil
}
