// Package lua embeds a Lua interpreter for scripted sensor sources. Script
// output from print is captured into a ring channel instead of the process
// stdout so a drainer or collector can decide where it goes.
package lua

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/aarzilli/golua/lua"
	"github.com/sirupsen/logrus"
	"github.com/srg/imuble/internal/ringchan"
)

// OutputBufferSize is the number of print records retained before the oldest
// are overwritten.
const OutputBufferSize = 100

// OutputRecord is a single line of script output.
type OutputRecord struct {
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"` // "stdout" or "stderr"
}

// Error describes a failed load or call.
type Error struct {
	Type       string // "syntax", "runtime", "api"
	Message    string
	Line       int
	Source     string
	Underlying error
}

func (e *Error) Error() string {
	parts := []string{}
	if e.Source != "" {
		parts = append(parts, fmt.Sprintf("in %s", e.Source))
	}
	if e.Line > 0 {
		parts = append(parts, fmt.Sprintf("line %d", e.Line))
	}

	prefix := "Lua error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("Lua %s error (%s)", e.Type, strings.Join(parts, ", "))
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Underlying
}

// Is matches another *Error of the same Type.
func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}
	var luaErr *Error
	if errors.As(target, &luaErr) {
		return e.Type == luaErr.Type
	}
	return false
}

// Engine owns one Lua state. All access to the state is serialized.
type Engine struct {
	state      *lua.State
	stateMutex sync.Mutex
	logger     *logrus.Logger
	scriptName string
	output     *ringchan.RingChannel[OutputRecord]
}

// NewEngine creates an engine with print captured.
func NewEngine(logger *logrus.Logger) *Engine {
	if logger == nil {
		logger = logrus.New()
	}

	engine := &Engine{
		logger: logger,
		output: ringchan.New[OutputRecord](OutputBufferSize),
	}
	engine.Reset()

	logger.Debug("Lua engine initialized with output capture")
	return engine
}

// DoWithState runs callback with exclusive access to the state. It returns
// nil without calling callback once the engine is closed.
func (e *Engine) DoWithState(callback func(*lua.State) interface{}) interface{} {
	e.stateMutex.Lock()
	defer e.stateMutex.Unlock()

	if e.state == nil {
		return nil
	}
	return callback(e.state)
}

// Output returns the receive side of the captured output.
func (e *Engine) Output() <-chan OutputRecord {
	return e.output.C()
}

func (e *Engine) emit(source, content string) {
	e.output.Send(OutputRecord{
		Content:   content,
		Timestamp: time.Now(),
		Source:    source,
	})
}

func (e *Engine) registerPrintCapture(L *lua.State) {
	L.PushGoFunction(func(L *lua.State) int {
		top := L.GetTop()
		parts := make([]string, 0, top)

		for i := 1; i <= top; i++ {
			switch {
			case L.IsNil(i):
				parts = append(parts, "nil")
			case L.IsBoolean(i):
				if L.ToBoolean(i) {
					parts = append(parts, "true")
				} else {
					parts = append(parts, "false")
				}
			case L.IsNumber(i):
				parts = append(parts, fmt.Sprintf("%v", L.ToNumber(i)))
			case L.IsString(i):
				parts = append(parts, L.ToString(i))
			default:
				L.GetGlobal("tostring")
				L.PushValue(i)
				L.Call(1, 1)
				parts = append(parts, L.ToString(-1))
				L.Pop(1)
			}
		}

		e.emit("stdout", strings.Join(parts, "\t")+"\n")
		return 0
	})
	L.SetGlobal("print")
}

// parseMessage splits a Lua message of the form `chunk:line: text`. String
// chunks are named after their first line, which may itself contain colons.
func parseMessage(errType, source, msg string) *Error {
	line := 0
	message := msg
	rest := msg
	if strings.HasPrefix(rest, "[string ") {
		if i := strings.Index(rest, "\"]"); i >= 0 {
			rest = "chunk" + rest[i+2:]
		}
	}
	if strings.Contains(rest, ":") {
		parts := strings.SplitN(rest, ":", 3)
		if len(parts) >= 3 {
			if parsed, err := fmt.Sscanf(strings.TrimSpace(parts[1]), "%d", &line); err == nil && parsed == 1 {
				message = strings.TrimSpace(parts[2])
			}
		}
	}

	return &Error{
		Type:    errType,
		Message: message,
		Line:    line,
		Source:  source,
	}
}

// popError converts the error value on top of the stack and pops it.
func popError(L *lua.State, errType, source string) *Error {
	if L.GetTop() == 0 {
		return &Error{Type: errType, Message: "unknown Lua error", Source: source}
	}

	msg := "non-string error object"
	if L.IsString(-1) {
		msg = L.ToString(-1)
	}
	L.Pop(1)
	return parseMessage(errType, source, msg)
}

// LoadScriptFile reads filename and loads it like LoadScript.
func (e *Engine) LoadScriptFile(filename string) error {
	content, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read script %s: %w", filename, err)
	}
	return e.LoadScript(string(content), filename)
}

// LoadScript compiles script and runs its top level, which is expected to
// define globals such as a sample function.
func (e *Engine) LoadScript(script, name string) error {
	if strings.TrimSpace(script) == "" {
		return &Error{Type: "api", Message: "empty script", Source: name}
	}

	res := e.DoWithState(func(L *lua.State) interface{} {
		if status := L.LoadString(script); status != 0 {
			luaErr := popError(L, "syntax", name)
			e.emit("stderr", fmt.Sprintf("Lua syntax error: %s\n", luaErr.Message))
			return luaErr
		}
		if err := L.Call(0, 0); err != nil {
			luaErr := parseMessage("runtime", name, err.Error())
			luaErr.Underlying = err
			e.emit("stderr", fmt.Sprintf("Lua runtime error: %s\n", luaErr.Message))
			return luaErr
		}
		e.scriptName = name
		return true
	})

	switch v := res.(type) {
	case *Error:
		return v
	case nil:
		return &Error{Type: "api", Message: "engine is closed", Source: name}
	}
	e.logger.WithField("script", name).Debug("Lua script loaded")
	return nil
}

// ScriptName returns the name given to the last successfully loaded script.
func (e *Engine) ScriptName() string {
	e.stateMutex.Lock()
	defer e.stateMutex.Unlock()
	return e.scriptName
}

// HasFunction reports whether name is a global function.
func (e *Engine) HasFunction(name string) bool {
	res := e.DoWithState(func(L *lua.State) interface{} {
		L.GetGlobal(name)
		defer L.Pop(1)
		return L.IsFunction(-1)
	})
	ok, _ := res.(bool)
	return ok
}

// Reset recreates the Lua state. Loaded scripts are discarded.
func (e *Engine) Reset() {
	e.stateMutex.Lock()
	defer e.stateMutex.Unlock()

	if e.state != nil {
		e.state.Close()
	}
	e.state = lua.NewState()
	e.state.OpenLibs()
	e.registerPrintCapture(e.state)
	e.scriptName = ""
}

// Close releases the state and closes the output channel.
func (e *Engine) Close() {
	e.stateMutex.Lock()
	defer e.stateMutex.Unlock()

	if e.state != nil {
		e.state.Close()
		e.state = nil
	}
	e.output.Close()

	if dropped := e.Dropped(); dropped > 0 {
		e.logger.WithField("dropped", dropped).Warn("Script output overflowed before it was read")
	}
}

// Dropped returns how many print records were discarded because nobody read
// them in time.
func (e *Engine) Dropped() int64 {
	return e.output.Metrics().Overwritten
}

// SetGlobal sets a global variable.
func (e *Engine) SetGlobal(name string, value interface{}) error {
	res := e.DoWithState(func(state *lua.State) any {
		switch v := value.(type) {
		case string:
			state.PushString(v)
		case int:
			state.PushInteger(int64(v))
		case int64:
			state.PushInteger(v)
		case float64:
			state.PushNumber(v)
		case bool:
			state.PushBoolean(v)
		default:
			return fmt.Errorf("unsupported type for global variable %s", name)
		}

		state.SetGlobal(name)
		return nil
	})

	if err, ok := res.(error); ok {
		return err
	}
	return nil
}

// GetGlobal returns a string, float64 or bool global, or nil.
func (e *Engine) GetGlobal(name string) interface{} {
	return e.DoWithState(func(state *lua.State) any {
		state.GetGlobal(name)
		defer state.Pop(1)

		switch state.Type(-1) {
		case lua.LUA_TNUMBER:
			return state.ToNumber(-1)
		case lua.LUA_TSTRING:
			return state.ToString(-1)
		case lua.LUA_TBOOLEAN:
			return state.ToBoolean(-1)
		default:
			return nil
		}
	})
}
