package sensor

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/srg/imuble/internal/lua"
	"github.com/srg/imuble/internal/telemetry"
)

// Script is a sensor source and keypad driven by a Lua script defining
// sample(tick). Keys reports the key state returned by the most recent Read.
type Script struct {
	engine *lua.Engine
	logger *logrus.Logger

	mu   sync.Mutex
	tick int64
	keys telemetry.KeyState
}

// NewScript loads the script at path into a fresh engine.
func NewScript(path string, logger *logrus.Logger) (*Script, error) {
	engine := lua.NewEngine(logger)
	if err := engine.LoadScriptFile(path); err != nil {
		engine.Close()
		return nil, fmt.Errorf("failed to load sensor script: %w", err)
	}
	return newScript(engine, logger)
}

// NewScriptFromSource loads source under name.
func NewScriptFromSource(source, name string, logger *logrus.Logger) (*Script, error) {
	engine := lua.NewEngine(logger)
	if err := engine.LoadScript(source, name); err != nil {
		engine.Close()
		return nil, fmt.Errorf("failed to load sensor script: %w", err)
	}
	return newScript(engine, logger)
}

func newScript(engine *lua.Engine, logger *logrus.Logger) (*Script, error) {
	if logger == nil {
		logger = logrus.New()
	}
	if !engine.HasFunction(lua.SampleFunction) {
		name := engine.ScriptName()
		engine.Close()
		return nil, &lua.Error{
			Type:    "api",
			Message: fmt.Sprintf("script does not define %s(tick)", lua.SampleFunction),
			Source:  name,
		}
	}
	return &Script{engine: engine, logger: logger}, nil
}

// Engine exposes the engine, for wiring its output.
func (s *Script) Engine() *lua.Engine {
	return s.engine
}

// Read calls sample(tick) and advances the tick.
func (s *Script) Read(ctx context.Context) (telemetry.SensorSample, error) {
	if err := ctx.Err(); err != nil {
		return telemetry.SensorSample{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sample, keys, err := s.engine.CallSample(s.tick)
	if err != nil {
		return telemetry.SensorSample{}, fmt.Errorf("tick %d: %w", s.tick, err)
	}
	s.tick++
	s.keys = keys
	return sample, nil
}

// Keys returns the key state from the last successful Read.
func (s *Script) Keys() (telemetry.KeyState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.keys, nil
}

// Close releases the engine.
func (s *Script) Close() error {
	s.engine.Close()
	return nil
}
