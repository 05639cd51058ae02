// Package hookscript loads JavaScript hook handlers and registers them on a
// hooks.Registry.
//
// A script declares the events it handles with one or more directives and
// defines a handle function that receives the call:
//
//	// @hook before:read
//	// @hook after:getBalance
//	function handle(call) {
//	  if (call.event === "before:read" && call.args.functionName === "decimals") {
//	    call.resolve(18)
//	  }
//	}
//
// Before calls expose args, setArgs(patch) and resolve(value); after calls
// expose args, result and setResult(value). Values cross into JavaScript as
// their JSON form.
package hookscript

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"
	"github.com/rs/zerolog"

	"rpcdrift/internal/hooks"
)

// DefaultTimeout bounds a single handler execution
const DefaultTimeout = 5 * time.Second

var hookDirectiveRegex = regexp.MustCompile(`(?m)^//\s*@hook\s+(\S+)`)

// Script is a compiled hook script
type Script struct {
	Name    string
	Events  []string
	program *goja.Program
}

// Manager loads scripts and turns them into hook handlers
type Manager struct {
	scripts []*Script
	logger  zerolog.Logger
	timeout time.Duration
	mu      sync.RWMutex
}

// NewManager creates an empty manager
func NewManager(logger zerolog.Logger) *Manager {
	return &Manager{
		logger:  logger.With().Str("component", "hookscript").Logger(),
		timeout: DefaultTimeout,
	}
}

// SetTimeout sets the execution timeout of every handler
func (m *Manager) SetTimeout(timeout time.Duration) {
	m.mu.Lock()
	m.timeout = timeout
	m.mu.Unlock()
}

// LoadFromDirectory loads every .js file of dir. A missing directory is not an
// error; scripts that fail to load are logged and skipped.
func (m *Manager) LoadFromDirectory(dir string) error {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		m.logger.Warn().Str("directory", dir).Msg("hook scripts directory does not exist")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to stat hook scripts directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("hook scripts path is not a directory: %s", dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read hook scripts directory: %w", err)
	}

	loaded := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".js") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		content, err := os.ReadFile(path)
		if err != nil {
			m.logger.Error().Err(err).Str("file", entry.Name()).Msg("failed to read hook script")
			continue
		}
		if err := m.Load(strings.TrimSuffix(entry.Name(), ".js"), string(content)); err != nil {
			m.logger.Error().Err(err).Str("file", entry.Name()).Msg("failed to load hook script")
			continue
		}
		loaded++
	}

	m.logger.Info().
		Int("loaded", loaded).
		Str("directory", dir).
		Msg("hook scripts loaded")

	return nil
}

// Load compiles a script from source
func (m *Manager) Load(name, source string) error {
	events := extractHookDirectives(source)
	if len(events) == 0 {
		return errors.New("script missing @hook directive")
	}
	for _, event := range events {
		if !strings.HasPrefix(event, "before:") && !strings.HasPrefix(event, "after:") {
			return fmt.Errorf("invalid hook event %q: must start with before: or after:", event)
		}
	}

	program, err := goja.Compile(name, source, false)
	if err != nil {
		return fmt.Errorf("failed to compile script: %w", err)
	}

	m.mu.Lock()
	m.scripts = append(m.scripts, &Script{Name: name, Events: events, program: program})
	m.mu.Unlock()

	m.logger.Info().
		Str("name", name).
		Strs("events", events).
		Msg("hook script loaded")

	return nil
}

func extractHookDirectives(source string) []string {
	matches := hookDirectiveRegex.FindAllStringSubmatch(source, -1)
	events := make([]string, 0, len(matches))
	for _, match := range matches {
		events = append(events, match[1])
	}
	return events
}

// Scripts returns the loaded scripts
func (m *Manager) Scripts() []*Script {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*Script(nil), m.scripts...)
}

// Register adds a handler on reg for every event of every loaded script
func (m *Manager) Register(reg *hooks.Registry) []hooks.HandlerID {
	var ids []hooks.HandlerID
	for _, script := range m.Scripts() {
		for _, event := range script.Events {
			ids = append(ids, reg.On(event, m.handler(script, event)))
		}
	}
	return ids
}

func (m *Manager) handler(script *Script, event string) hooks.Handler {
	return func(ctx context.Context, payload any) error {
		m.mu.RLock()
		timeout := m.timeout
		m.mu.RUnlock()

		if err := m.execute(ctx, script, event, payload, timeout); err != nil {
			m.logger.Error().
				Err(err).
				Str("script", script.Name).
				Str("event", event).
				Msg("hook script failed")
			return fmt.Errorf("hook script %s: %w", script.Name, err)
		}
		return nil
	}
}

// execute runs one handler in a fresh runtime
func (m *Manager) execute(ctx context.Context, script *Script, event string, payload any, timeout time.Duration) error {
	runtime := NewRuntime(m.logger)
	vm := runtime.VM()

	timer := time.AfterFunc(timeout, func() {
		vm.Interrupt("hook script timed out")
	})
	defer timer.Stop()
	stop := context.AfterFunc(ctx, func() {
		vm.Interrupt(ctx.Err())
	})
	defer stop()

	if _, err := vm.RunProgram(script.program); err != nil {
		return scriptError(err)
	}

	handle, ok := goja.AssertFunction(vm.Get("handle"))
	if !ok {
		return errors.New("handle function not defined")
	}

	call, err := newCallObject(runtime, event, payload)
	if err != nil {
		return err
	}

	if _, err := handle(goja.Undefined(), call.object); err != nil {
		return scriptError(err)
	}
	return call.err
}

func scriptError(err error) error {
	var exception *goja.Exception
	if errors.As(err, &exception) {
		return errors.New(exception.String())
	}
	return err
}

// Close drops all loaded scripts
func (m *Manager) Close() {
	m.mu.Lock()
	m.scripts = nil
	m.mu.Unlock()
	m.logger.Info().Msg("hook script manager closed")
}
