// Package process runs allow-listed local commands as Tree Functions.
package process

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/aretw0/actdata/internal/logging"
	"github.com/aretw0/actdata/pkg/domain"
	"github.com/aretw0/actdata/pkg/registry"
	"github.com/aretw0/actdata/pkg/schema"
)

// EnvPrefix prefixes the environment variables carrying the input values.
const EnvPrefix = "ACTDATA_INPUT_"

// Request is written as JSON to the command's stdin.
type Request struct {
	Host    string   `json:"host"`
	Inputs  []any    `json:"inputs"`
	Outputs []string `json:"outputs"`
}

// Function is a Tree Function backed by a fixed command line. Input values reach the
// command as ACTDATA_INPUT_<i> environment variables and as a JSON Request on stdin. The
// command prints a JSON array with one value per declared output.
//
// Inputs are never passed as command arguments, so a value cannot inject flags.
type Function struct {
	Command string
	Args    []string
	Env     map[string]string
	Dir     string

	logger *slog.Logger
}

// Option configures a Function.
type Option func(*Function)

// WithEnv adds fixed environment variables.
func WithEnv(env map[string]string) Option {
	return func(f *Function) {
		f.Env = env
	}
}

// WithDir sets the working directory of the command.
func WithDir(dir string) Option {
	return func(f *Function) {
		f.Dir = dir
	}
}

// WithLogger configures a logger for the Function.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Function) {
		f.logger = logger
	}
}

// New creates a Function running command with args.
func New(command string, args []string, opts ...Option) *Function {
	f := &Function{Command: command, Args: args, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Register adds f to reg under id.
func Register(reg *registry.Registry, id domain.FunctionID, f *Function) {
	reg.RegisterFunction(id, f)
}

// Execute runs the command once and writes its results to the declared outputs.
func (f *Function) Execute(ctx context.Context, fc registry.FunctionContext) error {
	b := fc.Binding()
	req := Request{Host: fc.Host().String()}
	env := make([]string, 0, len(b.Inputs)+len(f.Env))
	for i := range b.Inputs {
		v, err := fc.Input(i)
		if err != nil {
			return err
		}
		raw := schema.Raw(v)
		req.Inputs = append(req.Inputs, raw)
		env = append(env, fmt.Sprintf("%s%d=%s", EnvPrefix, i, envValue(raw)))
	}
	for _, g := range b.Outputs {
		req.Outputs = append(req.Outputs, g.String())
	}
	for k, v := range f.Env {
		env = append(env, k+"="+v)
	}

	stdin, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	cmd := exec.CommandContext(ctx, f.Command, f.Args...)
	cmd.Dir = f.Dir
	cmd.Env = append(cmd.Environ(), env...)
	cmd.Stdin = bytes.NewReader(stdin)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	f.logger.Debug("running process function", "host", req.Host, "command", f.Command)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s: %w: %s", f.Command, err, strings.TrimSpace(stderr.String()))
	}

	var results []any
	if err := json.Unmarshal(bytes.TrimSpace(stdout.Bytes()), &results); err != nil {
		return fmt.Errorf("%s: output is not a JSON array: %w", f.Command, err)
	}
	if len(results) != len(b.Outputs) {
		return fmt.Errorf("%s: printed %d values for %d outputs", f.Command, len(results), len(b.Outputs))
	}
	for i, raw := range results {
		kind, err := fc.OutputKind(i)
		if err != nil {
			return err
		}
		v, err := schema.Coerce(kind, raw)
		if err != nil {
			return fmt.Errorf("output %d: %w", i, err)
		}
		if err := fc.SetOutput(i, v); err != nil {
			return err
		}
	}
	return nil
}

// envValue prints primitives as-is and everything else as JSON.
func envValue(raw any) string {
	switch v := raw.(type) {
	case string:
		return v
	case bool, int64, float64:
		return fmt.Sprint(v)
	case nil:
		return ""
	}
	if b, err := json.Marshal(raw); err == nil {
		return string(b)
	}
	return fmt.Sprint(raw)
}
