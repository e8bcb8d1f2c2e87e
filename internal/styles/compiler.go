// Package styles holds the stylesheet collaborators of the pipeline: the
// compiler front end, the transform chain (vendor prefixing, media query
// grouping, minification) and content-hashed output naming.
package styles

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/conneroisu/assetpipe/internal/errors"
)

// Compiler turns one stylesheet entry point into CSS.
type Compiler interface {
	Compile(ctx context.Context, path string) ([]byte, error)
}

// CompilerFunc adapts a function to the Compiler interface.
type CompilerFunc func(ctx context.Context, path string) ([]byte, error)

// Compile calls f.
func (f CompilerFunc) Compile(ctx context.Context, path string) ([]byte, error) {
	return f(ctx, path)
}

// Passthrough reads plain CSS files unchanged.
var Passthrough = CompilerFunc(func(ctx context.Context, path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewIOError(errors.ErrCodeReadFailed, "failed to read stylesheet", err).
			WithLocation(path, 0, 0)
	}
	return data, nil
})

// CommandCompiler runs an external compiler such as dart-sass. The entry path
// is passed as the last argument and the compiled CSS is read from stdout.
type CommandCompiler struct {
	Command string
	Args    []string
	Dir     string
}

// NewCommandCompiler creates a compiler for command with fixed args.
func NewCommandCompiler(command string, args ...string) *CommandCompiler {
	return &CommandCompiler{
		Command: command,
		Args:    args,
	}
}

// Compile runs the compiler on path. A failed run is returned as a build error
// wrapping the first diagnostic parsed from stderr.
func (c *CommandCompiler) Compile(ctx context.Context, path string) ([]byte, error) {
	if err := c.validateCommand(); err != nil {
		return nil, errors.ErrCompileFailed(path, err)
	}

	args := append(append([]string(nil), c.Args...), path)
	cmd := exec.CommandContext(ctx, c.Command, args...)
	cmd.Dir = c.Dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%s interrupted: %w", c.Command, ctx.Err())
		}
		if stderrors.Is(err, exec.ErrNotFound) {
			return nil, errors.ErrCompileFailed(path, fmt.Errorf("compiler %q not found in PATH: %w", c.Command, err))
		}

		diagnostics := errors.ParseCompilerOutput(stderr.String(), path)
		if len(diagnostics) == 0 {
			return nil, errors.ErrCompileFailed(path, err)
		}
		diag := diagnostics[0]
		return nil, errors.ErrCompileFailed(path, &diag).
			WithContext("exit", err.Error()).
			WithLocation(diag.File, diag.Line, diag.Column)
	}

	return stdout.Bytes(), nil
}

// validateCommand rejects shell metacharacters. Commands are executed
// directly, but a config file should never smuggle a pipeline in.
func (c *CommandCompiler) validateCommand() error {
	if strings.TrimSpace(c.Command) == "" {
		return fmt.Errorf("no compiler command configured")
	}
	for _, value := range append([]string{c.Command}, c.Args...) {
		if strings.ContainsAny(value, ";&|`$<>\n") {
			return fmt.Errorf("invalid compiler argument %q", value)
		}
	}
	return nil
}

// ByExtension dispatches on the entry point's file extension and falls back
// to fallback for anything unlisted.
type ByExtension struct {
	Compilers map[string]Compiler
	Fallback  Compiler
}

// Compile picks the compiler for path's extension.
func (b *ByExtension) Compile(ctx context.Context, path string) ([]byte, error) {
	if compiler, ok := b.Compilers[strings.ToLower(filepath.Ext(path))]; ok {
		return compiler.Compile(ctx, path)
	}
	if b.Fallback == nil {
		return nil, errors.ErrCompileFailed(path, fmt.Errorf("no compiler for %s files", filepath.Ext(path)))
	}
	return b.Fallback.Compile(ctx, path)
}

// NewDefaultCompiler compiles .css files as-is and sends everything else to
// the external command.
func NewDefaultCompiler(command string, args ...string) *ByExtension {
	return &ByExtension{
		Compilers: map[string]Compiler{".css": Passthrough},
		Fallback:  NewCommandCompiler(command, args...),
	}
}

// IsPartial reports whether path is a Sass partial, which is only ever
// imported and never compiled on its own.
func IsPartial(path string) bool {
	return strings.HasPrefix(filepath.Base(path), "_")
}
