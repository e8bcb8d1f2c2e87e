// Package errors provides the structured error types of the asset pipeline,
// compiler output parsing and the HTML error overlay shown by the dev server.
//
// Compile failures are recoverable PipelineErrors of type build that wrap one
// BuildError diagnostic; filesystem failures during clean or write are
// non-recoverable io errors.
package errors

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

type errorPattern struct {
	regex       *regexp.Regexp
	parseFields func(matches []string) (file string, line int, column int, message string)
}

var (
	// dart-sass prints the message on an "Error:" line and the location in a
	// trailing stack frame such as "  styles/site.scss 3:15  root stylesheet".
	sassMessagePattern  = regexp.MustCompile(`^Error:\s*(.+)$`)
	sassLocationPattern = regexp.MustCompile(`^\s*(\S+\.(?:scss|sass|css))\s+(\d+):(\d+)\s+`)

	// Compilers that follow the file:line:col: message convention.
	lineColPatterns = []errorPattern{
		{
			regex: regexp.MustCompile(`^(\S+\.(?:scss|sass|css)):(\d+):(\d+):\s*(?:error:\s*)?(.+)$`),
			parseFields: func(m []string) (string, int, int, string) {
				line, _ := strconv.Atoi(m[2])
				column, _ := strconv.Atoi(m[3])
				return m[1], line, column, m[4]
			},
		},
		{
			regex: regexp.MustCompile(`^(\S+\.(?:scss|sass|css)):(\d+):\s*(?:error:\s*)?(.+)$`),
			parseFields: func(m []string) (string, int, int, string) {
				line, _ := strconv.Atoi(m[2])
				return m[1], line, 0, m[3]
			},
		},
	}
)

// ParseCompilerOutput extracts diagnostics from stylesheet compiler stderr.
// fallbackFile is used when the output names no file. Output that matches no
// known format becomes a single diagnostic carrying the raw text.
func ParseCompilerOutput(output string, fallbackFile string) []BuildError {
	output = strings.TrimSpace(output)
	if output == "" {
		return nil
	}

	now := time.Now()
	lines := strings.Split(output, "\n")

	var diagnostics []BuildError
	var pending *BuildError

	for _, raw := range lines {
		line := strings.TrimRight(raw, "\r")

		if m := sassMessagePattern.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
			if pending != nil {
				diagnostics = append(diagnostics, *pending)
			}
			pending = &BuildError{
				File:      fallbackFile,
				Message:   m[1],
				Severity:  ErrorSeverityError,
				Timestamp: now,
			}
			continue
		}

		if pending != nil && pending.Line == 0 {
			if m := sassLocationPattern.FindStringSubmatch(line); m != nil {
				pending.File = m[1]
				pending.Line, _ = strconv.Atoi(m[2])
				pending.Column, _ = strconv.Atoi(m[3])
				continue
			}
		}

		for _, pattern := range lineColPatterns {
			if m := pattern.regex.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
				file, lineNum, column, message := pattern.parseFields(m)
				diagnostics = append(diagnostics, BuildError{
					File:      file,
					Line:      lineNum,
					Column:    column,
					Message:   message,
					Severity:  ErrorSeverityError,
					Timestamp: now,
				})
				break
			}
		}
	}

	if pending != nil {
		diagnostics = append(diagnostics, *pending)
	}

	if len(diagnostics) == 0 {
		diagnostics = append(diagnostics, BuildError{
			File:      fallbackFile,
			Message:   output,
			Severity:  ErrorSeverityError,
			Timestamp: now,
		})
	}

	return diagnostics
}
