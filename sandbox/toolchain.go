package sandbox

import (
	"errors"
	"fmt"
	"strings"

	"github.com/isdmx/coderoom/config"
)

// LanguageName constants
const (
	LanguageC      = "c"
	LanguageCPP    = "cpp"
	LanguagePython = "python"
)

// Placeholders substituted in toolchain argument templates. Substitution is
// per argument, so a path can never split into several arguments.
const (
	PlaceholderSource = "{src}"
	PlaceholderBinary = "{bin}"
)

// ErrUnsupportedLanguage is matched by UnsupportedLanguageError via errors.Is
var ErrUnsupportedLanguage = errors.New("unsupported language")

// UnsupportedLanguageError reports a language tag with no toolchain
type UnsupportedLanguageError struct {
	Language string
}

func (e *UnsupportedLanguageError) Error() string {
	return fmt.Sprintf("unsupported language: %s", e.Language)
}

// Is makes errors.Is(err, ErrUnsupportedLanguage) hold
func (*UnsupportedLanguageError) Is(target error) bool {
	return target == ErrUnsupportedLanguage
}

// Toolchain describes how to build and run one language
type Toolchain struct {
	Language  string
	Extension string
	// Compile is empty for interpreted languages
	Compile []string
	Run     []string
	Image   string
	Env     []string
}

// Compiled reports whether the language has a separate compile step
func (t Toolchain) Compiled() bool {
	return len(t.Compile) > 0
}

// CompileArgs returns the compiler invocation for the given paths
func (t Toolchain) CompileArgs(src, bin string) []string {
	return expand(t.Compile, src, bin)
}

// RunArgs returns the program invocation for the given paths
func (t Toolchain) RunArgs(src, bin string) []string {
	return expand(t.Run, src, bin)
}

func expand(template []string, src, bin string) []string {
	args := make([]string, len(template))
	for i, arg := range template {
		arg = strings.ReplaceAll(arg, PlaceholderSource, src)
		args[i] = strings.ReplaceAll(arg, PlaceholderBinary, bin)
	}
	return args
}

// Toolchains maps language tags to their toolchain
type Toolchains map[string]Toolchain

// Lookup returns the toolchain of language or an UnsupportedLanguageError
func (t Toolchains) Lookup(language string) (Toolchain, error) {
	tc, ok := t[language]
	if !ok {
		return Toolchain{}, &UnsupportedLanguageError{Language: language}
	}
	return tc, nil
}

// DefaultToolchains returns gcc, g++ and python3 toolchains
func DefaultToolchains() Toolchains {
	return Toolchains{
		LanguageC: {
			Language:  LanguageC,
			Extension: ".c",
			Compile:   []string{"gcc", PlaceholderSource, "-o", PlaceholderBinary},
			Run:       []string{PlaceholderBinary},
			Image:     "gcc:13",
		},
		LanguageCPP: {
			Language:  LanguageCPP,
			Extension: ".cpp",
			Compile:   []string{"g++", PlaceholderSource, "-o", PlaceholderBinary},
			Run:       []string{PlaceholderBinary},
			Image:     "gcc:13",
		},
		LanguagePython: {
			Language:  LanguagePython,
			Extension: ".py",
			Run:       []string{"python3", PlaceholderSource},
			Image:     "python:3.11-slim",
			Env:       []string{"PYTHONDONTWRITEBYTECODE=1", "PYTHONUNBUFFERED=1"},
		},
	}
}

// ToolchainsFromConfig applies the languages section of the configuration
// on top of the defaults. Extra args are inserted right after the compiler
// or interpreter.
func ToolchainsFromConfig(cfg *config.Config) Toolchains {
	toolchains := DefaultToolchains()
	for name, tc := range toolchains {
		lc, ok := cfg.Languages[name]
		if !ok {
			continue
		}
		if tc.Compiled() {
			tc.Compile = override(tc.Compile, lc.Compiler, lc.Args)
		} else {
			tc.Run = override(tc.Run, lc.Interpreter, lc.Args)
		}
		if lc.Image != "" {
			tc.Image = lc.Image
		}
		toolchains[name] = tc
	}
	return toolchains
}

func override(template []string, program string, extra []string) []string {
	out := make([]string, 0, len(template)+len(extra))
	if program != "" {
		out = append(out, program)
	} else {
		out = append(out, template[0])
	}
	out = append(out, extra...)
	return append(out, template[1:]...)
}
