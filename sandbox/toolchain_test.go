package sandbox

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isdmx/coderoom/config"
)

func TestDefaultToolchains(t *testing.T) {
	toolchains := DefaultToolchains()

	tests := []struct {
		language  string
		extension string
		compiled  bool
		compile   []string
		run       []string
	}{
		{LanguageC, ".c", true, []string{"gcc", "/w/a.c", "-o", "/w/a"}, []string{"/w/a"}},
		{LanguageCPP, ".cpp", true, []string{"g++", "/w/a.c", "-o", "/w/a"}, []string{"/w/a"}},
		{LanguagePython, ".py", false, []string{}, []string{"python3", "/w/a.c"}},
	}

	for _, tt := range tests {
		t.Run(tt.language, func(t *testing.T) {
			tc, err := toolchains.Lookup(tt.language)
			require.NoError(t, err)
			assert.Equal(t, tt.extension, tc.Extension)
			assert.Equal(t, tt.compiled, tc.Compiled())
			assert.Equal(t, tt.compile, tc.CompileArgs("/w/a.c", "/w/a"))
			assert.Equal(t, tt.run, tc.RunArgs("/w/a.c", "/w/a"))
		})
	}
}

func TestLookupUnsupported(t *testing.T) {
	_, err := DefaultToolchains().Lookup("java")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnsupportedLanguage))
	assert.Equal(t, "unsupported language: java", err.Error())
}

func TestPlaceholderStaysOneArgument(t *testing.T) {
	tc := DefaultToolchains()[LanguageC]
	args := tc.CompileArgs("/w/my file; rm -rf.c", "/w/my file")
	assert.Equal(t, []string{"gcc", "/w/my file; rm -rf.c", "-o", "/w/my file"}, args)
}

func TestToolchainsFromConfig(t *testing.T) {
	cfg := &config.Config{Languages: map[string]config.Language{
		"c":      {Compiler: "clang", Args: []string{"-std=c11", "-Wall"}, Image: "silkeh/clang:17"},
		"python": {Interpreter: "/usr/bin/python3.12", Args: []string{"-I"}},
		"cpp":    {},
	}}

	toolchains := ToolchainsFromConfig(cfg)

	c := toolchains[LanguageC]
	assert.Equal(t, []string{"clang", "-std=c11", "-Wall", "s", "-o", "b"}, c.CompileArgs("s", "b"))
	assert.Equal(t, "silkeh/clang:17", c.Image)

	py := toolchains[LanguagePython]
	assert.Equal(t, []string{"/usr/bin/python3.12", "-I", "s"}, py.RunArgs("s", "b"))
	assert.Equal(t, "python:3.11-slim", py.Image)

	assert.Equal(t, DefaultToolchains()[LanguageCPP], toolchains[LanguageCPP])
}
