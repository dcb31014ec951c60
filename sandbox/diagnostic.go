package sandbox

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Line extraction is a heuristic over toolchain text and may find nothing
// for some compilers or locales.
var (
	linePattern = regexp.MustCompile(`line (\d+)`)
	// gcc/clang: "main.c:4:5: error: ..."
	locationPattern = regexp.MustCompile(`:(\d+):\d+: (?:fatal )?error`)
)

// Output texts
const (
	diagnosticHeader = "Compilation Error:\n"
	noOutput         = "No output"
)

// ExtractLine returns the first source line number mentioned in diag
func ExtractLine(diag string) (int, bool) {
	for _, re := range []*regexp.Regexp{linePattern, locationPattern} {
		if m := re.FindStringSubmatch(diag); m != nil {
			n, err := strconv.Atoi(m[1])
			if err == nil && n > 0 {
				return n, true
			}
		}
	}
	return 0, false
}

// FormatDiagnostic renders a failed execution for participants. When diag
// points at an existing, non-blank source line, the error lines and that
// source line are echoed; otherwise diag is returned verbatim.
func FormatDiagnostic(source, diag string) string {
	var b strings.Builder
	b.WriteString(diagnosticHeader)

	lines := strings.Split(source, "\n")
	n, ok := ExtractLine(diag)
	if !ok || n > len(lines) || strings.TrimSpace(lines[n-1]) == "" {
		b.WriteString(diag)
		return b.String()
	}

	fmt.Fprintf(&b, "Error at Line %d: %s\n", n, errorLines(diag))
	fmt.Fprintf(&b, "Code: %s\n", strings.TrimSpace(lines[n-1]))
	return b.String()
}

func errorLines(diag string) string {
	var kept []string
	for _, line := range strings.Split(diag, "\n") {
		if strings.Contains(line, "error") || strings.Contains(line, "Error") {
			kept = append(kept, line)
		}
	}
	if len(kept) == 0 {
		return strings.TrimSpace(diag)
	}
	return strings.Join(kept, "\n")
}

// classify turns raw process output into a Result. A nonzero exit or any
// stderr output is a failure.
func classify(source, stdout, stderr string, exitCode int) Result {
	res := Result{
		Stdout:   stdout,
		Stderr:   stderr,
		ExitCode: exitCode,
		Success:  exitCode == 0 && stderr == "",
	}

	switch {
	case res.Success && stdout == "":
		res.Output = noOutput
	case res.Success:
		res.Output = stdout
	default:
		diag := stderr
		if diag == "" {
			diag = fmt.Sprintf("process exited with status %d", exitCode)
			if stdout != "" {
				diag = strings.TrimRight(stdout, "\n") + "\n" + diag
			}
		}
		res.Output = FormatDiagnostic(source, diag)
	}
	return res
}
