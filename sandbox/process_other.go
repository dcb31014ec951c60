//go:build !unix

package sandbox

import "os/exec"

// killProcessGroupOnCancel relies on the default exec.CommandContext kill on
// platforms without process groups.
func killProcessGroupOnCancel(*exec.Cmd) {}
