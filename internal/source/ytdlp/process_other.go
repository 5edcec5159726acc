//go:build !unix

package ytdlp

import "os/exec"

func killGroup(cmd *exec.Cmd) {}
