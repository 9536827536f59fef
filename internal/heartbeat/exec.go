package heartbeat

import (
	"bytes"
	"os/exec"
)

// runCaptured runs cmd to completion, capturing stdout/stderr separately
// so a failure can be reported via notify.UpdateFailure (spec §4.5 step 4).
func runCaptured(cmd *exec.Cmd) (stdout, stderr string, err error) {
	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf
	err = cmd.Run()
	return outBuf.String(), errBuf.String(), err
}
