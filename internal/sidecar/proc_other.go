//go:build !unix

package sidecar

import (
	"os"
	"os/exec"
)

func configureProcAttr(*exec.Cmd) {}

func terminateProcess(p *os.Process) error {
	return p.Kill()
}

func killProcess(p *os.Process) error {
	return p.Kill()
}

func terminatePID(pid int) error {
	p, err := os.FindProcess(pid)
	if err != nil {
		return nil
	}
	return p.Kill()
}

func killPID(pid int) error {
	return terminatePID(pid)
}

func processAlive(pid int) bool {
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	p.Release()
	return true
}

func exitSignal(*os.ProcessState) string {
	return ""
}
