package scan

import (
	"github.com/shirou/gopsutil/v3/process"
)

// killTree kills pid and every descendant, children first.
func killTree(pid int) error {
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return err
	}
	return killProcess(p)
}

func killProcess(p *process.Process) error {
	children, _ := p.Children()
	for _, c := range children {
		_ = killProcess(c)
	}
	return p.Kill()
}
