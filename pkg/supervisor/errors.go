package supervisor

import (
	"errors"
	"fmt"
)

var (
	ErrDetachFailed    = errors.New("couldn't detach from terminal")
	ErrLockWriteFailed = errors.New("cannot write lock file")
	ErrFaultSignal     = errors.New("got fatal signal")
	ErrDoubleFault     = errors.New("got another fatal signal")
)

// OutcomeKind 主循环结束的原因
type OutcomeKind int

const (
	OutcomeShutdown OutcomeKind = iota
	OutcomeRestart
	OutcomeDead
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeRestart:
		return "restart"
	case OutcomeDead:
		return "dead"
	default:
		return "shutdown"
	}
}

// Outcome 是 Run 的最终结果，由外层启动器负责执行：
// Shutdown 以 Status 退出，Restart 重新执行当前程序，Dead 以非零状态退出。
type Outcome struct {
	Kind   OutcomeKind
	Status int
	Err    error
}

func (o Outcome) String() string {
	if o.Err != nil {
		return fmt.Sprintf("%s (status %d): %v", o.Kind, o.Status, o.Err)
	}

	return fmt.Sprintf("%s (status %d)", o.Kind, o.Status)
}
