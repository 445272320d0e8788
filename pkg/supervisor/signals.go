package supervisor

import (
	"os"
	"os/signal"
	"sync"

	orderedmap "github.com/wk8/go-ordered-map/v2"
	"golang.org/x/sys/unix"
)

// Role 信号在分发表中的角色
type Role int

const (
	RoleDefault Role = iota
	RoleUnexpected
	RoleTerminate
	RoleFault
	RoleDoubleFault
	RoleHangup
	RoleAlarm
	RoleDebugToggle
	RoleDumpConnections
	RoleDumpAll
	RolePurge
	RoleIgnoreNoisy
	RoleIgnoreDefault
)

var roleNames = map[Role]string{
	RoleDefault:         "Default",
	RoleUnexpected:      "Unexpected",
	RoleTerminate:       "Terminate",
	RoleFault:           "Fault",
	RoleDoubleFault:     "DoubleFault",
	RoleHangup:          "Hangup",
	RoleAlarm:           "Alarm",
	RoleDebugToggle:     "DebugToggle",
	RoleDumpConnections: "DumpConnections",
	RoleDumpAll:         "DumpAll",
	RolePurge:           "Purge",
	RoleIgnoreNoisy:     "IgnoreNoisy",
	RoleIgnoreDefault:   "IgnoreDefault",
}

func (r Role) String() string {
	return roleNames[r]
}

// 进程状态已损坏的一类故障信号，第一次故障后升级为 RoleDoubleFault
var corruptionSignals = []unix.Signal{unix.SIGSEGV, unix.SIGBUS, unix.SIGILL}

// Binding 信号与角色的绑定
type Binding struct {
	Signal unix.Signal
	Role   Role
}

func defaultBindings() []Binding {
	return []Binding{
		{unix.SIGHUP, RoleHangup},
		{unix.SIGTERM, RoleTerminate},
		{unix.SIGQUIT, RoleTerminate},
		{unix.SIGSEGV, RoleFault},
		{unix.SIGBUS, RoleFault},
		{unix.SIGILL, RoleFault},
		{unix.SIGPIPE, RoleIgnoreNoisy},
		{unix.SIGINT, RoleDebugToggle},
		{unix.SIGUSR1, RoleDumpConnections},
		{unix.SIGUSR2, RoleDumpAll},
		{unix.SIGCHLD, RoleIgnoreDefault},
		{unix.SIGALRM, RoleAlarm},
		{unix.SIGWINCH, RolePurge},
		// Go 运行时用 SIGURG 做协程抢占，守护模式下会收到大量该信号
		{unix.SIGURG, RoleIgnoreDefault},
	}
}

// SignalTable 有序的信号分发表
//
// 安装之后绑定不再改变，唯一的例外是 Escalate：
// 第一次故障后把损坏类故障信号替换为只触发一次的 RoleDoubleFault。
type SignalTable struct {
	mu         sync.RWMutex
	foreground bool
	bindings   *orderedmap.OrderedMap[unix.Signal, Role]
}

// NewSignalTable 创建分发表
//
// 前台模式下 SIGSEGV 保持操作系统默认动作，方便开发者拿到 core dump；
// 不在表中的信号也保持默认动作。后台模式下未知信号记录日志后继续运行。
func NewSignalTable(foreground bool) *SignalTable {
	t := &SignalTable{
		foreground: foreground,
		bindings:   orderedmap.New[unix.Signal, Role](),
	}

	for _, b := range defaultBindings() {
		if foreground && b.Signal == unix.SIGSEGV {
			b.Role = RoleDefault
		}
		t.bindings.Set(b.Signal, b.Role)
	}

	return t
}

// Role 查询信号对应的角色
func (t *SignalTable) Role(sig unix.Signal) Role {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if role, ok := t.bindings.Get(sig); ok {
		return role
	}

	if t.foreground {
		return RoleDefault
	}

	return RoleUnexpected
}

// Bindings 按安装顺序返回当前绑定
func (t *SignalTable) Bindings() []Binding {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Binding, 0, t.bindings.Len())
	for pair := t.bindings.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, Binding{Signal: pair.Key, Role: pair.Value})
	}

	return out
}

// Notified 返回需要交给 signal.Notify 的信号，RoleDefault 的信号保持系统默认动作
func (t *SignalTable) Notified() []os.Signal {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]os.Signal, 0, t.bindings.Len())
	for pair := t.bindings.Oldest(); pair != nil; pair = pair.Next() {
		if pair.Value != RoleDefault {
			out = append(out, pair.Key)
		}
	}

	return out
}

// Escalate 把仍绑定为 RoleFault 的损坏类信号替换为 RoleDoubleFault，返回被替换的信号
func (t *SignalTable) Escalate() []unix.Signal {
	t.mu.Lock()
	defer t.mu.Unlock()

	escalated := make([]unix.Signal, 0, len(corruptionSignals))
	for _, sig := range corruptionSignals {
		if role, ok := t.bindings.Get(sig); ok && role == RoleFault {
			t.bindings.Set(sig, RoleDoubleFault)
			escalated = append(escalated, sig)
		}
	}

	return escalated
}

// InstallSignals 安装信号分发表并启动分发协程
//
// 后台模式下接收所有信号（未知信号只记录日志，避免被默认动作终止），
// 前台模式只接收表中非默认角色的信号。只应调用一次。
func (sv *Supervisor) InstallSignals() {
	sv.sigOnce.Do(func() {
		sv.sigCh = make(chan os.Signal, 16)

		if sv.table.foreground {
			signal.Notify(sv.sigCh, sv.table.Notified()...)
		} else {
			signal.Notify(sv.sigCh)
		}

		go sv.serveSignals(sv.sigCh)
	})
}

// stopSignals 停止接收信号，之后所有信号恢复默认动作
func (sv *Supervisor) stopSignals() {
	if sv.sigCh != nil {
		signal.Stop(sv.sigCh)
	}
}

func (sv *Supervisor) serveSignals(ch <-chan os.Signal) {
	for sig := range ch {
		s, ok := sig.(unix.Signal)
		if !ok {
			continue
		}
		sv.dispatch(s)
	}
}
