package codec

// Phase 生命周期控制器所处的阶段
type Phase string

const (
	PhaseInitializing Phase = "Initializing"
	PhaseDaemonized   Phase = "Daemonized"
	PhaseRunning      Phase = "Running"
	PhaseRestarting   Phase = "Restarting"
	PhaseTerminating  Phase = "Terminating"
)

// FaultState 故障重启状态机的状态
type FaultState string

const (
	FaultNormal    FaultState = "Normal"
	FaultOnce      FaultState = "FaultOnce"
	FaultRestarted FaultState = "Restarted"
	FaultDead      FaultState = "Dead"
)
