package codec

import "time"

type StatusInfo struct {
	Pid        int        `json:"pid" yaml:"pid"`
	NetName    string     `json:"netname,omitempty" yaml:"netname,omitempty"`
	Phase      Phase      `json:"phase" yaml:"phase"`
	Fault      FaultState `json:"fault" yaml:"fault"`
	Detached   bool       `json:"detached" yaml:"detached"`
	DebugLevel int        `json:"debug_level" yaml:"debug_level"`
	Elevated   bool       `json:"elevated" yaml:"elevated"`
	StartedAt  time.Time  `json:"started_at" yaml:"started_at"`
	Version    string     `json:"version" yaml:"version"`
}

type ResponseMsg struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Status  *StatusInfo `json:"status,omitempty"`
}
