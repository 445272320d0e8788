package codec

type ActionCtl int

const (
	ActionStatus ActionCtl = iota
	ActionReload
	ActionPurge
)

var ActionResponse = map[ActionCtl]string{
	ActionStatus: "Check daemon status successfully",
	ActionReload: "Reload requested",
	ActionPurge:  "Purge requested",
}

type ActionMsg struct {
	Action ActionCtl `cbor:""`
}
