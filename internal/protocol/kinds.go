package protocol

// Packet kinds form a closed, versionless enumeration. The dispatcher
// ignores kinds it does not recognize to tolerate protocol drift between
// client and server versions.
const (
	KindLogin            = "login"
	KindRegister         = "register"
	KindLoginResponse    = "login-response"
	KindSettlement       = "settlement"
	KindSite             = "site"
	KindFaction          = "faction"
	KindTransfer         = "transfer"
	KindVisit            = "visit"
	KindOfflineVisit     = "offline-visit"
	KindRaid             = "raid"
	KindSpy              = "spy"
	KindEvent            = "event"
	KindChat             = "chat"
	KindWorld            = "world"
	KindCustomDifficulty = "custom-difficulty"
	KindSaveFile         = "save-file"
	KindLoadFile         = "load-file"
	KindResetSave        = "reset-save"
	KindMap              = "map"
	KindCommand          = "command"
	KindLikelihood       = "likelihood"
	KindPlayerRecount    = "player-recount"
	KindIllegalAction    = "illegal-action"
	KindUserUnavailable  = "user-unavailable"
	KindBreak            = "break"
)
