package protocol

// LoginResponse tells a joining client how its login or registration attempt
// resolved.
type LoginResponse int

const (
	ResponseInvalidLogin LoginResponse = iota
	ResponseBannedLogin
	ResponseRegisterSuccess
	ResponseRegisterInUse
	ResponseRegisterError
	ResponseExtraLogin
	ResponseWrongMods
	ResponseServerFull
	ResponseNotWhitelisted
)

// LoginDetails is the payload of login and register packets, and of the
// login-response replies.
type LoginDetails struct {
	Username        string        `json:"username,omitempty"`
	Password        string        `json:"password,omitempty"`
	Mods            []string      `json:"mods,omitempty"`
	Response        LoginResponse `json:"response,omitempty"`
	ConflictingMods []string      `json:"conflictingMods,omitempty"`
}

type SettlementStep int

const (
	SettlementAdd SettlementStep = iota
	SettlementRemove
)

// SettlementDetails describes a settlement claim or removal. Likelihood is
// observer-relative and filled in per recipient on broadcasts.
type SettlementDetails struct {
	Step       SettlementStep `json:"step"`
	Tile       string         `json:"tile"`
	Owner      string         `json:"owner,omitempty"`
	Likelihood float64        `json:"likelihood,omitempty"`
}

type SiteStep int

const (
	SiteAccept SiteStep = iota
	SiteBuild
	SiteDestroy
	SiteInfo
	SiteDeposit
	SiteRetrieve
	SiteReward
)

type SiteDetails struct {
	Step         SiteStep `json:"step"`
	Tile         string   `json:"tile,omitempty"`
	Owner        string   `json:"owner,omitempty"`
	Type         string   `json:"type,omitempty"`
	FactionOwned bool     `json:"factionOwned,omitempty"`
	WorkerData   string   `json:"workerData,omitempty"`
	Likelihood   float64  `json:"likelihood,omitempty"`
	// Tiles of the recipient's reward-eligible sites, sent on reward ticks.
	RewardTiles []string `json:"rewardTiles,omitempty"`
}

type FactionMode int

const (
	FactionCreate FactionMode = iota
	FactionDelete
	FactionNameInUse
	FactionNoPower
	FactionAddMember
	FactionRemoveMember
	FactionAcceptInvite
	FactionPromote
	FactionDemote
	FactionAdminProtection
	FactionMemberList
)

// FactionMemberEntry is one row of a member-list projection.
type FactionMemberEntry struct {
	Username string `json:"username"`
	Rank     int    `json:"rank"`
}

// FactionManifest is the payload of all faction packets. Details carries the
// action argument: a faction name for Create/AcceptInvite, a member's
// settlement tile for the targeted actions.
type FactionManifest struct {
	Mode    FactionMode          `json:"mode"`
	Details string               `json:"details,omitempty"`
	Members []FactionMemberEntry `json:"members,omitempty"`
}

type TransferKind int

const (
	TransferGift TransferKind = iota
	TransferTrade
	TransferRebound
	TransferPod
)

type TransferStep int

const (
	TransferRequest TransferStep = iota
	TransferAccept
	TransferReject
	TransferReRequest
	TransferReAccept
	TransferReReject
	TransferRecover
)

// TransferManifest carries an in-flight trade negotiation. The server is a
// relay with validation, not a store: the whole negotiation state travels in
// the payload.
type TransferManifest struct {
	Kind     TransferKind `json:"kind"`
	Step     TransferStep `json:"step"`
	FromTile string       `json:"fromTile"`
	ToTile   string       `json:"toTile"`
	Cargo    []string     `json:"cargo,omitempty"`
}

type VisitStep int

const (
	VisitRequest VisitStep = iota
	VisitAccept
	VisitReject
	VisitUnavailable
	VisitAction
	VisitStop
)

type VisitDetails struct {
	Step       VisitStep `json:"step"`
	FromTile   string    `json:"fromTile,omitempty"`
	TargetTile string    `json:"targetTile,omitempty"`
	Visitor    string    `json:"visitor,omitempty"`
	// Opaque action payload relayed between paired clients.
	Actions []string `json:"actions,omitempty"`
}

type MapRequestStep int

const (
	MapRequest MapRequestStep = iota
	MapDeny
)

// MapRequestDetails is shared by the offline-visit, spy and raid kinds: all
// three are map-retrieval variants differing only in their kind tag.
type MapRequestDetails struct {
	Step MapRequestStep `json:"step"`
	Tile string         `json:"tile"`
	// Serialized map payload, filled in on successful replies.
	MapData string `json:"mapData,omitempty"`
}

type EventStep int

const (
	EventSend EventStep = iota
	EventReceive
	EventRecover
)

type EventDetails struct {
	Step   EventStep `json:"step"`
	ToTile string    `json:"toTile"`
	// Opaque event payload interpreted by the receiving client.
	Payload string `json:"payload,omitempty"`
}

type MessageColor int

const (
	ColorNormal MessageColor = iota
	ColorAdmin
	ColorConsole
)

// ChatMessages carries one or more chat lines; the four lists are aligned
// by index.
type ChatMessages struct {
	Usernames     []string       `json:"usernames"`
	Messages      []string       `json:"messages"`
	UserColors    []MessageColor `json:"userColors,omitempty"`
	MessageColors []MessageColor `json:"messageColors,omitempty"`
}

type CommandType int

const (
	CommandOp CommandType = iota
	CommandDeop
	CommandBan
	CommandDisconnect
	CommandQuit
	CommandBroadcast
	CommandForceSave
)

type CommandDetails struct {
	Type    CommandType `json:"type"`
	Details string      `json:"details,omitempty"`
}

type WorldStep int

const (
	WorldRequired WorldStep = iota
	WorldExisting
	WorldSaved
)

type WorldDetails struct {
	Step           WorldStep `json:"step"`
	Seed           string    `json:"seed,omitempty"`
	PlanetCoverage string    `json:"planetCoverage,omitempty"`
	Rainfall       string    `json:"rainfall,omitempty"`
	Temperature    string    `json:"temperature,omitempty"`
	Population     string    `json:"population,omitempty"`
	Pollution      string    `json:"pollution,omitempty"`
	Factions       []string  `json:"factions,omitempty"`
}

type DifficultyDetails struct {
	// Opaque difficulty values blob produced by the client mod.
	Values string `json:"values"`
}

type SaveMode int

const (
	SaveDisconnect SaveMode = iota
	SaveQuit
	SaveAutosave
	SaveTransfer
	SaveEvent
)

type SaveFileDetails struct {
	Mode SaveMode `json:"mode"`
	// Base64-encoded save payload.
	Data string `json:"data"`
}

type MapDetails struct {
	Tile string `json:"tile"`
	// Base64-encoded serialized map payload.
	Data string `json:"data"`
}

type PlayerRecount struct {
	Count int      `json:"count"`
	Names []string `json:"names"`
}

type Relation int

const (
	RelationNeutral Relation = iota
	RelationAlly
	RelationEnemy
)

// RelationDetails changes the sender's relationship with another player,
// which feeds the observer-relative likelihood scores.
type RelationDetails struct {
	Target   string   `json:"target"`
	Relation Relation `json:"relation"`
}

// LikelihoodValues pushes recomputed likelihood scores for the tiles the
// recipient can see. The two lists are aligned by index.
type LikelihoodValues struct {
	Tiles  []string  `json:"tiles"`
	Values []float64 `json:"values"`
}
