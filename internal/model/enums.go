package model

// Kind is the closed category of a generation job
type Kind string

const (
	KindMultiAngleRender Kind = "multi_angle_render"
	KindLookComposite    Kind = "look_composite"
	KindCreativeStill    Kind = "creative_still"
	KindModelPortrait    Kind = "model_portrait"
)

var ValidKinds = []Kind{
	KindMultiAngleRender, KindLookComposite, KindCreativeStill, KindModelPortrait,
}

var kindLabels = map[Kind]string{
	KindMultiAngleRender: "Multi-angle render",
	KindLookComposite:    "Look composite",
	KindCreativeStill:    "Creative still",
	KindModelPortrait:    "Model portrait",
}

// Default remote resource queried for each kind
var defaultResources = map[Kind]string{
	KindMultiAngleRender: "product_renders",
	KindLookComposite:    "look_composites",
	KindCreativeStill:    "creative_stills",
	KindModelPortrait:    "model_portraits",
}

// Valid reports whether k is one of the known kinds
func (k Kind) Valid() bool {
	_, ok := kindLabels[k]
	return ok
}

// Label returns the display label for the kind
func (k Kind) Label() string {
	if l, ok := kindLabels[k]; ok {
		return l
	}
	return string(k)
}

// DefaultResource returns the backing resource used when a job does not name one
func (k Kind) DefaultResource() string {
	return defaultResources[k]
}

// Job status
type JobStatus string

const (
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether no further transition can happen from s
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Unit status
type UnitStatus string

const (
	UnitStatusPending    UnitStatus = "pending"
	UnitStatusProcessing UnitStatus = "processing"
	UnitStatusCompleted  UnitStatus = "completed"
	UnitStatusFailed     UnitStatus = "failed"
)

// Plan tiers
type Tier string

const (
	TierFree    Tier = "free"
	TierStarter Tier = "starter"
	TierPro     Tier = "pro"
	TierStudio  Tier = "studio"
)

// Throttled tiers may run a single generation at a time across all tabs
func (t Tier) Throttled() bool {
	switch t {
	case TierPro, TierStudio:
		return false
	default:
		return true
	}
}

// Valid reports whether t is a known plan tier
func (t Tier) Valid() bool {
	switch t {
	case TierFree, TierStarter, TierPro, TierStudio:
		return true
	}
	return false
}
