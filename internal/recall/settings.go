package recall

import (
	"slices"
	"time"
)

// DelayMode selects how the default group delay is resolved.
type DelayMode string

const (
	// DelayFlat uses one group delay for every group.
	DelayFlat DelayMode = "flat"
	// DelayByRole uses the admin or member delay depending on the bot's group role.
	DelayByRole DelayMode = "role"
)

// Settings is an immutable snapshot of the recall configuration taken for one evaluation.
type Settings struct {
	EnablePrivate bool
	EnableGroup   bool
	// Whitelist lists the group ids opted into recall. Empty means every group.
	Whitelist []string

	PrivateDelay time.Duration
	GroupDelay   time.Duration
	AdminDelay   time.Duration
	MemberDelay  time.Duration
	MaxDelay     time.Duration
	DelayMode    DelayMode

	AdminOnly bool
	Admins    []string
}

// Whitelisted reports whether groupID may be recalled in. An empty whitelist allows all groups.
func (s Settings) Whitelisted(groupID string) bool {
	if len(s.Whitelist) == 0 {
		return true
	}
	return slices.Contains(s.Whitelist, groupID)
}

// Listed reports whether groupID is explicitly present in the whitelist.
func (s Settings) Listed(groupID string) bool {
	return slices.Contains(s.Whitelist, groupID)
}

// IsAdmin reports whether senderID is a configured administrator.
func (s Settings) IsAdmin(senderID string) bool {
	return senderID != "" && slices.Contains(s.Admins, senderID)
}

// SettingsSource is the configuration collaborator.
// Settings must return a snapshot the caller may read without further locking.
type SettingsSource interface {
	Settings() Settings
	SetWhitelist(groupIDs []string) error
}

// StaticSettings is a SettingsSource over a fixed value; whitelist writes are kept in memory.
type StaticSettings struct {
	s Settings
}

func NewStaticSettings(s Settings) *StaticSettings { return &StaticSettings{s: s} }

func (st *StaticSettings) Settings() Settings {
	s := st.s
	s.Whitelist = slices.Clone(st.s.Whitelist)
	s.Admins = slices.Clone(st.s.Admins)
	return s
}

func (st *StaticSettings) SetWhitelist(groupIDs []string) error {
	st.s.Whitelist = slices.Clone(groupIDs)
	return nil
}
