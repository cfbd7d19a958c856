package recall

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/selfrecall/selfrecall/internal/session"
)

// Status is the recall state of one session as shown by /recall_status.
type Status struct {
	Session session.Key `json:"session"`

	PrivateEnabled bool      `json:"privateEnabled"`
	GroupEnabled   bool      `json:"groupEnabled"`
	DelayMode      DelayMode `json:"delayMode"`
	PrivateDelay   float64   `json:"privateDelay"`
	GroupDelay     float64   `json:"groupDelay"`
	AdminDelay     float64   `json:"adminDelay"`
	MemberDelay    float64   `json:"memberDelay"`
	MaxDelay       float64   `json:"maxDelay"`
	WhitelistSize  int       `json:"whitelistSize"`

	// Listed is true when the session's group is explicitly whitelisted.
	Listed bool `json:"listed"`
	// Active is true when messages sent to this session are recalled.
	Active       bool    `json:"active"`
	DefaultDelay float64 `json:"defaultDelay"`
	HasOverride  bool    `json:"hasOverride"`
	Override     float64 `json:"override,omitempty"`
	InFlight     int     `json:"inFlight"`
}

// GetStatus assembles the Status for key. Delays are reported in seconds.
func (s *Service) GetStatus(ctx context.Context, key session.Key) (Status, error) {
	st := s.settings.Settings()
	out := Status{
		Session:        key,
		PrivateEnabled: st.EnablePrivate,
		GroupEnabled:   st.EnableGroup,
		DelayMode:      st.DelayMode,
		PrivateDelay:   st.PrivateDelay.Seconds(),
		GroupDelay:     st.GroupDelay.Seconds(),
		AdminDelay:     st.AdminDelay.Seconds(),
		MemberDelay:    st.MemberDelay.Seconds(),
		MaxDelay:       st.MaxDelay.Seconds(),
		WhitelistSize:  len(st.Whitelist),
		Active:         s.policy.ShouldRecall(st, key),
		InFlight:       s.registry.Len(),
	}
	if key.IsGroup() {
		out.Listed = st.Listed(key.ChatID)
	}
	if out.Active {
		out.DefaultDelay = s.policy.ResolveDelay(ctx, st, key).Seconds()
	}
	d, ok, err := s.overrides.Peek(ctx, key)
	if err != nil {
		return out, fmt.Errorf("recall: read override: %w", err)
	}
	if ok {
		out.HasOverride = true
		out.Override = d.Seconds()
	}
	return out, nil
}

// Render formats the status as a chat reply.
func (st Status) Render() string {
	var b strings.Builder
	b.WriteString("Recall status\n")
	fmt.Fprintf(&b, "Private chats: %s (%s)\n", onOff(st.PrivateEnabled), secs(st.PrivateDelay))
	if st.DelayMode == DelayByRole {
		fmt.Fprintf(&b, "Groups: %s (admin %s / member %s)\n", onOff(st.GroupEnabled), secs(st.AdminDelay), secs(st.MemberDelay))
	} else {
		fmt.Fprintf(&b, "Groups: %s (%s)\n", onOff(st.GroupEnabled), secs(st.GroupDelay))
	}
	if st.WhitelistSize == 0 {
		b.WriteString("Whitelist: empty, all groups allowed\n")
	} else {
		fmt.Fprintf(&b, "Whitelist: %d group(s)\n", st.WhitelistSize)
	}
	fmt.Fprintf(&b, "Max delay: %s\n", secs(st.MaxDelay))

	if st.Session.IsGroup() {
		listed := "not listed"
		if st.Listed {
			listed = "listed"
		}
		fmt.Fprintf(&b, "This group: %s, %s\n", listed, activeText(st.Active))
	} else {
		fmt.Fprintf(&b, "This chat: %s\n", activeText(st.Active))
	}
	if st.Active {
		fmt.Fprintf(&b, "Default delay here: %s\n", secs(st.DefaultDelay))
	}
	if st.HasOverride {
		fmt.Fprintf(&b, "Next message: recalled after %s\n", secs(st.Override))
	}
	fmt.Fprintf(&b, "Pending recalls: %d", st.InFlight)
	return b.String()
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

func activeText(v bool) string {
	if v {
		return "recall active"
	}
	return "recall inactive"
}

func secs(s float64) string {
	return (time.Duration(s * float64(time.Second))).Round(time.Millisecond).String()
}
