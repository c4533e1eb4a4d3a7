package models

// InvitationStatus is the lifecycle state of a team invitation.
type InvitationStatus string

const (
	InvitationPending   InvitationStatus = "pending"
	InvitationAccepted  InvitationStatus = "accepted"
	InvitationDeclined  InvitationStatus = "declined"
	InvitationCancelled InvitationStatus = "cancelled"
	InvitationExpired   InvitationStatus = "expired"
)

// Terminal reports whether no further transition is possible from s.
func (s InvitationStatus) Terminal() bool {
	return s != InvitationPending
}

// TeamInvitation is a single-use, time-boxed invitation to join a team.
type TeamInvitation struct {
	ID          int64            `json:"id"`
	TeamID      int64            `json:"team_id"`
	Email       string           `json:"email"`
	Role        Role             `json:"role"`
	Token       string           `json:"token,omitempty"`
	InvitedBy   int64            `json:"invited_by"`
	Status      InvitationStatus `json:"status"`
	ExpiresAt   int64            `json:"expires_at"`
	CreatedAt   int64            `json:"created_at"`
	AcceptedAt  *int64           `json:"accepted_at,omitempty"`
	RespondedAt *int64           `json:"responded_at,omitempty"`

	TeamName string `json:"team_name,omitempty"`
}

// IsExpired reports whether the invitation is past its expiry at now (unix seconds).
func (i *TeamInvitation) IsExpired(now int64) bool {
	return now >= i.ExpiresAt
}

// EffectiveStatus returns the status with lazy expiry applied: a pending
// invitation past its expiry reads as expired even if the sweep has not run.
func (i *TeamInvitation) EffectiveStatus(now int64) InvitationStatus {
	if i.Status == InvitationPending && i.IsExpired(now) {
		return InvitationExpired
	}
	return i.Status
}
