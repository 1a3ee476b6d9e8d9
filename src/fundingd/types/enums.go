package types

// ProposalStatus is an ordered lifecycle: a higher value means the proposal
// is further along. Comparisons go through AtLeast, never raw integers.
type ProposalStatus uint8

const (
	StatusDisabled ProposalStatus = iota
	StatusIdea
	StatusFundingRequired
	StatusWIP
	StatusCompleted
)

func (s ProposalStatus) Valid() bool {
	return s <= StatusCompleted
}

// AtLeast reports whether s is at or past o in the proposal lifecycle.
func (s ProposalStatus) AtLeast(o ProposalStatus) bool {
	return s >= o
}

func (s ProposalStatus) String() string {
	switch s {
	case StatusDisabled:
		return "Disabled"
	case StatusIdea:
		return "idea"
	case StatusFundingRequired:
		return "Funding Required"
	case StatusWIP:
		return "WIP"
	case StatusCompleted:
		return "Completed"
	}
	return "Unknown"
}

type ProposalCategory uint8

const (
	CategoryWallets ProposalCategory = iota
	CategoryMarketing
	CategoryCore
	CategoryMisc
	CategoryDesign
)

func (c ProposalCategory) Valid() bool {
	return c <= CategoryDesign
}

func (c ProposalCategory) String() string {
	switch c {
	case CategoryWallets:
		return "Wallets"
	case CategoryMarketing:
		return "Marketing"
	case CategoryCore:
		return "Core"
	case CategoryMisc:
		return "Miscellaneous"
	case CategoryDesign:
		return "Design"
	}
	return "Unknown"
}

type WithdrawalStatus uint8

const (
	WithdrawalPending WithdrawalStatus = iota
	WithdrawalCompleted
	WithdrawalError
)

func (w WithdrawalStatus) String() string {
	switch w {
	case WithdrawalPending:
		return "pending"
	case WithdrawalCompleted:
		return "completed"
	case WithdrawalError:
		return "error"
	}
	return "unknown"
}

// UserRole is ordered by capability; moderator checks include admins.
type UserRole uint8

const (
	RoleAnonymous UserRole = iota
	RoleUser
	RoleModerator
	RoleAdmin
)

func (r UserRole) IsAnon() bool {
	return r == RoleAnonymous
}

func (r UserRole) IsModerator() bool {
	return r >= RoleModerator
}

func (r UserRole) IsAdmin() bool {
	return r == RoleAdmin
}

func (r UserRole) String() string {
	switch r {
	case RoleAnonymous:
		return "anonymous"
	case RoleUser:
		return "user"
	case RoleModerator:
		return "moderator"
	case RoleAdmin:
		return "admin"
	}
	return "unknown"
}
