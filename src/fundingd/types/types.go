package types

import "time"

// Users
type User struct {
	UUID     string    `gorm:"primaryKey;size:36" json:"uuid"`
	Created  time.Time `json:"created"`
	Modified time.Time `json:"-"`
	Enabled  bool      `gorm:"default:true" json:"-"`

	Username          string   `gorm:"size:16;uniqueIndex;not null" json:"username"`
	Password          string   `gorm:"size:128;not null" json:"-"`
	Mail              string   `gorm:"size:256;uniqueIndex;not null" json:"-"`
	Role              UserRole `gorm:"default:1" json:"role"`
	WithdrawalAddress string   `gorm:"size:256;index" json:"-"`

	Proposals []Proposal `gorm:"foreignKey:UserUUID" json:"-"`
}

// Funding proposals
type Proposal struct {
	UUID     string    `gorm:"primaryKey;size:36" json:"uuid"`
	Created  time.Time `json:"created"`
	Modified time.Time `json:"modified"`

	UserUUID string `gorm:"size:36;index;not null" json:"-"`
	User     User   `gorm:"foreignKey:UserUUID;references:UUID" json:"-"`

	Title    string `gorm:"size:255;index;not null" json:"title"`
	Slug     string `gorm:"size:300;uniqueIndex;not null" json:"slug"`
	Markdown string `gorm:"type:text" json:"markdown"`
	HTML     string `gorm:"type:text" json:"html"`

	AddrReceiving    string `gorm:"size:255" json:"addr_receiving"`
	DiscourseTopicID *int   `json:"discourse_topic_id"`

	Views uint32 `gorm:"default:0" json:"views"`

	Category ProposalCategory `gorm:"default:3" json:"category"`
	Status   ProposalStatus   `gorm:"default:1" json:"status"`

	FundsTarget float64 `gorm:"not null" json:"funds_target"`
	// FundsProgress is the highest funding percentage ever observed for this
	// proposal. It only ratchets upward.
	FundsProgress float64 `gorm:"default:0" json:"funds_progress"`

	// Donation address is minted once by the wallet RPC and immutable after.
	AddrDonation string `gorm:"size:255" json:"addr_donation"`
	PaymentID    string `gorm:"size:128" json:"-"`

	Withdrawals []Withdrawal `gorm:"foreignKey:ProposalUUID" json:"-"`
	Events      []Event      `gorm:"foreignKey:ProposalUUID" json:"-"`
}

// DonationsEnabled reports whether the proposal can currently receive funds.
func (p *Proposal) DonationsEnabled() bool {
	return p.AddrDonation != "" && p.Status == StatusFundingRequired
}

// Outbound transfers released from a proposal's donation balance.
type Withdrawal struct {
	UUID     string    `gorm:"primaryKey;size:36" json:"uuid"`
	Created  time.Time `json:"created"`
	Modified time.Time `json:"-"`

	TxID   string           `gorm:"size:128;not null" json:"txid"`
	Amount float64          `gorm:"not null" json:"amount"`
	Status WithdrawalStatus `gorm:"default:0" json:"status"`

	ProposalUUID string   `gorm:"size:36;index;not null" json:"-"`
	Proposal     Proposal `gorm:"foreignKey:ProposalUUID;references:UUID" json:"-"`
}

// Audit trail; written only by state-machine transitions, never mutated.
type Event struct {
	UUID    string    `gorm:"primaryKey;size:36" json:"uuid"`
	Created time.Time `json:"created"`

	Message string `gorm:"type:text;not null" json:"message"`
	Data    string `gorm:"type:text" json:"data,omitempty"`

	ProposalUUID string `gorm:"size:36;index;not null" json:"-"`
	UserUUID     string `gorm:"size:36;index" json:"user_uuid,omitempty"`
}

// Operator-editable settings
type Setting struct {
	ID    uint8  `gorm:"primaryKey"`
	Name  string `gorm:"size:64;uniqueIndex;not null"`
	Value string `gorm:"size:1024;not null"`
}
