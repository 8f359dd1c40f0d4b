package models

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// ============================================================
// Auth & actors
// ============================================================

// User represents users table. Clients, agents, supervisors and admins all
// authenticate here; staff roles carry the institution they act for.
type User struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	Phone         string         `gorm:"uniqueIndex;size:20;not null" json:"phone"`
	FullName      string         `gorm:"size:100;not null" json:"full_name"`
	Email         string         `gorm:"uniqueIndex;size:100;not null" json:"email"`
	Password      string         `gorm:"size:255;not null" json:"-"`
	Role          string         `gorm:"size:20;default:'CLIENT'" json:"role"`
	InstitutionID *uint          `gorm:"index" json:"institution_id,omitempty"`
	IsActive      bool           `gorm:"default:true" json:"is_active"`
	CreatedAt     time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`
}

func (User) TableName() string {
	return "users"
}

// UserResponse DTO
type UserResponse struct {
	ID            uint      `json:"id"`
	Phone         string    `json:"phone"`
	FullName      string    `json:"full_name"`
	Email         string    `json:"email"`
	Role          string    `json:"role"`
	InstitutionID *uint     `json:"institution_id,omitempty"`
	IsActive      bool      `json:"is_active"`
	CreatedAt     time.Time `json:"created_at"`
}

func (u *User) ToResponse() *UserResponse {
	return &UserResponse{
		ID:            u.ID,
		Phone:         u.Phone,
		FullName:      u.FullName,
		Email:         u.Email,
		Role:          u.Role,
		InstitutionID: u.InstitutionID,
		IsActive:      u.IsActive,
		CreatedAt:     u.CreatedAt,
	}
}

// RefreshToken represents refresh_tokens table
type RefreshToken struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	UserID    uint       `gorm:"index;not null" json:"user_id"`
	TokenHash string     `gorm:"size:255;not null;index" json:"-"`
	ExpiresAt time.Time  `gorm:"not null" json:"expires_at"`
	CreatedAt time.Time  `gorm:"autoCreateTime" json:"created_at"`
	RevokedAt *time.Time `gorm:"index" json:"revoked_at"`
	User      User       `gorm:"foreignKey:UserID" json:"-"`
}

func (RefreshToken) TableName() string {
	return "refresh_tokens"
}

func (rt *RefreshToken) IsRevoked() bool {
	return rt.RevokedAt != nil
}

func (rt *RefreshToken) IsExpired() bool {
	return time.Now().After(rt.ExpiresAt)
}

// ============================================================
// Institutions, circles, accounts
// ============================================================

// Institution represents a decentralized financial institution (SFD).
// AvailableFunds is owned exclusively by the ledger service: every mutation
// goes through a conditional update, never a plain Save.
type Institution struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	Name           string         `gorm:"size:100;uniqueIndex;not null" json:"name"`
	LicenceNo      string         `gorm:"size:50" json:"licence_no"`
	AvailableFunds float64        `gorm:"type:decimal(15,2);not null;default:0" json:"available_funds"`
	CreatedAt      time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Institution) TableName() string {
	return "institutions"
}

// Tontine represents a savings circle run by an institution.
type Tontine struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	InstitutionID uint           `gorm:"not null;index" json:"institution_id"`
	Name          string         `gorm:"size:100;not null" json:"name"`
	MinStake      float64        `gorm:"type:decimal(15,2);not null" json:"min_stake"`
	MaxStake      float64        `gorm:"type:decimal(15,2);not null" json:"max_stake"`
	MembershipFee float64        `gorm:"type:decimal(15,2);not null" json:"membership_fee"`
	Status        string         `gorm:"size:20;not null;default:'ACTIVE'" json:"status"`
	CreatedAt     time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`

	Institution  *Institution         `gorm:"foreignKey:InstitutionID" json:"institution,omitempty"`
	Participants []TontineParticipant `gorm:"foreignKey:TontineID" json:"participants,omitempty"`
}

func (Tontine) TableName() string {
	return "tontines"
}

// TontineParticipant links a client to a circle once their membership
// request reaches MEMBER.
type TontineParticipant struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	TontineID   uint      `gorm:"not null;index:idx_tontine_client,unique" json:"tontine_id"`
	ClientID    uint      `gorm:"not null;index:idx_tontine_client,unique" json:"client_id"`
	StakeAmount float64   `gorm:"type:decimal(15,2);not null" json:"stake_amount"`
	JoinedAt    time.Time `gorm:"not null" json:"joined_at"`

	Client *User `gorm:"foreignKey:ClientID" json:"client,omitempty"`
}

func (TontineParticipant) TableName() string {
	return "tontine_participants"
}

// Account is a client savings account at an institution. Withdrawals draw
// from it, loan disbursements credit it.
type Account struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	ClientID      uint      `gorm:"not null;index:idx_client_institution,unique" json:"client_id"`
	InstitutionID uint      `gorm:"not null;index:idx_client_institution,unique" json:"institution_id"`
	Balance       float64   `gorm:"type:decimal(15,2);not null;default:0" json:"balance"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Account) TableName() string {
	return "accounts"
}

// ============================================================
// Workflow request records
// ============================================================

// MembershipRequest represents the adhesion flow for joining a circle.
type MembershipRequest struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	ClientID       uint       `gorm:"not null;index" json:"client_id"`
	TontineID      uint       `gorm:"not null;index" json:"tontine_id"`
	StakeAmount    float64    `gorm:"type:decimal(15,2);not null" json:"stake_amount"`
	IdentityDocRef string     `gorm:"size:255" json:"identity_doc_ref"`
	Status         string     `gorm:"size:30;not null;index" json:"status"`
	MembershipFee  float64    `gorm:"type:decimal(15,2)" json:"membership_fee"`
	AgentID        *uint      `json:"agent_id"`
	RejectReason   string     `gorm:"type:text" json:"reject_reason,omitempty"`
	PaymentRef     *string    `gorm:"size:64;index" json:"payment_ref,omitempty"`
	EffectPending  bool       `gorm:"default:false" json:"effect_pending"`
	SubmittedAt    time.Time  `gorm:"not null" json:"submitted_at"`
	ValidatedAt    *time.Time `json:"validated_at"`
	PaidAt         *time.Time `json:"paid_at"`
	MemberAt       *time.Time `json:"member_at"`
	CreatedAt      time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime" json:"updated_at"`

	Client  *User    `gorm:"foreignKey:ClientID" json:"client,omitempty"`
	Tontine *Tontine `gorm:"foreignKey:TontineID" json:"tontine,omitempty"`
	Agent   *User    `gorm:"foreignKey:AgentID" json:"agent,omitempty"`
}

func (MembershipRequest) TableName() string {
	return "membership_requests"
}

// LoanApplication represents the multi-approver credit flow.
type LoanApplication struct {
	ID             uint    `gorm:"primaryKey" json:"id"`
	ClientID       uint    `gorm:"not null;index:idx_loan_client_inst" json:"client_id"`
	InstitutionID  uint    `gorm:"not null;index:idx_loan_client_inst" json:"institution_id"`
	Amount         float64 `gorm:"type:decimal(15,2);not null" json:"amount"`
	DurationMonths int     `gorm:"not null" json:"duration_months"`
	Purpose        string  `gorm:"type:text" json:"purpose"`

	// Applicant financial attributes, declared at submission.
	MonthlyIncome   float64 `gorm:"type:decimal(15,2)" json:"monthly_income"`
	MonthlyCharges  float64 `gorm:"type:decimal(15,2)" json:"monthly_charges"`
	DebtRatio       float64 `gorm:"type:decimal(5,2)" json:"debt_ratio"`
	GuaranteeType   string  `gorm:"size:50" json:"guarantee_type"`
	GuaranteeDocRef string  `gorm:"size:255" json:"guarantee_doc_ref"`

	// Advisory input only, never a transition guard.
	ReliabilityScore float64 `gorm:"type:decimal(5,2)" json:"reliability_score"`

	Status           string     `gorm:"size:30;not null;index" json:"status"`
	SupervisorID     *uint      `json:"supervisor_id"`
	SupervisorReport string     `gorm:"type:text" json:"supervisor_report,omitempty"`
	ProposedAmount   float64    `gorm:"type:decimal(15,2)" json:"proposed_amount"`
	ProposedRate     float64    `gorm:"type:decimal(5,2)" json:"proposed_rate"`
	ProposedDuration int        `json:"proposed_duration"`
	AdminID          *uint      `json:"admin_id"`
	AdminComments    string     `gorm:"type:text" json:"admin_comments,omitempty"`
	GrantedAmount    float64    `gorm:"type:decimal(15,2)" json:"granted_amount"`
	RejectReason     string     `gorm:"type:text" json:"reject_reason,omitempty"`
	SubmittedAt      time.Time  `gorm:"not null" json:"submitted_at"`
	ReviewedAt       *time.Time `json:"reviewed_at"`
	ForwardedAt      *time.Time `json:"forwarded_at"`
	GrantedAt        *time.Time `json:"granted_at"`
	DisbursedAt      *time.Time `json:"disbursed_at"`
	SettledAt        *time.Time `json:"settled_at"`
	CreatedAt        time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime" json:"updated_at"`

	Client      *User        `gorm:"foreignKey:ClientID" json:"client,omitempty"`
	Institution *Institution `gorm:"foreignKey:InstitutionID" json:"institution,omitempty"`
	Supervisor  *User        `gorm:"foreignKey:SupervisorID" json:"supervisor,omitempty"`
	Admin       *User        `gorm:"foreignKey:AdminID" json:"admin,omitempty"`

	Installments []RepaymentInstallment `gorm:"foreignKey:LoanID" json:"installments,omitempty"`
}

func (LoanApplication) TableName() string {
	return "loan_applications"
}

// Repayment installment statuses
const (
	InstallmentPending = "PENDING"
	InstallmentPaid    = "PAID"
)

// RepaymentInstallment is one row of a disbursed loan's amortization
// schedule.
type RepaymentInstallment struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	LoanID    uint       `gorm:"not null;index" json:"loan_id"`
	Number    int        `gorm:"not null" json:"number"`
	DueDate   time.Time  `gorm:"type:date;not null" json:"due_date"`
	Amount    float64    `gorm:"type:decimal(15,2);not null" json:"amount"`
	Status    string     `gorm:"size:20;not null;default:'PENDING'" json:"status"`
	PaidAt    *time.Time `json:"paid_at"`
	CreatedAt time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

func (RepaymentInstallment) TableName() string {
	return "repayment_installments"
}

// WithdrawalRequest represents a savings withdrawal gated by the ledger.
type WithdrawalRequest struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	ClientID      uint       `gorm:"not null;index" json:"client_id"`
	AccountID     uint       `gorm:"not null;index" json:"account_id"`
	Amount        float64    `gorm:"type:decimal(15,2);not null" json:"amount"`
	Phone         string     `gorm:"size:20;not null" json:"phone"`
	Status        string     `gorm:"size:30;not null;index" json:"status"`
	AgentID       *uint      `json:"agent_id"`
	RejectReason  string     `gorm:"size:50" json:"reject_reason,omitempty"`
	PaymentRef    *string    `gorm:"size:64;index" json:"payment_ref,omitempty"`
	EffectPending bool       `gorm:"default:false" json:"effect_pending"`
	RequestedAt   time.Time  `gorm:"not null" json:"requested_at"`
	ApprovedAt    *time.Time `json:"approved_at"`
	ConfirmedAt   *time.Time `json:"confirmed_at"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime" json:"updated_at"`

	Client  *User    `gorm:"foreignKey:ClientID" json:"client,omitempty"`
	Account *Account `gorm:"foreignKey:AccountID" json:"account,omitempty"`
	Agent   *User    `gorm:"foreignKey:AgentID" json:"agent,omitempty"`
}

func (WithdrawalRequest) TableName() string {
	return "withdrawal_requests"
}

// ============================================================
// Contribution booklet
// ============================================================

// Booklet is a 31-slot contribution ledger for one cycle of a membership.
// Days is a 31-character '0'/'1' bitmap keyed by day-of-cycle; day 1 is the
// institution's commission day and is always '1'. Booklets are never
// deleted, only superseded by the next cycle.
type Booklet struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	ClientID    uint      `gorm:"not null;index" json:"client_id"`
	TontineID   uint      `gorm:"not null;index" json:"tontine_id"`
	CycleNumber int       `gorm:"not null;default:1" json:"cycle_number"`
	CycleStart  time.Time `gorm:"type:date;not null" json:"cycle_start"`
	Days        string    `gorm:"size:31;not null" json:"days"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Booklet) TableName() string {
	return "booklets"
}

// NewBookletDays returns a fresh bitmap with only the commission day paid.
func NewBookletDays() string {
	return "1" + strings.Repeat("0", 30)
}

// DayPaid reports whether the given 1-based day is marked paid. Day 1 is
// paid by convention regardless of the stored bitmap.
func (b *Booklet) DayPaid(day int) bool {
	if day == 1 {
		return true
	}
	if day < 1 || day > len(b.Days) {
		return false
	}
	return b.Days[day-1] == '1'
}

// SetDayPaid marks the given 1-based day paid. Idempotent.
func (b *Booklet) SetDayPaid(day int) {
	if day < 1 || day > len(b.Days) {
		return
	}
	bs := []byte(b.Days)
	bs[day-1] = '1'
	b.Days = string(bs)
}

// ============================================================
// Payments & audit
// ============================================================

// PaymentTransaction correlates a mobile-money operation with the workflow
// instance awaiting it. Reference is the opaque id echoed by the gateway
// callback.
type PaymentTransaction struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	Reference   string     `gorm:"size:64;uniqueIndex;not null" json:"reference"`
	Kind        string     `gorm:"size:30;not null;index" json:"kind"`
	TargetID    uint       `gorm:"not null;index" json:"target_id"`
	Amount      float64    `gorm:"type:decimal(15,2);not null" json:"amount"`
	Phone       string     `gorm:"size:20;not null" json:"phone"`
	Status      string     `gorm:"size:20;not null;default:'PENDING'" json:"status"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
	ConfirmedAt *time.Time `json:"confirmed_at"`
}

func (PaymentTransaction) TableName() string {
	return "payment_transactions"
}

// AuditRecord is an append-only trail entry for a workflow instance.
type AuditRecord struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	WorkflowType string    `gorm:"size:20;not null;index:idx_audit_instance" json:"workflow_type"`
	InstanceID   uint      `gorm:"not null;index:idx_audit_instance" json:"instance_id"`
	Action       string    `gorm:"size:50;not null" json:"action"`
	ActorRole    string    `gorm:"size:20;not null" json:"actor_role"`
	ActorID      *uint     `json:"actor_id"`
	FromState    string    `gorm:"size:30" json:"from_state"`
	ToState      string    `gorm:"size:30;not null" json:"to_state"`
	Detail       string    `gorm:"type:text" json:"detail,omitempty"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (AuditRecord) TableName() string {
	return "audit_records"
}

// ============================================================
// Auto Migration
// ============================================================

// AutoMigrate runs auto migration for all tables.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&User{},
		&RefreshToken{},
		&Institution{},
		&Tontine{},
		&TontineParticipant{},
		&Account{},
		&MembershipRequest{},
		&LoanApplication{},
		&RepaymentInstallment{},
		&WithdrawalRequest{},
		&Booklet{},
		&PaymentTransaction{},
		&AuditRecord{},
	)
}
