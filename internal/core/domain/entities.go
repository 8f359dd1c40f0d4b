package domain

import "time"

// Role represents an actor role in the system
type Role string

const (
	RoleClient     Role = "CLIENT"
	RoleAgent      Role = "AGENT"
	RoleSupervisor Role = "SUPERVISOR"
	RoleAdmin      Role = "ADMIN"
	// RoleSystem is used for payment callbacks, cron sweeps and other
	// machine-initiated transitions.
	RoleSystem Role = "SYSTEM"
)

// Tontine statuses
const (
	TontineActive    = "ACTIVE"
	TontineSuspended = "SUSPENDED"
	TontineClosed    = "CLOSED"
)

// Membership request statuses
const (
	MembershipSubmitted      = "SUBMITTED"
	MembershipAgentValidated = "AGENT_VALIDATED"
	MembershipPaymentPending = "PAYMENT_PENDING"
	MembershipPaid           = "PAID"
	MembershipMember         = "MEMBER"
	MembershipRejected       = "REJECTED"
	MembershipExpired        = "EXPIRED"
)

// Loan application statuses
const (
	LoanSubmitted        = "SUBMITTED"
	LoanUnderReview      = "UNDER_REVIEW"
	LoanForwardedToAdmin = "FORWARDED_TO_ADMIN"
	LoanGranted          = "GRANTED"
	LoanDisbursed        = "DISBURSED"
	LoanRepaying         = "REPAYING"
	LoanSettled          = "SETTLED"
	LoanRejected         = "REJECTED"
)

// Withdrawal request statuses
const (
	WithdrawalRequested = "REQUESTED"
	WithdrawalApproved  = "APPROVED"
	WithdrawalConfirmed = "CONFIRMED"
	WithdrawalRejected  = "REJECTED"
	WithdrawalExpired   = "EXPIRED"
)

// Withdrawal rejection reasons (closed enumeration)
const (
	WithdrawalReasonInsufficientFunds = "INSUFFICIENT_FUNDS"
	WithdrawalReasonNonConformingDocs = "NON_CONFORMING_DOCUMENTS"
	WithdrawalReasonSuspectedFraud    = "SUSPECTED_FRAUD"
	WithdrawalReasonOther             = "OTHER"
)

// WithdrawalRejectReasons lists the accepted agent rejection reasons.
var WithdrawalRejectReasons = []string{
	WithdrawalReasonInsufficientFunds,
	WithdrawalReasonNonConformingDocs,
	WithdrawalReasonSuspectedFraud,
	WithdrawalReasonOther,
}

// Payment transaction statuses
const (
	PaymentPending = "PENDING"
	PaymentSuccess = "SUCCESS"
	PaymentFailed  = "FAILED"
)

// Payment transaction kinds, used to route gateway callbacks back to the
// workflow that initiated the payment.
const (
	PaymentKindMembershipFee    = "MEMBERSHIP_FEE"
	PaymentKindContribution     = "CONTRIBUTION"
	PaymentKindWithdrawalPayout = "WITHDRAWAL_PAYOUT"
	PaymentKindLoanRepayment    = "LOAN_REPAYMENT"
)

// Workflow types for audit records
const (
	WorkflowMembership = "MEMBERSHIP"
	WorkflowLoan       = "LOAN"
	WorkflowWithdrawal = "WITHDRAWAL"
)

// BookletDays is the fixed number of slots in a contribution cycle. The cycle
// is a virtual 31-slot ledger independent of actual month length.
const BookletDays = 31

// CommissionDay is the day of each cycle reserved for the institution's
// commission, always marked paid.
const CommissionDay = 1

// Notification is a fire-and-forget dispatch request.
type Notification struct {
	RecipientID uint              `json:"recipient_id"`
	TemplateID  string            `json:"template_id"`
	Parameters  map[string]string `json:"parameters,omitempty"`
	SentAt      time.Time         `json:"sent_at"`
}
