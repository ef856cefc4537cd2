package enum

// ── Group A: State machines (CHECK constrained in DB) ──

const (
	TokenStatusWaiting    = "WAITING"
	TokenStatusCalled     = "CALLED"
	TokenStatusInProgress = "IN_PROGRESS"
	TokenStatusReady      = "READY"
	TokenStatusDone       = "DONE"
	TokenStatusCancelled  = "CANCELLED"
)

// ── Group C: Borderline (CHECK constrained in DB) ──

const (
	UserRoleOwner   = "OWNER"
	UserRoleManager = "MANAGER"
	UserRoleCashier = "CASHIER"
	UserRoleKitchen = "KITCHEN"
)

const (
	OrderTypeDineIn   = "DINE_IN"
	OrderTypeTakeaway = "TAKEAWAY"
	OrderTypeDelivery = "DELIVERY"
)

const (
	BusinessTypeRestaurant = "RESTAURANT"
	BusinessTypeCounter    = "COUNTER"
	BusinessTypeCafe       = "CAFE"
)

// ── Group B: Configurable labels (no DB constraint) ──

const (
	WorkflowProfileFullService = "FULL_SERVICE"
	WorkflowProfileCounter     = "COUNTER_SERVICE"
	WorkflowProfileCafe        = "CAFE"
)

const (
	PaymentMethodCash = "CASH"
)

// IsTerminal reports whether a token status accepts no further transitions.
func IsTerminal(status string) bool {
	return status == TokenStatusDone || status == TokenStatusCancelled
}
