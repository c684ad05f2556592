package enum

// ── State machines (CHECK constrained in DB) ──

const (
	OrderStatusOpen    = "OPEN"
	OrderStatusPreBill = "PREBILL"
	OrderStatusClosed  = "CLOSED"
	OrderStatusVoided  = "VOIDED"
)

// ── Fiscal series ──
// Each series numbers independently per fiscal year.

const (
	SeriesTicket  = "B" // simplified ticket
	SeriesInvoice = "A" // named invoice
)

// ── Close modes ──

const (
	CloseModePreBill = "PREBILL"
	CloseModeTicket  = "TICKET"
)

// ── Stock movement kinds ──

const (
	MovementSale       = "SALE"
	MovementReturn     = "RETURN"
	MovementAdjustment = "ADJUSTMENT"
)

// ── Roles (CHECK constrained in DB) ──

const (
	UserRoleOwner   = "OWNER"
	UserRoleManager = "MANAGER"
	UserRoleWaiter  = "WAITER"
)

// ── Configurable labels (no DB constraint) ──

const (
	PaymentMethodCash     = "CASH"
	PaymentMethodCard     = "CARD"
	PaymentMethodTransfer = "TRANSFER"
)

// ── Capabilities ──
// Permissions are an enumerated set of capability tags, not free-form keys.
// A caller's capability set is derived from its role at token issuance.

type Capability string

const (
	CapTakeOrders    Capability = "orders.take"
	CapRemoveLines   Capability = "orders.remove_lines"
	CapApplyDiscount Capability = "orders.discount"
	CapMergeTables   Capability = "orders.merge"
	CapCloseTables   Capability = "orders.close"
	CapVoidTickets   Capability = "tickets.void"
	CapAdjustStock   Capability = "stock.adjust"
	CapManageVenue   Capability = "venue.manage"
)

var roleCapabilities = map[string][]Capability{
	UserRoleOwner: {
		CapTakeOrders, CapRemoveLines, CapApplyDiscount, CapMergeTables,
		CapCloseTables, CapVoidTickets, CapAdjustStock, CapManageVenue,
	},
	UserRoleManager: {
		CapTakeOrders, CapRemoveLines, CapApplyDiscount, CapMergeTables,
		CapCloseTables, CapVoidTickets, CapAdjustStock,
	},
	UserRoleWaiter: {
		CapTakeOrders, CapMergeTables, CapCloseTables,
	},
}

// CapabilitiesForRole returns the capability set granted to a role.
// Unknown roles get no capabilities.
func CapabilitiesForRole(role string) []Capability {
	return roleCapabilities[role]
}
