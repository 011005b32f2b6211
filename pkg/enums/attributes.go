package enums

// PaymentStatus is stored on orders as reported upstream; it never drives
// status transitions here.
type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusFailed   PaymentStatus = "failed"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

// MemberRole is a restaurant staff member's role within their business.
type MemberRole string

const (
	MemberRoleOwner   MemberRole = "owner"
	MemberRoleManager MemberRole = "manager"
	MemberRoleStaff   MemberRole = "staff"
)

// VehicleType maps to the vehicle_type enum in Postgres.
type VehicleType string

const (
	VehicleTypeBicycle VehicleType = "bicycle"
	VehicleTypeScooter VehicleType = "scooter"
	VehicleTypeCar     VehicleType = "car"
)
