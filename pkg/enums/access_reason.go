package enums

// AccessReason explains an entitlement verdict to the client.
type AccessReason string

const (
	AccessReasonPaid            AccessReason = "paid"
	AccessReasonFreeSlot        AccessReason = "free_slot"
	AccessReasonPaymentRequired AccessReason = "payment_required"
	AccessReasonNotFound        AccessReason = "not_found"
)

// String implements fmt.Stringer.
func (r AccessReason) String() string {
	return string(r)
}
