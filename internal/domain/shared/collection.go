package shared

// Collection names a tenant-scoped set of records held by the local store.
type Collection string

const (
	CollectionClients      Collection = "clients"
	CollectionTrips        Collection = "trips"
	CollectionPaymentPlans Collection = "paymentPlans"
	CollectionQuotations   Collection = "quotations"
	CollectionItineraries  Collection = "itineraries"
	CollectionUsers        Collection = "users"
)

// DefaultTenantID is the tenant used when none has been selected.
const DefaultTenantID = "default"

// AllCollections returns every collection known to the store, in display order.
func AllCollections() []Collection {
	return []Collection{
		CollectionClients,
		CollectionTrips,
		CollectionPaymentPlans,
		CollectionQuotations,
		CollectionItineraries,
		CollectionUsers,
	}
}

// SyncedCollections returns the collections that are reconciled with the remote service.
// Trips and users live only in the local store.
func SyncedCollections() []Collection {
	return []Collection{
		CollectionClients,
		CollectionPaymentPlans,
		CollectionQuotations,
		CollectionItineraries,
	}
}

// IsValid returns true if the collection is known
func (c Collection) IsValid() bool {
	for _, known := range AllCollections() {
		if c == known {
			return true
		}
	}
	return false
}

// RemotePath returns the path segment the remote collection service uses.
func (c Collection) RemotePath() string {
	switch c {
	case CollectionPaymentPlans:
		return "payment-plans"
	default:
		return string(c)
	}
}

// ParseCollection resolves either the local name or the remote path segment.
func ParseCollection(s string) (Collection, bool) {
	for _, c := range AllCollections() {
		if s == string(c) || s == c.RemotePath() {
			return c, true
		}
	}
	return "", false
}

// String returns the string representation
func (c Collection) String() string {
	return string(c)
}
