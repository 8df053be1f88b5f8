package market

const (
	TopicOrderAudit = "market.order.audit"
)

// Partition key = order_id, so all audit events for one order keep their
// order.
func PartitionKey(orderID string) []byte { return []byte(orderID) }
