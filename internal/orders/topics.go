package orders

const (
	TopicOrderCreated   = "order.created"
	TopicOrderPaid      = "order.paid"
	TopicOrderCancelled = "order.cancelled"
	TopicReconciliation = "order.reconciliation"
)

// Partition key = order number, so all events of one order keep their order.
func PartitionKey(orderNumber string) []byte { return []byte(orderNumber) }
