package orders

import "strconv"

const (
	TopicOrderPlaced    = "catalog.orders.placed"
	TopicOrderCancelled = "catalog.orders.cancelled"
	TopicOrderFulfilled = "catalog.orders.fulfilled"
	TopicStockRestocked = "catalog.stock.restocked"
	TopicStockLow       = "catalog.stock.low"
)

// Partition key = order id, so all events of one order keep their order.
func PartitionKey(orderID int64) []byte {
	return []byte(strconv.FormatInt(orderID, 10))
}
