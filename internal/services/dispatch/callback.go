package dispatch

import (
	"fmt"
	"strconv"
	"strings"
)

// Контракт callback_data кнопок: order_accept_<id> и order_delivered_<id>.
const (
	callbackAcceptPrefix    = "order_accept_"
	callbackDeliveredPrefix = "order_delivered_"
)

type actionKind int

const (
	actionUnknown actionKind = iota
	actionAccept
	actionDelivered
)

func AcceptCallbackID(orderID int64) string {
	return fmt.Sprintf("%s%d", callbackAcceptPrefix, orderID)
}

func DeliveredCallbackID(orderID int64) string {
	return fmt.Sprintf("%s%d", callbackDeliveredPrefix, orderID)
}

func parseCallbackID(s string) (actionKind, int64, bool) {
	var kind actionKind
	var raw string
	switch {
	case strings.HasPrefix(s, callbackAcceptPrefix):
		kind, raw = actionAccept, strings.TrimPrefix(s, callbackAcceptPrefix)
	case strings.HasPrefix(s, callbackDeliveredPrefix):
		kind, raw = actionDelivered, strings.TrimPrefix(s, callbackDeliveredPrefix)
	default:
		return actionUnknown, 0, false
	}

	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return actionUnknown, 0, false
	}
	return kind, id, true
}
