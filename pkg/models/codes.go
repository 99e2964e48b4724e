package models

// SMPP-level verdicts.
const (
	SMPPResultHam  int32 = 0
	SMPPResultSpam int32 = 1
	SMPPDiscard    int32 = 2
)

// Transaction result codes.
const (
	ResultCodeHam     int32 = 0
	ResultCodeSpam    int32 = 1
	ResultCodeHamFail int32 = 2
)

// Reason codes. Discard reasons are set by the admission stage, the rest by
// the filter hooks.
const (
	ReasonNone        int32 = 0
	TrapCustomerSpam  int32 = 101
	RuleMatchSpam     int32 = 102
	DiscardEnqueueTPS int32 = 901
	DiscardDequeueTPS int32 = 902
	DiscardTimeout    int32 = 903
	DiscardQueueFull  int32 = 904
	SystemDBError     int32 = 990
	SystemError       int32 = 999
)

var reasonNames = map[int32]string{
	ReasonNone:        "none",
	TrapCustomerSpam:  "trap_customer_spam",
	RuleMatchSpam:     "rule_match_spam",
	DiscardEnqueueTPS: "discard_enqueue_tps",
	DiscardDequeueTPS: "discard_dequeue_tps",
	DiscardTimeout:    "discard_timeout",
	DiscardQueueFull:  "discard_queue_full",
	SystemDBError:     "system_db_error",
	SystemError:       "system_error",
}

// ReasonName is used as a metric label.
func ReasonName(code int32) string {
	if name, ok := reasonNames[code]; ok {
		return name
	}
	return "unknown"
}
