package enums

import "slices"

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateMember     OutboxAggregateType = "member"
	AggregateCommission OutboxAggregateType = "commission"
	AggregatePayout     OutboxAggregateType = "payout"
	AggregateRank       OutboxAggregateType = "rank"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateMember,
	AggregateCommission,
	AggregatePayout,
	AggregateRank,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (a OutboxAggregateType) IsValid() bool {
	return slices.Contains(validAggregateTypes, a)
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	return parse(validAggregateTypes, value, "aggregate type")
}

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventMemberPlaced      OutboxEventType = "member_placed"
	EventCommissionCreated OutboxEventType = "commission_created"
	EventRankChanged       OutboxEventType = "rank_changed"
	EventPayoutRequested   OutboxEventType = "payout_requested"
	EventPayoutProcessing  OutboxEventType = "payout_processing"
	EventPayoutCompleted   OutboxEventType = "payout_completed"
	EventPayoutFailed      OutboxEventType = "payout_failed"
	EventPayoutCancelled   OutboxEventType = "payout_cancelled"
)

var validOutboxEventTypes = []OutboxEventType{
	EventMemberPlaced,
	EventCommissionCreated,
	EventRankChanged,
	EventPayoutRequested,
	EventPayoutProcessing,
	EventPayoutCompleted,
	EventPayoutFailed,
	EventPayoutCancelled,
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e OutboxEventType) IsValid() bool {
	return slices.Contains(validOutboxEventTypes, e)
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	return parse(validOutboxEventTypes, value, "event type")
}
