package service

// 发布到消息总线的领域事件
const (
	RoutingKeyOccurrencesMaterialized = "planning.occurrences.materialized"
	RoutingKeySlotDeleted             = "planning.slot.deleted"
	RoutingKeyOccurrenceStatusChanged = "planning.occurrence.status_changed"
)

// MaterializedEvent 课时生成课次完成
type MaterializedEvent struct {
	SlotID     string `json:"slot_id"`
	CalendarID string `json:"calendar_id"`
	Created    int    `json:"created"`
	Skipped    int    `json:"skipped"`
	Deleted    int    `json:"deleted"`
	Force      bool   `json:"force"`
	ActorID    string `json:"actor_id"`
	OccurredAt string `json:"occurred_at"`
}

// SlotDeletedEvent 课时被删除
type SlotDeletedEvent struct {
	SlotID              string `json:"slot_id"`
	DeletedOccurrences  int64  `json:"deleted_occurrences"`
	DetachedOccurrences int64  `json:"detached_occurrences"`
	ActorID             string `json:"actor_id"`
	OccurredAt          string `json:"occurred_at"`
}

// OccurrenceStatusChangedEvent 课次状态流转
type OccurrenceStatusChangedEvent struct {
	OccurrenceID string `json:"occurrence_id"`
	From         string `json:"from"`
	To           string `json:"to"`
	ActorID      string `json:"actor_id"`
	OccurredAt   string `json:"occurred_at"`
}
