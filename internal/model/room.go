package model

// Room 教室表 — 对应 rooms，由场地管理子系统维护
type Room struct {
	RoomID    string `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"room_id"`
	Code      string `gorm:"type:varchar(50);not null;uniqueIndex"          json:"code"`
	Name      string `gorm:"type:varchar(100);not null"                     json:"name"`
	Capacity  *int   `gorm:"type:integer"                                   json:"capacity,omitempty"` // NULL 表示不限
	IsVirtual bool   `gorm:"not null;default:false"                         json:"is_virtual"`
	IsActive  bool   `gorm:"not null;default:true"                          json:"is_active"`
	SoftDeleteModel
}

// TableName 指定表名
func (Room) TableName() string { return "rooms" }

// SkipsConflictCheck 仅虚拟教室跳过教室冲突检测。
// 容量为 NULL（不限）的实体教室仍参与检测，不限容量只影响人数校验。
func (r *Room) SkipsConflictCheck() bool {
	return r.IsVirtual
}
