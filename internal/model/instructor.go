package model

// Instructor 教师表 — 对应 instructors，由用户管理子系统同步
type Instructor struct {
	InstructorID string `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"instructor_id"`
	DisplayName  string `gorm:"type:varchar(100);not null"                     json:"display_name"`
	Email        string `gorm:"type:varchar(255)"                              json:"email,omitempty"`
	IsActive     bool   `gorm:"not null;default:true"                          json:"is_active"`
	SoftDeleteModel
}

// TableName 指定表名
func (Instructor) TableName() string { return "instructors" }
