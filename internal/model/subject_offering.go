package model

// SubjectOffering 开课表 — 对应 subject_offerings，某科目在某班级/学期的一次开设
type SubjectOffering struct {
	SubjectOfferingID string `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"subject_offering_id"`
	Name              string `gorm:"type:varchar(150);not null"                     json:"name"`
	Cohort            string `gorm:"type:varchar(100);not null;default:''"          json:"cohort"`
	MaxHeadcount      *int   `gorm:"type:integer"                                   json:"max_headcount,omitempty"`
	SoftDeleteModel
}

// TableName 指定表名
func (SubjectOffering) TableName() string { return "subject_offerings" }
