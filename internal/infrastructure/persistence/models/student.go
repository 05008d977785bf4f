package models

import (
	"github.com/schoolerp/backend/internal/domain/student"
)

// StudentModel is the persistence model for student enrollment records.
// The fee module only reads this table.
type StudentModel struct {
	SchoolAggregateModel
	AdmissionNumber string         `gorm:"type:varchar(50);not null;uniqueIndex:idx_student_school_admission,priority:2"`
	FirstName       string         `gorm:"type:varchar(100);not null"`
	LastName        string         `gorm:"type:varchar(100)"`
	Grade           int            `gorm:"not null;index:idx_student_school_class,priority:2"`
	Section         string         `gorm:"type:varchar(10);index:idx_student_school_class,priority:3"`
	RollNumber      int            `gorm:"not null"`
	GuardianName    string         `gorm:"type:varchar(200)"`
	GuardianPhone   string         `gorm:"type:varchar(20)"`
	Status          student.Status `gorm:"type:varchar(20);not null;default:'ACTIVE';index"`
}

// TableName returns the table name for GORM
func (StudentModel) TableName() string {
	return "students"
}

// ToDomain converts the persistence model to a domain Student.
func (m *StudentModel) ToDomain() *student.Student {
	return &student.Student{
		SchoolAggregateRoot: m.ToDomainSchoolAggregateRoot(),
		AdmissionNumber:     m.AdmissionNumber,
		FirstName:           m.FirstName,
		LastName:            m.LastName,
		Grade:               m.Grade,
		Section:             m.Section,
		RollNumber:          m.RollNumber,
		GuardianName:        m.GuardianName,
		GuardianPhone:       m.GuardianPhone,
		Status:              m.Status,
	}
}
