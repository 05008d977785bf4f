package student

import (
	"fmt"
	"strings"

	"github.com/schoolerp/backend/internal/domain/shared"
)

// Status represents a student's enrollment status
type Status string

const (
	StatusActive      Status = "ACTIVE"
	StatusInactive    Status = "INACTIVE"
	StatusTransferred Status = "TRANSFERRED"
	StatusGraduated   Status = "GRADUATED"
)

// IsValid checks if the status is a valid Status
func (s Status) IsValid() bool {
	switch s {
	case StatusActive, StatusInactive, StatusTransferred, StatusGraduated:
		return true
	}
	return false
}

// Student is the enrollment record the fee module collects against. This
// module reads students; enrollment itself is managed elsewhere, so there is
// no constructor here.
type Student struct {
	shared.SchoolAggregateRoot
	AdmissionNumber string `json:"admission_number"`
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
	Grade           int    `json:"grade"`
	Section         string `json:"section"`
	RollNumber      int    `json:"roll_number"`
	GuardianName    string `json:"guardian_name"`
	GuardianPhone   string `json:"guardian_phone"`
	Status          Status `json:"status"`
}

// FullName returns the student's display name
func (s *Student) FullName() string {
	return strings.TrimSpace(s.FirstName + " " + s.LastName)
}

// ClassLabel returns the grade-section display label, e.g. "5-A"
func (s *Student) ClassLabel() string {
	if s.Section == "" {
		return fmt.Sprintf("%d", s.Grade)
	}
	return fmt.Sprintf("%d-%s", s.Grade, s.Section)
}

// IsActive returns true if fees may be collected for this student
func (s *Student) IsActive() bool {
	return s.Status == StatusActive
}
