package dto

// CreateCourseRequest defines the payload for adding a course to the catalogue.
type CreateCourseRequest struct {
	Code         string `json:"code" validate:"required,max=20"`
	Name         string `json:"name" validate:"required,max=200"`
	Description  string `json:"description" validate:"max=2000"`
	Credits      int    `json:"credits" validate:"required,min=1,max=6"`
	Department   string `json:"department" validate:"required"`
	InstructorID string `json:"instructorId" validate:"required"`
	MaxSeats     int    `json:"maxSeats" validate:"omitempty,min=1"`
	IsOpen       *bool  `json:"isOpen"`
}

// UpdateCourseRequest patches catalogue fields. Nil fields are left untouched.
type UpdateCourseRequest struct {
	Code         *string `json:"code" validate:"omitempty,max=20"`
	Name         *string `json:"name" validate:"omitempty,max=200"`
	Description  *string `json:"description" validate:"omitempty,max=2000"`
	Credits      *int    `json:"credits" validate:"omitempty,min=1,max=6"`
	Department   *string `json:"department"`
	InstructorID *string `json:"instructorId"`
	MaxSeats     *int    `json:"maxSeats" validate:"omitempty,min=1"`
	IsOpen       *bool   `json:"isOpen"`
}

// CourseQuery filters course listings.
type CourseQuery struct {
	InstructorID string `form:"instructorId"`
	Department   string `form:"department"`
}
