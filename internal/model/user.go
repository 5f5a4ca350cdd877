package model

// UserRole 由宿主平台签发的 JWT 携带
type UserRole string

const (
	Student UserRole = "student"
	Grader  UserRole = "grader"
	Teacher UserRole = "teacher"
	Admin   UserRole = "admin"
)
