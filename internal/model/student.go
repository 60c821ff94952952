package model

// Student is the minimal identity record the engine authenticates against.
// Student management (creation, enrollment, classes) lives elsewhere.
type Student struct {
	ID           int    `json:"id"`
	Name         string `json:"name"`
	Username     string `json:"username"`
	PasswordHash string `json:"-"`
}

// StudentLoginRequest is the payload for a student login.
type StudentLoginRequest struct {
	Username string `json:"username" binding:"required,min=3,max=64"`
	Password string `json:"password" binding:"required,min=6,max=128"`
}
