package domain

import "time"

// User is the durable profile of a course participant
type User struct {
	UserID      int64
	Username    string
	FirstName   string
	Email       string
	IsAdmin     bool
	Active      bool
	LastLesson  int
	Completed   bool
	CompletedAt *time.Time
	CreatedAt   time.Time
}

// DisplayName returns the best human readable name of the user
func (u User) DisplayName() string {
	switch {
	case u.Username != "":
		return "@" + u.Username
	case u.FirstName != "":
		return u.FirstName
	default:
		return "anonymous"
	}
}

// UserStats aggregates user counters for the admin report
type UserStats struct {
	Total     int
	Active    int
	Completed int
	WithEmail int
}
