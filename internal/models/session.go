package models

import "time"

// Exchange is one question/answer pair within a session.
type Exchange struct {
	Query     string    `json:"query"`
	Answer    string    `json:"answer"`
	CreatedAt time.Time `json:"created_at"`
}
