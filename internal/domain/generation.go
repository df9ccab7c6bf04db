package domain

import "time"

// GenerationRecord is one row of the optional generation audit log
type GenerationRecord struct {
	ID          int64     `json:"id" db:"id"`
	IdentityKey string    `json:"identity_key" db:"identity_key"`
	RoomFile    string    `json:"room_file" db:"room_file"`
	RugFile     string    `json:"rug_file" db:"rug_file"`
	PromptChars int       `json:"prompt_chars" db:"prompt_chars"`
	DurationMS  int64     `json:"duration_ms" db:"duration_ms"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// GenerationStats summarizes the audit log for the admin dashboard
type GenerationStats struct {
	TotalGenerations int64     `json:"total_generations"`
	DailyGenerations int64     `json:"daily_generations"`
	LastGeneratedAt  time.Time `json:"last_generated_at"`
}
