package database

import (
	"time"
)

// Job is a durably stored job posting with its delivery state. The
// job_url column carries a unique index: one posting is stored at most
// once even when matched by several category searches.
type Job struct {
	ID              int64
	Title           string
	Company         string
	Location        string
	DatePosted      time.Time // date precision
	JobURL          string
	Site            string
	SalaryText      string
	Description     string
	IsRemote        bool
	JobType         string
	CompanyIndustry string
	ExperienceRange string
	Category        string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	Sent            bool
	SentAt          *time.Time
}

type CategoryStats struct {
	Total     int
	Delivered int
	Pending   int
}

type Stats struct {
	Total       int
	Delivered   int
	Pending     int
	PerCategory map[string]CategoryStats
	PeriodDays  int
}
