package database

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// JobRepository handles database operations for job postings
type JobRepository struct {
	db *DB
}

// NewJobRepository creates a new job repository
func NewJobRepository(db *DB) *JobRepository {
	return &JobRepository{db: db}
}

// Insert stores a job unless its URL already exists. It returns the
// stored row and whether a row was actually created; the unique index
// on job_url decides, so concurrent inserts of the same URL are safe.
func (r *JobRepository) Insert(job Job) (*Job, bool, error) {
	now := time.Now().UTC()

	res, err := r.db.Exec(`
		INSERT INTO jobs (
			title, company, location, date_posted, job_url, site,
			salary_text, description, is_remote, job_type,
			company_industry, experience_range, category,
			created_at, updated_at, sent
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0)
		ON CONFLICT(job_url) DO NOTHING
	`, job.Title, job.Company, job.Location, job.DatePosted.Format(dateLayout),
		job.JobURL, job.Site, job.SalaryText, job.Description, job.IsRemote,
		job.JobType, job.CompanyIndustry, job.ExperienceRange, job.Category,
		now, now)
	if err != nil {
		return nil, false, fmt.Errorf("failed to insert job: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return nil, false, nil
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, false, fmt.Errorf("failed to read inserted ID: %w", err)
	}

	stored := job
	stored.ID = id
	stored.CreatedAt = now
	stored.UpdatedAt = now
	stored.Sent = false

	return &stored, true, nil
}

// Exists checks whether a job with the given URL is already stored
func (r *JobRepository) Exists(jobURL string) (bool, error) {
	var id int64
	err := r.db.QueryRow("SELECT id FROM jobs WHERE job_url = ? LIMIT 1", jobURL).Scan(&id)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check job existence: %w", err)
	}
	return true, nil
}

// RecentURLs returns the URLs of jobs created within the last windowDays
func (r *JobRepository) RecentURLs(windowDays int) ([]string, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -windowDays)

	rows, err := r.db.Query("SELECT job_url FROM jobs WHERE created_at >= ?", cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent job URLs: %w", err)
	}
	defer rows.Close()

	var urls []string
	for rows.Next() {
		var url string
		if err := rows.Scan(&url); err != nil {
			return nil, fmt.Errorf("failed to scan job URL: %w", err)
		}
		urls = append(urls, url)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating job URL rows: %w", err)
	}

	return urls, nil
}

// GetUnsent returns undelivered jobs for a category posted within the
// retention window, newest posting date first, then newest creation
// time first.
func (r *JobRepository) GetUnsent(category string, maxAgeDays int) ([]Job, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -maxAgeDays).Format(dateLayout)

	rows, err := r.db.Query(`
		SELECT id, title, company, location, date_posted, job_url, site,
		       COALESCE(salary_text, ''), COALESCE(description, ''),
		       is_remote, COALESCE(job_type, ''),
		       COALESCE(company_industry, ''), COALESCE(experience_range, ''),
		       category, created_at, updated_at, sent, sent_at
		FROM jobs
		WHERE category = ?
		  AND sent = 0
		  AND date_posted >= ?
		ORDER BY date_posted DESC, created_at DESC
	`, category, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to get unsent jobs: %w", err)
	}
	defer rows.Close()

	return scanJobs(rows)
}

// MarkSent flips jobs to delivered in one statement. Rows already
// marked sent are excluded, making the call idempotent: the returned
// count reflects only newly changed rows.
func (r *JobRepository) MarkSent(ids []int64) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]

	args := make([]interface{}, 0, len(ids)+2)
	now := time.Now().UTC()
	args = append(args, now, now)
	for _, id := range ids {
		args = append(args, id)
	}

	res, err := r.db.Exec(fmt.Sprintf(`
		UPDATE jobs
		SET sent = 1, sent_at = ?, updated_at = ?
		WHERE id IN (%s) AND sent = 0
	`, placeholders), args...)
	if err != nil {
		return 0, fmt.Errorf("failed to mark jobs as sent: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	}

	return int(affected), nil
}

// PurgeOlderThan deletes jobs posted before the cutoff
func (r *JobRepository) PurgeOlderThan(days int) (int, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -days).Format(dateLayout)

	res, err := r.db.Exec("DELETE FROM jobs WHERE date_posted < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge old jobs: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	}

	return int(affected), nil
}

// Stats aggregates posting counts over the last days
func (r *JobRepository) Stats(days int) (*Stats, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -days).Format(dateLayout)

	stats := &Stats{
		PerCategory: make(map[string]CategoryStats),
		PeriodDays:  days,
	}

	err := r.db.QueryRow(`
		SELECT COUNT(*), COALESCE(SUM(sent), 0)
		FROM jobs
		WHERE date_posted >= ?
	`, cutoff).Scan(&stats.Total, &stats.Delivered)
	if err != nil {
		return nil, fmt.Errorf("failed to get job stats: %w", err)
	}
	stats.Pending = stats.Total - stats.Delivered

	rows, err := r.db.Query(`
		SELECT category, COUNT(*), COALESCE(SUM(sent), 0)
		FROM jobs
		WHERE date_posted >= ?
		GROUP BY category
	`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to get per-category stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var category string
		var cs CategoryStats
		if err := rows.Scan(&category, &cs.Total, &cs.Delivered); err != nil {
			return nil, fmt.Errorf("failed to scan category stats: %w", err)
		}
		cs.Pending = cs.Total - cs.Delivered
		stats.PerCategory[category] = cs
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating category stats: %w", err)
	}

	return stats, nil
}

func scanJobs(rows *sql.Rows) ([]Job, error) {
	var jobs []Job
	for rows.Next() {
		var job Job
		var datePosted string
		err := rows.Scan(
			&job.ID, &job.Title, &job.Company, &job.Location, &datePosted,
			&job.JobURL, &job.Site, &job.SalaryText, &job.Description,
			&job.IsRemote, &job.JobType, &job.CompanyIndustry,
			&job.ExperienceRange, &job.Category, &job.CreatedAt,
			&job.UpdatedAt, &job.Sent, &job.SentAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job row: %w", err)
		}

		job.DatePosted, err = time.Parse(dateLayout, datePosted)
		if err != nil {
			return nil, fmt.Errorf("failed to parse posting date '%s': %w", datePosted, err)
		}

		jobs = append(jobs, job)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating job rows: %w", err)
	}

	return jobs, nil
}
