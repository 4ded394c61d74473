package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/BidWorks/Outreach/internal/models"
)

// PGStore persists campaigns, attempts and check-ins into Postgres. Request,
// strategy and assignments ride along as JSONB; the queryable fields get
// their own columns.
type PGStore struct {
	db *sql.DB
}

// NewPGStore constructs a Postgres-backed store.
func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

// Ping verifies connectivity to Postgres.
func (p *PGStore) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func (p *PGStore) CreateCampaign(ctx context.Context, c models.Campaign) (models.Campaign, error) {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	if c.Status == "" {
		c.Status = models.CampaignCreated
	}

	requestJSON, err := json.Marshal(c.Request)
	if err != nil {
		return models.Campaign{}, fmt.Errorf("marshal request: %w", err)
	}
	strategyJSON, err := json.Marshal(c.Strategy)
	if err != nil {
		return models.Campaign{}, fmt.Errorf("marshal strategy: %w", err)
	}
	assignmentsJSON, err := json.Marshal(c.Assignments)
	if err != nil {
		return models.Campaign{}, fmt.Errorf("marshal assignments: %w", err)
	}

	q := `
		INSERT INTO campaigns
		  (id, request_id, request, strategy, assignments, status, discovery_radius, start_at, deadline, shortfall, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`
	_, err = p.db.ExecContext(ctx, q,
		c.ID, c.RequestID, requestJSON, strategyJSON, assignmentsJSON,
		string(c.Status), c.DiscoveryRadius, c.StartAt, c.Deadline, c.Shortfall, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return models.Campaign{}, fmt.Errorf("insert campaign: %w", err)
	}
	return c, nil
}

const campaignColumns = `id, request_id, request, strategy, assignments, status, discovery_radius, start_at, deadline, shortfall, created_at, updated_at`

func scanCampaign(row interface{ Scan(...interface{}) error }) (models.Campaign, error) {
	var (
		c                                      models.Campaign
		requestJSON, strategyJSON, assignments []byte
		status                                 string
	)
	err := row.Scan(&c.ID, &c.RequestID, &requestJSON, &strategyJSON, &assignments,
		&status, &c.DiscoveryRadius, &c.StartAt, &c.Deadline, &c.Shortfall, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return models.Campaign{}, err
	}
	c.Status = models.CampaignStatus(status)
	if err := json.Unmarshal(requestJSON, &c.Request); err != nil {
		return models.Campaign{}, fmt.Errorf("unmarshal request: %w", err)
	}
	if err := json.Unmarshal(strategyJSON, &c.Strategy); err != nil {
		return models.Campaign{}, fmt.Errorf("unmarshal strategy: %w", err)
	}
	if err := json.Unmarshal(assignments, &c.Assignments); err != nil {
		return models.Campaign{}, fmt.Errorf("unmarshal assignments: %w", err)
	}
	return c, nil
}

func (p *PGStore) GetCampaign(ctx context.Context, id uuid.UUID) (models.Campaign, error) {
	q := `SELECT ` + campaignColumns + ` FROM campaigns WHERE id=$1`
	c, err := scanCampaign(p.db.QueryRowContext(ctx, q, id))
	if err == sql.ErrNoRows {
		return models.Campaign{}, ErrNotFound
	}
	if err != nil {
		return models.Campaign{}, fmt.Errorf("query campaign: %w", err)
	}
	return c, nil
}

func (p *PGStore) GetCampaignByRequest(ctx context.Context, requestID uuid.UUID) (models.Campaign, error) {
	q := `SELECT ` + campaignColumns + ` FROM campaigns WHERE request_id=$1 ORDER BY created_at DESC LIMIT 1`
	c, err := scanCampaign(p.db.QueryRowContext(ctx, q, requestID))
	if err == sql.ErrNoRows {
		return models.Campaign{}, ErrNotFound
	}
	if err != nil {
		return models.Campaign{}, fmt.Errorf("query campaign by request: %w", err)
	}
	return c, nil
}

func (p *PGStore) UpdateCampaignStatus(ctx context.Context, id uuid.UUID, status models.CampaignStatus, shortfall bool) (models.Campaign, error) {
	q := `UPDATE campaigns SET status=$2, shortfall=$3, updated_at=$4 WHERE id=$1`
	res, err := p.db.ExecContext(ctx, q, id, string(status), shortfall, time.Now().UTC())
	if err != nil {
		return models.Campaign{}, fmt.Errorf("update campaign status: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return models.Campaign{}, ErrNotFound
	}
	return p.GetCampaign(ctx, id)
}

func (p *PGStore) UpdateCampaignAssignments(ctx context.Context, id uuid.UUID, assignments []models.Assignment, discoveryRadius int) (models.Campaign, error) {
	assignmentsJSON, err := json.Marshal(assignments)
	if err != nil {
		return models.Campaign{}, fmt.Errorf("marshal assignments: %w", err)
	}
	q := `UPDATE campaigns SET assignments=$2, discovery_radius=$3, updated_at=$4 WHERE id=$1`
	res, err := p.db.ExecContext(ctx, q, id, assignmentsJSON, discoveryRadius, time.Now().UTC())
	if err != nil {
		return models.Campaign{}, fmt.Errorf("update campaign assignments: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return models.Campaign{}, ErrNotFound
	}
	return p.GetCampaign(ctx, id)
}

func (p *PGStore) ListActiveCampaigns(ctx context.Context) ([]models.Campaign, error) {
	q := `SELECT ` + campaignColumns + ` FROM campaigns WHERE status IN ('created','running') ORDER BY created_at ASC`
	rows, err := p.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list active campaigns: %w", err)
	}
	defer rows.Close()

	var out []models.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, fmt.Errorf("scan campaign: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (p *PGStore) InsertAttempt(ctx context.Context, a models.OutreachAttempt) (models.OutreachAttempt, error) {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.SentAt.IsZero() {
		a.SentAt = time.Now().UTC()
	}
	q := `
		INSERT INTO outreach_attempts
		  (id, campaign_id, candidate_key, channel, status, external_ref, score, follow_ups, sent_at, response, responded_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`
	_, err := p.db.ExecContext(ctx, q,
		a.ID, a.CampaignID, a.CandidateKey, string(a.Channel), string(a.Status),
		a.ExternalRef, a.Score, a.FollowUps, a.SentAt, string(a.Response), a.RespondedAt,
	)
	if err != nil {
		return models.OutreachAttempt{}, fmt.Errorf("insert attempt: %w", err)
	}
	return a, nil
}

const attemptColumns = `id, campaign_id, candidate_key, channel, status, external_ref, score, follow_ups, sent_at, response, responded_at`

func scanAttempt(row interface{ Scan(...interface{}) error }) (models.OutreachAttempt, error) {
	var (
		a                         models.OutreachAttempt
		channel, status, response string
		respondedAt               sql.NullTime
	)
	err := row.Scan(&a.ID, &a.CampaignID, &a.CandidateKey, &channel, &status,
		&a.ExternalRef, &a.Score, &a.FollowUps, &a.SentAt, &response, &respondedAt)
	if err != nil {
		return models.OutreachAttempt{}, err
	}
	a.Channel = models.Channel(channel)
	a.Status = models.AttemptStatus(status)
	a.Response = models.ResponseOutcome(response)
	if respondedAt.Valid {
		t := respondedAt.Time
		a.RespondedAt = &t
	}
	return a, nil
}

func (p *PGStore) ListAttempts(ctx context.Context, campaignID uuid.UUID) ([]models.OutreachAttempt, error) {
	q := `SELECT ` + attemptColumns + ` FROM outreach_attempts WHERE campaign_id=$1 ORDER BY sent_at ASC`
	rows, err := p.db.QueryContext(ctx, q, campaignID)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()

	var out []models.OutreachAttempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (p *PGStore) RecordResponse(ctx context.Context, campaignID uuid.UUID, candidateKey string, outcome models.ResponseOutcome, at time.Time) (models.OutreachAttempt, error) {
	q := `
		UPDATE outreach_attempts SET response=$3, responded_at=$4
		WHERE id = (
			SELECT id FROM outreach_attempts
			WHERE campaign_id=$1 AND candidate_key=$2
			ORDER BY sent_at DESC LIMIT 1
		)
		RETURNING ` + attemptColumns
	a, err := scanAttempt(p.db.QueryRowContext(ctx, q, campaignID, candidateKey, string(outcome), at))
	if err == sql.ErrNoRows {
		return models.OutreachAttempt{}, ErrNotFound
	}
	if err != nil {
		return models.OutreachAttempt{}, fmt.Errorf("record response: %w", err)
	}
	return a, nil
}

func (p *PGStore) IncrementFollowUp(ctx context.Context, attemptID uuid.UUID, at time.Time) (models.OutreachAttempt, error) {
	q := `
		UPDATE outreach_attempts SET follow_ups = follow_ups + 1, sent_at=$2
		WHERE id=$1
		RETURNING ` + attemptColumns
	a, err := scanAttempt(p.db.QueryRowContext(ctx, q, attemptID, at))
	if err == sql.ErrNoRows {
		return models.OutreachAttempt{}, ErrNotFound
	}
	if err != nil {
		return models.OutreachAttempt{}, fmt.Errorf("increment follow-up: %w", err)
	}
	return a, nil
}

func (p *PGStore) ListFollowUpEligible(ctx context.Context, olderThan time.Time, maxFollowUps int) ([]models.OutreachAttempt, error) {
	q := `
		SELECT ` + attemptColumns + ` FROM (
			SELECT DISTINCT ON (campaign_id, candidate_key) ` + attemptColumns + `
			FROM outreach_attempts
			ORDER BY campaign_id, candidate_key, sent_at DESC
		) latest
		WHERE response = '' AND sent_at <= $1 AND follow_ups < $2
		ORDER BY sent_at ASC
	`
	rows, err := p.db.QueryContext(ctx, q, olderThan, maxFollowUps)
	if err != nil {
		return nil, fmt.Errorf("list follow-up eligible: %w", err)
	}
	defer rows.Close()

	var out []models.OutreachAttempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (p *PGStore) InsertCheckIns(ctx context.Context, checkIns []models.CheckIn) error {
	q := `
		INSERT INTO check_ins
		  (id, campaign_id, offset_frac, scheduled_at, performance_ratio, decision, executed, evaluated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`
	for _, ci := range checkIns {
		if ci.ID == uuid.Nil {
			ci.ID = uuid.New()
		}
		_, err := p.db.ExecContext(ctx, q,
			ci.ID, ci.CampaignID, ci.Offset, ci.ScheduledAt,
			ci.PerformanceRatio, string(ci.Decision), ci.Executed, ci.EvaluatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert check-in: %w", err)
		}
	}
	return nil
}

const checkInColumns = `id, campaign_id, offset_frac, scheduled_at, performance_ratio, decision, executed, evaluated_at`

func scanCheckIn(row interface{ Scan(...interface{}) error }) (models.CheckIn, error) {
	var (
		ci          models.CheckIn
		decision    string
		evaluatedAt sql.NullTime
	)
	err := row.Scan(&ci.ID, &ci.CampaignID, &ci.Offset, &ci.ScheduledAt,
		&ci.PerformanceRatio, &decision, &ci.Executed, &evaluatedAt)
	if err != nil {
		return models.CheckIn{}, err
	}
	ci.Decision = models.EscalationAction(decision)
	if evaluatedAt.Valid {
		t := evaluatedAt.Time
		ci.EvaluatedAt = &t
	}
	return ci, nil
}

func (p *PGStore) ListCheckIns(ctx context.Context, campaignID uuid.UUID) ([]models.CheckIn, error) {
	q := `SELECT ` + checkInColumns + ` FROM check_ins WHERE campaign_id=$1 ORDER BY offset_frac ASC`
	rows, err := p.db.QueryContext(ctx, q, campaignID)
	if err != nil {
		return nil, fmt.Errorf("list check-ins: %w", err)
	}
	defer rows.Close()

	var out []models.CheckIn
	for rows.Next() {
		ci, err := scanCheckIn(rows)
		if err != nil {
			return nil, fmt.Errorf("scan check-in: %w", err)
		}
		out = append(out, ci)
	}
	return out, rows.Err()
}

func (p *PGStore) ListDueCheckIns(ctx context.Context, now time.Time) ([]models.CheckIn, error) {
	q := `SELECT ` + checkInColumns + ` FROM check_ins WHERE executed=false AND scheduled_at <= $1 ORDER BY scheduled_at ASC`
	rows, err := p.db.QueryContext(ctx, q, now)
	if err != nil {
		return nil, fmt.Errorf("list due check-ins: %w", err)
	}
	defer rows.Close()

	var out []models.CheckIn
	for rows.Next() {
		ci, err := scanCheckIn(rows)
		if err != nil {
			return nil, fmt.Errorf("scan check-in: %w", err)
		}
		out = append(out, ci)
	}
	return out, rows.Err()
}

func (p *PGStore) MarkCheckInExecuted(ctx context.Context, id uuid.UUID, ratio float64, decision models.EscalationAction, at time.Time) (bool, error) {
	q := `
		UPDATE check_ins SET executed=true, performance_ratio=$2, decision=$3, evaluated_at=$4
		WHERE id=$1 AND executed=false
	`
	res, err := p.db.ExecContext(ctx, q, id, ratio, string(decision), at)
	if err != nil {
		return false, fmt.Errorf("mark check-in executed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
