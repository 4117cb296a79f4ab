package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/acreage/leadline/internal/domain"
)

// LeadRepo persists leads and their lifecycle state.
type LeadRepo struct{ db *sql.DB }

// NewLeadRepo creates a Postgres-backed lead repository.
func NewLeadRepo(db *sql.DB) *LeadRepo { return &LeadRepo{db: db} }

const leadColumns = `id, owner_id, parcel_id, market_code, motivation_score, score_details,
	pipeline_stage, status, last_reply_classification, last_reply_at,
	followup_count, last_followup_at, next_followup_at, last_alerted_at,
	send_locked_at, send_locked_by, tags, deleted_at, created_at, updated_at`

func scanLead(row interface{ Scan(...any) error }) (*domain.Lead, error) {
	var (
		l       domain.Lead
		details []byte
		cls     sql.NullString
	)
	err := row.Scan(&l.ID, &l.OwnerID, &l.ParcelID, &l.MarketCode, &l.MotivationScore, &details,
		&l.PipelineStage, &l.Status, &cls, &l.LastReplyAt,
		&l.FollowupCount, &l.LastFollowupAt, &l.NextFollowupAt, &l.LastAlertedAt,
		&l.SendLockedAt, &l.SendLockedBy, pq.Array(&l.Tags), &l.DeletedAt, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if cls.Valid {
		c := domain.ReplyClassification(cls.String)
		l.LastReplyClassification = &c
	}
	if len(details) > 0 {
		var sb domain.ScoreBreakdown
		if err := json.Unmarshal(details, &sb); err == nil {
			l.ScoreDetails = &sb
		}
	}
	return &l, nil
}

// Upsert inserts a lead for an (owner, parcel) pair or returns the existing
// one. A brand-new lead starts at stage NEW with score 0; re-ingesting an
// existing pair leaves its lifecycle untouched.
func (r *LeadRepo) Upsert(ctx context.Context, ownerID, parcelID int64, marketCode string) (*domain.Lead, bool, error) {
	var (
		l       domain.Lead
		details []byte
		cls     sql.NullString
		created bool
	)
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO leads (owner_id, parcel_id, market_code, pipeline_stage, status, created_at, updated_at)
		VALUES ($1, $2, $3, 'NEW', 'new', NOW(), NOW())
		ON CONFLICT (owner_id, parcel_id) DO UPDATE SET updated_at = NOW()
		RETURNING `+leadColumns+`, (xmax = 0) AS inserted
	`, ownerID, parcelID, marketCode).
		Scan(&l.ID, &l.OwnerID, &l.ParcelID, &l.MarketCode, &l.MotivationScore, &details,
			&l.PipelineStage, &l.Status, &cls, &l.LastReplyAt,
			&l.FollowupCount, &l.LastFollowupAt, &l.NextFollowupAt, &l.LastAlertedAt,
			&l.SendLockedAt, &l.SendLockedBy, pq.Array(&l.Tags), &l.DeletedAt, &l.CreatedAt, &l.UpdatedAt,
			&created)
	if err != nil {
		return nil, false, fmt.Errorf("upsert lead: %w", err)
	}
	if cls.Valid {
		c := domain.ReplyClassification(cls.String)
		l.LastReplyClassification = &c
	}
	if len(details) > 0 {
		var sb domain.ScoreBreakdown
		if err := json.Unmarshal(details, &sb); err == nil {
			l.ScoreDetails = &sb
		}
	}
	return &l, created, nil
}

// Get loads a lead by id.
func (r *LeadRepo) Get(ctx context.Context, id int64) (*domain.Lead, error) {
	l, err := scanLead(r.db.QueryRowContext(ctx,
		`SELECT `+leadColumns+` FROM leads WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get lead: %w", err)
	}
	return l, nil
}

// ActiveForOwner returns the owner's most recently touched live lead.
// Inbound replies are attributed through this.
func (r *LeadRepo) ActiveForOwner(ctx context.Context, ownerID int64) (*domain.Lead, error) {
	l, err := scanLead(r.db.QueryRowContext(ctx, `
		SELECT `+leadColumns+` FROM leads
		WHERE owner_id = $1 AND status != 'dead' AND deleted_at IS NULL
		ORDER BY updated_at DESC
		LIMIT 1
	`, ownerID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("active lead for owner: %w", err)
	}
	return l, nil
}

// UpdateScore stores the score and breakdown and applies the stage
// transition in the same statement. Manually-advanced stages are never
// regressed: for those rows only the score fields change.
func (r *LeadRepo) UpdateScore(ctx context.Context, id int64, score int, breakdown *domain.ScoreBreakdown, stage domain.PipelineStage) error {
	details, err := json.Marshal(breakdown)
	if err != nil {
		return fmt.Errorf("marshal score details: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		UPDATE leads SET
			motivation_score = $2,
			score_details    = $3,
			pipeline_stage   = CASE
				WHEN pipeline_stage IN ('CONTACTED','REVIEW','OFFER','CONTRACT') THEN pipeline_stage
				ELSE $4
			END,
			updated_at = NOW()
		WHERE id = $1
	`, id, score, jsonArg(details), string(stage))
	if err != nil {
		return fmt.Errorf("update score: %w", err)
	}
	return nil
}

// SetStage moves a lead to a stage explicitly. This is the human override
// path; no regression guard applies.
func (r *LeadRepo) SetStage(ctx context.Context, id int64, stage domain.PipelineStage) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE leads SET pipeline_stage = $2, updated_at = NOW() WHERE id = $1`, id, string(stage))
	if err != nil {
		return fmt.Errorf("set stage: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetStatus sets the operational status.
func (r *LeadRepo) SetStatus(ctx context.Context, id int64, status domain.LeadStatus) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE leads SET status = $2, updated_at = NOW() WHERE id = $1`, id, string(status))
	if err != nil {
		return fmt.Errorf("set status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// AcquireSendLock takes the per-lead send lock when it is free, expired,
// or already held by this instance. Returns false on contention.
func (r *LeadRepo) AcquireSendLock(ctx context.Context, id int64, instance string, ttl time.Duration) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE leads SET send_locked_at = NOW(), send_locked_by = $2
		WHERE id = $1 AND (
			send_locked_at IS NULL
			OR send_locked_at < NOW() - ($3 * INTERVAL '1 second')
			OR send_locked_by = $2
		)
	`, id, instance, int(ttl.Seconds()))
	if err != nil {
		return false, fmt.Errorf("acquire send lock: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("acquire send lock: %w", err)
	}
	return n == 1, nil
}

// ReleaseSendLock clears the send lock if this instance still holds it.
func (r *LeadRepo) ReleaseSendLock(ctx context.Context, id int64, instance string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE leads SET send_locked_at = NULL, send_locked_by = NULL
		WHERE id = $1 AND send_locked_by = $2
	`, id, instance)
	if err != nil {
		return fmt.Errorf("release send lock: %w", err)
	}
	return nil
}

// MarkContacted records a successful outbound send: status becomes
// contacted and the stage becomes CONTACTED unless the lead already sits
// in a later manually-advanced stage. When the lead has no scheduled
// followup yet, nextFollowup seeds the cadence.
func (r *LeadRepo) MarkContacted(ctx context.Context, id int64, nextFollowup *time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE leads SET
			status           = 'contacted',
			pipeline_stage   = CASE
				WHEN pipeline_stage IN ('REVIEW','OFFER','CONTRACT') THEN pipeline_stage
				ELSE 'CONTACTED'
			END,
			next_followup_at = COALESCE(next_followup_at, $2),
			updated_at       = NOW()
		WHERE id = $1
	`, id, nextFollowup)
	if err != nil {
		return fmt.Errorf("mark contacted: %w", err)
	}
	return nil
}

// AdvanceFollowup moves the cadence forward before a followup send:
// bumps the counter, stamps last_followup_at, and schedules (or clears)
// the next touch. Running this before the gateway call means a crash
// mid-send can only skip a followup, never repeat one.
func (r *LeadRepo) AdvanceFollowup(ctx context.Context, id int64, count int, next *time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE leads SET
			followup_count   = $2,
			last_followup_at = NOW(),
			next_followup_at = $3,
			updated_at       = NOW()
		WHERE id = $1
	`, id, count, next)
	if err != nil {
		return fmt.Errorf("advance followup: %w", err)
	}
	return nil
}

// CancelFollowup clears the next scheduled touch without advancing the
// counter, for leads the compliance gate permanently refuses.
func (r *LeadRepo) CancelFollowup(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE leads SET next_followup_at = NULL, updated_at = NOW() WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("cancel followup: %w", err)
	}
	return nil
}

// RecordReply applies a classified inbound reply: classification, reply
// timestamp, stage, followup counters, and the next scheduled touch, all
// in one statement.
func (r *LeadRepo) RecordReply(ctx context.Context, id int64, cls domain.ReplyClassification, stage domain.PipelineStage, status domain.LeadStatus, next *time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE leads SET
			last_reply_classification = $2,
			last_reply_at             = NOW(),
			pipeline_stage            = $3,
			status                    = $4,
			followup_count            = followup_count + 1,
			last_followup_at          = NOW(),
			next_followup_at          = $5,
			updated_at                = NOW()
		WHERE id = $1
	`, id, string(cls), string(stage), string(status), next)
	if err != nil {
		return fmt.Errorf("record reply: %w", err)
	}
	return nil
}

// TouchAlerted stamps last_alerted_at after at least one alert sink
// delivered.
func (r *LeadRepo) TouchAlerted(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE leads SET last_alerted_at = NOW(), updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("touch alerted: %w", err)
	}
	return nil
}

// SoftDelete hides a lead from every query without destroying history.
func (r *LeadRepo) SoftDelete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE leads SET deleted_at = NOW(), updated_at = NOW() WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("soft delete lead: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListOutreachCandidates returns untouched NEW leads at or above the
// market's score floor whose owner is still contactable, best first.
func (r *LeadRepo) ListOutreachCandidates(ctx context.Context, marketCode string, minScore, limit int) ([]domain.Lead, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+prefixedLeadColumns("l")+`
		FROM leads l
		JOIN owners o ON o.id = l.owner_id
		WHERE l.pipeline_stage = 'NEW'
		  AND l.market_code = $1
		  AND l.motivation_score >= $2
		  AND l.followup_count = 0
		  AND o.opt_out = false
		  AND o.is_dnr = false
		  AND o.phone_primary IS NOT NULL
		  AND l.deleted_at IS NULL
		ORDER BY l.motivation_score DESC, l.id ASC
		LIMIT $3
	`, marketCode, minScore, limit)
	if err != nil {
		return nil, fmt.Errorf("list outreach candidates: %w", err)
	}
	return collectLeads(rows)
}

// ListFollowupsDue returns leads whose scheduled followup has arrived and
// whose last reply does not block further automated touches. HOT leads are
// excluded: a human works those.
func (r *LeadRepo) ListFollowupsDue(ctx context.Context, limit int) ([]domain.Lead, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+prefixedLeadColumns("l")+`
		FROM leads l
		WHERE l.next_followup_at IS NOT NULL
		  AND l.next_followup_at <= NOW()
		  AND l.pipeline_stage != 'HOT'
		  AND (l.last_reply_classification IS NULL
		       OR l.last_reply_classification NOT IN ('NOT_INTERESTED','DEAD'))
		  AND l.status NOT IN ('dead','closed')
		  AND l.deleted_at IS NULL
		ORDER BY l.next_followup_at ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list followups due: %w", err)
	}
	return collectLeads(rows)
}

// ListHotUnalerted returns HOT leads at or above the score threshold
// whose last alert is outside the dedup window.
func (r *LeadRepo) ListHotUnalerted(ctx context.Context, marketCode string, minScore, dedupHours, limit int) ([]domain.Lead, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+prefixedLeadColumns("l")+`
		FROM leads l
		WHERE l.pipeline_stage = 'HOT'
		  AND l.market_code = $1
		  AND l.motivation_score >= $2
		  AND (l.last_alerted_at IS NULL
		       OR l.last_alerted_at < NOW() - ($3 * INTERVAL '1 hour'))
		  AND l.deleted_at IS NULL
		ORDER BY l.motivation_score DESC, l.id ASC
		LIMIT $4
	`, marketCode, minScore, dedupHours, limit)
	if err != nil {
		return nil, fmt.Errorf("list hot unalerted: %w", err)
	}
	return collectLeads(rows)
}

// ListNeedingScore returns non-deleted leads in a market for (re)scoring.
func (r *LeadRepo) ListNeedingScore(ctx context.Context, marketCode string, limit, offset int) ([]domain.Lead, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+prefixedLeadColumns("l")+`
		FROM leads l
		WHERE l.market_code = $1 AND l.deleted_at IS NULL
		ORDER BY l.id ASC
		LIMIT $2 OFFSET $3
	`, marketCode, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list leads needing score: %w", err)
	}
	return collectLeads(rows)
}

// LeadFilter narrows List. Zero values mean "no constraint".
// TCPASafeOnly keeps only leads whose owner can legally be texted.
type LeadFilter struct {
	MarketCode   string
	Stage        string
	Status       string
	MinScore     int
	TCPASafeOnly bool
	Limit        int
	Offset       int
}

// List returns leads matching the filter, highest score first, plus the
// total match count for pagination.
func (r *LeadRepo) List(ctx context.Context, f LeadFilter) ([]domain.Lead, int, error) {
	from := `FROM leads l`
	where := `WHERE l.deleted_at IS NULL`
	args := []any{}
	n := 0
	add := func(clause string, v any) {
		n++
		where += fmt.Sprintf(" AND %s $%d", clause, n)
		args = append(args, v)
	}
	if f.MarketCode != "" {
		add("l.market_code =", f.MarketCode)
	}
	if f.Stage != "" {
		add("l.pipeline_stage =", f.Stage)
	}
	if f.Status != "" {
		add("l.status =", f.Status)
	}
	if f.MinScore > 0 {
		add("l.motivation_score >=", f.MinScore)
	}
	if f.TCPASafeOnly {
		from += ` JOIN owners o ON o.id = l.owner_id`
		where += ` AND o.opt_out = false AND o.is_dnr = false AND o.phone_primary IS NOT NULL`
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) `+from+` `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count leads: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit, f.Offset)
	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s %s %s
		ORDER BY l.motivation_score DESC, l.id ASC
		LIMIT $%d OFFSET $%d
	`, prefixedLeadColumns("l"), from, where, n+1, n+2), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list leads: %w", err)
	}
	out, err := collectLeads(rows)
	return out, total, err
}

// CountByStage returns stage → lead count for a market. Empty market
// aggregates everything.
func (r *LeadRepo) CountByStage(ctx context.Context, marketCode string) (map[string]int, error) {
	query := `SELECT pipeline_stage, COUNT(*) FROM leads WHERE deleted_at IS NULL`
	args := []any{}
	if marketCode != "" {
		query += ` AND market_code = $1`
		args = append(args, marketCode)
	}
	query += ` GROUP BY pipeline_stage`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("count leads by stage: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var stage string
		var count int
		if err := rows.Scan(&stage, &count); err != nil {
			return nil, fmt.Errorf("scan stage count: %w", err)
		}
		out[stage] = count
	}
	return out, rows.Err()
}

func collectLeads(rows *sql.Rows) ([]domain.Lead, error) {
	defer rows.Close()
	var out []domain.Lead
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, fmt.Errorf("scan lead: %w", err)
		}
		out = append(out, *l)
	}
	return out, rows.Err()
}

// prefixedLeadColumns qualifies the shared column list for joined queries.
func prefixedLeadColumns(alias string) string {
	return alias + `.id, ` + alias + `.owner_id, ` + alias + `.parcel_id, ` + alias + `.market_code, ` +
		alias + `.motivation_score, ` + alias + `.score_details, ` + alias + `.pipeline_stage, ` + alias + `.status, ` +
		alias + `.last_reply_classification, ` + alias + `.last_reply_at, ` + alias + `.followup_count, ` +
		alias + `.last_followup_at, ` + alias + `.next_followup_at, ` + alias + `.last_alerted_at, ` +
		alias + `.send_locked_at, ` + alias + `.send_locked_by, ` + alias + `.tags, ` + alias + `.deleted_at, ` +
		alias + `.created_at, ` + alias + `.updated_at`
}
