package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/nidhogg/skillvault/internal/skill"
)

const skillColumns = `id, name, version, description, code, category,
	parameters, prerequisites, postconditions, verification, examples,
	tags, languages, frameworks, embedding, success_rate, usage_count,
	last_used, status, source, learned_from, created_at, updated_at`

// Get retrieves a single skill, or (nil, nil) when the id is absent.
func (p *Postgres) Get(ctx context.Context, id string) (*skill.Skill, error) {
	row := p.db.QueryRow(ctx,
		`SELECT `+skillColumns+` FROM skills WHERE id = $1`, id)
	s, err := scanSkill(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get skill %s: %w", id, err)
	}
	return s, nil
}

// List returns skills passing the filter, oldest first.
func (p *Postgres) List(ctx context.Context, f *skill.Filter) ([]*skill.Skill, error) {
	query := `SELECT ` + skillColumns + ` FROM skills`
	var conds []string
	var args []any

	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f != nil {
		if len(f.Categories) > 0 {
			cats := make([]string, len(f.Categories))
			for i, c := range f.Categories {
				cats[i] = string(c)
			}
			conds = append(conds, `category = ANY(`+arg(cats)+`)`)
		}
		if len(f.Status) > 0 {
			sts := make([]string, len(f.Status))
			for i, s := range f.Status {
				sts[i] = string(s)
			}
			conds = append(conds, `status = ANY(`+arg(sts)+`)`)
		}
		if len(f.Tags) > 0 {
			conds = append(conds, `tags ?| `+arg(f.Tags))
		}
		if len(f.Languages) > 0 {
			conds = append(conds, `languages ?| `+arg(f.Languages))
		}
		if len(f.Frameworks) > 0 {
			conds = append(conds, `frameworks ?| `+arg(f.Frameworks))
		}
		if f.MinSuccessRate != nil {
			conds = append(conds, `success_rate >= `+arg(*f.MinSuccessRate))
		}
	}
	for i, c := range conds {
		if i == 0 {
			query += ` WHERE ` + c
		} else {
			query += ` AND ` + c
		}
	}
	query += ` ORDER BY created_at, id`
	if f != nil && f.MaxResults > 0 {
		query += ` LIMIT ` + arg(f.MaxResults)
	}

	rows, err := p.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list skills: %w", err)
	}
	defer rows.Close()
	return scanSkills(rows)
}

// Add inserts a new skill. An id collision maps to skill.ErrExists.
func (p *Postgres) Add(ctx context.Context, s *skill.Skill) error {
	_, err := p.db.Exec(ctx, `
		INSERT INTO skills (`+skillColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23)`,
		insertArgs(s)...,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("add %s: %w", s.ID, skill.ErrExists)
	}
	if err != nil {
		return fmt.Errorf("add skill %s: %w", s.ID, err)
	}
	return nil
}

// Update replaces the record wholesale and refreshes updated_at.
func (p *Postgres) Update(ctx context.Context, s *skill.Skill) error {
	tag, err := p.db.Exec(ctx, `
		UPDATE skills SET
			name=$2, version=$3, description=$4, code=$5, category=$6,
			parameters=$7, prerequisites=$8, postconditions=$9,
			verification=$10, examples=$11, tags=$12, languages=$13,
			frameworks=$14, embedding=$15, success_rate=$16,
			usage_count=$17, last_used=$18, status=$19, source=$20,
			learned_from=$21, created_at=$22, updated_at=NOW()
		WHERE id=$1`,
		insertArgs(s)[:22]...,
	)
	if err != nil {
		return fmt.Errorf("update skill %s: %w", s.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update %s: %w", s.ID, skill.ErrNotFound)
	}
	return nil
}

// Archive soft-deletes: status becomes archived, the row stays.
func (p *Postgres) Archive(ctx context.Context, id string) error {
	tag, err := p.db.Exec(ctx,
		`UPDATE skills SET status='archived', updated_at=NOW() WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("archive skill %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("archive %s: %w", id, skill.ErrNotFound)
	}
	return nil
}

// Count returns the number of stored skills, archived included.
func (p *Postgres) Count(ctx context.Context) (int, error) {
	var n int
	if err := p.db.QueryRow(ctx, `SELECT COUNT(*) FROM skills`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count skills: %w", err)
	}
	return n, nil
}

// Search queries the tsvector index, falling back to a substring match
// so short fragments behave like the in-memory store.
func (p *Postgres) Search(ctx context.Context, keyword string) ([]*skill.Skill, error) {
	rows, err := p.db.Query(ctx, `
		SELECT `+skillColumns+` FROM skills
		WHERE searchable @@ plainto_tsquery('english', $1)
		   OR lower(name || ' ' || description || ' ' || code) LIKE '%' || lower($1) || '%'
		ORDER BY id`, keyword)
	if err != nil {
		return nil, fmt.Errorf("search skills: %w", err)
	}
	defer rows.Close()
	return scanSkills(rows)
}

func insertArgs(s *skill.Skill) []any {
	paramsJSON, _ := json.Marshal(s.Parameters)
	prereqJSON, _ := json.Marshal(s.Prerequisites)
	postJSON, _ := json.Marshal(s.Postconditions)
	verifJSON, _ := json.Marshal(s.Verification)
	examplesJSON, _ := json.Marshal(s.Examples)
	tagsJSON, _ := json.Marshal(s.Tags)
	langsJSON, _ := json.Marshal(s.Languages)
	fwJSON, _ := json.Marshal(s.Frameworks)
	learnedJSON, _ := json.Marshal(s.LearnedFrom)

	return []any{
		s.ID, s.Name, s.Version, s.Description, s.Code, string(s.Category),
		paramsJSON, prereqJSON, postJSON, verifJSON, examplesJSON,
		tagsJSON, langsJSON, fwJSON, encodeVector(s.Embedding),
		s.SuccessRate, s.UsageCount, s.LastUsed,
		string(s.Status), string(s.Source), learnedJSON,
		s.CreatedAt, s.UpdatedAt,
	}
}

func scanSkills(rows pgx.Rows) ([]*skill.Skill, error) {
	var out []*skill.Skill
	for rows.Next() {
		s, err := scanSkill(rows)
		if err != nil {
			return nil, fmt.Errorf("scan skill: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func scanSkill(row pgx.Row) (*skill.Skill, error) {
	var s skill.Skill
	var category, status, source string
	var paramsJSON, prereqJSON, postJSON, verifJSON, examplesJSON []byte
	var tagsJSON, langsJSON, fwJSON, learnedJSON []byte
	var embBlob []byte
	var lastUsed *time.Time

	err := row.Scan(
		&s.ID, &s.Name, &s.Version, &s.Description, &s.Code, &category,
		&paramsJSON, &prereqJSON, &postJSON, &verifJSON, &examplesJSON,
		&tagsJSON, &langsJSON, &fwJSON, &embBlob, &s.SuccessRate,
		&s.UsageCount, &lastUsed, &status, &source, &learnedJSON,
		&s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	s.Category = skill.Category(category)
	s.Status = skill.Status(status)
	s.Source = skill.Source(source)
	s.LastUsed = lastUsed
	_ = json.Unmarshal(paramsJSON, &s.Parameters)
	_ = json.Unmarshal(prereqJSON, &s.Prerequisites)
	_ = json.Unmarshal(postJSON, &s.Postconditions)
	_ = json.Unmarshal(verifJSON, &s.Verification)
	_ = json.Unmarshal(examplesJSON, &s.Examples)
	_ = json.Unmarshal(tagsJSON, &s.Tags)
	_ = json.Unmarshal(langsJSON, &s.Languages)
	_ = json.Unmarshal(fwJSON, &s.Frameworks)
	_ = json.Unmarshal(learnedJSON, &s.LearnedFrom)
	if s.Embedding, err = decodeVector(embBlob); err != nil {
		return nil, err
	}
	return &s, nil
}

var _ skill.Store = (*Postgres)(nil)
