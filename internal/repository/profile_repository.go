package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/iliyamo/athlia-api/internal/model"
)

const profileColumns = "id,account_id,gender,birthdate,height_cm,weight_kg,training_experience," +
	"sport,main_goal,week_availability,equipment,health,sleep,stress,`load`,recovery"

// ProfileRepo persists user_profiles, one row per account.
type ProfileRepo struct{ DB *sql.DB }

func NewProfileRepo(db *sql.DB) *ProfileRepo { return &ProfileRepo{DB: db} }

// GetByAccountID returns the profile of an account or ErrNotFound.
func (r *ProfileRepo) GetByAccountID(ctx context.Context, accountID string) (model.UserProfile, error) {
	var p model.UserProfile
	err := r.DB.QueryRowContext(ctx,
		"SELECT "+profileColumns+" FROM user_profiles WHERE account_id=? LIMIT 1", accountID).
		Scan(profileDest(&p)...)
	if errors.Is(err, sql.ErrNoRows) {
		return model.UserProfile{}, ErrNotFound
	}
	if err != nil {
		return model.UserProfile{}, fmt.Errorf("scan profile: %w", err)
	}
	return p, nil
}

// Upsert replaces every field of the account's profile, creating the row
// when none exists. p.ID is set to the stored id. created reports whether a
// new row was inserted.
func (r *ProfileRepo) Upsert(ctx context.Context, p *model.UserProfile) (created bool, err error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var existingID string
	err = tx.QueryRowContext(ctx,
		"SELECT id FROM user_profiles WHERE account_id=? LIMIT 1 FOR UPDATE", p.AccountID).Scan(&existingID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		p.ID = uuid.NewString()
		_, err = tx.ExecContext(ctx,
			"INSERT INTO user_profiles ("+profileColumns+") VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)",
			profileArgs(p)...)
		if err != nil {
			return false, fmt.Errorf("insert profile: %w", err)
		}
		created = true
	case err != nil:
		return false, fmt.Errorf("select profile: %w", err)
	default:
		p.ID = existingID
		args := append(profileArgs(p)[2:], p.ID)
		_, err = tx.ExecContext(ctx,
			"UPDATE user_profiles SET gender=?,birthdate=?,height_cm=?,weight_kg=?,training_experience=?,"+
				"sport=?,main_goal=?,week_availability=?,equipment=?,health=?,sleep=?,stress=?,`load`=?,recovery=? "+
				"WHERE id=?",
			args...)
		if err != nil {
			return false, fmt.Errorf("update profile: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	return created, nil
}

// profileArgs lists values in profileColumns order.
func profileArgs(p *model.UserProfile) []any {
	return []any{
		p.ID, p.AccountID, p.Gender, p.Birthdate, p.HeightCM, p.WeightKG, p.TrainingExperience,
		p.Sport, p.MainGoal, p.WeekAvailability, p.Equipment, p.Health, p.Sleep, p.Stress, p.Load, p.Recovery,
	}
}

// profileDest lists scan targets in profileColumns order; nullable columns
// scan into pointer fields (NULL leaves them nil).
func profileDest(p *model.UserProfile) []any {
	return []any{
		&p.ID, &p.AccountID, &p.Gender, &p.Birthdate, &p.HeightCM, &p.WeightKG, &p.TrainingExperience,
		&p.Sport, &p.MainGoal, &p.WeekAvailability, &p.Equipment, &p.Health, &p.Sleep, &p.Stress, &p.Load, &p.Recovery,
	}
}
