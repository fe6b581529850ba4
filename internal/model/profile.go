package model

import "time"

// UserProfile represents a row of the `user_profiles` table: the onboarding
// answers of one account. Every field except the identifiers is optional.
type UserProfile struct {
	ID                 string     // user_profiles.id
	AccountID          string     // user_profiles.account_id (unique)
	Gender             *string    // user_profiles.gender
	Birthdate          *time.Time // user_profiles.birthdate (DATE, UTC midnight)
	HeightCM           *int       // user_profiles.height_cm
	WeightKG           *float64   // user_profiles.weight_kg
	TrainingExperience *string    // user_profiles.training_experience
	Sport              *string    // user_profiles.sport
	MainGoal           *string    // user_profiles.main_goal
	WeekAvailability   *int       // user_profiles.week_availability
	Equipment          *string    // user_profiles.equipment
	Health             *string    // user_profiles.health
	Sleep              *string    // user_profiles.sleep
	Stress             *string    // user_profiles.stress
	Load               *string    // user_profiles.load
	Recovery           *string    // user_profiles.recovery
}
