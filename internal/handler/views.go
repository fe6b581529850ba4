package handler

import (
	"time"

	"github.com/iliyamo/athlia-api/internal/model"
)

// birthdateLayout is how birthdates are stored and returned.
const birthdateLayout = "2006-01-02"

type accountView struct {
	ID             string  `json:"id"`
	Username       string  `json:"username"`
	Mail           string  `json:"mail"`
	Avatar         *string `json:"avatar"`
	StatutAccount  *string `json:"statut_account"`
	LastConnection *string `json:"last_connection"`
}

func newAccountView(a model.Account) accountView {
	v := accountView{
		ID:            a.ID,
		Username:      a.Username,
		Mail:          a.Mail,
		Avatar:        a.Avatar,
		StatutAccount: a.StatutAccount,
	}
	if a.LastConnection != nil {
		s := a.LastConnection.UTC().Format(time.RFC3339)
		v.LastConnection = &s
	}
	return v
}

type authResp struct {
	Token        string      `json:"token"`
	RefreshToken string      `json:"refreshToken"`
	Account      accountView `json:"account"`
}

type profileView struct {
	ID                 string   `json:"id"`
	AccountID          string   `json:"id_account"`
	Gender             *string  `json:"gender"`
	Birthdate          *string  `json:"birthdate"`
	HeightCM           *int     `json:"height_cm"`
	WeightKG           *float64 `json:"weight_kg"`
	TrainingExperience *string  `json:"training_experience"`
	Sport              *string  `json:"sport"`
	MainGoal           *string  `json:"main_goal"`
	WeekAvailability   *int     `json:"week_availability"`
	Equipment          *string  `json:"equipment"`
	Health             *string  `json:"health"`
	Sleep              *string  `json:"sleep"`
	Stress             *string  `json:"stress"`
	Load               *string  `json:"load"`
	Recovery           *string  `json:"recovery"`
	Created            *bool    `json:"created,omitempty"`
}

func newProfileView(p model.UserProfile) profileView {
	v := profileView{
		ID:                 p.ID,
		AccountID:          p.AccountID,
		Gender:             p.Gender,
		HeightCM:           p.HeightCM,
		WeightKG:           p.WeightKG,
		TrainingExperience: p.TrainingExperience,
		Sport:              p.Sport,
		MainGoal:           p.MainGoal,
		WeekAvailability:   p.WeekAvailability,
		Equipment:          p.Equipment,
		Health:             p.Health,
		Sleep:              p.Sleep,
		Stress:             p.Stress,
		Load:               p.Load,
		Recovery:           p.Recovery,
	}
	if p.Birthdate != nil {
		s := p.Birthdate.Format(birthdateLayout)
		v.Birthdate = &s
	}
	return v
}
