package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/athlia-api/internal/middleware"
	"github.com/iliyamo/athlia-api/internal/model"
	"github.com/iliyamo/athlia-api/internal/queue"
	"github.com/iliyamo/athlia-api/internal/repository"
	"github.com/iliyamo/athlia-api/internal/service"
)

// ProfileStore is the profile persistence the user endpoints need.
type ProfileStore interface {
	GetByAccountID(ctx context.Context, accountID string) (model.UserProfile, error)
	Upsert(ctx context.Context, p *model.UserProfile) (bool, error)
}

type UsersHandler struct {
	Profiles ProfileStore
	Events   service.EventPublisher
}

func NewUsersHandler(profiles ProfileStore, events service.EventPublisher) *UsersHandler {
	if events == nil {
		events = service.NopPublisher{}
	}
	return &UsersHandler{Profiles: profiles, Events: events}
}

type profileReq struct {
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
}

// Upsert creates or fully replaces the caller's profile. Fields left out of
// the body are stored as NULL.
func (h *UsersHandler) Upsert(c echo.Context) error {
	var req profileReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid body"})
	}
	if strings.TrimSpace(req.AccountID) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "id_account is required"})
	}
	if req.AccountID != middleware.AccountID(c) {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "Forbidden"})
	}

	var birthdate *time.Time
	if req.Birthdate != nil && *req.Birthdate != "" {
		d, err := ParseBirthdate(*req.Birthdate)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "birthdate is invalid"})
		}
		birthdate = &d
	}

	p := model.UserProfile{
		AccountID:          req.AccountID,
		Gender:             req.Gender,
		Birthdate:          birthdate,
		HeightCM:           req.HeightCM,
		WeightKG:           req.WeightKG,
		TrainingExperience: req.TrainingExperience,
		Sport:              req.Sport,
		MainGoal:           req.MainGoal,
		WeekAvailability:   req.WeekAvailability,
		Equipment:          req.Equipment,
		Health:             req.Health,
		Sleep:              req.Sleep,
		Stress:             req.Stress,
		Load:               req.Load,
		Recovery:           req.Recovery,
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	created, err := h.Profiles.Upsert(ctx, &p)
	if err != nil {
		slog.ErrorContext(ctx, "upsert profile", "account_id", p.AccountID, "error", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Internal server error"})
	}
	service.PublishAsync(h.Events, queue.NewAccountEvent(queue.EventProfileUpserted, p.AccountID, ""))

	view := newProfileView(p)
	view.Created = &created
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	return c.JSON(status, view)
}

// Me returns the caller's account and profile; profile is null until the
// first Upsert.
func (h *UsersHandler) Me(c echo.Context) error {
	acct, ok := middleware.CurrentAccount(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Unauthorized"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	var profile *profileView
	p, err := h.Profiles.GetByAccountID(ctx, acct.ID)
	switch {
	case err == nil:
		v := newProfileView(p)
		profile = &v
	case !errors.Is(err, repository.ErrNotFound):
		slog.ErrorContext(ctx, "load profile", "account_id", acct.ID, "error", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Internal server error"})
	}

	return c.JSON(http.StatusOK, echo.Map{"account": newAccountView(acct), "profile": profile})
}

var birthdateLayouts = []string{
	birthdateLayout,
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04Z0700",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05Z0700",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04Z07:00",
	"2006-01-02 15:04",
}

// ParseBirthdate accepts a calendar date or an ISO-8601 date-time ("Z" or a
// numeric offset allowed) and keeps only the date part, as UTC midnight.
func ParseBirthdate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range birthdateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, errors.New("invalid birthdate")
}
