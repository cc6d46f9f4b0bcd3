package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"github.com/latticecrm/lattice/internal/campaign"
	"github.com/latticecrm/lattice/internal/domain"
)

func newMock(t *testing.T) (sqlmock.Sqlmock, *CampaignRepo) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return mock, NewCampaignRepo(db)
}

var campaignCols = []string{"id", "owner_id", "segment_id", "name", "subject", "body",
	"variables", "status", "total_recipients", "sent_count", "delivered_count",
	"opened_count", "clicked_count", "failed_count", "delivery_rate", "open_rate",
	"click_rate", "failure_reason", "created_at", "updated_at"}

func TestCampaignGetScansTemplate(t *testing.T) {
	mock, repo := newMock(t)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT .+ FROM crm_campaigns WHERE id = \$1 AND owner_id = \$2`).
		WithArgs("camp-1", "owner-1").
		WillReturnRows(sqlmock.NewRows(campaignCols).AddRow(
			"camp-1", "owner-1", "seg-1", "March promo", "Hi {name}", "<p>{city}</p>",
			pq.StringArray{"name", "city"}, "completed", 3, 2, 2, 1, 0, 1,
			66.7, 50.0, 0.0, "", now, now))

	c, err := repo.Get(context.Background(), "owner-1", "camp-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if c.Template.Subject != "Hi {name}" || len(c.Template.Variables) != 2 {
		t.Errorf("template = %+v", c.Template)
	}
	if c.Status != domain.CampaignCompleted || c.Stats.Delivered != 2 {
		t.Errorf("campaign = %+v", c)
	}
}

func TestCampaignGetNotFound(t *testing.T) {
	mock, repo := newMock(t)

	mock.ExpectQuery(`SELECT .+ FROM crm_campaigns`).
		WithArgs("missing", "owner-1").
		WillReturnRows(sqlmock.NewRows(campaignCols))

	_, err := repo.Get(context.Background(), "owner-1", "missing")
	if !errors.Is(err, campaign.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestCampaignUpdateStatusGuarded(t *testing.T) {
	mock, repo := newMock(t)

	mock.ExpectExec(`UPDATE crm_campaigns SET status = \$1, failure_reason = NULLIF\(\$2, ''\), updated_at = NOW\(\) WHERE id = \$3 AND status = \$4`).
		WithArgs("processing", "", "camp-1", "draft").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpdateStatus(context.Background(), "camp-1",
		domain.CampaignDraft, domain.CampaignProcessing, "")
	if err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	// Row not in the expected state: no write, ErrNotFound
	mock.ExpectExec(`UPDATE crm_campaigns SET status`).
		WithArgs("completed", "", "camp-1", "processing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = repo.UpdateStatus(context.Background(), "camp-1",
		domain.CampaignProcessing, domain.CampaignCompleted, "")
	if !errors.Is(err, campaign.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestCampaignCreateInsertsVariables(t *testing.T) {
	mock, repo := newMock(t)

	mock.ExpectExec(`INSERT INTO crm_campaigns`).
		WithArgs("camp-1", "owner-1", "seg-1", "March promo",
			"Hi {name}", "<p>{city}</p>", pq.Array([]string{"name", "city"}),
			"draft", 3).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Create(context.Background(), &domain.Campaign{
		ID: "camp-1", OwnerID: "owner-1", SegmentID: "seg-1", Name: "March promo",
		Template: domain.Template{
			Subject: "Hi {name}", Body: "<p>{city}</p>",
			Variables: []string{"name", "city"},
		},
		Status: domain.CampaignDraft,
		Stats:  domain.CampaignStats{TotalRecipients: 3},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}
