package campaign

import (
	"context"
	"errors"
	"testing"

	"github.com/latticecrm/lattice/internal/config"
	"github.com/latticecrm/lattice/internal/domain"
	"github.com/latticecrm/lattice/internal/segment"
)

const testOwner = "owner-1"

type testEnv struct {
	repo      *memRepo
	ledger    *memLedger
	segments  *stubSegments
	customers *stubCustomers
	accounts  *stubAccounts
	mailer    *fakeMailer
	disp      *Dispatcher
	svc       *Service
}

func newTestEnv(matches []domain.Customer) *testEnv {
	env := &testEnv{
		repo:   newMemRepo(),
		ledger: &memLedger{},
		segments: &stubSegments{seg: &domain.Segment{
			ID: "seg-1", OwnerID: testOwner,
			Rules: domain.RuleTree{
				Combinator: domain.CombinatorAnd,
				Rules:      []domain.RuleNode{{Field: "total_spent", Operator: ">", Value: float64(100)}},
			},
		}},
		customers: &stubCustomers{matches: matches},
		accounts: &stubAccounts{account: &domain.EmailAccount{
			OwnerID: testOwner, SenderEmail: "crm@example.com", SenderName: "Lattice",
			SendGridKey: "sg-key",
		}},
		mailer: &fakeMailer{provider: domain.ProviderSendGrid},
	}

	cfg := config.DispatchConfig{
		SendTimeoutSeconds: 5, CampaignTimeoutMin: 10,
		MaxRetries: 1, LockTTLMinutes: 15,
	}
	comp := segment.NewCompiler()
	env.disp = NewDispatcher(env.repo, env.segments, env.customers, env.ledger,
		noopLockFactory{}, func(*domain.EmailAccount) (Mailer, error) { return env.mailer, nil },
		comp, cfg)
	env.svc = NewService(env.repo, env.segments, env.customers, env.ledger,
		env.accounts, comp, env.disp)
	return env
}

func testCustomer(id, name, email, city string) domain.Customer {
	return domain.Customer{
		ID: id, OwnerID: testOwner, Name: name, Email: email,
		Address:  domain.Address{City: city},
		Stats:    domain.CustomerStats{TotalSpent: 500, OrderCount: 3},
		IsActive: true,
	}
}

func validInput() CreateInput {
	return CreateInput{
		Name: "March promo", SegmentID: "seg-1",
		Subject: "Hi {name}", Body: "<p>Deals in {city}, {name}!</p>",
	}
}

func TestCreateRequiresConfiguredAccount(t *testing.T) {
	env := newTestEnv([]domain.Customer{testCustomer("c1", "Ada", "ada@example.com", "Berlin")})
	env.accounts.account = &domain.EmailAccount{OwnerID: testOwner}

	_, err := env.svc.Create(context.Background(), testOwner, validInput())
	if !errors.Is(err, ErrConfigurationRequired) {
		t.Fatalf("err = %v, want ErrConfigurationRequired", err)
	}
}

func TestCreateMapsMissingAccountToConfigurationRequired(t *testing.T) {
	env := newTestEnv([]domain.Customer{testCustomer("c1", "Ada", "ada@example.com", "Berlin")})
	env.accounts.err = ErrAccountNotFound

	_, err := env.svc.Create(context.Background(), testOwner, validInput())
	if !errors.Is(err, ErrConfigurationRequired) {
		t.Fatalf("err = %v, want ErrConfigurationRequired", err)
	}
}

// A transient account-store failure is an internal error, not a signal to
// tell the user they never configured email.
func TestCreateSurfacesAccountStoreErrors(t *testing.T) {
	env := newTestEnv([]domain.Customer{testCustomer("c1", "Ada", "ada@example.com", "Berlin")})
	dbDown := errors.New("connection refused")
	env.accounts.err = dbDown

	_, err := env.svc.Create(context.Background(), testOwner, validInput())
	if errors.Is(err, ErrConfigurationRequired) {
		t.Fatalf("store failure mapped to ErrConfigurationRequired: %v", err)
	}
	if !errors.Is(err, dbDown) {
		t.Fatalf("err = %v, want wrapped store error", err)
	}
}

func TestCreateRejectsBlankTemplate(t *testing.T) {
	env := newTestEnv([]domain.Customer{testCustomer("c1", "Ada", "ada@example.com", "Berlin")})

	in := validInput()
	in.Subject = "  "
	if _, err := env.svc.Create(context.Background(), testOwner, in); !errors.Is(err, ErrTemplateInvalid) {
		t.Errorf("blank subject: err = %v", err)
	}

	in = validInput()
	in.Body = ""
	if _, err := env.svc.Create(context.Background(), testOwner, in); !errors.Is(err, ErrTemplateInvalid) {
		t.Errorf("blank body: err = %v", err)
	}

	in = validInput()
	in.Name = ""
	if _, err := env.svc.Create(context.Background(), testOwner, in); !errors.Is(err, ErrNameRequired) {
		t.Errorf("blank name: err = %v", err)
	}
}

func TestCreateRejectsUnknownSegment(t *testing.T) {
	env := newTestEnv([]domain.Customer{testCustomer("c1", "Ada", "ada@example.com", "Berlin")})
	env.segments.err = segment.ErrNotFound

	_, err := env.svc.Create(context.Background(), testOwner, validInput())
	if !errors.Is(err, ErrSegmentNotFound) {
		t.Fatalf("err = %v, want ErrSegmentNotFound", err)
	}
}

func TestCreateRejectsInvalidRules(t *testing.T) {
	env := newTestEnv([]domain.Customer{testCustomer("c1", "Ada", "ada@example.com", "Berlin")})
	env.segments.seg.Rules = domain.RuleTree{
		Rules: []domain.RuleNode{{Field: "loyalty_tier", Operator: "==", Value: "gold"}},
	}

	_, err := env.svc.Create(context.Background(), testOwner, validInput())
	var verr *segment.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
	if verr.Field != "loyalty_tier" {
		t.Errorf("field = %q", verr.Field)
	}
}

func TestCreateRejectsEmptyAudience(t *testing.T) {
	env := newTestEnv(nil)

	_, err := env.svc.Create(context.Background(), testOwner, validInput())
	if !errors.Is(err, ErrEmptyAudience) {
		t.Fatalf("err = %v, want ErrEmptyAudience", err)
	}
}

func TestCreateSnapshotsAudienceAndVariables(t *testing.T) {
	env := newTestEnv([]domain.Customer{
		testCustomer("c1", "Ada", "ada@example.com", "Berlin"),
		testCustomer("c2", "Linus", "linus@example.com", "Helsinki"),
	})

	c, err := env.svc.Create(context.Background(), testOwner, validInput())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	env.disp.Wait()

	if c.Stats.TotalRecipients != 2 {
		t.Errorf("total_recipients = %d, want 2", c.Stats.TotalRecipients)
	}
	want := []string{"name", "city"}
	if len(c.Template.Variables) != len(want) {
		t.Fatalf("variables = %v, want %v", c.Template.Variables, want)
	}
	for i, v := range want {
		if c.Template.Variables[i] != v {
			t.Errorf("variables[%d] = %q, want %q", i, c.Template.Variables[i], v)
		}
	}
}

func TestRefreshStatsFromLedger(t *testing.T) {
	env := newTestEnv([]domain.Customer{
		testCustomer("c1", "Ada", "ada@example.com", "Berlin"),
		testCustomer("c2", "Linus", "linus@example.com", "Helsinki"),
	})

	c, err := env.svc.Create(context.Background(), testOwner, validInput())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	env.disp.Wait()

	got, err := env.svc.RefreshStats(context.Background(), testOwner, c.ID)
	if err != nil {
		t.Fatalf("RefreshStats: %v", err)
	}
	if got.Stats.Delivered != 2 || got.Stats.Failed != 0 {
		t.Errorf("stats = %+v", got.Stats)
	}
	if got.Stats.DeliveryRate != 100 {
		t.Errorf("delivery_rate = %v, want 100", got.Stats.DeliveryRate)
	}
}

func TestDeleteCascadesLogs(t *testing.T) {
	env := newTestEnv([]domain.Customer{
		testCustomer("c1", "Ada", "ada@example.com", "Berlin"),
	})

	c, err := env.svc.Create(context.Background(), testOwner, validInput())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	env.disp.Wait()

	if err := env.svc.Delete(context.Background(), testOwner, c.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := env.svc.Get(context.Background(), testOwner, c.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("campaign still readable after delete: %v", err)
	}
	logs, _ := env.ledger.ListForCampaign(context.Background(), c.ID, 100, 0)
	if len(logs) != 0 {
		t.Errorf("%d log rows survived delete", len(logs))
	}
}

func TestGetScopedToOwner(t *testing.T) {
	env := newTestEnv([]domain.Customer{
		testCustomer("c1", "Ada", "ada@example.com", "Berlin"),
	})

	c, err := env.svc.Create(context.Background(), testOwner, validInput())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	env.disp.Wait()

	if _, err := env.svc.Get(context.Background(), "other-owner", c.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("cross-owner read: err = %v, want ErrNotFound", err)
	}
}

func TestExtractVariables(t *testing.T) {
	got := ExtractVariables("Hi {name}", "{name} from {city} spent {total_spent}")
	want := []string{"name", "city", "total_spent"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestPersonalizeLeavesUnknownTokens(t *testing.T) {
	vars := map[string]string{"name": "Ada"}
	got := Personalize("Hi {name}, your {coupon} awaits", vars)
	if got != "Hi Ada, your {coupon} awaits" {
		t.Errorf("got %q", got)
	}
}
