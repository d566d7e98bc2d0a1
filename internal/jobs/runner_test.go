package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/restocklab/go-restock-backend/internal/domain"
	"github.com/restocklab/go-restock-backend/internal/notify"
	"github.com/restocklab/go-restock-backend/internal/repo"
	"github.com/restocklab/go-restock-backend/internal/services"
)

type nullSender struct{}

func (nullSender) Send(ctx context.Context, msg notify.Message) error { return nil }

// newInlineRunner wires a Runner without a queue over an in-memory store, the
// single-process configuration.
func newInlineRunner(t *testing.T) (*Runner, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:jobs_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.Exec("PRAGMA foreign_keys=ON;")
	db.Exec("PRAGMA busy_timeout=5000;")
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}

	dispatcher, err := notify.NewDispatcher(nullSender{}, nullSender{})
	if err != nil {
		t.Fatalf("dispatcher: %v", err)
	}
	plans := services.NewPlanService(db)
	demand := &services.DemandService{
		DB:              db,
		Plans:           plans,
		Recovery:        &services.RecoveryService{DB: db},
		Dispatcher:      dispatcher,
		RecoveryBaseURL: "https://app.example.com",
	}
	webhooks := &services.WebhookService{
		DB:         db,
		Demand:     demand,
		Plans:      plans,
		BatchSize:  2,
		BatchDelay: time.Millisecond,
	}
	return &Runner{Webhooks: webhooks, Demand: demand}, db
}

func seedShopAndVariant(t *testing.T, db *gorm.DB) (*domain.Shop, *domain.Variant) {
	t.Helper()
	ctx := context.Background()
	shop, err := repo.CreateShop(ctx, db, "jobs-store.myshopify.com", "tok", time.Now().UTC())
	if err != nil {
		t.Fatalf("seed shop: %v", err)
	}
	product, err := repo.CreateProduct(ctx, db, shop.ID, "ext-p", "Thing", nil)
	if err != nil {
		t.Fatalf("seed product: %v", err)
	}
	variant, err := repo.CreateVariant(ctx, db, product.ID, "ext-v", 0)
	if err != nil {
		t.Fatalf("seed variant: %v", err)
	}
	return shop, variant
}

func TestRunner_Inline_SubmitInventoryUpdate(t *testing.T) {
	runner, db := newInlineRunner(t)
	shop, variant := seedShopAndVariant(t, db)
	ctx := context.Background()

	err := runner.SubmitInventoryUpdate(ctx, shop.Domain, services.InventoryUpdatePayload{
		VariantID: variant.ExternalVariantID,
		Quantity:  6,
	})
	if err != nil {
		t.Fatalf("inline submit failed: %v", err)
	}

	got, err := repo.GetVariant(ctx, db, variant.ID)
	if err != nil {
		t.Fatalf("reload variant: %v", err)
	}
	if got.InventoryQuantity != 6 {
		t.Fatalf("inline submit did not apply inventory: %d", got.InventoryQuantity)
	}
}

func TestRunner_Inline_SubmitInventoryUpdate_AbsorbsProcessingFailure(t *testing.T) {
	runner, _ := newInlineRunner(t)

	// Unknown shop: the webhook layer absorbs the miss, the boundary contract
	// is a nil error either way.
	err := runner.SubmitInventoryUpdate(context.Background(), "ghost.myshopify.com", services.InventoryUpdatePayload{
		VariantID: "ext-v",
		Quantity:  3,
	})
	if err != nil {
		t.Fatalf("inline submit leaked processing error: %v", err)
	}
}

func TestRunner_Inline_SubmitNotify(t *testing.T) {
	runner, db := newInlineRunner(t)
	_, variant := seedShopAndVariant(t, db)
	ctx := context.Background()

	r, err := repo.CreateDemandRequest(ctx, db, variant.ID, "a@b.co", domain.ChannelEmail)
	if err != nil {
		t.Fatalf("seed request: %v", err)
	}

	if err := runner.SubmitNotify(ctx, r.ID); err != nil {
		t.Fatalf("inline notify failed: %v", err)
	}
	got, err := repo.GetDemandRequest(ctx, db, r.ID)
	if err != nil {
		t.Fatalf("reload request: %v", err)
	}
	if got.Status != domain.StatusNotified {
		t.Fatalf("request status = %s, want NOTIFIED", got.Status)
	}

	// Unlike inventory processing, notify returns its business error so the
	// merchant-facing endpoint can surface it.
	err = runner.SubmitNotify(ctx, r.ID)
	if !errors.Is(err, services.ErrAlreadyNotified) {
		t.Fatalf("expected ErrAlreadyNotified, got %v", err)
	}
}

func TestJob_RoundTrip(t *testing.T) {
	in := Job{Type: TypeInventoryUpdate, ShopDomain: "s.myshopify.com", VariantID: "ext-v", Quantity: 4}
	payload, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out Job
	if err := json.Unmarshal(payload, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out != in {
		t.Fatalf("round trip mismatch: %+v", out)
	}
}

func TestNextBackoff_DoublesAndCaps(t *testing.T) {
	got := []time.Duration{}
	for cur := initialDequeueBackoff; len(got) < 7; cur = nextBackoff(cur) {
		got = append(got, cur)
	}
	want := []time.Duration{
		time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second,
		16 * time.Second, 30 * time.Second, 30 * time.Second,
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("backoff step %d = %v, want %v", i, got[i], want[i])
		}
	}
}
