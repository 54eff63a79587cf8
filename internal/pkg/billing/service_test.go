package billing

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/hallway-app/hallway/app/models"
	"github.com/hallway-app/hallway/internal/pkg/directory"
)

type fakeDirectory struct {
	bySub   map[string]*directory.User
	byEmail map[string]*directory.User
	applied []directory.SubscriptionAttributes
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		bySub:   map[string]*directory.User{},
		byEmail: map[string]*directory.User{},
	}
}

func (f *fakeDirectory) FindUserBySubscriptionID(_ context.Context, subscriptionID string) (*directory.User, error) {
	if u, ok := f.bySub[subscriptionID]; ok {
		return u, nil
	}
	return nil, directory.ErrUserNotFound
}

func (f *fakeDirectory) FindUserByEmail(_ context.Context, email string) (*directory.User, error) {
	if u, ok := f.byEmail[email]; ok {
		return u, nil
	}
	return nil, directory.ErrUserNotFound
}

func (f *fakeDirectory) Apply(_ context.Context, _ *directory.User, attrs directory.SubscriptionAttributes) (bool, error) {
	f.applied = append(f.applied, attrs)
	return true, nil
}

type fakePaddle struct {
	customers map[string]*CustomerData
}

func (f *fakePaddle) GetCustomer(_ context.Context, customerID string) (*CustomerData, error) {
	if c, ok := f.customers[customerID]; ok {
		return c, nil
	}
	return nil, fmt.Errorf("customer %s not found", customerID)
}

func newTestService(t *testing.T, orgPriceIDs ...string) (*Service, *gorm.DB, *fakeDirectory, *fakePaddle) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Organization{},
		&models.Subscription{},
		&models.SubscriptionItem{},
		&models.Customer{},
		&models.Business{},
		&models.WebhookEvent{},
	))

	dir := newFakeDirectory()
	paddle := &fakePaddle{customers: map[string]*CustomerData{}}
	svc := NewService(NewRepository(db), paddle, dir, orgPriceIDs)
	return svc, db, dir, paddle
}

func subscriptionBundle(id, customerID, status string, items []ItemData, occurredAt time.Time) EventBundle {
	return EventBundle{
		EventType:  EventSubscriptionUpdated,
		OccurredAt: occurredAt,
		Subscription: &SubscriptionData{
			ID:             id,
			CustomerID:     customerID,
			Status:         status,
			CollectionMode: models.CollectionModeAutomatic,
			Items:          items,
		},
	}
}

func TestProcessCustomerLinksUserByEmail(t *testing.T) {
	svc, db, _, _ := newTestService(t)
	ctx := context.Background()

	user := models.User{Name: "Alice Tester", Email: "alice@example.com"}
	require.NoError(t, db.Create(&user).Error)

	bundle := EventBundle{
		EventType:  EventCustomerCreated,
		OccurredAt: time.Now(),
		Customer:   &CustomerData{ID: "ctm_1", Email: "alice@example.com", Name: "Alice"},
	}
	require.NoError(t, svc.ProcessBundle(ctx, bundle))

	var stored models.Customer
	require.NoError(t, db.Where("provider_customer_id = ?", "ctm_1").First(&stored).Error)
	require.NotNil(t, stored.UserID)
	assert.Equal(t, user.ID, *stored.UserID)

	// A replay with an email that matches no user keeps the earlier link.
	bundle.Customer.Email = "gone@example.com"
	require.NoError(t, svc.ProcessBundle(ctx, bundle))
	require.NoError(t, db.Where("provider_customer_id = ?", "ctm_1").First(&stored).Error)
	require.NotNil(t, stored.UserID)
	assert.Equal(t, user.ID, *stored.UserID)

	var count int64
	db.Model(&models.Customer{}).Count(&count)
	assert.EqualValues(t, 1, count)
}

func TestProcessCustomerWithoutLocalUser(t *testing.T) {
	svc, db, _, _ := newTestService(t)

	bundle := EventBundle{
		EventType:  EventCustomerCreated,
		OccurredAt: time.Now(),
		Customer:   &CustomerData{ID: "ctm_2", Email: "nobody@example.com"},
	}
	require.NoError(t, svc.ProcessBundle(context.Background(), bundle))

	var stored models.Customer
	require.NoError(t, db.Where("provider_customer_id = ?", "ctm_2").First(&stored).Error)
	assert.Nil(t, stored.UserID)
}

func TestProcessBusinessRequiresCustomerLink(t *testing.T) {
	svc, db, _, _ := newTestService(t)
	ctx := context.Background()

	// Unknown customer: the delivery is skipped without error.
	bundle := EventBundle{
		EventType:  EventBusinessCreated,
		OccurredAt: time.Now(),
		Business:   &BusinessData{ID: "biz_1", CustomerID: "ctm_missing", Name: "Acme"},
	}
	require.NoError(t, svc.ProcessBundle(ctx, bundle))

	var count int64
	db.Model(&models.Business{}).Count(&count)
	assert.EqualValues(t, 0, count)

	// Once the customer exists the same business delivery lands.
	require.NoError(t, db.Create(&models.Customer{ProviderCustomerID: "ctm_missing", Email: "b@example.com"}).Error)
	require.NoError(t, svc.ProcessBundle(ctx, bundle))

	var stored models.Business
	require.NoError(t, db.Where("provider_business_id = ?", "biz_1").First(&stored).Error)
	require.NotNil(t, stored.CustomerID)
}

func TestProcessSubscriptionStickyOrgFlag(t *testing.T) {
	svc, db, _, _ := newTestService(t, "pri_org")
	ctx := context.Background()

	user := models.User{Name: "Owner Person", Email: "owner@example.com"}
	require.NoError(t, db.Create(&user).Error)
	org := models.Organization{Name: "Owner Org", OwnerUserID: user.ID}
	require.NoError(t, db.Create(&org).Error)
	require.NoError(t, db.Create(&models.Customer{ProviderCustomerID: "ctm_org", Email: user.Email, UserID: &user.ID}).Error)

	orgItems := []ItemData{{PriceID: "pri_org", ProductID: "pro_org", Quantity: 5}}
	require.NoError(t, svc.ProcessBundle(ctx, subscriptionBundle("sub_org", "ctm_org", models.SubscriptionStatusActive, orgItems, time.Now())))

	var stored models.Subscription
	require.NoError(t, db.Where("provider_subscription_id = ?", "sub_org").First(&stored).Error)
	assert.True(t, stored.IsOrgSubscription)
	require.NotNil(t, stored.OrganizationID)
	assert.Equal(t, org.ID, *stored.OrganizationID)
	require.NotNil(t, stored.UserID)
	assert.Equal(t, user.ID, *stored.UserID)

	// A later delivery whose items no longer match the org prices does not
	// clear the flag.
	plainItems := []ItemData{{PriceID: "pri_plain", ProductID: "pro_plain", Quantity: 1}}
	require.NoError(t, svc.ProcessBundle(ctx, subscriptionBundle("sub_org", "ctm_org", models.SubscriptionStatusActive, plainItems, time.Now())))

	require.NoError(t, db.Where("provider_subscription_id = ?", "sub_org").First(&stored).Error)
	assert.True(t, stored.IsOrgSubscription)
}

func TestProcessSubscriptionReplacesItems(t *testing.T) {
	svc, db, _, _ := newTestService(t)
	ctx := context.Background()

	first := []ItemData{
		{PriceID: "pri_a", ProductID: "pro_a", Quantity: 2},
		{PriceID: "pri_b", ProductID: "pro_b", Quantity: 1},
	}
	require.NoError(t, svc.ProcessBundle(ctx, subscriptionBundle("sub_items", "ctm_i", models.SubscriptionStatusActive, first, time.Now())))

	second := []ItemData{{PriceID: "pri_a", ProductID: "pro_a", Quantity: 3}}
	require.NoError(t, svc.ProcessBundle(ctx, subscriptionBundle("sub_items", "ctm_i", models.SubscriptionStatusActive, second, time.Now())))

	var stored models.Subscription
	require.NoError(t, db.Preload("Items").Where("provider_subscription_id = ?", "sub_items").First(&stored).Error)
	require.Len(t, stored.Items, 1)
	assert.Equal(t, "pri_a", stored.Items[0].PriceID)
	assert.Equal(t, 3, stored.Items[0].Quantity)
	assert.Equal(t, 3, stored.Quantity)
}

func TestProcessSubscriptionOwnerSurvivesUnresolvedReplay(t *testing.T) {
	svc, db, _, _ := newTestService(t)
	ctx := context.Background()

	user := models.User{Name: "Keep Owner", Email: "keep@example.com"}
	require.NoError(t, db.Create(&user).Error)
	require.NoError(t, db.Create(&models.Customer{ProviderCustomerID: "ctm_keep", Email: user.Email, UserID: &user.ID}).Error)

	items := []ItemData{{PriceID: "pri_k", ProductID: "pro_k", Quantity: 1}}
	require.NoError(t, svc.ProcessBundle(ctx, subscriptionBundle("sub_keep", "ctm_keep", models.SubscriptionStatusActive, items, time.Now())))

	// Replay that resolves no owner (customer id missing from the payload).
	require.NoError(t, svc.ProcessBundle(ctx, subscriptionBundle("sub_keep", "", models.SubscriptionStatusPastDue, items, time.Now())))

	var stored models.Subscription
	require.NoError(t, db.Where("provider_subscription_id = ?", "sub_keep").First(&stored).Error)
	require.NotNil(t, stored.UserID)
	assert.Equal(t, user.ID, *stored.UserID)
	assert.Equal(t, models.SubscriptionStatusPastDue, stored.Status)

	var count int64
	db.Model(&models.Subscription{}).Count(&count)
	assert.EqualValues(t, 1, count)
}

func TestProcessSubscriptionQuantityDefaultsWithoutItems(t *testing.T) {
	svc, db, _, _ := newTestService(t)

	require.NoError(t, svc.ProcessBundle(context.Background(),
		subscriptionBundle("sub_empty", "ctm_e", models.SubscriptionStatusTrialing, nil, time.Now())))

	var stored models.Subscription
	require.NoError(t, db.Where("provider_subscription_id = ?", "sub_empty").First(&stored).Error)
	assert.Equal(t, 1, stored.Quantity)
}

func TestProcessSubscriptionSyncsDirectory(t *testing.T) {
	svc, _, dir, _ := newTestService(t)
	occurred := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

	dir.bySub["sub_dir"] = &directory.User{ID: "kc-1", Email: "dir@example.com", Attributes: map[string][]string{}}

	items := []ItemData{{PriceID: "pri_d", ProductID: "pro_d", Quantity: 2}}
	require.NoError(t, svc.ProcessBundle(context.Background(),
		subscriptionBundle("sub_dir", "ctm_d", models.SubscriptionStatusActive, items, occurred)))

	require.Len(t, dir.applied, 1)
	attrs := dir.applied[0]
	assert.Equal(t, "sub_dir", attrs.SubscriptionID)
	assert.Equal(t, models.SubscriptionStatusActive, attrs.Status)
	assert.Equal(t, occurred, attrs.OccurredAt)
	assert.Equal(t, []string{"pro_d"}, attrs.ProductIDs)
	assert.Equal(t, []string{"pri_d"}, attrs.PriceIDs)
	assert.Equal(t, []int{2}, attrs.Quantities)
}

func TestProcessSubscriptionDirectoryMissIsNotAnError(t *testing.T) {
	svc, db, dir, _ := newTestService(t)

	items := []ItemData{{PriceID: "pri_m", ProductID: "pro_m", Quantity: 1}}
	require.NoError(t, svc.ProcessBundle(context.Background(),
		subscriptionBundle("sub_miss", "ctm_m", models.SubscriptionStatusActive, items, time.Now())))

	// Local mirror still written even though no directory user matched.
	var stored models.Subscription
	require.NoError(t, db.Where("provider_subscription_id = ?", "sub_miss").First(&stored).Error)
	assert.Empty(t, dir.applied)
}

func TestProcessTransactionPrefersLocalMirror(t *testing.T) {
	svc, _, dir, _ := newTestService(t)
	ctx := context.Background()

	items := []ItemData{{PriceID: "pri_t", ProductID: "pro_t", Quantity: 1}}
	require.NoError(t, svc.ProcessBundle(ctx,
		subscriptionBundle("sub_txn", "ctm_t", models.SubscriptionStatusPastDue, items, time.Now())))

	dir.bySub["sub_txn"] = &directory.User{ID: "kc-2", Attributes: map[string][]string{}}

	bundle := EventBundle{
		EventType:  EventTransactionCreated,
		OccurredAt: time.Now(),
		Transaction: &TransactionData{
			ID:             "txn_1",
			SubscriptionID: "sub_txn",
			CustomerID:     "ctm_t",
			Items:          items,
		},
	}
	require.NoError(t, svc.ProcessBundle(ctx, bundle))

	require.Len(t, dir.applied, 1)
	assert.Equal(t, models.SubscriptionStatusPastDue, dir.applied[0].Status)
}

func TestProcessTransactionResolvesDirectoryUserViaProviderEmail(t *testing.T) {
	svc, _, dir, paddle := newTestService(t)

	paddle.customers["ctm_new"] = &CustomerData{ID: "ctm_new", Email: "new@example.com"}
	dir.byEmail["new@example.com"] = &directory.User{ID: "kc-3", Email: "new@example.com", Attributes: map[string][]string{}}

	bundle := EventBundle{
		EventType:  EventTransactionCreated,
		OccurredAt: time.Now(),
		Transaction: &TransactionData{
			ID:             "txn_first",
			SubscriptionID: "sub_first",
			CustomerID:     "ctm_new",
			Items:          []ItemData{{PriceID: "pri_f", ProductID: "pro_f", Quantity: 1}},
		},
	}
	require.NoError(t, svc.ProcessBundle(context.Background(), bundle))

	require.Len(t, dir.applied, 1)
	assert.Equal(t, "sub_first", dir.applied[0].SubscriptionID)
}

func TestRecordWebhookEventDedup(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	created, stored, err := svc.RecordWebhookEvent("evt_dup", EventSubscriptionUpdated, []byte(`{}`), true)
	require.NoError(t, err)
	assert.True(t, created)
	require.NotNil(t, stored)

	createdAgain, storedAgain, err := svc.RecordWebhookEvent("evt_dup", EventSubscriptionUpdated, []byte(`{}`), true)
	require.NoError(t, err)
	assert.False(t, createdAgain)
	assert.Equal(t, stored.ID, storedAgain.ID)
}

func TestRecordWebhookEventWithoutEventID(t *testing.T) {
	svc, db, _, _ := newTestService(t)

	// Deliveries lacking an event id cannot be deduplicated; each one keeps
	// its own audit row instead of collapsing onto a shared empty key.
	created1, stored1, err := svc.RecordWebhookEvent("", EventSubscriptionUpdated, []byte(`{"a":1}`), true)
	require.NoError(t, err)
	assert.True(t, created1)
	assert.NotEmpty(t, stored1.ProviderEventID)

	created2, stored2, err := svc.RecordWebhookEvent("", EventSubscriptionUpdated, []byte(`{"a":2}`), true)
	require.NoError(t, err)
	assert.True(t, created2)
	assert.NotEqual(t, stored1.ProviderEventID, stored2.ProviderEventID)

	var count int64
	db.Model(&models.WebhookEvent{}).Count(&count)
	assert.EqualValues(t, 2, count)
}

func TestMarkWebhookProcessed(t *testing.T) {
	svc, db, _, _ := newTestService(t)

	_, stored, err := svc.RecordWebhookEvent("evt_mark", EventCustomerCreated, []byte(`{}`), true)
	require.NoError(t, err)
	require.NoError(t, svc.MarkWebhookProcessed(stored.ID, fmt.Errorf("boom")))

	var row models.WebhookEvent
	require.NoError(t, db.First(&row, stored.ID).Error)
	require.NotNil(t, row.ProcessedAt)
	assert.Equal(t, "boom", row.ProcessingError)
}
