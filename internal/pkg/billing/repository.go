package billing

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/hallway-app/hallway/app/models"
	"github.com/hallway-app/hallway/internal/pkg/database"
)

// Repository provides DB operations used by the billing service. The upsert
// methods take the full desired state; merge policy (sticky flags, owner
// preservation) lives in the merge closures so replayed and out-of-order
// deliveries converge.
type Repository interface {
	UpsertCustomer(data CustomerData, userID *uint) (*models.Customer, error)
	GetCustomerByProviderID(providerCustomerID string) (*models.Customer, error)
	UpsertBusiness(data BusinessData, customerID *uint) (*models.Business, error)
	UpsertSubscription(sub *models.Subscription, items []models.SubscriptionItem) (*models.Subscription, error)
	GetSubscriptionByProviderID(providerSubscriptionID string) (*models.Subscription, error)
	GetUserByEmail(email string) (*models.User, error)
	FirstOrganizationByOwner(ownerUserID uint) (*models.Organization, error)
	CreateWebhookEventIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error)
	MarkWebhookProcessed(id uint, processingError string) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a billing repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) UpsertCustomer(data CustomerData, userID *uint) (*models.Customer, error) {
	customer, _, err := database.FindOrCreate(r.db,
		func(q *gorm.DB) *gorm.DB {
			return q.Where("provider_customer_id = ?", data.ID)
		},
		func() *models.Customer {
			return &models.Customer{
				ProviderCustomerID: data.ID,
				Email:              data.Email,
				Name:               data.Name,
				UserID:             userID,
			}
		},
		func(existing *models.Customer) {
			existing.Email = data.Email
			existing.Name = data.Name
			// Keep a previously resolved user when this delivery resolved
			// nothing.
			if userID != nil {
				existing.UserID = userID
			}
		},
	)
	return customer, err
}

func (r *gormRepository) GetCustomerByProviderID(providerCustomerID string) (*models.Customer, error) {
	var c models.Customer
	err := r.db.Where("provider_customer_id = ?", providerCustomerID).First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *gormRepository) UpsertBusiness(data BusinessData, customerID *uint) (*models.Business, error) {
	business, _, err := database.FindOrCreate(r.db,
		func(q *gorm.DB) *gorm.DB {
			return q.Where("provider_business_id = ?", data.ID)
		},
		func() *models.Business {
			return &models.Business{
				ProviderBusinessID: data.ID,
				ProviderCustomerID: data.CustomerID,
				Name:               data.Name,
				CompanyNumber:      data.CompanyNumber,
				TaxIdentifier:      data.TaxIdentifier,
				CustomerID:         customerID,
			}
		},
		func(existing *models.Business) {
			existing.ProviderCustomerID = data.CustomerID
			existing.Name = data.Name
			existing.CompanyNumber = data.CompanyNumber
			existing.TaxIdentifier = data.TaxIdentifier
			if customerID != nil {
				existing.CustomerID = customerID
			}
		},
	)
	return business, err
}

func (r *gormRepository) UpsertSubscription(sub *models.Subscription, items []models.SubscriptionItem) (*models.Subscription, error) {
	stored, _, err := database.FindOrCreate(r.db,
		func(q *gorm.DB) *gorm.DB {
			return q.Where("provider_subscription_id = ?", sub.ProviderSubscriptionID)
		},
		func() *models.Subscription {
			return sub
		},
		func(existing *models.Subscription) {
			existing.ProviderCustomerID = sub.ProviderCustomerID
			existing.Status = sub.Status
			existing.CollectionMode = sub.CollectionMode
			existing.Quantity = sub.Quantity
			existing.RawPayloadJSON = sub.RawPayloadJSON
			// Owner assignments survive deliveries that resolved nothing.
			if sub.UserID != nil {
				existing.UserID = sub.UserID
			}
			if sub.OrganizationID != nil {
				existing.OrganizationID = sub.OrganizationID
			}
			// Sticky: once an org subscription, always an org subscription.
			if sub.IsOrgSubscription {
				existing.IsOrgSubscription = true
			}
		},
	)
	if err != nil {
		return nil, err
	}

	// The provider snapshot is ground truth for the item set: replace, never
	// merge.
	if err := r.db.Where("subscription_id = ?", stored.ID).Delete(&models.SubscriptionItem{}).Error; err != nil {
		return nil, err
	}
	for i := range items {
		items[i].ID = 0
		items[i].SubscriptionID = stored.ID
	}
	if len(items) > 0 {
		if err := r.db.Create(&items).Error; err != nil {
			return nil, err
		}
	}
	return stored, nil
}

func (r *gormRepository) GetSubscriptionByProviderID(providerSubscriptionID string) (*models.Subscription, error) {
	var s models.Subscription
	err := r.db.Preload("Items").Where("provider_subscription_id = ?", providerSubscriptionID).First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *gormRepository) GetUserByEmail(email string) (*models.User, error) {
	var u models.User
	err := r.db.Where("email = ?", email).First(&u).Error
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *gormRepository) FirstOrganizationByOwner(ownerUserID uint) (*models.Organization, error) {
	var org models.Organization
	err := r.db.Where("owner_user_id = ?", ownerUserID).Order("id ASC").First(&org).Error
	if err != nil {
		return nil, err
	}
	return &org, nil
}

func (r *gormRepository) CreateWebhookEventIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error) {
	// Without a provider event id there is nothing to dedup on; a shared empty
	// key would collapse distinct deliveries onto one audit row. Give each a
	// surrogate id instead.
	if event.ProviderEventID == "" {
		event.ProviderEventID = "no-event-id:" + uuid.New().String()
	}

	tx := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_event_id"},
		},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.WebhookEvent
	if err := r.db.Where("provider = ? AND provider_event_id = ?", event.Provider, event.ProviderEventID).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *gormRepository) MarkWebhookProcessed(id uint, processingError string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"processed_at":     &now,
		"processing_error": processingError,
	}
	return r.db.Model(&models.WebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}
