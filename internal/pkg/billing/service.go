package billing

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/hallway-app/hallway/app/models"
	"github.com/hallway-app/hallway/internal/pkg/directory"
	"github.com/hallway-app/hallway/internal/pkg/env"
)

// CustomerAPI is the billing-provider surface the service needs. Satisfied by
// *PaddleClient; tests substitute a fake.
type CustomerAPI interface {
	GetCustomer(ctx context.Context, customerID string) (*CustomerData, error)
}

// DirectorySync is the identity-directory surface the service needs.
// Satisfied by *directory.Synchronizer.
type DirectorySync interface {
	FindUserBySubscriptionID(ctx context.Context, subscriptionID string) (*directory.User, error)
	FindUserByEmail(ctx context.Context, email string) (*directory.User, error)
	Apply(ctx context.Context, user *directory.User, attrs directory.SubscriptionAttributes) (bool, error)
}

// Service reconciles normalized Paddle events into local state and mirrors
// subscription state into the identity directory. All operations are
// idempotent; deliveries are at-least-once and unordered.
type Service struct {
	repo        Repository
	paddle      CustomerAPI
	directory   DirectorySync
	orgPriceIDs map[string]struct{}
}

// NewService creates a billing service with injected collaborators.
func NewService(repo Repository, paddle CustomerAPI, dir DirectorySync, orgPriceIDs []string) *Service {
	ids := make(map[string]struct{}, len(orgPriceIDs))
	for _, id := range orgPriceIDs {
		if id = strings.TrimSpace(id); id != "" {
			ids[id] = struct{}{}
		}
	}
	return &Service{repo: repo, paddle: paddle, directory: dir, orgPriceIDs: ids}
}

// NewServiceFromDB creates a billing service from a GORM DB handle with
// env-configured collaborators.
func NewServiceFromDB(db *gorm.DB) *Service {
	return NewService(
		NewRepository(db),
		NewPaddleClientFromEnv(),
		directory.NewSynchronizerFromEnv(),
		OrgPriceIDsFromEnv(),
	)
}

// OrgPriceIDsFromEnv reads the price ids whose presence on a subscription
// marks it as an organization plan.
func OrgPriceIDsFromEnv() []string {
	return strings.Split(env.GetEnv("PADDLE_ORG_PRICE_IDS", ""), ",")
}

// RecordWebhookEvent persists a delivery for audit and dedup. Returns whether
// this delivery was seen for the first time.
func (s *Service) RecordWebhookEvent(eventID, eventType string, payload []byte, signatureValid bool) (bool, *models.WebhookEvent, error) {
	return s.repo.CreateWebhookEventIfNotExists(&models.WebhookEvent{
		Provider:        models.WebhookProviderPaddle,
		ProviderEventID: strings.TrimSpace(eventID),
		EventType:       strings.TrimSpace(eventType),
		PayloadJSON:     string(payload),
		SignatureValid:  signatureValid,
	})
}

// MarkWebhookProcessed records the processing outcome on the stored delivery.
func (s *Service) MarkWebhookProcessed(id uint, processingErr error) error {
	msg := ""
	if processingErr != nil {
		msg = processingErr.Error()
	}
	return s.repo.MarkWebhookProcessed(id, msg)
}

// ProcessBundle applies one normalized delivery. Each populated sub-record is
// processed independently: a resolution miss in one never blocks the others.
// Store errors bubble up so the queue can retry the whole (idempotent) job.
func (s *Service) ProcessBundle(ctx context.Context, b EventBundle) error {
	if b.Ignored {
		return nil
	}

	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if b.Customer != nil {
		keep(s.processCustomer(*b.Customer))
	}
	if b.Business != nil {
		keep(s.processBusiness(*b.Business))
	}
	if b.Subscription != nil {
		keep(s.processSubscription(ctx, b))
	}
	if b.Transaction != nil {
		keep(s.processTransaction(ctx, b))
	}
	return firstErr
}

// processCustomer mirrors the customer record, linking it to a local user by
// email match. A missing local user is a normal outcome, logged and not
// retried.
func (s *Service) processCustomer(data CustomerData) error {
	if data.ID == "" {
		return errors.New("customer payload missing id")
	}

	var userID *uint
	if data.Email != "" {
		user, err := s.repo.GetUserByEmail(data.Email)
		switch {
		case err == nil:
			userID = &user.ID
		case errors.Is(err, gorm.ErrRecordNotFound):
			log.Warnf("[Billing] No local user for customer %s email %s, storing unlinked", data.ID, data.Email)
		default:
			return err
		}
	}

	_, err := s.repo.UpsertCustomer(data, userID)
	return err
}

// processBusiness mirrors the business record against an existing customer
// link. Without the customer link the delivery is skipped.
func (s *Service) processBusiness(data BusinessData) error {
	if data.ID == "" {
		return errors.New("business payload missing id")
	}

	var customerID *uint
	if data.CustomerID != "" {
		customer, err := s.repo.GetCustomerByProviderID(data.CustomerID)
		switch {
		case err == nil:
			customerID = &customer.ID
		case errors.Is(err, gorm.ErrRecordNotFound):
			log.Warnf("[Billing] No customer link for business %s (customer %s), skipping", data.ID, data.CustomerID)
			return nil
		default:
			return err
		}
	}

	_, err := s.repo.UpsertBusiness(data, customerID)
	return err
}

func (s *Service) processSubscription(ctx context.Context, b EventBundle) error {
	data := *b.Subscription
	if data.ID == "" {
		return errors.New("subscription payload missing id")
	}

	// Owner resolution goes through the customer link. Billing events may
	// arrive before the local user exists; the subscription is stored
	// ownerless and picks up the owner on a later delivery.
	var userID *uint
	if data.CustomerID != "" {
		customer, err := s.repo.GetCustomerByProviderID(data.CustomerID)
		switch {
		case err == nil && customer.UserID != nil:
			userID = customer.UserID
		case err == nil:
			log.Warnf("[Billing] Customer %s is not linked to a user yet (sub %s)", data.CustomerID, data.ID)
		case errors.Is(err, gorm.ErrRecordNotFound):
			log.Warnf("[Billing] No customer link %s for subscription %s", data.CustomerID, data.ID)
		default:
			return err
		}
	}

	isOrg := s.matchesOrgPricing(data.Items)

	var orgID *uint
	if isOrg && userID != nil {
		org, err := s.repo.FirstOrganizationByOwner(*userID)
		switch {
		case err == nil:
			orgID = &org.ID
		case errors.Is(err, gorm.ErrRecordNotFound):
			log.Warnf("[Billing] User %d owns no organization for org subscription %s", *userID, data.ID)
		default:
			return err
		}
	}

	items := make([]models.SubscriptionItem, 0, len(data.Items))
	for _, item := range data.Items {
		items = append(items, models.SubscriptionItem{
			ProductID: item.ProductID,
			PriceID:   item.PriceID,
			Quantity:  item.Quantity,
		})
	}

	sub := &models.Subscription{
		ProviderSubscriptionID: data.ID,
		ProviderCustomerID:     data.CustomerID,
		Status:                 data.Status,
		CollectionMode:         data.CollectionMode,
		Quantity:               totalQuantity(data.Items),
		UserID:                 userID,
		OrganizationID:         orgID,
		IsOrgSubscription:      isOrg,
		RawPayloadJSON:         string(b.Raw),
	}
	if _, err := s.repo.UpsertSubscription(sub, items); err != nil {
		return err
	}

	// The local row and the directory are not covered by one transaction; a
	// failure here self-heals on the next delivery.
	s.syncDirectory(ctx, directory.SubscriptionAttributes{
		SubscriptionID:  data.ID,
		Status:          data.Status,
		CollectionMode:  data.CollectionMode,
		CustomerID:      data.CustomerID,
		ScheduledChange: string(data.ScheduledChange),
		ProductIDs:      productIDs(data.Items),
		PriceIDs:        priceIDs(data.Items),
		Quantities:      quantities(data.Items),
		OccurredAt:      b.OccurredAt,
	})
	return nil
}

// processTransaction mirrors a transaction's subscription state into the
// directory. Transactions carry no local table of their own; they matter
// because they can be the first event ever seen for a customer.
func (s *Service) processTransaction(ctx context.Context, b EventBundle) error {
	data := *b.Transaction
	if data.SubscriptionID == "" {
		log.Infof("[Billing] Transaction %s has no subscription, nothing to mirror", data.ID)
		return nil
	}

	attrs := directory.SubscriptionAttributes{
		SubscriptionID: data.SubscriptionID,
		CustomerID:     data.CustomerID,
		ProductIDs:     productIDs(data.Items),
		PriceIDs:       priceIDs(data.Items),
		Quantities:     quantities(data.Items),
		OccurredAt:     b.OccurredAt,
	}

	// Prefer the reconciled local mirror for status fields when we have it.
	local, err := s.repo.GetSubscriptionByProviderID(data.SubscriptionID)
	switch {
	case err == nil:
		attrs.Status = local.Status
		attrs.CollectionMode = local.CollectionMode
	case errors.Is(err, gorm.ErrRecordNotFound):
		// First-seen subscription; the subscription event will follow.
	default:
		return err
	}

	s.syncDirectoryWithFallback(ctx, attrs, data.CustomerID)
	return nil
}

// syncDirectory resolves the directory user by subscription id with the
// customer-email fallback and applies the attributes under the staleness
// guard. Failures are logged and swallowed: the delivery is long
// acknowledged and the next event re-establishes consistency.
func (s *Service) syncDirectory(ctx context.Context, attrs directory.SubscriptionAttributes) {
	s.syncDirectoryWithFallback(ctx, attrs, attrs.CustomerID)
}

func (s *Service) syncDirectoryWithFallback(ctx context.Context, attrs directory.SubscriptionAttributes, customerID string) {
	user, err := s.directory.FindUserBySubscriptionID(ctx, attrs.SubscriptionID)
	if errors.Is(err, directory.ErrUserNotFound) {
		user, err = s.resolveDirectoryUserByCustomer(ctx, customerID)
	}
	if errors.Is(err, directory.ErrUserNotFound) {
		log.Infof("[Billing] No directory user for subscription %s, skipping directory sync", attrs.SubscriptionID)
		return
	}
	if err != nil {
		log.Errorf("[Billing] Directory lookup failed for subscription %s: %v", attrs.SubscriptionID, err)
		return
	}

	applied, err := s.directory.Apply(ctx, user, attrs)
	if err != nil {
		log.Errorf("[Billing] Directory update failed for subscription %s: %v", attrs.SubscriptionID, err)
		return
	}
	if applied {
		log.Infof("[Billing] Directory updated for subscription %s (user %s)", attrs.SubscriptionID, user.ID)
	}
}

// resolveDirectoryUserByCustomer fetches the customer's email from the
// billing provider and resolves the directory user by email. Needed when the
// directory has no subscription attribute yet because the first event for a
// brand-new customer was a transaction.
func (s *Service) resolveDirectoryUserByCustomer(ctx context.Context, customerID string) (*directory.User, error) {
	if customerID == "" {
		return nil, directory.ErrUserNotFound
	}
	customer, err := s.paddle.GetCustomer(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if customer.Email == "" {
		return nil, directory.ErrUserNotFound
	}
	return s.directory.FindUserByEmail(ctx, customer.Email)
}

func (s *Service) matchesOrgPricing(items []ItemData) bool {
	for _, item := range items {
		if _, ok := s.orgPriceIDs[item.PriceID]; ok {
			return true
		}
	}
	return false
}

func productIDs(items []ItemData) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = item.ProductID
	}
	return out
}

func priceIDs(items []ItemData) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = item.PriceID
	}
	return out
}

func quantities(items []ItemData) []int {
	out := make([]int, len(items))
	for i, item := range items {
		out[i] = item.Quantity
	}
	return out
}
