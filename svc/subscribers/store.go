// Package subscribers keeps the per-region subscribe and unsubscribe lists
// and the invite history.
package subscribers

import (
	"context"
	"time"
)

// InviteRecord is appended to a region's history for every invite job.
type InviteRecord struct {
	JobID            string    `bson:"jobId" json:"jobId"`
	MoC              string    `bson:"MoC" json:"MoC"`
	Topic            string    `bson:"topic" json:"topic"`
	EventDateTime    string    `bson:"eventDateTime" json:"eventDateTime"`
	ConstituentScope string    `bson:"constituentScope" json:"constituentScope"`
	DeliveryTime     time.Time `bson:"deliveryTime" json:"deliveryTime"`
	Invitees         int       `bson:"invitees" json:"invitees"`
	CreatedAt        time.Time `bson:"createdAt" json:"createdAt"`
}

// Store is the subscriber persistence capability. Emails are stored
// normalized; every method fails with a RegionNotFound error when the region
// has no document.
type Store interface {
	GetSubscriberList(ctx context.Context, region string) ([]string, error)
	GetUnsubscribedList(ctx context.Context, region string) ([]string, error)
	IsSubscribed(ctx context.Context, email, region string) (bool, error)
	IsUnsubscribed(ctx context.Context, email, region string) (bool, error)
	AddToSubList(ctx context.Context, email, region string) error
	RemoveFromSubList(ctx context.Context, email, region string) error
	AddToUnsubList(ctx context.Context, email, region string) error
	RemoveFromUnsubList(ctx context.Context, email, region string) error
	AddToInviteHistory(ctx context.Context, region string, rec InviteRecord) error
	// EnsureRegion creates an empty document for region when missing.
	EnsureRegion(ctx context.Context, region string) error
}
