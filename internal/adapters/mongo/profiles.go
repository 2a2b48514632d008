package mongo

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/photobook/bookings-and-payments/internal/domain"
	"github.com/photobook/bookings-and-payments/internal/observability"
)

// ProfileRepository reads photographer profiles. The hourly rate here is
// the sole input to pricing; intake refuses bookings for unknown or
// inactive photographers.
type ProfileRepository struct {
	coll   *mongo.Collection
	logger observability.Logger
}

func NewProfileRepository(db *mongo.Database, logger observability.Logger) *ProfileRepository {
	return &ProfileRepository{
		coll:   db.Collection("photographers"),
		logger: logger,
	}
}

type PhotographerDoc struct {
	ID         string    `bson:"_id"`
	Name       string    `bson:"name"`
	HourlyRate string    `bson:"hourly_rate"`
	Specialty  string    `bson:"specialty,omitempty"`
	Active     bool      `bson:"active"`
	CreatedAt  time.Time `bson:"created_at"`
	UpdatedAt  time.Time `bson:"updated_at"`
}

func (d PhotographerDoc) Rate() (decimal.Decimal, error) {
	return decimal.NewFromString(d.HourlyRate)
}

func (p *ProfileRepository) GetPhotographer(ctx context.Context, id string) (*PhotographerDoc, error) {
	var doc PhotographerDoc
	err := p.coll.FindOne(ctx, bson.M{"_id": id, "active": true}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		p.logger.Error("failed to get photographer", err)
		return nil, err
	}
	return &doc, nil
}

func (p *ProfileRepository) CreatePhotographer(ctx context.Context, doc PhotographerDoc) error {
	doc.CreatedAt = time.Now()
	doc.UpdatedAt = time.Now()
	_, err := p.coll.InsertOne(ctx, doc)
	if err != nil {
		p.logger.Error("failed to create photographer", err)
		return err
	}
	return nil
}
