package mongo

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dailyplatform-io/dailydrive-sub000/internal/auction"
	"github.com/dailyplatform-io/dailydrive-sub000/internal/domain"
	"github.com/dailyplatform-io/dailydrive-sub000/internal/observability"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// CatalogRepository reads listed cars. Auctions copy a car into their own snapshot at
// creation, so later catalog edits never reach a running auction.
type CatalogRepository struct {
	coll   *mongo.Collection
	logger observability.Logger
}

var _ auction.Catalog = (*CatalogRepository)(nil)

func NewCatalogRepository(db *mongo.Database, logger observability.Logger) *CatalogRepository {
	return &CatalogRepository{
		coll:   db.Collection("cars"),
		logger: logger,
	}
}

type CarDoc struct {
	ID           string    `bson:"_id"`
	Brand        string    `bson:"brand"`
	Model        string    `bson:"model"`
	Year         int       `bson:"year"`
	MileageKm    int       `bson:"mileage_km"`
	BodyStyle    string    `bson:"body_style"`
	Transmission string    `bson:"transmission"`
	FuelType     string    `bson:"fuel_type"`
	Media        MediaDoc  `bson:"media"`
	IssueTags    []string  `bson:"issue_tags"`
	CreatedAt    time.Time `bson:"created_at"`
	UpdatedAt    time.Time `bson:"updated_at"`
}

type MediaDoc struct {
	Images []string `bson:"images"`
	Videos []string `bson:"videos"`
}

func (d CarDoc) Snapshot() domain.CarSnapshot {
	return domain.CarSnapshot{
		CarID:        d.ID,
		Brand:        d.Brand,
		Model:        d.Model,
		Year:         d.Year,
		MileageKm:    d.MileageKm,
		BodyStyle:    d.BodyStyle,
		Transmission: d.Transmission,
		FuelType:     d.FuelType,
		ImageURLs:    d.Media.Images,
		VideoURLs:    d.Media.Videos,
		IssueTags:    d.IssueTags,
	}
}

func (c *CatalogRepository) GetCar(ctx context.Context, id string) (*CarDoc, error) {
	var car CarDoc
	err := c.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&car)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, errors.Wrapf(domain.ErrNotFound, "car %s", id)
	}
	if err != nil {
		c.logger.WithError(err).Error("failed to get car")
		return nil, err
	}
	return &car, nil
}

func (c *CatalogRepository) Snapshot(ctx context.Context, carID string) (domain.CarSnapshot, error) {
	car, err := c.GetCar(ctx, carID)
	if err != nil {
		return domain.CarSnapshot{}, err
	}
	return car.Snapshot(), nil
}

func (c *CatalogRepository) UpsertCar(ctx context.Context, car CarDoc) error {
	now := time.Now().UTC()
	car.UpdatedAt = now
	if car.CreatedAt.IsZero() {
		car.CreatedAt = now
	}
	_, err := c.coll.ReplaceOne(ctx, bson.M{"_id": car.ID}, car, options.Replace().SetUpsert(true))
	if err != nil {
		c.logger.WithError(err).Error("failed to upsert car")
		return err
	}
	return nil
}

func (c *CatalogRepository) Ping(ctx context.Context) error {
	return c.coll.Database().Client().Ping(ctx, nil)
}
