package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/amasampo/pkg/cart"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type cartDocument struct {
	ID        interface{}    `bson:"_id,omitempty"`
	UserID    string         `bson:"user_id"`
	Items     []itemDocument `bson:"items"`
	Version   int64          `bson:"version"`
	CreatedAt time.Time      `bson:"created_at"`
	UpdatedAt time.Time      `bson:"updated_at"`
}

type itemDocument struct {
	ProductID         int64     `bson:"product_id"`
	Name              string    `bson:"name"`
	UnitPrice         string    `bson:"unit_price"`
	Quantity          int       `bson:"quantity"`
	AvailableQuantity int       `bson:"available_quantity"`
	SellerID          int64     `bson:"seller_id"`
	SellerName        string    `bson:"seller_name"`
	ImageURL          string    `bson:"image_url,omitempty"`
	AddedAt           time.Time `bson:"added_at"`
}

// MongoRepository stores one document per user in the carts collection.
type MongoRepository struct {
	collection *mongo.Collection
}

func (m *MongoRepository) GetCart(ctx context.Context, userID string) (*cart.Cart, error) {
	var doc cartDocument

	filter := bson.M{"user_id": userID}
	err := m.collection.FindOne(ctx, filter).Decode(&doc)

	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrCartNotFound
		}
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}

	return fromDocument(doc)
}

func (m *MongoRepository) SaveCart(ctx context.Context, userID string, c *cart.Cart, expectedVersion int64) error {
	now := time.Now()

	filter := bson.M{"user_id": userID, "version": expectedVersion}
	update := bson.M{
		"$set": bson.M{
			"items":      toDocuments(c.Items()),
			"version":    c.Version(),
			"updated_at": now,
		},
		"$setOnInsert": bson.M{"created_at": now},
	}
	opts := options.Update().SetUpsert(true)

	// A stale version misses the filter, and the upsert then collides with
	// the unique user_id index.
	_, err := m.collection.UpdateOne(ctx, filter, update, opts)
	if mongo.IsDuplicateKeyError(err) {
		return ErrVersionConflict
	}
	if err != nil {
		return fmt.Errorf("failed to save cart: %w", err)
	}
	return nil
}

func (m *MongoRepository) DeleteCart(ctx context.Context, userID string) error {
	filter := bson.M{"user_id": userID}

	result, err := m.collection.DeleteOne(ctx, filter)
	if err != nil {
		return fmt.Errorf("failed to delete cart: %w", err)
	}

	if result.DeletedCount == 0 {
		return ErrCartNotFound
	}

	return nil
}

func (m *MongoRepository) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "updated_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(90 * 24 * 60 * 60), // 90 days TTL
		},
	}

	_, err := m.collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	return nil
}

// NewMongoRepository returns the repository; call CreateIndexes before use,
// the unique user_id index is what detects version conflicts.
func NewMongoRepository(db *mongo.Database) *MongoRepository {
	return &MongoRepository{
		collection: db.Collection("carts"),
	}
}

func toDocuments(items []cart.LineItem) []itemDocument {
	docs := make([]itemDocument, len(items))
	for i, it := range items {
		docs[i] = itemDocument{
			ProductID:         it.ProductID,
			Name:              it.Name,
			UnitPrice:         it.UnitPrice.String(),
			Quantity:          it.Quantity,
			AvailableQuantity: it.AvailableQuantity,
			SellerID:          it.SellerID,
			SellerName:        it.SellerName,
			ImageURL:          it.ImageURL,
			AddedAt:           it.AddedAt,
		}
	}
	return docs
}

func fromDocument(doc cartDocument) (*cart.Cart, error) {
	items := make([]cart.LineItem, len(doc.Items))
	for i, d := range doc.Items {
		price, err := decimal.NewFromString(d.UnitPrice)
		if err != nil {
			return nil, fmt.Errorf("invalid stored price for product %d: %w", d.ProductID, err)
		}
		items[i] = cart.LineItem{
			ProductID:         d.ProductID,
			Name:              d.Name,
			UnitPrice:         price,
			Quantity:          d.Quantity,
			AvailableQuantity: d.AvailableQuantity,
			SellerID:          d.SellerID,
			SellerName:        d.SellerName,
			ImageURL:          d.ImageURL,
			AddedAt:           d.AddedAt,
		}
	}
	return cart.Restore(cart.State{Items: items, Version: doc.Version})
}
