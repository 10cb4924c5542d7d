// internal/docstore/profiles.go
package docstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"anybook/internal/identity"
)

// Profiles stores user profile documents in the "users" collection, keyed by
// the credential's internal id. A unique index on userId makes the six-digit
// id collision a write-time error instead of a read-time race.
type Profiles struct {
	coll   *mongo.Collection
	tracer trace.Tracer
}

func NewProfiles(db *mongo.Database) *Profiles {
	return &Profiles{
		coll:   db.Collection("users"),
		tracer: otel.Tracer("anybook/docstore"),
	}
}

// EnsureIndexes creates the unique userId index. Safe to call on every boot.
func (p *Profiles) EnsureIndexes(ctx context.Context) error {
	_, err := p.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "userId", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "email", Value: 1}},
		},
	})
	if err != nil {
		return fmt.Errorf("create user indexes: %w", err)
	}
	return nil
}

func (p *Profiles) Get(ctx context.Context, id uuid.UUID) (*identity.Profile, error) {
	ctx, span := p.tracer.Start(ctx, "profiles.get",
		trace.WithAttributes(attribute.String("profile.id", id.String())))
	defer span.End()

	var profile identity.Profile
	err := p.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&profile)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, identity.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find profile %s: %w", id, err)
	}
	return &profile, nil
}

func (p *Profiles) Create(ctx context.Context, profile *identity.Profile) error {
	ctx, span := p.tracer.Start(ctx, "profiles.create",
		trace.WithAttributes(attribute.String("profile.userId", profile.UserID)))
	defer span.End()

	_, err := p.coll.InsertOne(ctx, profile)
	if mongo.IsDuplicateKeyError(err) {
		span.SetAttributes(attribute.Bool("conflict.detected", true))
		return identity.ErrDuplicateUserID
	}
	if err != nil {
		return fmt.Errorf("insert profile: %w", err)
	}
	return nil
}

func (p *Profiles) Upsert(ctx context.Context, profile *identity.Profile) error {
	ctx, span := p.tracer.Start(ctx, "profiles.upsert",
		trace.WithAttributes(attribute.String("profile.id", profile.InternalID.String())))
	defer span.End()

	_, err := p.coll.ReplaceOne(ctx,
		bson.M{"_id": profile.InternalID},
		profile,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("upsert profile %s: %w", profile.InternalID, err)
	}
	return nil
}

func (p *Profiles) UpdateSettings(ctx context.Context, id uuid.UUID, settings identity.Settings) error {
	ctx, span := p.tracer.Start(ctx, "profiles.update_settings")
	defer span.End()

	res, err := p.coll.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"settings": settings}},
	)
	if err != nil {
		return fmt.Errorf("update settings for %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return identity.ErrNotFound
	}
	return nil
}

func (p *Profiles) UpdateMembership(ctx context.Context, id uuid.UUID, plan, expiryDate string) error {
	ctx, span := p.tracer.Start(ctx, "profiles.update_membership")
	defer span.End()

	res, err := p.coll.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{
			"membershipPlan":       plan,
			"membershipExpiryDate": expiryDate,
		}},
	)
	if err != nil {
		return fmt.Errorf("update membership for %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return identity.ErrNotFound
	}
	return nil
}

func (p *Profiles) FindByEmail(ctx context.Context, email string) (*identity.Profile, error) {
	ctx, span := p.tracer.Start(ctx, "profiles.find_by_email")
	defer span.End()

	var profile identity.Profile
	err := p.coll.FindOne(ctx, bson.M{"email": email}).Decode(&profile)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, identity.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find profile by email: %w", err)
	}
	return &profile, nil
}

func (p *Profiles) CountByUserID(ctx context.Context, userID string) (int64, error) {
	ctx, span := p.tracer.Start(ctx, "profiles.count_by_user_id")
	defer span.End()

	n, err := p.coll.CountDocuments(ctx, bson.M{"userId": userID})
	if err != nil {
		return 0, fmt.Errorf("count profiles with userId %s: %w", userID, err)
	}
	return n, nil
}

func (p *Profiles) List(ctx context.Context) ([]*identity.Profile, error) {
	ctx, span := p.tracer.Start(ctx, "profiles.list")
	defer span.End()

	cur, err := p.coll.Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	defer cur.Close(ctx)

	var profiles []*identity.Profile
	if err := cur.All(ctx, &profiles); err != nil {
		return nil, fmt.Errorf("decode profiles: %w", err)
	}
	return profiles, nil
}

func (p *Profiles) Count(ctx context.Context) (int64, error) {
	ctx, span := p.tracer.Start(ctx, "profiles.count")
	defer span.End()

	n, err := p.coll.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("count profiles: %w", err)
	}
	return n, nil
}
