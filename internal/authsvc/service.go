// internal/authsvc/service.go
package authsvc

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"anybook/internal/identity"
	"anybook/internal/notify"
)

const actionTokenTTL = 1 * time.Hour

// Config holds the authentication service settings.
type Config struct {
	JWTSecret string `env:"JWT_SECRET" env-required:"true"`
	// AppBaseURL is the prefix for password-reset and verification links.
	AppBaseURL string `env:"APP_BASE_URL" env-default:"http://localhost:8084"`
}

// credential is the stored login record. The email carries a unique index.
type credential struct {
	ID            uuid.UUID `bson:"_id"`
	Email         string    `bson:"email"`
	PasswordHash  string    `bson:"passwordHash"`
	PasswordSalt  string    `bson:"passwordSalt"`
	EmailVerified bool      `bson:"emailVerified"`
	CreatedAt     time.Time `bson:"createdAt"`
}

// Service stores credentials in MongoDB and drives the session manager. It
// implements the Authenticator port of the identity service.
type Service struct {
	coll     *mongo.Collection
	sessions *SessionManager
	notifier notify.Notifier
	cfg      Config
	tracer   trace.Tracer
	now      func() time.Time
}

func NewService(db *mongo.Database, sessions *SessionManager, notifier notify.Notifier, cfg Config) *Service {
	return &Service{
		coll:     db.Collection("credentials"),
		sessions: sessions,
		notifier: notifier,
		cfg:      cfg,
		tracer:   otel.Tracer("anybook/authsvc"),
		now:      time.Now,
	}
}

// EnsureIndexes creates the unique email index. Safe to call on every boot.
func (s *Service) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("create credential indexes: %w", err)
	}
	return nil
}

func (s *Service) CreateCredential(ctx context.Context, email, password string) (uuid.UUID, error) {
	ctx, span := s.tracer.Start(ctx, "authsvc.create_credential")
	defer span.End()

	email = strings.ToLower(strings.TrimSpace(email))
	if !strings.Contains(email, "@") || !strings.Contains(email, ".") {
		return uuid.Nil, &identity.AuthError{Code: identity.AuthInvalidEmail}
	}
	if len(password) < 6 {
		return uuid.Nil, &identity.AuthError{Code: identity.AuthWeakPassword}
	}

	hash, salt, err := hashPassword(password)
	if err != nil {
		return uuid.Nil, &identity.AuthError{Code: identity.AuthOther, Err: fmt.Errorf("hash password: %w", err)}
	}

	cred := credential{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: hash,
		PasswordSalt: salt,
		CreatedAt:    s.now().UTC(),
	}
	if _, err := s.coll.InsertOne(ctx, cred); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			span.SetAttributes(attribute.Bool("conflict.detected", true))
			return uuid.Nil, &identity.AuthError{Code: identity.AuthEmailInUse}
		}
		return uuid.Nil, &identity.AuthError{Code: identity.AuthOther, Err: fmt.Errorf("insert credential: %w", err)}
	}

	// Creating a credential signs the new account in, matching the sign-up
	// flow: the caller snapshots and restores when acting for someone else.
	if err := s.sessions.Begin(cred.ID); err != nil {
		return uuid.Nil, &identity.AuthError{Code: identity.AuthOther, Err: err}
	}
	return cred.ID, nil
}

func (s *Service) SignIn(ctx context.Context, email, password string) (uuid.UUID, error) {
	ctx, span := s.tracer.Start(ctx, "authsvc.sign_in")
	defer span.End()

	cred, err := s.findByEmail(ctx, email)
	if err != nil {
		return uuid.Nil, err
	}

	ok, err := verifyPassword(password, cred.PasswordSalt, cred.PasswordHash)
	if err != nil {
		return uuid.Nil, &identity.AuthError{Code: identity.AuthOther, Err: err}
	}
	if !ok {
		return uuid.Nil, &identity.AuthError{Code: identity.AuthWrongPassword}
	}

	if err := s.sessions.Begin(cred.ID); err != nil {
		return uuid.Nil, &identity.AuthError{Code: identity.AuthOther, Err: err}
	}
	return cred.ID, nil
}

func (s *Service) SignOut(context.Context) error {
	s.sessions.End()
	return nil
}

func (s *Service) SendPasswordReset(ctx context.Context, email string) error {
	ctx, span := s.tracer.Start(ctx, "authsvc.send_password_reset")
	defer span.End()

	cred, err := s.findByEmail(ctx, email)
	if err != nil {
		return err
	}

	token, err := s.actionToken(cred.ID, "password-reset")
	if err != nil {
		return err
	}
	link := fmt.Sprintf("%s/reset-password?token=%s", s.cfg.AppBaseURL, token)
	if err := s.notifier.Send(ctx, notify.PasswordResetMessage(cred.Email, link)); err != nil {
		return fmt.Errorf("send password reset mail: %w", err)
	}
	return nil
}

func (s *Service) SendEmailVerification(ctx context.Context, id uuid.UUID) error {
	ctx, span := s.tracer.Start(ctx, "authsvc.send_email_verification",
		trace.WithAttributes(attribute.String("credential.id", id.String())))
	defer span.End()

	var cred credential
	if err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&cred); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return &identity.AuthError{Code: identity.AuthUserNotFound}
		}
		return &identity.AuthError{Code: identity.AuthOther, Err: fmt.Errorf("find credential: %w", err)}
	}

	token, err := s.actionToken(cred.ID, "verify-email")
	if err != nil {
		return err
	}
	link := fmt.Sprintf("%s/verify-email?token=%s", s.cfg.AppBaseURL, token)
	if err := s.notifier.Send(ctx, notify.VerificationMessage(cred.Email, link)); err != nil {
		return fmt.Errorf("send verification mail: %w", err)
	}
	return nil
}

func (s *Service) ListSignInMethods(ctx context.Context, email string) ([]string, error) {
	ctx, span := s.tracer.Start(ctx, "authsvc.list_sign_in_methods")
	defer span.End()

	_, err := s.findByEmail(ctx, email)
	var aerr *identity.AuthError
	if errors.As(err, &aerr) && aerr.Code == identity.AuthUserNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return []string{"password"}, nil
}

func (s *Service) findByEmail(ctx context.Context, email string) (*credential, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	var cred credential
	err := s.coll.FindOne(ctx, bson.M{"email": email}).Decode(&cred)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, &identity.AuthError{Code: identity.AuthUserNotFound}
	}
	if err != nil {
		return nil, &identity.AuthError{Code: identity.AuthOther, Err: fmt.Errorf("find credential: %w", err)}
	}
	return &cred, nil
}

// actionToken mints a short-lived single-purpose token for mail links.
func (s *Service) actionToken(id uuid.UUID, purpose string) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   id.String(),
		Audience:  jwt.ClaimStrings{purpose},
		IssuedAt:  jwt.NewNumericDate(s.now()),
		ExpiresAt: jwt.NewNumericDate(s.now().Add(actionTokenTTL)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", purpose, err)
	}
	return signed, nil
}

// ConfirmEmail marks a credential verified from a mailed token.
func (s *Service) ConfirmEmail(ctx context.Context, token string) error {
	id, err := s.parseActionToken(token, "verify-email")
	if err != nil {
		return err
	}
	res, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"emailVerified": true}},
	)
	if err != nil {
		return fmt.Errorf("mark email verified: %w", err)
	}
	if res.MatchedCount == 0 {
		return &identity.AuthError{Code: identity.AuthUserNotFound}
	}
	return nil
}

// ResetPassword sets a new password from a mailed token.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	id, err := s.parseActionToken(token, "password-reset")
	if err != nil {
		return err
	}
	if len(newPassword) < 6 {
		return &identity.AuthError{Code: identity.AuthWeakPassword}
	}

	hash, salt, err := hashPassword(newPassword)
	if err != nil {
		return &identity.AuthError{Code: identity.AuthOther, Err: fmt.Errorf("hash password: %w", err)}
	}
	res, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"passwordHash": hash, "passwordSalt": salt}},
	)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if res.MatchedCount == 0 {
		return &identity.AuthError{Code: identity.AuthUserNotFound}
	}
	return nil
}

func (s *Service) parseActionToken(token, purpose string) (uuid.UUID, error) {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return []byte(s.cfg.JWTSecret), nil
	}, jwt.WithAudience(purpose))
	if err != nil || !parsed.Valid {
		return uuid.Nil, fmt.Errorf("invalid %s token: %v", purpose, err)
	}
	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s token subject: %w", purpose, err)
	}
	return id, nil
}
