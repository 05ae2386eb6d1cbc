package mongodb

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type userDoc struct {
	ID           string    `bson:"_id"`
	Name         string    `bson:"name"`
	Email        string    `bson:"email"`
	EmailKey     string    `bson:"emailKey"`
	PhoneNumber  string    `bson:"phoneNumber"`
	PasswordHash string    `bson:"passwordHash"`
	Avatar       string    `bson:"avatar"`
	IsAdmin      bool      `bson:"isAdmin"`
	Favorites    []string  `bson:"favorites"`
	CreatedAt    time.Time `bson:"createdAt"`
	UpdatedAt    time.Time `bson:"updatedAt"`
}

type userRepository struct {
	users *mongo.Collection
}

// NewUserRepository создаёт MongoDB-реализацию UserRepository.
func NewUserRepository(store *Store) domain.UserRepository {
	return &userRepository{users: store.Database().Collection(colUsers)}
}

func (r *userRepository) Create(ctx context.Context, user domain.User) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	doc := userDoc{
		ID: user.ID, Name: user.Name, Email: user.Email, EmailKey: strings.ToLower(user.Email),
		PhoneNumber: user.PhoneNumber, PasswordHash: user.PasswordHash, Avatar: user.Avatar,
		IsAdmin: user.IsAdmin, Favorites: append([]string{}, user.Favorites...),
		CreatedAt: user.CreatedAt, UpdatedAt: user.UpdatedAt,
	}
	if _, err := r.users.InsertOne(ctx, doc); err != nil {
		if index, ok := duplicateIndex(err); ok && index == "users_email_uq" {
			return domain.ErrEmailTaken
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *userRepository) Get(ctx context.Context, id string) (domain.User, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	return r.findOne(ctx, bson.M{"emailKey": strings.ToLower(email)})
}

func (r *userRepository) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.users.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if res.DeletedCount == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func (r *userRepository) SetFavorites(ctx context.Context, userID string, favorites []string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.users.UpdateOne(ctx, bson.M{"_id": userID}, bson.M{"$set": bson.M{
		"favorites": append([]string{}, favorites...),
		"updatedAt": time.Now().UTC(),
	}})
	if err != nil {
		return fmt.Errorf("update favorites: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func (r *userRepository) findOne(ctx context.Context, filter bson.M) (domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var doc userDoc
	if err := r.users.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.User{}, domain.ErrUserNotFound
		}
		return domain.User{}, fmt.Errorf("find user: %w", err)
	}
	return domain.User{
		ID: doc.ID, Name: doc.Name, Email: doc.Email, PhoneNumber: doc.PhoneNumber,
		PasswordHash: doc.PasswordHash, Avatar: doc.Avatar, IsAdmin: doc.IsAdmin,
		Favorites: doc.Favorites, CreatedAt: doc.CreatedAt.UTC(), UpdatedAt: doc.UpdatedAt.UTC(),
	}, nil
}

var _ domain.UserRepository = (*userRepository)(nil)
