package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"finman/internal/models"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

const (
	expensesCollection = "expenses"
	usersCollection    = "users"
)

// ConnectMongo connects to uri and verifies the connection.
func ConnectMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}
	return client, nil
}

// MigrateMongo creates the indexes the repositories rely on.
func MigrateMongo(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(expensesCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "conversation_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "committed_at", Value: -1}},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create expense indexes: %w", err)
	}

	_, err = db.Collection(usersCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to create user indexes: %w", err)
	}
	return nil
}

type expenseDocument struct {
	ID             string               `bson:"_id"`
	ConversationID string               `bson:"conversation_id"`
	UserID         string               `bson:"user_id"`
	Name           string               `bson:"name"`
	Category       string               `bson:"category"`
	Amount         primitive.Decimal128 `bson:"amount"`
	Source         string               `bson:"source"`
	CommittedAt    time.Time            `bson:"committed_at"`
}

func newExpenseDocument(e *models.Expense) (*expenseDocument, error) {
	amount, err := primitive.ParseDecimal128(e.Amount.StringFixed(2))
	if err != nil {
		return nil, fmt.Errorf("%w: amount %s", ErrInvalidData, e.Amount)
	}
	return &expenseDocument{
		ID:             e.ID.String(),
		ConversationID: e.ConversationID.String(),
		UserID:         e.UserID,
		Name:           e.Name,
		Category:       string(e.Category),
		Amount:         amount,
		Source:         string(e.Source),
		CommittedAt:    e.CommittedAt.UTC(),
	}, nil
}

func (d *expenseDocument) toModel() (*models.Expense, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: id %q", ErrInvalidData, d.ID)
	}
	conv, err := uuid.Parse(d.ConversationID)
	if err != nil {
		return nil, fmt.Errorf("%w: conversation id %q", ErrInvalidData, d.ConversationID)
	}
	amount, err := parseAmount(d.Amount.String())
	if err != nil {
		return nil, err
	}
	return &models.Expense{
		ID:             id,
		ConversationID: conv,
		UserID:         d.UserID,
		Name:           d.Name,
		Category:       models.ExpenseCategory(d.Category),
		Amount:         amount,
		Source:         models.ExpenseSource(d.Source),
		CommittedAt:    d.CommittedAt.UTC(),
	}, nil
}

type MongoExpenseRepository struct {
	coll   *mongo.Collection
	logger *zap.Logger
}

func NewMongoExpenseRepository(db *mongo.Database, logger *zap.Logger) *MongoExpenseRepository {
	return &MongoExpenseRepository{coll: db.Collection(expensesCollection), logger: logger}
}

func (r *MongoExpenseRepository) Insert(ctx context.Context, e *models.Expense) (*models.Expense, error) {
	if err := checkExpense(e); err != nil {
		return nil, err
	}
	doc, err := newExpenseDocument(e)
	if err != nil {
		return nil, err
	}

	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			r.logger.Info("Expense already stored for conversation",
				zap.String("conversation_id", e.ConversationID.String()),
			)
			return r.GetByConversationID(ctx, e.ConversationID)
		}
		return nil, fmt.Errorf("failed to insert expense: %w", err)
	}
	return doc.toModel()
}

func (r *MongoExpenseRepository) GetByConversationID(ctx context.Context, conversationID uuid.UUID) (*models.Expense, error) {
	var doc expenseDocument
	err := r.coll.FindOne(ctx, bson.M{"conversation_id": conversationID.String()}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return doc.toModel()
}

func (r *MongoExpenseRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*models.Expense, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "committed_at", Value: -1}}).
		SetLimit(int64(listLimit(limit)))

	cur, err := r.coll.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var expenses []*models.Expense
	for cur.Next(ctx) {
		var doc expenseDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		e, err := doc.toModel()
		if err != nil {
			return nil, err
		}
		expenses = append(expenses, e)
	}
	return expenses, cur.Err()
}

type userDocument struct {
	ID        string    `bson:"_id"`
	Username  string    `bson:"username"`
	Email     string    `bson:"email"`
	Password  string    `bson:"password"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

type MongoUserRepository struct {
	coll   *mongo.Collection
	logger *zap.Logger
}

func NewMongoUserRepository(db *mongo.Database, logger *zap.Logger) *MongoUserRepository {
	return &MongoUserRepository{coll: db.Collection(usersCollection), logger: logger}
}

func (r *MongoUserRepository) Create(ctx context.Context, user *models.User) error {
	_, err := r.coll.InsertOne(ctx, userDocument{
		ID:        user.ID.String(),
		Username:  user.Username,
		Email:     user.Email,
		Password:  user.PasswordHash,
		CreatedAt: user.CreatedAt.UTC(),
		UpdatedAt: user.UpdatedAt.UTC(),
	})
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%w: email already registered", ErrInvalidData)
	}
	return err
}

func (r *MongoUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.getOne(ctx, bson.M{"email": email})
}

func (r *MongoUserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return r.getOne(ctx, bson.M{"_id": id.String()})
}

func (r *MongoUserRepository) getOne(ctx context.Context, filter bson.M) (*models.User, error) {
	var doc userDocument
	err := r.coll.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	id, err := uuid.Parse(doc.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: id %q", ErrInvalidData, doc.ID)
	}
	return &models.User{
		ID:           id,
		Username:     doc.Username,
		Email:        doc.Email,
		PasswordHash: doc.Password,
		CreatedAt:    doc.CreatedAt,
		UpdatedAt:    doc.UpdatedAt,
	}, nil
}
