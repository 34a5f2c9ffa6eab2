package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/animerealm/animerealm/animerealm/database"
	"github.com/animerealm/animerealm/animerealm/database/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrAlreadyInStatus is returned by Transition when the request already holds
// the target status. Distinct from ErrNotFound so the caller can tell the
// admin which of the two happened.
var ErrAlreadyInStatus = errors.New("request already in status")

// ErrInvalidTransition is returned by Transition for moves the forward-only
// lifecycle does not allow, e.g. re-opening a resolved request.
var ErrInvalidTransition = errors.New("transition not allowed from current status")

type RequestRepository interface {
	Create(ctx context.Context, req *models.AnimeRequest) (primitive.ObjectID, error)
	Get(ctx context.Context, id primitive.ObjectID) (*models.AnimeRequest, error)
	ByStatus(ctx context.Context, status string, limit int64) ([]models.AnimeRequest, error)
	OpenByUser(ctx context.Context, userID int64) ([]models.AnimeRequest, error)
	// Transition moves the request to newStatus, stamping resolution metadata
	// when the status is terminal. Returns the updated request.
	Transition(ctx context.Context, id primitive.ObjectID, newStatus string, adminID int64, note string) (*models.AnimeRequest, error)
	CountByStatus(ctx context.Context, status string) (int64, error)
}

type requestRepository struct {
	requests *mongo.Collection
}

func NewRequestRepository(db *database.DB) RequestRepository {
	return &requestRepository{requests: db.Collection(database.CollAnimeRequests)}
}

func (r *requestRepository) Create(ctx context.Context, req *models.AnimeRequest) (primitive.ObjectID, error) {
	if req.Status == "" {
		req.Status = models.RequestStatusPending
	}
	if req.RequestedAt.IsZero() {
		req.RequestedAt = time.Now().UTC()
	}
	res, err := r.requests.InsertOne(ctx, req)
	if err != nil {
		return primitive.NilObjectID, err
	}
	return res.InsertedID.(primitive.ObjectID), nil
}

func (r *requestRepository) Get(ctx context.Context, id primitive.ObjectID) (*models.AnimeRequest, error) {
	var req models.AnimeRequest
	err := r.requests.FindOne(ctx, bson.M{"_id": id}).Decode(&req)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *requestRepository) ByStatus(ctx context.Context, status string, limit int64) ([]models.AnimeRequest, error) {
	cur, err := r.requests.Find(ctx, bson.M{"status": status}, options.Find().
		SetSort(bson.D{{Key: "requested_at", Value: 1}}).
		SetLimit(limit))
	if err != nil {
		return nil, err
	}
	return decodeAll[models.AnimeRequest](ctx, cur)
}

func (r *requestRepository) OpenByUser(ctx context.Context, userID int64) ([]models.AnimeRequest, error) {
	cur, err := r.requests.Find(ctx, bson.M{
		"user_id": userID,
		"status":  bson.M{"$in": []string{models.RequestStatusPending, models.RequestStatusInvestigating}},
	}, options.Find().SetSort(bson.D{{Key: "requested_at", Value: -1}}))
	if err != nil {
		return nil, err
	}
	return decodeAll[models.AnimeRequest](ctx, cur)
}

func (r *requestRepository) Transition(ctx context.Context, id primitive.ObjectID, newStatus string, adminID int64, note string) (*models.AnimeRequest, error) {
	sources := models.RequestTransitionSources(newStatus)
	if len(sources) == 0 {
		// Nothing moves into this status (pending has no legal sources), but
		// re-applying the current status still reads as a no-op.
		current, err := r.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if current.Status == newStatus {
			return nil, ErrAlreadyInStatus
		}
		return nil, ErrInvalidTransition
	}

	set := bson.M{"status": newStatus}
	if note != "" {
		set["admin_notes"] = note
	}
	if models.TerminalRequestStatus(newStatus) {
		now := time.Now().UTC()
		set["resolved_at"] = now
		set["resolved_by_admin_id"] = adminID
	}

	// The source-status guard makes the move conditional, so two admins
	// resolving the same request cannot both win.
	var req models.AnimeRequest
	err := r.requests.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "status": bson.M{"$in": sources}},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&req)
	if errors.Is(err, mongo.ErrNoDocuments) {
		// Unknown id, same status, or an illegal move; one more read tells
		// us which.
		current, getErr := r.Get(ctx, id)
		if getErr != nil {
			return nil, ErrNotFound
		}
		if current.Status == newStatus {
			return nil, ErrAlreadyInStatus
		}
		return nil, ErrInvalidTransition
	}
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *requestRepository) CountByStatus(ctx context.Context, status string) (int64, error) {
	return r.requests.CountDocuments(ctx, bson.M{"status": status})
}
