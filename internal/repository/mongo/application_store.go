package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/noah-isme/admission-portal-api/internal/models"
	"github.com/noah-isme/admission-portal-api/internal/repository"
)

const applicationCollectionName = "applications"

type queryObserver interface {
	ObserveDBQuery(label string, duration time.Duration)
}

// ApplicationStore keeps each application aggregate as a single document.
type ApplicationStore struct {
	collection *mongo.Collection
	metrics    queryObserver
}

// NewApplicationStore creates a store backed by the applications collection.
func NewApplicationStore(db *mongo.Database, metrics queryObserver) *ApplicationStore {
	return &ApplicationStore{collection: db.Collection(applicationCollectionName), metrics: metrics}
}

// EnsureIndexes creates the lookup indexes used by the portal. Call during startup.
func (s *ApplicationStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "studentId", Value: 1}}},
		{Keys: bson.D{{Key: "agentId", Value: 1}}, Options: options.Index().SetSparse(true)},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "updatedAt", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("create application indexes: %w", err)
	}
	return nil
}

// Get retrieves an application by id.
func (s *ApplicationStore) Get(ctx context.Context, id string) (*models.Application, error) {
	defer s.observe("application_get", time.Now())

	var app models.Application
	if err := s.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&app); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &app, nil
}

// Create inserts a new application document.
func (s *ApplicationStore) Create(ctx context.Context, app *models.Application) error {
	defer s.observe("application_create", time.Now())

	if _, err := s.collection.InsertOne(ctx, app); err != nil {
		return fmt.Errorf("insert application: %w", err)
	}
	return nil
}

// Update sets the mutable fields when the stored version equals expectedVersion.
// Artifact locators are left alone so a concurrent UpdateArtifactLocator survives.
func (s *ApplicationStore) Update(ctx context.Context, app *models.Application, expectedVersion int64) error {
	defer s.observe("application_update", time.Now())

	filter := bson.M{"_id": app.ID, "version": expectedVersion}
	update := bson.M{"$set": bson.M{
		"agentId":         app.AgentID,
		"submittedBy":     app.SubmittedBy,
		"status":          app.Status,
		"currentStage":    app.CurrentStage,
		"sections":        app.Sections,
		"documents":       app.Documents,
		"reviewStatus":    app.ReviewStatus,
		"workflowHistory": app.WorkflowHistory,
		"termsAccepted":   app.TermsAccepted,
		"termsAcceptedAt": app.TermsAcceptedAt,
		"submittedAt":     app.SubmittedAt,
		"approvedAt":      app.ApprovedAt,
		"rejectedAt":      app.RejectedAt,
		"withdrawnAt":     app.WithdrawnAt,
		"finalRemarks":    app.FinalRemarks,
		"rejectionReason": app.RejectionReason,
		"version":         app.Version,
		"updatedAt":       app.UpdatedAt,
	}}

	result, err := s.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("update application: %w", err)
	}
	if result.MatchedCount == 0 {
		return repository.ErrVersionConflict
	}
	return nil
}

// UpdateArtifactLocator stores the locator of a generated artifact without bumping the version.
func (s *ApplicationStore) UpdateArtifactLocator(ctx context.Context, id string, kind models.ArtifactKind, locator string) error {
	defer s.observe("application_artifact", time.Now())

	var field string
	switch kind {
	case models.ArtifactCombinedPDF:
		field = "combinedArtifactLocator"
	case models.ArtifactZip:
		field = "zipArtifactLocator"
	case models.ArtifactSummary:
		field = "summaryArtifactLocator"
	default:
		return fmt.Errorf("unknown artifact kind %q", kind)
	}

	result, err := s.collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{field: locator}})
	if err != nil {
		return fmt.Errorf("update artifact locator: %w", err)
	}
	if result.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (s *ApplicationStore) observe(label string, start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveDBQuery(label, time.Since(start))
	}
}
