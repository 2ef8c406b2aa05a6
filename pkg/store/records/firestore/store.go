// Package firestore implements records.Store on Cloud Firestore. Avatar
// URLs live as fields on the user documents of a collection.
package firestore

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/marmos91/avatarsync/pkg/avatar"
	"github.com/marmos91/avatarsync/pkg/store/records"
)

// DefaultCollection is the collection holding user documents.
const DefaultCollection = "users"

var fields = map[avatar.Variant]string{
	avatar.VariantThumbnail: "avatarThumbnailUrl",
	avatar.VariantMedium:    "avatarMediumUrl",
	avatar.VariantFull:      "avatarFullUrl",
	avatar.VariantLegacy:    "avatarUrl",
}

const fieldUpdatedAt = "avatarUpdatedAt"

// Config holds the Firestore settings decoded from the records.firestore
// config section.
type Config struct {
	ProjectID       string `mapstructure:"project_id"`
	Collection      string `mapstructure:"collection"`
	CredentialsFile string `mapstructure:"credentials_file"`
}

// Store implements records.Store on a Firestore collection.
//
// Thread Safety: Safe for concurrent use. Updates use merge writes, so
// fields outside the avatar URLs are never touched.
type Store struct {
	client     *firestore.Client
	collection string
	ownsClient bool
}

// Open creates a Firestore client from cfg. Set FIRESTORE_EMULATOR_HOST to
// target the emulator.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.ProjectID) == "" {
		return nil, fmt.Errorf("firestore record store: project_id is required")
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := firestore.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}

	s := New(client, cfg.Collection)
	s.ownsClient = true
	return s, nil
}

// New wraps an existing client. The caller keeps ownership of client.
func New(client *firestore.Client, collection string) *Store {
	if strings.TrimSpace(collection) == "" {
		collection = DefaultCollection
	}
	return &Store{client: client, collection: collection}
}

func (s *Store) doc(userID string) *firestore.DocumentRef {
	return s.client.Collection(s.collection).Doc(userID)
}

// Get returns the URLs stored on the user's document.
func (s *Store) Get(ctx context.Context, userID string) (avatar.URLSet, error) {
	if err := ctx.Err(); err != nil {
		return avatar.URLSet{}, err
	}
	if strings.TrimSpace(userID) == "" {
		return avatar.URLSet{}, records.ErrInvalidUserID
	}

	snap, err := s.doc(userID).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return avatar.URLSet{}, fmt.Errorf("user %s: %w", userID, records.ErrUserNotFound)
	}
	if err != nil {
		return avatar.URLSet{}, fmt.Errorf("failed to read user document: %w", err)
	}

	data := snap.Data()
	var u avatar.URLSet
	for _, v := range avatar.Variants() {
		if val, ok := data[fields[v]].(string); ok {
			u.Set(v, val)
		}
	}
	return u, nil
}

// Update merges the patched fields into the user's document, creating it
// when missing.
func (s *Store) Update(ctx context.Context, userID string, patch records.Patch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(userID) == "" {
		return records.ErrInvalidUserID
	}

	data := map[string]any{
		fieldUpdatedAt: firestore.ServerTimestamp,
	}
	for _, v := range avatar.Variants() {
		if val, ok := patch.Field(v); ok {
			data[fields[v]] = val
		}
	}

	if _, err := s.doc(userID).Set(ctx, data, firestore.MergeAll); err != nil {
		return fmt.Errorf("failed to update user document %s: %w", userID, err)
	}
	return nil
}

// Close releases the client when the store created it.
func (s *Store) Close() error {
	if s.ownsClient {
		return s.client.Close()
	}
	return nil
}
