package entryrepo

import (
	"context"
	"time"

	"github.com/go-petr/pet-ledger/internal/domain"
	"github.com/go-petr/pet-ledger/pkg/moneypkg"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// Collection is the MongoDB collection holding the entry log.
const Collection = "entries"

// entryDocument is the stored form of an entry. Ids and amounts are kept as strings and
// the timestamp as unix microseconds, since BSON dates only keep milliseconds.
type entryDocument struct {
	ID                   string `bson:"_id"`
	SourceAccountID      string `bson:"source_account_id"`
	DestinationAccountID string `bson:"destination_account_id,omitempty"`
	Kind                 string `bson:"kind"`
	Amount               string `bson:"amount"`
	Timestamp            int64  `bson:"timestamp_us"`
}

// RepoMongo keeps the entry log in a MongoDB collection.
type RepoMongo struct {
	collection *mongo.Collection
}

// NewRepoMongo returns entry RepoMongo using the entries collection of dbName.
func NewRepoMongo(client *mongo.Client, dbName string) *RepoMongo {
	return &RepoMongo{collection: client.Database(dbName).Collection(Collection)}
}

// EnsureIndexes creates the indexes serving ListByAccount.
func (r *RepoMongo) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "source_account_id", Value: 1}, {Key: "timestamp_us", Value: 1}}},
		{Keys: bson.D{{Key: "destination_account_id", Value: 1}, {Key: "timestamp_us", Value: 1}}},
	})

	return err
}

// Append stores the entry.
func (r *RepoMongo) Append(ctx context.Context, e domain.Entry) error {
	l := zerolog.Ctx(ctx)

	doc := entryDocument{
		ID:              e.ID().String(),
		SourceAccountID: e.SourceAccountID().String(),
		Kind:            string(e.Kind()),
		Amount:          e.Amount().String(),
		Timestamp:       e.Timestamp().UnixMicro(),
	}

	if dst := e.DestinationAccountID(); dst.Valid {
		doc.DestinationAccountID = dst.UUID.String()
	}

	if _, err := r.collection.InsertOne(ctx, doc); err != nil {
		l.Error().Err(err).Str("entry_id", doc.ID).Send()
		return domain.ErrStorageFailure
	}

	return nil
}

// ListByAccount returns the entries where accountID is the source or the destination
// and whose timestamp is not after upTo. The order is unspecified.
func (r *RepoMongo) ListByAccount(ctx context.Context, accountID uuid.UUID, upTo time.Time) ([]domain.Entry, error) {
	l := zerolog.Ctx(ctx)

	id := accountID.String()

	filter := bson.M{
		"$or": bson.A{
			bson.M{"source_account_id": id},
			bson.M{"destination_account_id": id},
		},
		"timestamp_us": bson.M{"$lte": upTo.UnixMicro()},
	}

	cursor, err := r.collection.Find(ctx, filter)
	if err != nil {
		l.Error().Err(err).Send()
		return nil, domain.ErrStorageFailure
	}

	var docs []entryDocument
	if err := cursor.All(ctx, &docs); err != nil {
		l.Error().Err(err).Send()
		return nil, domain.ErrStorageFailure
	}

	items := make([]domain.Entry, 0, len(docs))

	for _, doc := range docs {
		e, err := doc.restore()
		if err != nil {
			l.Error().Err(err).Str("entry_id", doc.ID).Msg("corrupt entry")
			return nil, domain.ErrStorageFailure
		}

		items = append(items, e)
	}

	return items, nil
}

func (d entryDocument) restore() (domain.Entry, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return domain.Entry{}, err
	}

	source, err := uuid.Parse(d.SourceAccountID)
	if err != nil {
		return domain.Entry{}, err
	}

	var destination uuid.NullUUID
	if d.DestinationAccountID != "" {
		if destination.UUID, err = uuid.Parse(d.DestinationAccountID); err != nil {
			return domain.Entry{}, err
		}
		destination.Valid = true
	}

	amount, err := decimal.NewFromString(d.Amount)
	if err != nil {
		return domain.Entry{}, err
	}

	return domain.RestoreEntry(id, source, destination, domain.EntryKind(d.Kind), moneypkg.FromDecimal(amount), time.UnixMicro(d.Timestamp))
}
