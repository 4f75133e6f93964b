package content

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const mongoCollection = "page_content"

func OpenMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	opts := options.Client().ApplyURI(uri)
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return client, nil
}

type mongoDoc struct {
	ID           string    `bson:"_id"`
	PageName     string    `bson:"page_name"`
	ContentKey   string    `bson:"content_key"`
	ContentType  string    `bson:"content_type"`
	ContentValue string    `bson:"content_value"`
	Description  string    `bson:"description"`
	UpdatedAt    time.Time `bson:"updated_at"`
}

func (d mongoDoc) record() (Record, error) {
	v, err := Decode(Type(d.ContentType), d.ContentValue)
	if err != nil {
		return Record{}, fmt.Errorf("content %s/%s: %w", d.PageName, d.ContentKey, err)
	}
	return Record{ID: d.ID, Page: d.PageName, Key: d.ContentKey, Value: v, Description: d.Description, UpdatedAt: d.UpdatedAt}, nil
}

// MongoRepository keeps page content in a MongoDB collection.
type MongoRepository struct {
	coll *mongo.Collection
	now  func() time.Time
}

func NewMongoRepository(db *mongo.Database) *MongoRepository {
	return &MongoRepository{coll: db.Collection(mongoCollection), now: func() time.Time { return time.Now().UTC() }}
}

func (r *MongoRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "page_name", Value: 1}, {Key: "content_key", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("page_key_unique"),
	})
	return err
}

func (r *MongoRepository) Get(ctx context.Context, key PageKey) (Record, error) {
	var d mongoDoc
	err := r.coll.FindOne(ctx, bson.M{"page_name": key.Page, "content_key": key.Key}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, err
	}
	return d.record()
}

func (r *MongoRepository) Upsert(ctx context.Context, key PageKey, f Fields) (Record, error) {
	set := bson.M{"updated_at": r.now()}
	onInsert := bson.M{"_id": uuid.NewString()}
	if f.Type != nil {
		set["content_type"] = string(*f.Type)
	} else {
		onInsert["content_type"] = string(TypeText)
	}
	if f.Value != nil {
		set["content_value"] = *f.Value
	} else {
		onInsert["content_value"] = ""
	}
	if f.Description != nil {
		set["description"] = *f.Description
	} else {
		onInsert["description"] = ""
	}
	filter := bson.M{"page_name": key.Page, "content_key": key.Key}
	update := bson.M{"$set": set, "$setOnInsert": onInsert}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var d mongoDoc
	if err := r.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&d); err != nil {
		return Record{}, err
	}
	return d.record()
}

func (r *MongoRepository) ListByPage(ctx context.Context, page string) ([]Record, error) {
	cur, err := r.coll.Find(ctx, bson.M{"page_name": page}, options.Find().SetSort(bson.D{{Key: "content_key", Value: 1}}))
	if err != nil {
		return nil, err
	}
	var docs []mongoDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(docs))
	for _, d := range docs {
		rec, err := d.record()
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (r *MongoRepository) Delete(ctx context.Context, id string) error {
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}
