package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"jumpcut/internal/domain"
)

const (
	settingsCollection = "settings"
	encodingSettingsID = "encoding"
)

type encodingSettingsDoc struct {
	ID                 string `bson:"_id"`
	VideoCodec         string `bson:"videoCodec"`
	AudioCodec         string `bson:"audioCodec"`
	Preset             string `bson:"preset"`
	CRF                int    `bson:"crf"`
	AudioBitrate       string `bson:"audioBitrate"`
	SilenceThresholdMs *int64 `bson:"silenceThresholdMs"`
	UpdatedAt          int64  `bson:"updatedAt"`
}

type EncodingSettingsRepository struct {
	collection *mongo.Collection
	now        func() time.Time
}

func NewEncodingSettingsRepository(client *mongo.Client, dbName string) *EncodingSettingsRepository {
	return &EncodingSettingsRepository{
		collection: client.Database(dbName).Collection(settingsCollection),
		now:        time.Now,
	}
}

func (r *EncodingSettingsRepository) GetEncodingSettings(ctx context.Context) (domain.EncodingSettings, bool, error) {
	var doc encodingSettingsDoc
	err := r.collection.FindOne(ctx, bson.M{"_id": encodingSettingsID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.EncodingSettings{}, false, nil
		}
		return domain.EncodingSettings{}, false, err
	}
	return fromSettingsDoc(doc), true, nil
}

func (r *EncodingSettingsRepository) SetEncodingSettings(ctx context.Context, settings domain.EncodingSettings) error {
	_, err := r.collection.UpdateOne(
		ctx,
		bson.M{"_id": encodingSettingsID},
		bson.M{"$set": settingsUpdate(settings, r.now())},
		options.Update().SetUpsert(true),
	)
	return err
}

func settingsUpdate(s domain.EncodingSettings, now time.Time) bson.M {
	return bson.M{
		"videoCodec":         s.VideoCodec,
		"audioCodec":         s.AudioCodec,
		"preset":             s.Preset,
		"crf":                s.CRF,
		"audioBitrate":       s.AudioBitrate,
		"silenceThresholdMs": s.SilenceThresholdMs,
		"updatedAt":          now.Unix(),
	}
}

// fromSettingsDoc treats a document without a threshold field as using the
// default threshold.
func fromSettingsDoc(doc encodingSettingsDoc) domain.EncodingSettings {
	s := domain.EncodingSettings{
		VideoCodec:         doc.VideoCodec,
		AudioCodec:         doc.AudioCodec,
		Preset:             doc.Preset,
		CRF:                doc.CRF,
		AudioBitrate:       doc.AudioBitrate,
		SilenceThresholdMs: domain.DefaultSilenceThresholdMs,
	}
	if doc.SilenceThresholdMs != nil {
		s.SilenceThresholdMs = *doc.SilenceThresholdMs
	}
	return s
}
