package repository

import (
	"context"
	"errors"
	"time"

	"anoa.com/drawsocial/internal/entity"
	"anoa.com/drawsocial/pkg/docstore"
)

type AwardRepository interface {
	// Allocate spends the giver's daily quota for medal and makes it the
	// giver's only active medal on recipient, in one transaction. It returns
	// false, and writes nothing, when the quota was already spent.
	Allocate(ctx context.Context, medal entity.MedalType, giver, recipient string, now time.Time) (bool, error)
	CountForRecipient(ctx context.Context, recipient string) (entity.MedalCounts, error)
	GetUsage(ctx context.Context, giver, day string) (entity.AwardUsage, error)
	// GetRecord returns nil when giver has never awarded recipient.
	GetRecord(ctx context.Context, recipient, giver string) (*entity.AwardRecord, error)
	ServerTime(ctx context.Context) (time.Time, error)
}

type awardRepository struct {
	store docstore.Store
}

func NewAwardRepository(store docstore.Store) AwardRepository {
	return &awardRepository{store: store}
}

func usageRef(giver, day string) docstore.Ref {
	return docstore.Doc(docstore.Collection("users", giver, "awardUsage"), day)
}

func awardsCollection(recipient string) string {
	return docstore.Collection("users", recipient, "awards")
}

func recordRef(recipient, giver string) docstore.Ref {
	return docstore.Doc(awardsCollection(recipient), giver)
}

func (r *awardRepository) Allocate(ctx context.Context, medal entity.MedalType, giver, recipient string, now time.Time) (bool, error) {
	day := entity.DayKey(now)
	var allocated bool

	err := r.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		allocated = false

		usage := entity.AwardUsage{Day: day}
		if err := getInto(ctx, tx, usageRef(giver, day), &usage); err != nil {
			return err
		}
		if usage.Used(medal) {
			return nil
		}

		record := entity.AwardRecord{GiverUID: giver}
		if err := getInto(ctx, tx, recordRef(recipient, giver), &record); err != nil {
			return err
		}

		usage.MarkUsed(medal)
		record.Grant(medal, now)

		if err := tx.Set(usageRef(giver, day), usage); err != nil {
			return err
		}
		if err := tx.Set(recordRef(recipient, giver), record); err != nil {
			return err
		}
		allocated = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return allocated, nil
}

func (r *awardRepository) CountForRecipient(ctx context.Context, recipient string) (entity.MedalCounts, error) {
	var counts entity.MedalCounts
	docs, err := r.store.List(ctx, awardsCollection(recipient))
	if err != nil {
		return counts, err
	}
	for _, doc := range docs {
		var record entity.AwardRecord
		if err := doc.DataTo(&record); err != nil {
			return entity.MedalCounts{}, err
		}
		counts.Add(record)
	}
	return counts, nil
}

func (r *awardRepository) GetUsage(ctx context.Context, giver, day string) (entity.AwardUsage, error) {
	usage := entity.AwardUsage{Day: day}
	snap, err := r.store.Get(ctx, usageRef(giver, day))
	if errors.Is(err, docstore.ErrNotFound) {
		return usage, nil
	}
	if err != nil {
		return usage, err
	}
	if err := snap.DataTo(&usage); err != nil {
		return entity.AwardUsage{Day: day}, err
	}
	return usage, nil
}

func (r *awardRepository) GetRecord(ctx context.Context, recipient, giver string) (*entity.AwardRecord, error) {
	snap, err := r.store.Get(ctx, recordRef(recipient, giver))
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var record entity.AwardRecord
	if err := snap.DataTo(&record); err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *awardRepository) ServerTime(ctx context.Context) (time.Time, error) {
	return r.store.ServerTime(ctx)
}

// getInto decodes ref into dst, leaving dst untouched when the document is
// missing.
func getInto(ctx context.Context, tx docstore.Tx, ref docstore.Ref, dst any) error {
	snap, err := tx.Get(ctx, ref)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return snap.DataTo(dst)
}
