package repository

import (
	"context"
	"strconv"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/api/iterator"

	"awakener/pkg/model"
)

const (
	timelineCollection = "timeline"
	notebookCollection = "notebook"
	controlCollection  = "control"
	inspirationDoc     = "inspiration"
)

// Firestore implements Repository on Cloud Firestore. Timeline and notebook
// entries live in per-round documents; the pending inspiration is a single
// document in the control collection.
type Firestore struct {
	client *firestore.Client
}

func NewFirestore(ctx context.Context, projectID, databaseID string) (*Firestore, error) {
	client, err := firestore.NewClientWithDatabase(ctx, projectID, databaseID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create firestore client",
			goerr.V("project", projectID), goerr.V("database", databaseID))
	}
	return &Firestore{client: client}, nil
}

func (r *Firestore) Close() error {
	return r.client.Close()
}

func roundDocID(round int64) string {
	return strconv.FormatInt(round, 10)
}

func (r *Firestore) PutNotebook(ctx context.Context, entry *model.NotebookEntry) error {
	// Set overwrites, which gives last-wins per round for free.
	_, err := r.client.Collection(notebookCollection).Doc(roundDocID(entry.Round)).Set(ctx, entry)
	if err != nil {
		return goerr.Wrap(err, "failed to put notebook entry", goerr.V("round", entry.Round))
	}
	return nil
}

func (r *Firestore) GetNotebook(ctx context.Context, round int64) (*model.NotebookEntry, error) {
	snap, err := r.client.Collection(notebookCollection).Doc(roundDocID(round)).Get(ctx)
	if snap != nil && !snap.Exists() {
		return nil, goerr.Wrap(ErrRoundNotFound, "no notebook entry", goerr.V("round", round))
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get notebook entry", goerr.V("round", round))
	}

	var entry model.NotebookEntry
	if err := snap.DataTo(&entry); err != nil {
		return nil, goerr.Wrap(err, "failed to decode notebook entry", goerr.V("round", round))
	}
	return &entry, nil
}

func (r *Firestore) RecentNotebook(ctx context.Context, n int) ([]*model.NotebookEntry, error) {
	iter := r.client.Collection(notebookCollection).
		OrderBy("round", firestore.Desc).
		Limit(n).
		Documents(ctx)
	defer iter.Stop()

	var entries []*model.NotebookEntry
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to list notebook entries")
		}
		var entry model.NotebookEntry
		if err := snap.DataTo(&entry); err != nil {
			return nil, goerr.Wrap(err, "failed to decode notebook entry")
		}
		entries = append(entries, &entry)
	}
	return entries, nil
}

func (r *Firestore) ListNotebook(ctx context.Context, offset, limit int) ([]*model.NotebookEntry, int, error) {
	total, err := r.count(ctx, notebookCollection)
	if err != nil {
		return nil, 0, err
	}

	query := r.client.Collection(notebookCollection).OrderBy("round", firestore.Desc).Offset(offset)
	if limit > 0 {
		query = query.Limit(limit)
	}
	iter := query.Documents(ctx)
	defer iter.Stop()

	var entries []*model.NotebookEntry
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, 0, goerr.Wrap(err, "failed to list notebook entries")
		}
		var entry model.NotebookEntry
		if err := snap.DataTo(&entry); err != nil {
			return nil, 0, goerr.Wrap(err, "failed to decode notebook entry")
		}
		entries = append(entries, &entry)
	}
	return entries, total, nil
}

func (r *Firestore) PutTimeline(ctx context.Context, entry *model.TimelineEntry) error {
	_, err := r.client.Collection(timelineCollection).Doc(roundDocID(entry.Round)).Set(ctx, entry)
	if err != nil {
		return goerr.Wrap(err, "failed to put timeline entry", goerr.V("round", entry.Round))
	}
	return nil
}

func (r *Firestore) GetTimeline(ctx context.Context, round int64) (*model.TimelineEntry, error) {
	snap, err := r.client.Collection(timelineCollection).Doc(roundDocID(round)).Get(ctx)
	if snap != nil && !snap.Exists() {
		return nil, goerr.Wrap(ErrRoundNotFound, "no timeline entry", goerr.V("round", round))
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get timeline entry", goerr.V("round", round))
	}

	var entry model.TimelineEntry
	if err := snap.DataTo(&entry); err != nil {
		return nil, goerr.Wrap(err, "failed to decode timeline entry", goerr.V("round", round))
	}
	return &entry, nil
}

func (r *Firestore) ListTimeline(ctx context.Context, offset, limit int) ([]*model.TimelineEntry, int, error) {
	total, err := r.count(ctx, timelineCollection)
	if err != nil {
		return nil, 0, err
	}

	query := r.client.Collection(timelineCollection).OrderBy("round", firestore.Desc).Offset(offset)
	if limit > 0 {
		query = query.Limit(limit)
	}
	iter := query.Documents(ctx)
	defer iter.Stop()

	var entries []*model.TimelineEntry
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, 0, goerr.Wrap(err, "failed to list timeline entries")
		}
		var entry model.TimelineEntry
		if err := snap.DataTo(&entry); err != nil {
			return nil, 0, goerr.Wrap(err, "failed to decode timeline entry")
		}
		entries = append(entries, &entry)
	}
	return entries, total, nil
}

func (r *Firestore) count(ctx context.Context, collection string) (int, error) {
	docs := r.client.Collection(collection).Select().Documents(ctx)
	defer docs.Stop()

	total := 0
	for {
		_, err := docs.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return 0, goerr.Wrap(err, "failed to count documents", goerr.V("collection", collection))
		}
		total++
	}
	return total, nil
}

func (r *Firestore) LastRound(ctx context.Context) (int64, error) {
	var last int64
	for _, collection := range []string{timelineCollection, notebookCollection} {
		iter := r.client.Collection(collection).
			OrderBy("round", firestore.Desc).
			Limit(1).
			Documents(ctx)
		snap, err := iter.Next()
		iter.Stop()
		if err == iterator.Done {
			continue
		}
		if err != nil {
			return 0, goerr.Wrap(err, "failed to query last round", goerr.V("collection", collection))
		}

		var entry struct {
			Round int64 `firestore:"round"`
		}
		if err := snap.DataTo(&entry); err != nil {
			return 0, goerr.Wrap(err, "failed to decode last round")
		}
		if entry.Round > last {
			last = entry.Round
		}
	}
	return last, nil
}

func (r *Firestore) DeleteRound(ctx context.Context, round int64) error {
	timelineRef := r.client.Collection(timelineCollection).Doc(roundDocID(round))
	notebookRef := r.client.Collection(notebookCollection).Doc(roundDocID(round))

	// A transaction keeps the cascade all-or-nothing.
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		timelineSnap, _ := tx.Get(timelineRef)
		notebookSnap, _ := tx.Get(notebookRef)

		exists := (timelineSnap != nil && timelineSnap.Exists()) ||
			(notebookSnap != nil && notebookSnap.Exists())
		if !exists {
			return goerr.Wrap(ErrRoundNotFound, "nothing to delete", goerr.V("round", round))
		}

		if err := tx.Delete(timelineRef); err != nil {
			return err
		}
		return tx.Delete(notebookRef)
	})
	if err != nil {
		return goerr.Wrap(err, "failed to delete round", goerr.V("round", round))
	}
	return nil
}

func (r *Firestore) PutInspiration(ctx context.Context, insp *model.Inspiration) error {
	_, err := r.client.Collection(controlCollection).Doc(inspirationDoc).Set(ctx, insp)
	if err != nil {
		return goerr.Wrap(err, "failed to put inspiration")
	}
	return nil
}

func (r *Firestore) TakeInspiration(ctx context.Context) (*model.Inspiration, error) {
	ref := r.client.Collection(controlCollection).Doc(inspirationDoc)

	var insp *model.Inspiration
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if snap != nil && !snap.Exists() {
			return nil
		}
		if err != nil {
			return err
		}

		var v model.Inspiration
		if err := snap.DataTo(&v); err != nil {
			return err
		}
		insp = &v
		return tx.Delete(ref)
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to take inspiration")
	}
	return insp, nil
}
