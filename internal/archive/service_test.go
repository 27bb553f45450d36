package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/embalage-erp/embalage-erp/internal/shared"
)

type liveRecord struct {
	Reference string `json:"reference"`
	ClientID  int64  `json:"client_id"`
	Payload   string `json:"payload"`
}

type memoryRepo struct {
	live     map[Kind]map[int64]liveRecord
	archived map[uuid.UUID]ArchivedTransaction
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		live:     map[Kind]map[int64]liveRecord{},
		archived: map[uuid.UUID]ArchivedTransaction{},
	}
}

func (m *memoryRepo) put(kind Kind, id int64, rec liveRecord) {
	if m.live[kind] == nil {
		m.live[kind] = map[int64]liveRecord{}
	}
	m.live[kind][id] = rec
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, m)
}

func (m *memoryRepo) GetArchived(_ context.Context, id uuid.UUID) (ArchivedTransaction, error) {
	at, ok := m.archived[id]
	if !ok {
		return ArchivedTransaction{}, fmt.Errorf("archived %s: %w", id, shared.ErrNotFound)
	}
	return at, nil
}

func (m *memoryRepo) ListArchived(_ context.Context, kind Kind) ([]ArchivedTransaction, error) {
	var out []ArchivedTransaction
	for _, at := range m.archived {
		if kind == "" || at.Kind == kind {
			out = append(out, at)
		}
	}
	return out, nil
}

type memorySnapshot struct {
	SourceID int64      `json:"source_id"`
	Record   liveRecord `json:"record"`
}

func (m *memoryRepo) Snapshot(_ context.Context, kind Kind, sourceID int64) (json.RawMessage, SnapshotInfo, error) {
	rec, ok := m.live[kind][sourceID]
	if !ok {
		return nil, SnapshotInfo{}, fmt.Errorf("%s %d: %w", kind, sourceID, shared.ErrNotFound)
	}
	raw, err := json.Marshal(memorySnapshot{SourceID: sourceID, Record: rec})
	if err != nil {
		return nil, SnapshotInfo{}, err
	}
	return raw, SnapshotInfo{Reference: rec.Reference, ClientID: rec.ClientID}, nil
}

func (m *memoryRepo) DeleteLive(_ context.Context, kind Kind, sourceID int64) error {
	delete(m.live[kind], sourceID)
	return nil
}

func (m *memoryRepo) RestoreLive(_ context.Context, kind Kind, snapshot json.RawMessage) error {
	var snap memorySnapshot
	if err := json.Unmarshal(snapshot, &snap); err != nil {
		return err
	}
	if _, exists := m.live[kind][snap.SourceID]; exists {
		return fmt.Errorf("id %d already taken: %w", snap.SourceID, shared.ErrConflict)
	}
	m.put(kind, snap.SourceID, snap.Record)
	return nil
}

func (m *memoryRepo) InsertArchived(_ context.Context, at ArchivedTransaction) error {
	m.archived[at.ID] = at
	return nil
}

func (m *memoryRepo) GetArchivedForUpdate(ctx context.Context, id uuid.UUID) (ArchivedTransaction, error) {
	return m.GetArchived(ctx, id)
}

func (m *memoryRepo) MarkRestored(_ context.Context, id uuid.UUID, at time.Time) error {
	current := m.archived[id]
	current.RestoredAt = &at
	m.archived[id] = current
	return nil
}

func TestArchiveAndRestoreRoundTrip(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()
	original := liveRecord{Reference: "DV-1A2B3C", ClientID: 7, Payload: "caisse 400x300x250"}
	repo.put(KindQuotation, 42, original)

	archived, err := svc.Archive(ctx, KindQuotation, 42)
	require.NoError(t, err)
	require.Equal(t, "DV-1A2B3C", archived.Reference)
	require.Equal(t, int64(7), archived.ClientID)
	require.NotContains(t, repo.live[KindQuotation], int64(42), "archived record leaves the live tables")

	restored, err := svc.Restore(ctx, archived.ID)
	require.NoError(t, err)
	require.NotNil(t, restored.RestoredAt)
	require.Equal(t, original, repo.live[KindQuotation][42], "restore is lossless")
}

func TestArchiveUnknownRecord(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil)

	_, err := svc.Archive(context.Background(), KindQuotation, 404)
	require.ErrorIs(t, err, shared.ErrNotFound)

	_, err = svc.Archive(context.Background(), Kind("INVOICE"), 1)
	require.ErrorIs(t, err, shared.ErrInvalidArgument)
}

func TestRestoreTwiceRejected(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()
	repo.put(KindSupplierOrder, 5, liveRecord{Reference: "BC01/2026"})

	archived, err := svc.Archive(ctx, KindSupplierOrder, 5)
	require.NoError(t, err)
	_, err = svc.Restore(ctx, archived.ID)
	require.NoError(t, err)

	_, err = svc.Restore(ctx, archived.ID)
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestRestoreCollidesWithReusedID(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()
	repo.put(KindClientOrder, 9, liveRecord{Reference: "CM-AAAAAA"})

	archived, err := svc.Archive(ctx, KindClientOrder, 9)
	require.NoError(t, err)

	// a new record grabbed the id while the original sat in the archive
	repo.put(KindClientOrder, 9, liveRecord{Reference: "CM-BBBBBB"})

	_, err = svc.Restore(ctx, archived.ID)
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestListByKind(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()
	repo.put(KindQuotation, 1, liveRecord{Reference: "DV-000001"})
	repo.put(KindProductionBatch, 2, liveRecord{Reference: "PD-000002"})

	_, err := svc.Archive(ctx, KindQuotation, 1)
	require.NoError(t, err)
	_, err = svc.Archive(ctx, KindProductionBatch, 2)
	require.NoError(t, err)

	all, err := svc.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 2)

	quotations, err := svc.List(ctx, KindQuotation)
	require.NoError(t, err)
	require.Len(t, quotations, 1)
	require.Equal(t, "DV-000001", quotations[0].Reference)

	_, err = svc.List(ctx, Kind("INVOICE"))
	require.ErrorIs(t, err, shared.ErrInvalidArgument)
}
