package history_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"macroblock/internal/ensemble"
	"macroblock/internal/history"
	"macroblock/internal/media"
	"macroblock/internal/testsupport"
)

func newRecord(id string, kind media.Kind, created time.Time) *history.Record {
	return &history.Record{
		ID:         id,
		CreatedAt:  created,
		MediaKind:  kind,
		Filename:   id + ".bin",
		SizeBytes:  1024,
		SHA256:     "digest-" + id,
		Confidence: 0.8,
		Method:     "ensemble",
	}
}

func TestOpenInitializesSchema(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	rec := newRecord("a1", media.KindImage, time.Now().UTC())
	rec.IsFake = true
	rec.Confidence = 0.93
	if err := store.Insert(ctx, rec); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	fetched, err := store.GetByID(ctx, "a1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if fetched == nil || fetched.ID != "a1" {
		t.Fatalf("unexpected fetched record: %#v", fetched)
	}
	if !fetched.IsFake || fetched.Confidence != 0.93 {
		t.Fatalf("verdict fields not persisted: %#v", fetched)
	}
	if fetched.MediaKind != media.KindImage {
		t.Fatalf("expected image kind, got %s", fetched.MediaKind)
	}
	if fetched.CreatedAt.IsZero() {
		t.Fatal("expected created_at to round-trip")
	}

	found, err := store.FindBySHA256(ctx, "digest-a1")
	if err != nil {
		t.Fatalf("FindBySHA256 failed: %v", err)
	}
	if found == nil || found.ID != "a1" {
		t.Fatalf("expected to find inserted record, got %#v", found)
	}
}

func TestInsertRequiresID(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	if err := store.Insert(ctx, &history.Record{MediaKind: media.KindImage}); err == nil {
		t.Fatal("expected error when id missing")
	}
	if err := store.Insert(ctx, nil); err == nil {
		t.Fatal("expected error for nil record")
	}
}

func TestGetByIDMissingReturnsNil(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	rec, err := store.GetByID(context.Background(), "nope")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if rec != nil {
		t.Fatalf("expected nil for unknown id, got %#v", rec)
	}
}

func TestRecentOrdersNewestFirst(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		rec := newRecord(fmt.Sprintf("rec-%d", i), media.KindVideo, base.Add(time.Duration(i)*time.Minute))
		if err := store.Insert(ctx, rec); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	records, err := store.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].ID != "rec-2" || records[1].ID != "rec-1" {
		t.Fatalf("expected newest first, got %s,%s", records[0].ID, records[1].ID)
	}
}

func TestFindBySHA256ReturnsLatest(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	older := newRecord("old", media.KindImage, base)
	older.SHA256 = "shared-digest"
	newer := newRecord("new", media.KindImage, base.Add(time.Hour))
	newer.SHA256 = "shared-digest"
	newer.IsFake = true
	for _, rec := range []*history.Record{older, newer} {
		if err := store.Insert(ctx, rec); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	found, err := store.FindBySHA256(ctx, "shared-digest")
	if err != nil {
		t.Fatalf("FindBySHA256 failed: %v", err)
	}
	if found == nil || found.ID != "new" {
		t.Fatalf("expected newest record for digest, got %#v", found)
	}

	missing, err := store.FindBySHA256(ctx, "unknown")
	if err != nil {
		t.Fatalf("FindBySHA256 unknown failed: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil for unknown digest, got %#v", missing)
	}
}

func TestFindSimilarImage(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	near := newRecord("near", media.KindImage, base)
	near.PerceptualHash = "0000000000000000"
	far := newRecord("far", media.KindImage, base.Add(time.Minute))
	far.PerceptualHash = "ffffffffffffffff"
	for _, rec := range []*history.Record{near, far} {
		if err := store.Insert(ctx, rec); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	// 0x3 differs from the near hash by two bits and the far hash by 62.
	found, distance, err := store.FindSimilarImage(ctx, "0000000000000003", 10)
	if err != nil {
		t.Fatalf("FindSimilarImage failed: %v", err)
	}
	if found == nil || found.ID != "near" {
		t.Fatalf("expected near record, got %#v", found)
	}
	if distance != 2 {
		t.Fatalf("expected distance 2, got %d", distance)
	}

	none, _, err := store.FindSimilarImage(ctx, "0000000000000003", 1)
	if err != nil {
		t.Fatalf("FindSimilarImage strict failed: %v", err)
	}
	if none != nil {
		t.Fatalf("expected no match under strict distance, got %#v", none)
	}

	exact, distance, err := store.FindSimilarImage(ctx, "ffffffffffffffff", 10)
	if err != nil {
		t.Fatalf("FindSimilarImage exact failed: %v", err)
	}
	if exact == nil || exact.ID != "far" || distance != 0 {
		t.Fatalf("expected exact far match at distance 0, got %#v distance %d", exact, distance)
	}
}

func TestScoresRoundTrip(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	rec := newRecord("scored", media.KindImage, time.Now().UTC())
	if err := rec.SetScores(map[string]ensemble.ModelScore{
		"xception":   {FakeProbability: 0.91},
		"npr-resnet": {Err: "weights missing"},
	}); err != nil {
		t.Fatalf("SetScores failed: %v", err)
	}
	if err := store.Insert(ctx, rec); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	fetched, err := store.GetByID(ctx, "scored")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	scores := fetched.Scores()
	if len(scores) != 2 {
		t.Fatalf("expected 2 score entries, got %d", len(scores))
	}
	if scores["xception"].FakeProbability != 0.91 {
		t.Fatalf("unexpected xception score: %#v", scores["xception"])
	}
	if scores["npr-resnet"].Err != "weights missing" {
		t.Fatalf("expected failure entry preserved, got %#v", scores["npr-resnet"])
	}
}

func TestPruneOlderThan(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	now := time.Now().UTC()
	for i, age := range []time.Duration{90 * 24 * time.Hour, 45 * 24 * time.Hour, time.Hour} {
		rec := newRecord(fmt.Sprintf("age-%d", i), media.KindAudio, now.Add(-age))
		if err := store.Insert(ctx, rec); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	pruned, err := store.PruneOlderThan(ctx, now.Add(-30*24*time.Hour))
	if err != nil {
		t.Fatalf("PruneOlderThan failed: %v", err)
	}
	if pruned != 2 {
		t.Fatalf("expected 2 records pruned, got %d", pruned)
	}

	remaining, err := store.Recent(ctx, 0)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(remaining) != 1 || remaining[0].ID != "age-2" {
		t.Fatalf("expected only the fresh record, got %#v", remaining)
	}
}

func TestStatsAndClear(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	now := time.Now().UTC()

	image := newRecord("img", media.KindImage, now)
	image.IsFake = true
	video := newRecord("vid", media.KindVideo, now)
	audio := newRecord("aud", media.KindAudio, now)
	for _, rec := range []*history.Record{image, video, audio} {
		if err := store.Insert(ctx, rec); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	summary, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if summary.Total != 3 || summary.Fakes != 1 {
		t.Fatalf("unexpected summary: %#v", summary)
	}
	if summary.ByKind[media.KindImage] != 1 || summary.ByKind[media.KindVideo] != 1 || summary.ByKind[media.KindAudio] != 1 {
		t.Fatalf("unexpected kind counts: %#v", summary.ByKind)
	}

	cleared, err := store.Clear(ctx)
	if err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if cleared != 3 {
		t.Fatalf("expected 3 records cleared, got %d", cleared)
	}
	summary, err = store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats after clear failed: %v", err)
	}
	if summary.Total != 0 {
		t.Fatalf("expected empty history, got %#v", summary)
	}
}
