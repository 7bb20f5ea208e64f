package ledger

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func buildChain(t *testing.T, anchorID string, count int) []Entry {
	t.Helper()
	entries := make([]Entry, 0, count)
	prevHash := GenesisHash
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < count; i++ {
		payload, err := json.Marshal(SessionBoundPayload{SessionID: "s1", Platform: "cli"})
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		e := Entry{
			ID:          "entry-" + string(rune('a'+i)),
			AnchorID:    anchorID,
			SessionID:   "s1",
			Seq:         uint64(i + 1),
			Type:        TypeSessionBound,
			PayloadJSON: string(payload),
			PrevHash:    prevHash,
			Timestamp:   base.Add(time.Duration(i) * time.Minute),
		}
		hash, err := EntryHash(e)
		if err != nil {
			t.Fatalf("entry hash: %v", err)
		}
		e.Hash = hash
		prevHash = hash
		entries = append(entries, e)
	}
	return entries
}

func TestEntryHashDeterministic(t *testing.T) {
	e := Entry{
		ID:          "e1",
		AnchorID:    "a1",
		Type:        TypeAnchorCreated,
		PayloadJSON: `{"global_id":"g1","anchor_hash":"h1"}`,
		PrevHash:    GenesisHash,
		Timestamp:   time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}

	first, err := EntryHash(e)
	if err != nil {
		t.Fatalf("entry hash: %v", err)
	}
	second, err := EntryHash(e)
	if err != nil {
		t.Fatalf("entry hash: %v", err)
	}
	if first != second {
		t.Fatalf("expected stable hash, got %s and %s", first, second)
	}
}

func TestEntryHashIsFullDigest(t *testing.T) {
	e := Entry{
		ID:        "e1",
		AnchorID:  "a1",
		Type:      TypeAnchorCreated,
		PrevHash:  GenesisHash,
		Timestamp: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	hash, err := EntryHash(e)
	if err != nil {
		t.Fatalf("entry hash: %v", err)
	}
	// Chain links carry the untruncated SHA-256 digest.
	if len(hash) != 64 {
		t.Fatalf("len(hash) = %d, want 64", len(hash))
	}
}

func TestEntryHashChangesWithPrevHash(t *testing.T) {
	e := Entry{
		ID:        "e1",
		AnchorID:  "a1",
		Type:      TypeAnchorCreated,
		PrevHash:  GenesisHash,
		Timestamp: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	genesis, err := EntryHash(e)
	if err != nil {
		t.Fatalf("entry hash: %v", err)
	}

	e.PrevHash = "0123456789abcdef0123456789abcdef"
	linked, err := EntryHash(e)
	if err != nil {
		t.Fatalf("entry hash: %v", err)
	}
	if genesis == linked {
		t.Fatal("expected prev hash to affect entry hash")
	}
}

func TestEntryHashRequiresFields(t *testing.T) {
	if _, err := EntryHash(Entry{Type: TypeSessionBound, PrevHash: GenesisHash}); err == nil {
		t.Fatal("expected error for missing anchor id")
	}
	if _, err := EntryHash(Entry{AnchorID: "a1", PrevHash: GenesisHash}); err == nil {
		t.Fatal("expected error for missing event type")
	}
	if _, err := EntryHash(Entry{AnchorID: "a1", Type: TypeSessionBound}); err == nil {
		t.Fatal("expected error for missing prev hash")
	}
}

func TestVerifyAcceptsIntactChain(t *testing.T) {
	entries := buildChain(t, "a1", 5)
	if err := Verify(entries); err != nil {
		t.Fatalf("verify intact chain: %v", err)
	}
}

func TestVerifyEmptyChain(t *testing.T) {
	if err := Verify(nil); err != nil {
		t.Fatalf("verify empty chain: %v", err)
	}
}

func TestVerifyDetectsTamperedPayload(t *testing.T) {
	entries := buildChain(t, "a1", 3)
	entries[1].PayloadJSON = `{"session_id":"forged","platform":"cli"}`

	err := Verify(entries)
	if err == nil {
		t.Fatal("expected chain violation")
	}
	if !strings.Contains(err.Error(), "hash mismatch") {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestVerifyDetectsBrokenLink(t *testing.T) {
	entries := buildChain(t, "a1", 3)
	entries[2].PrevHash = "not-the-real-hash"

	err := Verify(entries)
	if err == nil {
		t.Fatal("expected chain violation")
	}
	if !strings.Contains(err.Error(), "prev hash mismatch") {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestVerifyFirstEntryMustLinkGenesis(t *testing.T) {
	entries := buildChain(t, "a1", 1)
	entries[0].PrevHash = "bogus"

	if err := Verify(entries); err == nil {
		t.Fatal("expected genesis violation")
	}
}
