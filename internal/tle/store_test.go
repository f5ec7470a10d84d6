package tle

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"
)

type countingInvalidator struct {
	ids []int
	all int
}

func (c *countingInvalidator) Invalidate(id int) { c.ids = append(c.ids, id) }
func (c *countingInvalidator) InvalidateAll()    { c.all++ }

func TestStoreSetInvalidatesAll(t *testing.T) {
	s := NewStore()
	inv := &countingInvalidator{}
	s.AddInvalidator(inv)

	s.Set(NewDataset("test", time.Now(), nil))
	if inv.all != 1 {
		t.Errorf("InvalidateAll calls = %d, want 1", inv.all)
	}
}

func TestStoreReplace(t *testing.T) {
	s := NewStore()
	cache := NewElementCache()
	inv := &countingInvalidator{}
	s.AddInvalidator(cache)
	s.AddInvalidator(inv)

	original := NewDataset("test", time.Now(), []TLEEntry{
		{NORADID: 25544, Name: "ISS (ZARYA)", Line1: issLine1, Line2: issLine2},
	})
	s.Set(original)
	cache.Get(original.Satellites[0])

	newLine2 := issLine2[:8] + " 51.7000" + issLine2[16:]
	entry, err := s.Replace(25544, issLine1, newLine2)
	if err != nil {
		t.Fatalf("Replace: %v", err)
	}
	if entry.Name != "ISS (ZARYA)" {
		t.Errorf("name = %q, want existing name kept", entry.Name)
	}
	if len(inv.ids) != 1 || inv.ids[0] != 25544 {
		t.Errorf("invalidated ids = %v, want [25544]", inv.ids)
	}
	if got := cache.Stats().Entries; got != 0 {
		t.Errorf("element cache entries = %d, want 0 after replace", got)
	}

	// The published dataset is copied, not edited in place.
	if original.Satellites[0].Line2 != issLine2 {
		t.Error("original dataset was mutated")
	}
	cur, ok := s.Lookup(25544)
	if !ok || cur.Line2 != newLine2 {
		t.Errorf("Lookup after replace = %+v, %v", cur, ok)
	}
}

func TestStoreReplaceAddsAndRejects(t *testing.T) {
	s := NewStore()

	if _, err := s.Replace(25544, issLine1, issLine2); err != nil {
		t.Fatalf("Replace into empty store: %v", err)
	}
	if ds := s.Get(); ds == nil || len(ds.Satellites) != 1 {
		t.Fatalf("dataset after add = %+v", ds)
	}

	if _, err := s.Replace(25544, "bad", "lines"); err == nil {
		t.Error("expected validation error")
	}
	if _, err := s.Replace(11111, issLine1, issLine2); err == nil {
		t.Error("expected NORAD mismatch error")
	}

	// Right length and IDs, but a column SGP4 cannot parse.
	badIncl := issLine2[:8] + "XX.YYYYY" + issLine2[16:]
	if _, err := s.Replace(25544, issLine1, badIncl); err == nil {
		t.Error("expected error for non-numeric inclination")
	}
	if got := s.Get().Satellites[0].Line2; got != issLine2 {
		t.Errorf("stored line2 = %q, want the previous valid line", got)
	}
}

func TestParseSkipsInvalid(t *testing.T) {
	data := strings.Join([]string{
		"ISS (ZARYA)", issLine1, issLine2,
		"BROKEN", "1 99999U short", "2 99999 short",
		"CORRUPT", issLine1, issLine2[:52] + "15.7212539x" + issLine2[63:],
		"ISS AGAIN", issLine1, issLine2,
	}, "\n")

	entries, err := Parse(strings.NewReader(data), testLogger)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if entries[0].Name != "ISS (ZARYA)" || entries[0].NORADID != 25544 {
		t.Errorf("first entry = %+v", entries[0])
	}
	if entries[0].Epoch.Year() != 2008 {
		t.Errorf("epoch year = %d, want 2008", entries[0].Epoch.Year())
	}
}

func TestDiskCache(t *testing.T) {
	dir := t.TempDir()
	c := NewCache(dir, 2)

	if _, err := c.LoadLatest(); !errors.Is(err, ErrNoSnapshot) {
		t.Fatalf("empty cache err = %v, want ErrNoSnapshot", err)
	}

	body := []byte("ISS (ZARYA)\n" + issLine1 + "\n" + issLine2 + "\n")
	base := time.Unix(1_700_000_000, 0)
	for i := 0; i < 3; i++ {
		if err := c.Write(body, base.Add(time.Duration(i)*time.Hour)); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}

	files, err := c.listFiles()
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 2 {
		t.Errorf("files after prune = %d, want 2", len(files))
	}

	snap, err := c.LoadLatest()
	if err != nil {
		t.Fatalf("LoadLatest: %v", err)
	}
	if !snap.FetchedAt.Equal(base.Add(2 * time.Hour)) {
		t.Errorf("latest ts = %v", snap.FetchedAt)
	}
	if !bytes.Equal(snap.Data, body) {
		t.Error("snapshot body mismatch")
	}

	ds, err := c.LoadDataset("disk", testLogger)
	if err != nil {
		t.Fatalf("LoadDataset: %v", err)
	}
	if len(ds.Satellites) != 1 || ds.Source != "disk" {
		t.Errorf("dataset = %+v", ds)
	}
	if !ds.EpochRange.Min.Equal(ds.Satellites[0].Epoch) {
		t.Errorf("epoch range = %+v", ds.EpochRange)
	}
}
