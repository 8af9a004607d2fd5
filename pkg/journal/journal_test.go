package journal

import (
	"testing"

	"github.com/uhyunpark/feedcore/pkg/core"
)

func TestAppendReplayRoundTrip(t *testing.T) {
	dir := t.TempDir()
	j, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}

	frames := []struct {
		kind core.Kind
		raw  string
	}{
		{core.KindDepth, `{"s":"BTC_USDT","b":[["1","1"]],"a":[]}`},
		{core.KindTrade, `{"s":"BTC_USDT","p":"1","q":"2"}`},
		{core.KindTicker, `{"s":"BTC_USDT","c":"1"}`},
	}
	for _, fr := range frames {
		if err := j.Append(fr.kind, []byte(fr.raw)); err != nil {
			t.Fatal(err)
		}
	}

	var got []string
	var kinds []core.Kind
	err = j.Replay(func(kind core.Kind, raw []byte) error {
		kinds = append(kinds, kind)
		got = append(got, string(raw))
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(frames) {
		t.Fatalf("replayed %d frames, want %d", len(got), len(frames))
	}
	for i, fr := range frames {
		if got[i] != fr.raw {
			t.Errorf("frame %d = %q, want %q", i, got[i], fr.raw)
		}
		if kinds[i] != fr.kind {
			t.Errorf("frame %d kind = %v, want %v", i, kinds[i], fr.kind)
		}
	}
	if err := j.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestSequenceResumesAfterReopen(t *testing.T) {
	dir := t.TempDir()
	j, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := j.Append(core.KindTrade, []byte("one")); err != nil {
		t.Fatal(err)
	}
	if err := j.Close(); err != nil {
		t.Fatal(err)
	}

	j, err = Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer j.Close()
	if err := j.Append(core.KindTrade, []byte("two")); err != nil {
		t.Fatal(err)
	}

	n, err := j.Len()
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("Len = %d, want 2 (append after reopen must not clobber)", n)
	}

	var got []string
	j.Replay(func(_ core.Kind, raw []byte) error {
		got = append(got, string(raw))
		return nil
	})
	if len(got) != 2 || got[0] != "one" || got[1] != "two" {
		t.Errorf("replay order = %v, want [one two]", got)
	}
}
