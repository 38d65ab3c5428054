package server

import (
	"bytes"
	"testing"

	"github.com/gridwire-go/gridwire/pkg/snapshot"
)

func TestSaveFileRoundTrip(t *testing.T) {
	in := &saveFile{
		roster: []PlayerInfo{
			{UID: 1, Name: "alice"},
			{UID: 2, Name: "bob"},
			{UID: 7, Name: "cleo"},
		},
		dayTick: snapshot.DayTick{Tick: 4321, Day: 12, Time: 119712},
		state:   []byte("opaque level blob"),
	}

	out, err := decodeSaveFile(in.encode())
	if err != nil {
		t.Fatalf("decodeSaveFile: %v", err)
	}

	if len(out.roster) != len(in.roster) {
		t.Fatalf("roster len = %d, want %d", len(out.roster), len(in.roster))
	}
	for i, want := range in.roster {
		if out.roster[i] != want {
			t.Fatalf("roster[%d] = %+v, want %+v", i, out.roster[i], want)
		}
	}
	if out.dayTick != in.dayTick {
		t.Fatalf("dayTick = %+v, want %+v", out.dayTick, in.dayTick)
	}
	if !bytes.Equal(out.state, in.state) {
		t.Fatalf("state = %q, want %q", out.state, in.state)
	}
}

func TestSaveFileEmptyRosterAndState(t *testing.T) {
	in := &saveFile{dayTick: snapshot.DayTick{Tick: 1}}

	out, err := decodeSaveFile(in.encode())
	if err != nil {
		t.Fatalf("decodeSaveFile: %v", err)
	}
	if len(out.roster) != 0 {
		t.Fatalf("roster len = %d, want 0", len(out.roster))
	}
	if len(out.state) != 0 {
		t.Fatalf("state len = %d, want 0", len(out.state))
	}
}

func TestSaveFileRejectsUnknownVersion(t *testing.T) {
	data := (&saveFile{}).encode()
	data[3]++ // version is the first 32-bit field

	if _, err := decodeSaveFile(data); err == nil {
		t.Fatal("expected version error")
	}
}

func TestSaveFileRejectsTruncatedData(t *testing.T) {
	data := (&saveFile{
		roster: []PlayerInfo{{UID: 1, Name: "alice"}},
		state:  []byte("blob"),
	}).encode()

	for cut := 1; cut < len(data); cut++ {
		if _, err := decodeSaveFile(data[:cut]); err == nil {
			t.Fatalf("expected error at %d of %d bytes", cut, len(data))
		}
	}
}
