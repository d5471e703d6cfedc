package wall

import (
	"reflect"
	"testing"
)

func TestWrapTextBreaksOnSpaces(t *testing.T) {
	got := wrapText("please pray for my family this week", 12)
	want := []string{"please pray", "for my", "family this", "week"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected lines: %q", got)
	}
}

func TestWrapTextSplitsLongWords(t *testing.T) {
	got := wrapText("supercalifragilistic ok", 8)
	want := []string{"supercal", "ifragili", "stic ok"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected lines: %q", got)
	}
}

func TestWrapTextKeepsParagraphs(t *testing.T) {
	got := wrapText("one\n\ntwo", 10)
	want := []string{"one", "", "two"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected lines: %q", got)
	}
}

func TestWrapTextWideRunes(t *testing.T) {
	got := wrapText("祈り 祈り", 4)
	want := []string{"祈り", "祈り"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected lines: %q", got)
	}
}

func TestWrapTextEmpty(t *testing.T) {
	if got := wrapText("   ", 10); got != nil {
		t.Fatalf("expected nil, got %q", got)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("hello world", 6); got != "hello…" {
		t.Fatalf("unexpected truncation: %q", got)
	}
	if got := truncate("short", 10); got != "short" {
		t.Fatalf("unexpected truncation: %q", got)
	}
}
