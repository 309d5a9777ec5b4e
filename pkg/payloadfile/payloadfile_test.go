package payloadfile

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// recorder — Publisher, запоминающий payload; failAt > 0 — ошибка на этом вызове.
type recorder struct {
	got    []string
	failAt int
}

func (r *recorder) Publish(_ context.Context, payload []byte) error {
	if r.failAt > 0 && len(r.got)+1 == r.failAt {
		return errors.New("broker down")
	}
	r.got = append(r.got, string(payload))
	return nil
}

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}
	return path
}

func TestParseFormat(t *testing.T) {
	cases := map[string]Format{"": FormatAuto, "auto": FormatAuto, " RAW ": FormatRaw, "Lines": FormatLines}
	for in, want := range cases {
		got, err := ParseFormat(in)
		if err != nil || got != want {
			t.Fatalf("ParseFormat(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseFormat("jsonl"); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestResolveFormat(t *testing.T) {
	cases := []struct {
		path string
		in   Format
		want Format
	}{
		{"events.jsonl", FormatAuto, FormatLines},
		{"events.NDJSON", FormatAuto, FormatLines},
		{"notes.txt", FormatAuto, FormatLines},
		{"blob.bin", FormatAuto, FormatRaw},
		{"one.json", FormatAuto, FormatRaw},
		{"", FormatAuto, FormatLines},
		{"events.jsonl", FormatRaw, FormatRaw},
	}
	for _, tc := range cases {
		if got := ResolveFormat(tc.path, tc.in); got != tc.want {
			t.Fatalf("ResolveFormat(%q, %q) = %q, want %q", tc.path, tc.in, got, tc.want)
		}
	}
}

// Построчный режим: пустые строки пропускаются, CRLF обрезается
func TestPublishFile_Lines_Auto(t *testing.T) {
	path := writeTemp(t, "in.jsonl", "a\r\n\n  \nb\nc")

	rec := &recorder{}
	res, err := PublishFile(context.Background(), rec, path, FormatAuto)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.String() != "3 published / 2 skipped" {
		t.Fatalf("unexpected summary: %s", res)
	}
	if strings.Join(rec.got, ",") != "a,b,c" {
		t.Fatalf("unexpected payloads: %q", rec.got)
	}
}

// Raw: файл целиком — один payload, байт в байт
func TestPublishFile_Raw(t *testing.T) {
	content := "line1\nline2\n\x00\xff"
	path := writeTemp(t, "blob.bin", content)

	rec := &recorder{}
	res, err := PublishFile(context.Background(), rec, path, FormatAuto)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Published != 1 || len(rec.got) != 1 || rec.got[0] != content {
		t.Fatalf("unexpected result %+v payloads=%q", res, rec.got)
	}
}

func TestPublishFile_RawEmptyIsSkipped(t *testing.T) {
	path := writeTemp(t, "empty.bin", "")

	rec := &recorder{}
	res, err := PublishFile(context.Background(), rec, path, FormatRaw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Published != 0 || res.Skipped != 1 || len(rec.got) != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
}

// Ошибка отправки прерывает поток, уже отправленное учитывается
func TestPublishStream_StopsOnPublishError(t *testing.T) {
	rec := &recorder{failAt: 2}
	res, err := PublishStream(context.Background(), rec, strings.NewReader("a\nb\nc\n"), FormatLines)
	if err == nil || !strings.Contains(err.Error(), "publish line 2") {
		t.Fatalf("want publish line 2 error, got %v", err)
	}
	if res.Published != 1 {
		t.Fatalf("want 1 published before failure, got %+v", res)
	}
}

func TestPublishStream_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := &recorder{}
	if _, err := PublishStream(ctx, rec, strings.NewReader("a\n"), FormatLines); !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
	if len(rec.got) != 0 {
		t.Fatalf("nothing must be published, got %q", rec.got)
	}
}

func TestPublishFile_Missing(t *testing.T) {
	if _, err := PublishFile(context.Background(), &recorder{}, filepath.Join(t.TempDir(), "nope"), FormatRaw); err == nil {
		t.Fatal("expected error for missing file")
	}
}
