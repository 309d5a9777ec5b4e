package payloadfile

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Format — как разбивать вход на payload.
type Format string

const (
	FormatAuto  Format = "auto"
	FormatRaw   Format = "raw"   // весь вход — один payload
	FormatLines Format = "lines" // каждая непустая строка — отдельный payload
)

// maxLineSize — предел длины одной строки в режиме lines.
const maxLineSize = 10 * 1024 * 1024

// Publisher — куда отправлять payload.
type Publisher interface {
	Publish(ctx context.Context, payload []byte) error
}

// Result — статистика отправки.
type Result struct {
	Published int
	Skipped   int
}

func (r Result) String() string {
	return fmt.Sprintf("%d published / %d skipped", r.Published, r.Skipped)
}

// ParseFormat — разбор флага (регистр и пробелы не важны).
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "", FormatAuto:
		return FormatAuto, nil
	case FormatRaw, FormatLines:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported format: %q", s)
	}
}

// ResolveFormat — auto по расширению: .jsonl/.ndjson/.txt → lines, остальное → raw.
// Пустой путь (stdin) в режиме auto читается построчно.
func ResolveFormat(path string, f Format) Format {
	if f != FormatAuto {
		return f
	}
	if path == "" {
		return FormatLines
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jsonl", ".ndjson", ".txt":
		return FormatLines
	default:
		return FormatRaw
	}
}

// PublishFile — открыть файл (пустой путь → stdin) и отправить его содержимое.
func PublishFile(ctx context.Context, pub Publisher, path string, f Format) (Result, error) {
	f = ResolveFormat(path, f)
	if path == "" {
		return PublishStream(ctx, pub, os.Stdin, f)
	}

	file, err := os.Open(path)
	if err != nil {
		return Result{}, fmt.Errorf("open file: %w", err)
	}
	defer file.Close()

	return PublishStream(ctx, pub, file, f)
}

// PublishStream — отправить содержимое reader'а; формат уже разрешён (auto → raw).
// Первая ошибка Publisher прерывает отправку.
func PublishStream(ctx context.Context, pub Publisher, r io.Reader, f Format) (Result, error) {
	switch f {
	case FormatLines:
		return publishLines(ctx, pub, r)
	case FormatRaw, FormatAuto:
		raw, err := io.ReadAll(r)
		if err != nil {
			return Result{}, fmt.Errorf("read input: %w", err)
		}
		if len(raw) == 0 {
			return Result{Skipped: 1}, nil
		}
		if err := pub.Publish(ctx, raw); err != nil {
			return Result{}, fmt.Errorf("publish: %w", err)
		}
		return Result{Published: 1}, nil
	default:
		return Result{}, fmt.Errorf("unsupported format: %s", f)
	}
}

// publishLines — пустые строки (и строки из одних пробелов) пропускаются, \r\n обрезается.
func publishLines(ctx context.Context, pub Publisher, r io.Reader) (Result, error) {
	var res Result

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		line := bytes.TrimRight(scanner.Bytes(), "\r")
		if len(bytes.TrimSpace(line)) == 0 {
			res.Skipped++
			continue
		}
		// scanner переиспользует буфер
		payload := append([]byte(nil), line...)
		if err := pub.Publish(ctx, payload); err != nil {
			return res, fmt.Errorf("publish line %d: %w", res.Published+res.Skipped+1, err)
		}
		res.Published++
	}
	if err := scanner.Err(); err != nil {
		return res, fmt.Errorf("scan: %w", err)
	}
	return res, nil
}
