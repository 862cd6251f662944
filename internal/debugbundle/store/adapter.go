package store

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/ocx/backend/internal/debugbundle"
	"github.com/ocx/backend/internal/debugbundle/proc"
)

// Namespace and key are the well-known KV coordinates from spec.md §6:
// one entry for the whole service.
const (
	Namespace = "debug_bundle"
	MetaKey   = "run_metadata"
)

// encodingVersion prefixes every encoded blob so the format can evolve
// without breaking round-trip fidelity for older entries.
const encodingVersion byte = 1

// processOutput is the sidecar persisted alongside RunMetadata, holding
// the captured stdout/stderr lines (spec.md §3).
type processOutput struct {
	StdoutLines []string
	StderrLines []string
}

// Adapter is the Metadata Store Adapter, component C.
type Adapter struct {
	kv KV
}

// NewAdapter wires a KV store into the adapter.
func NewAdapter(kv KV) *Adapter {
	return &Adapter{kv: kv}
}

// Write persists the run's metadata and sidecar output per spec.md
// §4.C: compute the checksum (only on a clean success with an existing
// bundle file), put the metadata, then write the sidecar file; roll
// back the KV entry in the background if the sidecar write fails.
func (a *Adapter) Write(ctx context.Context, h *proc.Handle) error {
	ws := h.Status()

	checksum := ""
	if ws.Success() {
		if _, err := os.Stat(h.BundleFilePath()); err == nil {
			sum, err := sha256File(h.BundleFilePath())
			if err != nil {
				return fmt.Errorf("hash bundle file: %w", err)
			}
			checksum = sum
		}
	}

	meta := &debugbundle.RunMetadata{
		CreatedAt:             h.CreatedAt(),
		JobID:                 h.JobID(),
		BundleFilePath:        h.BundleFilePath(),
		ProcessOutputFilePath: h.ProcessOutputFilePath(),
		SHA256OfBundle:        checksum,
		WaitStatus:            ws,
	}

	encoded, err := encodeMetadata(meta)
	if err != nil {
		return fmt.Errorf("encode run metadata: %w", err)
	}
	if err := a.kv.Put(ctx, Namespace, MetaKey, encoded); err != nil {
		return fmt.Errorf("put run metadata: %w", err)
	}

	sidecar := processOutput{StdoutLines: h.StdoutLines(), StderrLines: h.StderrLines()}
	sidecarBytes, err := encodeSidecar(&sidecar)
	if err != nil {
		return rollbackAndReturn(ctx, a.kv, fmt.Errorf("encode process output: %w", err))
	}
	if err := os.WriteFile(h.ProcessOutputFilePath(), sidecarBytes, 0o644); err != nil {
		return rollbackAndReturn(ctx, a.kv, fmt.Errorf("write process output file: %w", err))
	}

	return nil
}

// rollbackAndReturn schedules a best-effort background removal of the
// KV entry just written, so metadata and sidecar never drift apart for
// long, per spec.md §4.C step 4. The rollback is deliberately
// fire-and-forget: spec.md §9 accepts the brief window where Read
// could still return the now-orphaned KV entry.
func rollbackAndReturn(_ context.Context, kv KV, cause error) error {
	go func() {
		rbCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := kv.Remove(rbCtx, Namespace, MetaKey); err != nil {
			slog.Error("debugbundle: best-effort metadata rollback failed", "error", err)
		}
	}()
	return cause
}

// Remove deletes the KV metadata entry. Callers additionally remove
// on-disk files themselves, per spec.md §4.C.
func (a *Adapter) Remove(ctx context.Context) error {
	return a.kv.Remove(ctx, Namespace, MetaKey)
}

// Read fetches and decodes the current RunMetadata, if any.
func (a *Adapter) Read(ctx context.Context) (*debugbundle.RunMetadata, error) {
	raw, err := a.kv.Get(ctx, Namespace, MetaKey)
	if err != nil {
		return nil, err
	}
	return decodeMetadata(raw)
}

func sha256File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func encodeMetadata(m *debugbundle.RunMetadata) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(encodingVersion)
	if err := gob.NewEncoder(&buf).Encode(m); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
func decodeMetadata(raw []byte) (*debugbundle.RunMetadata, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("store: empty metadata blob")
	}
	if raw[0] != encodingVersion {
		return nil, fmt.Errorf("store: unsupported metadata encoding version %d", raw[0])
	}
	var m debugbundle.RunMetadata
	if err := gob.NewDecoder(bytes.NewReader(raw[1:])).Decode(&m); err != nil {
		return nil, err
	}
	return &m, nil
}

func encodeSidecar(p *processOutput) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(encodingVersion)
	if err := gob.NewEncoder(&buf).Encode(p); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
