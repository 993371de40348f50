package local

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sesukyothole/bro-file-manager/internal/logger"
	"github.com/sesukyothole/bro-file-manager/pkg/fspath"
	"github.com/sesukyothole/bro-file-manager/pkg/store"
)

const trashMetaDir = ".meta"

// TrashRecord is the sidecar metadata written next to a trashed item.
//
// TrashName is the physical filename inside <rootReal>/.trash/ and encodes
// <deletedAtMs>-<sanitized-name>-<id>. OriginalPath is the virtual path the
// entry was removed from, used to rebuild the restore destination.
type TrashRecord struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	OriginalPath string          `json:"originalPath"`
	DeletedAt    int64           `json:"deletedAt"`
	Type         store.EntryType `json:"type"`
	Size         int64           `json:"size"`
	TrashName    string          `json:"trashName"`
}

var trashNameSanitizer = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// Trash soft-deletes the entry at the virtual path.
//
// The host node is renamed into <rootReal>/.trash/<trashName> and a sidecar
// <id>.json is written under .trash/.meta/. The sidecar is written before
// the rename; if the rename fails the sidecar is removed again, and a crash
// between the two is cleaned up by Reconcile on the next startup.
func (a *Adapter) Trash(ctx context.Context, virtualPath string) (*TrashRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	resolved, err := fspath.ResolveSafe(virtualPath, a.rootReal)
	if err != nil {
		return nil, err
	}
	if resolved.Normalized == "/" {
		return nil, fmt.Errorf("cannot trash the root: %w", store.ErrInvalidPath)
	}

	info, err := os.Stat(resolved.HostPath)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", resolved.Normalized, err)
	}

	if err := os.MkdirAll(a.trashMetaPath(), 0o755); err != nil {
		return nil, fmt.Errorf("create trash: %w", err)
	}

	name := path.Base(resolved.Normalized)
	now := time.Now().UnixMilli()
	id := uuid.NewString()

	record := &TrashRecord{
		ID:           id,
		Name:         name,
		OriginalPath: resolved.Normalized,
		DeletedAt:    now,
		Type:         store.EntryTypeFile,
		Size:         info.Size(),
		TrashName:    fmt.Sprintf("%d-%s-%s", now, sanitizeTrashName(name), id),
	}
	if info.IsDir() {
		record.Type = store.EntryTypeDir
		record.Size = 0
	}

	if err := a.writeSidecar(record); err != nil {
		return nil, err
	}
	if err := os.Rename(resolved.HostPath, filepath.Join(a.trashPath(), record.TrashName)); err != nil {
		_ = os.Remove(a.sidecarPath(record.ID))
		return nil, fmt.Errorf("trash %s: %w", resolved.Normalized, err)
	}

	return record, nil
}

// ListTrash returns every valid sidecar record, newest deletion first.
//
// Records missing id, trashName, or originalPath are discarded; unparseable
// sidecars are skipped. Orphan physical items without a sidecar are
// tolerated and simply not reported.
func (a *Adapter) ListTrash(ctx context.Context) ([]TrashRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dirents, err := os.ReadDir(a.trashMetaPath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []TrashRecord{}, nil
		}
		return nil, fmt.Errorf("list trash: %w", err)
	}

	records := make([]TrashRecord, 0, len(dirents))
	for _, d := range dirents {
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(a.trashMetaPath(), d.Name()))
		if err != nil {
			continue
		}
		var record TrashRecord
		if err := json.Unmarshal(data, &record); err != nil {
			logger.Warn().Str("sidecar", d.Name()).Err(err).Msg("Skipping unparseable trash sidecar")
			continue
		}
		if record.ID == "" || record.TrashName == "" || record.OriginalPath == "" {
			continue
		}
		records = append(records, record)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].DeletedAt > records[j].DeletedAt
	})
	return records, nil
}

// Restore moves a trashed item back to its original virtual path.
//
// The original parent must still resolve (ErrParentMissing otherwise) and
// nothing may already live at the destination leaf (ErrConflict). On success
// the physical item is renamed back and the sidecar unlinked.
func (a *Adapter) Restore(ctx context.Context, id string) (*TrashRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	record, err := a.readSidecar(id)
	if err != nil {
		return nil, err
	}

	parentVirtual := path.Dir(record.OriginalPath)
	parent, err := fspath.ResolveSafe(parentVirtual, a.rootReal)
	if err != nil {
		if errors.Is(err, fspath.ErrNotFound) {
			return nil, fmt.Errorf("restore %s: %w", record.OriginalPath, store.ErrParentMissing)
		}
		return nil, err
	}

	destHost := filepath.Join(parent.HostPath, path.Base(record.OriginalPath))
	if _, err := os.Lstat(destHost); err == nil {
		return nil, fmt.Errorf("%s: %w", record.OriginalPath, store.ErrConflict)
	}

	trashItem := filepath.Join(a.trashPath(), record.TrashName)
	if _, err := os.Lstat(trashItem); err != nil {
		return nil, fmt.Errorf("trash item for %s: %w", id, store.ErrNotFound)
	}

	if err := os.Rename(trashItem, destHost); err != nil {
		return nil, fmt.Errorf("restore %s: %w", record.OriginalPath, err)
	}
	if err := os.Remove(a.sidecarPath(id)); err != nil {
		logger.Warn().Str("id", id).Err(err).Msg("Restored item but failed to unlink sidecar")
	}

	return record, nil
}

// Reconcile removes sidecars whose physical trash item is missing.
//
// Trash writes the sidecar before the rename, so a crash in between leaves a
// dangling sidecar and an untouched original. Orphan physical items (rename
// done, sidecar lost) are left in place, discoverable only by filesystem
// inspection.
func (a *Adapter) Reconcile() error {
	dirents, err := os.ReadDir(a.trashMetaPath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("reconcile trash: %w", err)
	}

	for _, d := range dirents {
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".json") {
			continue
		}
		id := strings.TrimSuffix(d.Name(), ".json")
		record, err := a.readSidecar(id)
		if err != nil {
			continue
		}
		if _, err := os.Lstat(filepath.Join(a.trashPath(), record.TrashName)); errors.Is(err, os.ErrNotExist) {
			logger.Info().Str("id", id).Str("trash_name", record.TrashName).Msg("Dropping dangling trash sidecar")
			_ = os.Remove(a.sidecarPath(id))
		}
	}
	return nil
}

func (a *Adapter) trashPath() string {
	return filepath.Join(a.rootReal, fspath.TrashDir)
}

func (a *Adapter) trashMetaPath() string {
	return filepath.Join(a.trashPath(), trashMetaDir)
}

func (a *Adapter) sidecarPath(id string) string {
	return filepath.Join(a.trashMetaPath(), id+".json")
}

func (a *Adapter) writeSidecar(record *TrashRecord) error {
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("encode sidecar: %w", err)
	}
	if err := os.WriteFile(a.sidecarPath(record.ID), data, 0o644); err != nil {
		return fmt.Errorf("write sidecar: %w", err)
	}
	return nil
}

func (a *Adapter) readSidecar(id string) (*TrashRecord, error) {
	if err := fspath.CheckLeaf(id); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(a.sidecarPath(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("trash record %s: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("read sidecar %s: %w", id, err)
	}
	var record TrashRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("parse sidecar %s: %w", id, err)
	}
	if record.ID == "" || record.TrashName == "" || record.OriginalPath == "" {
		return nil, fmt.Errorf("sidecar %s is incomplete: %w", id, store.ErrNotFound)
	}
	return &record, nil
}

func sanitizeTrashName(name string) string {
	sanitized := trashNameSanitizer.ReplaceAllString(name, "_")
	if len(sanitized) > 64 {
		sanitized = sanitized[:64]
	}
	return sanitized
}
