// Package persist moves datasets between the store and a durable slot, and
// publishes snapshot exports to the artifact store.
package persist

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"classledger/internal/blob"
	"classledger/internal/logging"
	"classledger/internal/snapshot"
	"classledger/pkg/domain"
)

const (
	// ExportPrefix is the blob key prefix under which exports are published.
	ExportPrefix = "exports/"
	exportName   = "classledger-backup-"
	dateLayout   = "2006-01-02"
)

// ErrNoArtifactStore is returned by export operations when no blob store is configured.
var ErrNoArtifactStore = errors.New("persist: no artifact store configured")

// Adapter reads and writes the dataset through a domain.Slot.
type Adapter struct {
	slot   domain.Slot
	blobs  blob.Store
	logger logging.Logger
	nowFn  func() time.Time
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithBlobStore sets the artifact store used by exports.
func WithBlobStore(s blob.Store) Option { return func(a *Adapter) { a.blobs = s } }

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option { return func(a *Adapter) { a.logger = logging.OrNoop(l) } }

// WithClock overrides the clock used to date exports.
func WithClock(now func() time.Time) Option { return func(a *Adapter) { a.nowFn = now } }

// New builds an adapter over slot.
func New(slot domain.Slot, opts ...Option) *Adapter {
	a := &Adapter{
		slot:   slot,
		logger: logging.Noop(),
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Driver names the underlying slot driver.
func (a *Adapter) Driver() string { return a.slot.Driver() }

// Load returns the persisted dataset. An empty slot, a read error or an
// unparseable value all yield an empty dataset; field-level defects are
// coerced as described by snapshot.Decode.
func (a *Adapter) Load(ctx context.Context) domain.Dataset {
	raw, err := a.slot.Read(ctx)
	if err != nil {
		if !errors.Is(err, domain.ErrSlotEmpty) {
			a.logger.Error("load failed, starting empty", "driver", a.slot.Driver(), "error", err)
		}
		return domain.EmptyDataset()
	}
	d, rep := snapshot.Inspect(raw)
	a.logReport("load", rep)
	return d
}

// Save writes d to the slot. Failures are logged and returned; the store
// records them but keeps its in-memory snapshot.
func (a *Adapter) Save(ctx context.Context, d domain.Dataset) error {
	payload, err := snapshot.Encode(d)
	if err != nil {
		a.logger.Error("encode snapshot failed", "error", err)
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := a.slot.Write(ctx, payload); err != nil {
		a.logger.Error("save failed", "driver", a.slot.Driver(), "bytes", len(payload), "error", err)
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// ImportSnapshot decodes raw with the same coercion as Load. When raw is not
// a JSON object it returns false and leaves the slot untouched; otherwise it
// overwrites the slot with the coerced dataset and returns true. A failed
// slot write is logged but does not change the result.
func (a *Adapter) ImportSnapshot(ctx context.Context, raw []byte) (domain.Dataset, bool) {
	d, rep := snapshot.Inspect(raw)
	if !rep.Object {
		a.logger.Warn("import rejected: not a snapshot object", "bytes", len(raw))
		return domain.EmptyDataset(), false
	}
	a.logReport("import", rep)
	_ = a.Save(ctx, d)
	return d, true
}

// Export is a published snapshot.
type Export struct {
	// Name is the artifact file name, e.g. classledger-backup-2024-03-01.json.
	Name string
	// Key is the blob key the artifact was stored under.
	Key  string
	Data []byte
	Info blob.Info
}

// ExportName returns the artifact file name for day.
func ExportName(day time.Time) string {
	return exportName + day.Format(dateLayout) + ".json"
}

// ExportSnapshot loads the persisted dataset, encodes it and publishes it
// under ExportPrefix with a dated name. Exporting twice on one day replaces
// that day's artifact. Without an artifact store the bytes are still returned.
func (a *Adapter) ExportSnapshot(ctx context.Context) (Export, error) {
	d := a.Load(ctx)
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return Export{}, fmt.Errorf("encode export: %w", err)
	}
	name := ExportName(a.nowFn())
	exp := Export{Name: name, Key: ExportPrefix + name, Data: data}
	if a.blobs == nil {
		return exp, nil
	}
	info, err := a.blobs.Put(ctx, exp.Key, bytes.NewReader(data), blob.PutOptions{
		ContentType: "application/json",
		Metadata:    map[string]string{"students": fmt.Sprint(len(d.Students)), "groups": fmt.Sprint(len(d.Groups))},
	})
	if err != nil {
		a.logger.Error("publish export failed", "key", exp.Key, "error", err)
		return exp, fmt.Errorf("publish export %s: %w", exp.Key, err)
	}
	exp.Info = info
	a.logger.Info("export published", "key", exp.Key, "bytes", len(data), "driver", string(a.blobs.Driver()))
	return exp, nil
}

// ListExports lists published exports, oldest first.
func (a *Adapter) ListExports(ctx context.Context) ([]blob.Info, error) {
	if a.blobs == nil {
		return nil, ErrNoArtifactStore
	}
	infos, err := a.blobs.List(ctx, ExportPrefix)
	if err != nil {
		return nil, err
	}
	out := infos[:0:0]
	for _, info := range infos {
		if strings.HasSuffix(info.Key, ".json") {
			out = append(out, info)
		}
	}
	return out, nil
}

// RestoreExport imports a previously published export. The bool follows
// ImportSnapshot; the error reports a missing or unreadable artifact.
func (a *Adapter) RestoreExport(ctx context.Context, key string) (domain.Dataset, bool, error) {
	if a.blobs == nil {
		return domain.EmptyDataset(), false, ErrNoArtifactStore
	}
	if !strings.HasPrefix(key, ExportPrefix) {
		key = ExportPrefix + key
	}
	_, rc, err := a.blobs.Get(ctx, key)
	if err != nil {
		return domain.EmptyDataset(), false, fmt.Errorf("fetch export %s: %w", key, err)
	}
	defer rc.Close()
	raw, err := io.ReadAll(rc)
	if err != nil {
		return domain.EmptyDataset(), false, fmt.Errorf("read export %s: %w", key, err)
	}
	d, ok := a.ImportSnapshot(ctx, raw)
	return d, ok, nil
}

func (a *Adapter) logReport(op string, rep snapshot.Report) {
	if rep.Clean() {
		return
	}
	if !rep.Object {
		a.logger.Warn(op+": persisted value is not a snapshot object, using empty dataset")
		return
	}
	a.logger.Warn(op+": snapshot coerced", "reset", rep.Reset, "missing", rep.Missing, "dropped", rep.Dropped)
}
