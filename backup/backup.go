// Package backup serialises the knowledge graph and its vector payloads into
// a versioned JSON archive and restores archives through the stores' merge
// semantics, so a restore into a non-empty deployment is an idempotent merge
// rather than an overwrite.
package backup

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yagokoro-dev/yagokoro/graphstore"
	"github.com/yagokoro-dev/yagokoro/kg"
	"github.com/yagokoro-dev/yagokoro/log"
	"github.com/yagokoro-dev/yagokoro/vectorstore"
)

// ArchiveVersion is written into every archive. Readers reject versions they
// do not understand.
const ArchiveVersion = 1

// maxCommunityLevels bounds the level scan during snapshot.
const maxCommunityLevels = 10

// Archive is the on-disk format.
type Archive struct {
	Version     int                    `json:"version"`
	CreatedAt   time.Time              `json:"created_at"`
	Entities    []*kg.Entity           `json:"entities"`
	Relations   []*kg.Relation         `json:"relations"`
	Communities []*kg.Community        `json:"communities,omitempty"`
	Documents   []vectorstore.Document `json:"documents,omitempty"`
}

// RestoreResult counts what a restore touched.
type RestoreResult struct {
	Entities    int `json:"entities"`
	Relations   int `json:"relations"`
	Communities int `json:"communities"`
	Documents   int `json:"documents"`
}

// Manager snapshots and restores one deployment's stores. The vector store
// must implement vectorstore.Lister for snapshots; both shipped backends do.
type Manager struct {
	graph   graphstore.Store
	vectors vectorstore.Store
	now     func() time.Time
}

// NewManager wires a manager over the two stores.
func NewManager(graph graphstore.Store, vectors vectorstore.Store) *Manager {
	return &Manager{graph: graph, vectors: vectors, now: time.Now}
}

// Snapshot collects the full graph and vector state into an archive. The
// two stores are read concurrently; output ordering is deterministic.
func (m *Manager) Snapshot(ctx context.Context) (*Archive, error) {
	archive := &Archive{Version: ArchiveVersion, CreatedAt: m.now()}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		entities, err := m.graph.AllEntities(ctx)
		if err != nil {
			return kg.Wrap(err, "snapshot entities")
		}
		relations, err := m.graph.AllRelations(ctx)
		if err != nil {
			return kg.Wrap(err, "snapshot relations")
		}
		sort.Slice(entities, func(i, j int) bool { return entities[i].ID < entities[j].ID })
		sort.Slice(relations, func(i, j int) bool { return relations[i].ID < relations[j].ID })
		archive.Entities = entities
		archive.Relations = relations

		for level := 0; level < maxCommunityLevels; level++ {
			communities, err := m.graph.Communities(ctx, level)
			if err != nil {
				return kg.Wrap(err, "snapshot communities")
			}
			if len(communities) == 0 {
				break
			}
			sort.Slice(communities, func(i, j int) bool { return communities[i].ID < communities[j].ID })
			archive.Communities = append(archive.Communities, communities...)
		}
		return nil
	})
	g.Go(func() error {
		lister, ok := m.vectors.(vectorstore.Lister)
		if !ok {
			log.Warn("backup: vector store cannot enumerate documents, skipping vectors")
			return nil
		}
		docs, err := lister.AllDocuments(ctx)
		if err != nil {
			return kg.Wrap(err, "snapshot vector documents")
		}
		archive.Documents = docs
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return archive, nil
}

// Write snapshots the stores and streams the archive as JSON.
func (m *Manager) Write(ctx context.Context, w io.Writer) error {
	archive, err := m.Snapshot(ctx)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(archive); err != nil {
		return kg.Wrap(err, "encode archive")
	}
	return nil
}

// WriteFile writes an archive to path, creating parent directories.
func (m *Manager) WriteFile(ctx context.Context, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return kg.Wrap(err, "create backup directory")
	}
	f, err := os.Create(path)
	if err != nil {
		return kg.Wrap(err, "create backup file")
	}
	defer f.Close()
	if err := m.Write(ctx, f); err != nil {
		return err
	}
	log.Info("backup: wrote archive to %s", path)
	return nil
}

// Restore merges an archive into the stores. Entities land before the
// relations referencing them; everything goes through upserts, so restoring
// the same archive twice leaves the stores unchanged.
func (m *Manager) Restore(ctx context.Context, r io.Reader) (*RestoreResult, error) {
	archive, err := Decode(r)
	if err != nil {
		return nil, err
	}

	result := &RestoreResult{}
	for _, e := range archive.Entities {
		if _, err := m.graph.UpsertEntity(ctx, e); err != nil {
			return result, kg.Wrap(err, "restore entity "+e.ID)
		}
		result.Entities++
	}
	for _, rel := range archive.Relations {
		if _, err := m.graph.UpsertRelation(ctx, rel); err != nil {
			return result, kg.Wrap(err, "restore relation "+rel.ID)
		}
		result.Relations++
	}
	for _, c := range archive.Communities {
		if err := m.graph.UpsertCommunity(ctx, c); err != nil {
			return result, kg.Wrap(err, "restore community "+c.ID)
		}
		result.Communities++
	}
	if len(archive.Documents) > 0 {
		if err := m.vectors.Upsert(ctx, archive.Documents...); err != nil {
			return result, kg.Wrap(err, "restore vector documents")
		}
		result.Documents = len(archive.Documents)
	}
	log.Info("backup: restored %d entities, %d relations, %d communities, %d documents",
		result.Entities, result.Relations, result.Communities, result.Documents)
	return result, nil
}

// RestoreFile restores the archive at path.
func (m *Manager) RestoreFile(ctx context.Context, path string) (*RestoreResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, kg.Wrap(err, "open backup file")
	}
	defer f.Close()
	return m.Restore(ctx, f)
}

// Decode parses and validates an archive.
func Decode(r io.Reader) (*Archive, error) {
	var archive Archive
	if err := json.NewDecoder(r).Decode(&archive); err != nil {
		return nil, kg.NewValidation("archive", "invalid archive JSON: "+err.Error())
	}
	if err := Validate(&archive); err != nil {
		return nil, err
	}
	return &archive, nil
}

// Validate checks version compatibility and referential integrity: every
// relation endpoint must be an archived entity.
func Validate(archive *Archive) error {
	if archive.Version != ArchiveVersion {
		return kg.NewValidation("version",
			fmt.Sprintf("unsupported archive version %d, want %d", archive.Version, ArchiveVersion))
	}

	ids := make(map[string]bool, len(archive.Entities))
	for _, e := range archive.Entities {
		if e.ID == "" {
			return kg.NewValidation("entities", "archived entity without id")
		}
		ids[e.ID] = true
	}
	for _, rel := range archive.Relations {
		if !ids[rel.SourceID] || !ids[rel.TargetID] {
			return kg.NewValidation("relations",
				fmt.Sprintf("relation %s references an entity missing from the archive", rel.ID))
		}
	}
	return nil
}

// Info describes one archive file on disk.
type Info struct {
	Path      string    `json:"path"`
	Size      int64     `json:"size"`
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	Entities  int       `json:"entities"`
	Relations int       `json:"relations"`
}

// List inspects every .json archive under dir, newest first. Unreadable
// files are skipped with a warning.
func List(dir string) ([]Info, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, kg.NewValidation("dir", "invalid backup directory pattern: "+err.Error())
	}

	var infos []Info
	for _, path := range paths {
		stat, err := os.Stat(path)
		if err != nil {
			continue
		}
		f, err := os.Open(path)
		if err != nil {
			log.Warn("backup: cannot open %s: %v", path, err)
			continue
		}
		var archive Archive
		decodeErr := json.NewDecoder(f).Decode(&archive)
		f.Close()
		if decodeErr != nil {
			log.Warn("backup: skipping unreadable archive %s: %v", path, decodeErr)
			continue
		}
		infos = append(infos, Info{
			Path:      path,
			Size:      stat.Size(),
			Version:   archive.Version,
			CreatedAt: archive.CreatedAt,
			Entities:  len(archive.Entities),
			Relations: len(archive.Relations),
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].CreatedAt.After(infos[j].CreatedAt) })
	return infos, nil
}
