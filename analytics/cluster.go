// Package analytics derives research intelligence from an indexed graph:
// cluster profiles over the community partition, structural gaps between
// weakly connected clusters, and trend forecasts over monthly activity.
package analytics

import (
	"context"
	"sort"
	"strconv"
	"time"

	"github.com/yagokoro-dev/yagokoro/graphstore"
	"github.com/yagokoro-dev/yagokoro/kg"
	"github.com/yagokoro-dev/yagokoro/log"
	"github.com/yagokoro-dev/yagokoro/vectorstore"
)

const (
	// DefaultMinClusterSize drops communities too small to profile.
	DefaultMinClusterSize = 3
	// DefaultGapThreshold marks a cluster pair as a gap when their
	// normalised connection strength falls below it.
	DefaultGapThreshold = 0.1
	// DefaultGrowthWindowYears splits publications into recent and prior
	// for the growth rate.
	DefaultGrowthWindowYears = 3
	// semanticBridgeSimilarity is the cosine floor for a keyword pair to
	// count as a semantic bridge.
	semanticBridgeSimilarity = 0.8
)

// ClusterOptions tunes the analyzer.
type ClusterOptions struct {
	// MinClusterSize floors the member count. Zero means
	// DefaultMinClusterSize.
	MinClusterSize int
	// Level selects the community level to analyse. Level 0 is the finest
	// partition.
	Level int
	// GapThreshold overrides DefaultGapThreshold when positive.
	GapThreshold float64
}

func (o ClusterOptions) minClusterSize() int {
	if o.MinClusterSize <= 0 {
		return DefaultMinClusterSize
	}
	return o.MinClusterSize
}

func (o ClusterOptions) gapThreshold() float64 {
	if o.GapThreshold <= 0 {
		return DefaultGapThreshold
	}
	return o.GapThreshold
}

// ResearchCluster is one community annotated with publication statistics and
// its connection strengths to the other clusters.
type ResearchCluster struct {
	CommunityID        string   `json:"community_id"`
	Keywords           []string `json:"keywords,omitempty"`
	Size               int      `json:"size"`
	PublicationCount   int      `json:"publication_count"`
	AvgPublicationYear float64  `json:"avg_publication_year"`
	// GrowthRate compares publications of the recent window against the
	// prior ones: (recent-prior)/prior, 1.0 when everything is recent,
	// 0 when the cluster has no publications.
	GrowthRate  float64            `json:"growth_rate"`
	Connections map[string]float64 `json:"connections,omitempty"`
}

// ClusterGap is a weakly connected cluster pair with candidate bridge
// topics, strongest evidence first: shared keywords, then semantically close
// keyword pairs, then entities already linking the two sides.
type ClusterGap struct {
	ClusterA     string   `json:"cluster_a"`
	ClusterB     string   `json:"cluster_b"`
	Strength     float64  `json:"strength"`
	BridgeTopics []string `json:"bridge_topics,omitempty"`
}

// ClusterAnalyzer profiles the community partition of a graph store. The
// embedder is optional; without it gap analysis skips the semantic bridge
// stage.
type ClusterAnalyzer struct {
	store    graphstore.Store
	embedder vectorstore.Embedder
	opts     ClusterOptions
	now      func() time.Time
}

// NewClusterAnalyzer wires an analyzer. embedder may be nil.
func NewClusterAnalyzer(store graphstore.Store, embedder vectorstore.Embedder, opts ClusterOptions) *ClusterAnalyzer {
	return &ClusterAnalyzer{store: store, embedder: embedder, opts: opts, now: time.Now}
}

// AnalyzeExistingClusters profiles every community at the configured level
// with at least MinClusterSize members, sorted by size descending then ID.
func (a *ClusterAnalyzer) AnalyzeExistingClusters(ctx context.Context) ([]*ResearchCluster, error) {
	communities, err := a.store.Communities(ctx, a.opts.Level)
	if err != nil {
		return nil, kg.Wrap(err, "list communities")
	}

	minSize := a.opts.minClusterSize()
	membership := make(map[string]string)
	var clusters []*ResearchCluster
	for _, c := range communities {
		if len(c.MemberIDs) < minSize {
			continue
		}
		for _, id := range c.MemberIDs {
			membership[id] = c.ID
		}
		clusters = append(clusters, &ResearchCluster{
			CommunityID: c.ID,
			Keywords:    append([]string(nil), c.Keywords...),
			Size:        len(c.MemberIDs),
			Connections: make(map[string]float64),
		})
	}
	if len(clusters) == 0 {
		return nil, nil
	}

	for _, cluster := range clusters {
		if err := a.annotatePublications(ctx, cluster); err != nil {
			return nil, err
		}
	}
	if err := a.annotateConnections(ctx, clusters, membership); err != nil {
		return nil, err
	}

	sort.Slice(clusters, func(i, j int) bool {
		if clusters[i].Size != clusters[j].Size {
			return clusters[i].Size > clusters[j].Size
		}
		return clusters[i].CommunityID < clusters[j].CommunityID
	})
	return clusters, nil
}

// annotatePublications fills publication count, average year, and growth
// rate from the cluster's Publication members.
func (a *ClusterAnalyzer) annotatePublications(ctx context.Context, cluster *ResearchCluster) error {
	community, err := a.store.GetCommunity(ctx, cluster.CommunityID)
	if err != nil {
		return kg.Wrap(err, "load community "+cluster.CommunityID)
	}

	cutoff := a.now().Year() - DefaultGrowthWindowYears
	var yearSum, recent, prior int
	for _, id := range community.MemberIDs {
		entity, err := a.store.GetEntity(ctx, id)
		if err != nil {
			if kg.IsKind(err, kg.KindNotFound) {
				continue
			}
			return kg.Wrap(err, "load cluster member "+id)
		}
		if entity.Type != kg.EntityPublication {
			continue
		}
		cluster.PublicationCount++
		year, ok := propertyYear(entity.Properties)
		if !ok {
			continue
		}
		yearSum += year
		if year > cutoff {
			recent++
		} else {
			prior++
		}
	}

	if withYear := recent + prior; withYear > 0 {
		cluster.AvgPublicationYear = float64(yearSum) / float64(withYear)
	}
	switch {
	case prior > 0:
		cluster.GrowthRate = float64(recent-prior) / float64(prior)
	case recent > 0:
		cluster.GrowthRate = 1.0
	}
	return nil
}

// annotateConnections counts cross-cluster relations and normalises pair
// counts to [0,1] by the busiest pair.
func (a *ClusterAnalyzer) annotateConnections(ctx context.Context, clusters []*ResearchCluster, membership map[string]string) error {
	relations, err := a.store.AllRelations(ctx)
	if err != nil {
		return kg.Wrap(err, "list relations")
	}

	pairCounts := make(map[[2]string]int)
	maxCount := 0
	for _, r := range relations {
		ca, okA := membership[r.SourceID]
		cb, okB := membership[r.TargetID]
		if !okA || !okB || ca == cb {
			continue
		}
		key := pairKey(ca, cb)
		pairCounts[key]++
		if pairCounts[key] > maxCount {
			maxCount = pairCounts[key]
		}
	}
	if maxCount == 0 {
		return nil
	}

	byID := make(map[string]*ResearchCluster, len(clusters))
	for _, c := range clusters {
		byID[c.CommunityID] = c
	}
	for key, count := range pairCounts {
		strength := float64(count) / float64(maxCount)
		byID[key[0]].Connections[key[1]] = strength
		byID[key[1]].Connections[key[0]] = strength
	}
	return nil
}

// FindClusterGaps returns cluster pairs whose connection strength is below
// the gap threshold, weakest first, each enriched with bridge topics.
func (a *ClusterAnalyzer) FindClusterGaps(ctx context.Context) ([]*ClusterGap, error) {
	clusters, err := a.AnalyzeExistingClusters(ctx)
	if err != nil {
		return nil, err
	}
	if len(clusters) < 2 {
		return nil, nil
	}

	threshold := a.opts.gapThreshold()
	var gaps []*ClusterGap
	for i := 0; i < len(clusters); i++ {
		for j := i + 1; j < len(clusters); j++ {
			ca, cb := clusters[i], clusters[j]
			strength := ca.Connections[cb.CommunityID]
			if strength >= threshold {
				continue
			}
			gap := &ClusterGap{
				ClusterA: ca.CommunityID,
				ClusterB: cb.CommunityID,
				Strength: strength,
			}
			gap.BridgeTopics = a.bridgeTopics(ctx, ca, cb)
			gaps = append(gaps, gap)
		}
	}

	sort.Slice(gaps, func(i, j int) bool {
		if gaps[i].Strength != gaps[j].Strength {
			return gaps[i].Strength < gaps[j].Strength
		}
		if gaps[i].ClusterA != gaps[j].ClusterA {
			return gaps[i].ClusterA < gaps[j].ClusterA
		}
		return gaps[i].ClusterB < gaps[j].ClusterB
	})
	return gaps, nil
}

// bridgeTopics stacks three evidence stages: keywords both clusters already
// share, keyword pairs that embed close together, and entities with an edge
// across the gap.
func (a *ClusterAnalyzer) bridgeTopics(ctx context.Context, ca, cb *ResearchCluster) []string {
	var topics []string
	seen := make(map[string]bool)
	add := func(topic string) {
		if topic != "" && !seen[topic] {
			seen[topic] = true
			topics = append(topics, topic)
		}
	}

	kwB := make(map[string]bool, len(cb.Keywords))
	for _, kw := range cb.Keywords {
		kwB[kg.NormalizeName(kw)] = true
	}
	for _, kw := range ca.Keywords {
		if kwB[kg.NormalizeName(kw)] {
			add(kw)
		}
	}

	if a.embedder != nil {
		for _, pair := range a.semanticBridges(ctx, ca.Keywords, cb.Keywords) {
			add(pair)
		}
	}

	for _, name := range a.crossingEntities(ctx, ca.CommunityID, cb.CommunityID) {
		add(name)
	}
	return topics
}

// semanticBridges embeds both keyword sets and pairs keywords above the
// similarity floor. Embedding failures degrade to no semantic bridges.
func (a *ClusterAnalyzer) semanticBridges(ctx context.Context, kwA, kwB []string) []string {
	embed := func(keywords []string) [][]float32 {
		vecs := make([][]float32, len(keywords))
		for i, kw := range keywords {
			vec, err := a.embedder.Embed(ctx, kw)
			if err != nil {
				log.Warn("analytics: embedding keyword %q failed: %v", kw, err)
				return nil
			}
			vecs[i] = vec
		}
		return vecs
	}
	vecsA, vecsB := embed(kwA), embed(kwB)
	if vecsA == nil || vecsB == nil {
		return nil
	}

	var bridges []string
	for i, va := range vecsA {
		for j, vb := range vecsB {
			if kg.NormalizeName(kwA[i]) == kg.NormalizeName(kwB[j]) {
				continue
			}
			if vectorstore.CosineSimilarity(va, vb) >= semanticBridgeSimilarity {
				bridges = append(bridges, kwA[i]+" / "+kwB[j])
			}
		}
	}
	sort.Strings(bridges)
	return bridges
}

// crossingEntities names the entities already participating in an edge
// between the two clusters, sorted for stable output.
func (a *ClusterAnalyzer) crossingEntities(ctx context.Context, idA, idB string) []string {
	commA, errA := a.store.GetCommunity(ctx, idA)
	commB, errB := a.store.GetCommunity(ctx, idB)
	if errA != nil || errB != nil {
		return nil
	}
	inA := make(map[string]bool, len(commA.MemberIDs))
	for _, id := range commA.MemberIDs {
		inA[id] = true
	}
	inB := make(map[string]bool, len(commB.MemberIDs))
	for _, id := range commB.MemberIDs {
		inB[id] = true
	}

	relations, err := a.store.AllRelations(ctx)
	if err != nil {
		return nil
	}
	nameSet := make(map[string]bool)
	for _, r := range relations {
		if (inA[r.SourceID] && inB[r.TargetID]) || (inB[r.SourceID] && inA[r.TargetID]) {
			for _, id := range []string{r.SourceID, r.TargetID} {
				entity, err := a.store.GetEntity(ctx, id)
				if err == nil {
					nameSet[entity.Name] = true
				}
			}
		}
	}
	names := make([]string, 0, len(nameSet))
	for name := range nameSet {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func pairKey(a, b string) [2]string {
	if a < b {
		return [2]string{a, b}
	}
	return [2]string{b, a}
}

// propertyYear reads a publication year out of an entity property bag,
// tolerating the numeric and string encodings extraction produces.
func propertyYear(props map[string]any) (int, bool) {
	raw, ok := props["year"]
	if !ok {
		return 0, false
	}
	switch v := raw.(type) {
	case int:
		return v, true
	case float64:
		return int(v), true
	case string:
		year, err := strconv.Atoi(v)
		if err != nil {
			return 0, false
		}
		return year, true
	default:
		return 0, false
	}
}
